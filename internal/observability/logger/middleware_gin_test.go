package logger

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/quotaledger/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestGinMiddlewarePropagatesRequestAndProject(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	var gotRequestID, gotProject string
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.GET("/api/projects/:project_id/quotas", func(c *gin.Context) {
		gotRequestID = obscontext.RequestIDFromContext(c.Request.Context())
		gotProject = obscontext.ProjectIDFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/projects/projA/quotas", nil)
	req.Header.Set("X-Request-Id", "req-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-42", w.Header().Get("X-Request-Id"))
	assert.Equal(t, "req-42", gotRequestID)
	assert.Equal(t, "projA", gotProject)

	entries := logs.FilterMessage("http_request").All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "projA", fields["project_id"])
		assert.Equal(t, int64(http.StatusOK), fields["status"])
	}
}

func TestGinMiddlewareGeneratesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestGinMiddlewareReplacesUnusableRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name   string
		header string
	}{
		{name: "too long", header: strings.Repeat("a", 200)},
		{name: "control characters", header: "req\x01id"},
		{name: "non ascii", header: "req-ü"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var gotRequestID string
			r := gin.New()
			r.Use(GinMiddleware(MiddlewareConfig{}))
			r.PUT("/api/projects/:project_id/quotas/:kind", func(c *gin.Context) {
				gotRequestID = obscontext.RequestIDFromContext(c.Request.Context())
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodPut, "/api/projects/projA/quotas/image_count", nil)
			req.Header.Set("X-Request-Id", tc.header)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.NotEqual(t, tc.header, gotRequestID)
			_, err := uuid.Parse(gotRequestID)
			assert.NoError(t, err)
			assert.LessOrEqual(t, len(gotRequestID), maxRequestIDLength)
			assert.Equal(t, gotRequestID, w.Header().Get("X-Request-Id"))
		})
	}
}

func TestGinMiddlewareKeepsMaxLengthRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	id := strings.Repeat("r", maxRequestIDLength)

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", id)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, id, w.Header().Get("X-Request-Id"))
}

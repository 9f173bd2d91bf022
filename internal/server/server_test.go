package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/quotaledger/internal/config"
	"github.com/smallbiznis/quotaledger/internal/observability"
	quotadomain "github.com/smallbiznis/quotaledger/internal/quota/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQuotaService struct {
	limits      map[string]int64
	usage       map[string]int64
	expirations map[string]string
	err         error

	lastAdmission quotadomain.AdmissionRequest
	lastHistory   int
}

func newFakeQuotaService() *fakeQuotaService {
	return &fakeQuotaService{
		limits:      map[string]int64{},
		usage:       map[string]int64{},
		expirations: map[string]string{},
	}
}

func key(projectID string, kind quotadomain.ResourceKind) string {
	return projectID + "/" + kind.String()
}

func (f *fakeQuotaService) quota(projectID string, kind quotadomain.ResourceKind) (quotadomain.Quota, error) {
	if _, err := quotadomain.NormalizeProjectID(projectID); err != nil {
		return quotadomain.Quota{}, err
	}
	q := quotadomain.Quota{ProjectID: projectID, Kind: kind, Unit: kind.Unit()}
	if limit, ok := f.limits[key(projectID, kind)]; ok {
		q.Limit, q.Source = limit, quotadomain.LimitSourceStored
		return q, nil
	}
	q.Limit, q.Source = quotadomain.DefaultLimitMap{}.DefaultLimit(kind), quotadomain.LimitSourceDefault
	return q, nil
}

func (f *fakeQuotaService) CheckAndAdmit(_ context.Context, req quotadomain.AdmissionRequest) (quotadomain.Decision, error) {
	f.lastAdmission = req
	if f.err != nil {
		return quotadomain.Decision{}, f.err
	}
	kind, err := quotadomain.ParseKind(string(req.Kind))
	if err != nil {
		return quotadomain.Decision{}, err
	}
	q, err := f.quota(req.ProjectID, kind)
	if err != nil {
		return quotadomain.Decision{}, err
	}
	usage := f.usage[key(req.ProjectID, kind)]
	d := quotadomain.Decision{
		ProjectID:   req.ProjectID,
		Kind:        kind,
		Admitted:    usage+req.Delta <= q.Limit,
		Usage:       usage,
		Limit:       q.Limit,
		Requested:   req.Delta,
		LimitSource: q.Source,
	}
	if !d.Admitted {
		d.Reason = quotadomain.DenyReasonQuotaExceeded
	}
	return d, nil
}

func (f *fakeQuotaService) GetQuota(_ context.Context, projectID string, kind quotadomain.ResourceKind) (quotadomain.Quota, error) {
	if f.err != nil {
		return quotadomain.Quota{}, f.err
	}
	return f.quota(projectID, kind)
}

func (f *fakeQuotaService) ListQuotas(_ context.Context, projectID string) ([]quotadomain.Quota, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := []quotadomain.Quota{}
	for _, kind := range quotadomain.Kinds() {
		q, err := f.quota(projectID, kind)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

func (f *fakeQuotaService) SetQuota(_ context.Context, req quotadomain.SetQuotaRequest) (quotadomain.Quota, error) {
	if f.err != nil {
		return quotadomain.Quota{}, f.err
	}
	if req.Limit < 0 {
		return quotadomain.Quota{}, quotadomain.ErrInvalidLimit
	}
	if _, err := quotadomain.NormalizeProjectID(req.ProjectID); err != nil {
		return quotadomain.Quota{}, err
	}
	f.limits[key(req.ProjectID, req.Kind)] = req.Limit
	return f.quota(req.ProjectID, req.Kind)
}

func (f *fakeQuotaService) QuotaHistory(_ context.Context, projectID string, kind quotadomain.ResourceKind, limit int) ([]quotadomain.QuotaChange, error) {
	f.lastHistory = limit
	return []quotadomain.QuotaChange{{ProjectID: projectID, ResourceKind: kind, NewLimit: 5, Backend: "database"}}, nil
}

func (f *fakeQuotaService) GetUsage(_ context.Context, projectID string, kind quotadomain.ResourceKind) (quotadomain.Usage, error) {
	if f.err != nil {
		return quotadomain.Usage{}, f.err
	}
	return quotadomain.Usage{ProjectID: projectID, Kind: kind, Unit: kind.Unit(), Usage: f.usage[key(projectID, kind)]}, nil
}

func (f *fakeQuotaService) GetExpiration(_ context.Context, projectID string) (quotadomain.Expiration, error) {
	date, ok := f.expirations[projectID]
	if !ok {
		return quotadomain.Expiration{}, quotadomain.ErrNotFound
	}
	return quotadomain.Expiration{ProjectID: projectID, ExpiresOn: date}, nil
}

func (f *fakeQuotaService) SetExpiration(_ context.Context, projectID, date string) (quotadomain.Expiration, error) {
	date, err := quotadomain.NormalizeDate(date)
	if err != nil {
		return quotadomain.Expiration{}, err
	}
	f.expirations[projectID] = date
	return quotadomain.Expiration{ProjectID: projectID, ExpiresOn: date}, nil
}

func (f *fakeQuotaService) ListExpirations(context.Context) ([]quotadomain.Expiration, error) {
	out := []quotadomain.Expiration{}
	for projectID, date := range f.expirations {
		out = append(out, quotadomain.Expiration{ProjectID: projectID, ExpiresOn: date})
	}
	return out, nil
}

func newTestServer(t *testing.T, svc quotadomain.Service) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := NewEngine(observability.Config{})
	NewServer(ServerParams{Gin: engine, Cfg: config.Config{}, QuotaSvc: svc})
	return engine
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestSetThenGetQuota(t *testing.T) {
	engine := newTestServer(t, newFakeQuotaService())

	rec := doJSON(t, engine, http.MethodPut, "/api/projects/projA/quotas/image_count", map[string]any{"limit": 25})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, engine, http.MethodGet, "/api/projects/projA/quotas/image_count", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data quotadomain.Quota `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(25), resp.Data.Limit)
	assert.Equal(t, "images", resp.Data.Unit)
	assert.Equal(t, quotadomain.LimitSourceStored, resp.Data.Source)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestListQuotas(t *testing.T) {
	engine := newTestServer(t, newFakeQuotaService())

	rec := doJSON(t, engine, http.MethodGet, "/api/projects/projA/quotas", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []quotadomain.Quota `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 3)
}

func TestSetQuotaValidation(t *testing.T) {
	engine := newTestServer(t, newFakeQuotaService())

	cases := []struct {
		name string
		path string
		body any
		code string
	}{
		{name: "negative limit", path: "/api/projects/projA/quotas/image_count", body: map[string]any{"limit": -1}, code: "invalid_limit"},
		{name: "missing limit", path: "/api/projects/projA/quotas/image_count", body: map[string]any{}, code: "invalid_limit"},
		{name: "non numeric limit", path: "/api/projects/projA/quotas/image_count", body: map[string]any{"limit": "ten"}, code: "invalid_request"},
		{name: "unknown kind", path: "/api/projects/projA/quotas/gpu_hours", body: map[string]any{"limit": 1}, code: "invalid_kind"},
		{name: "hostile project", path: "/api/projects/-rf/quotas/image_count", body: map[string]any{"limit": 1}, code: "invalid_project_id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, engine, http.MethodPut, tc.path, tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			payload := decodeError(t, rec)
			assert.Equal(t, "validation_error", payload.Type)
			require.Len(t, payload.Errors, 1)
			assert.Equal(t, tc.code, payload.Errors[0].Code)
		})
	}
}

func TestCheckAdmission(t *testing.T) {
	svc := newFakeQuotaService()
	svc.limits[key("projA", quotadomain.KindImageCount)] = 10
	svc.usage[key("projA", quotadomain.KindImageCount)] = 8
	engine := newTestServer(t, svc)

	cases := []struct {
		delta int64
		admit bool
	}{
		{delta: 3, admit: false},
		{delta: 2, admit: true},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("delta_%d", tc.delta), func(t *testing.T) {
			rec := doJSON(t, engine, http.MethodPost, "/api/projects/projA/admissions", map[string]any{
				"kind":  "image_count",
				"delta": tc.delta,
			})
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var resp struct {
				Data quotadomain.Decision `json:"data"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tc.admit, resp.Data.Admitted)
			assert.Equal(t, int64(8), resp.Data.Usage)
			assert.Equal(t, int64(10), resp.Data.Limit)
			assert.Equal(t, tc.delta, resp.Data.Requested)
		})
	}
}

func TestCheckAdmissionRequiresDelta(t *testing.T) {
	engine := newTestServer(t, newFakeQuotaService())

	rec := doJSON(t, engine, http.MethodPost, "/api/projects/projA/admissions", map[string]any{"kind": "image_count"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_delta", decodeError(t, rec).Errors[0].Code)
}

func TestBackendErrorsMapToStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
		typ    string
	}{
		{err: fmt.Errorf("%w: exit 2", quotadomain.ErrBackendUnavailable), status: http.StatusServiceUnavailable, typ: "backend_unavailable"},
		{err: fmt.Errorf("%w: sudo", quotadomain.ErrPermissionDenied), status: http.StatusForbidden, typ: "permission_denied"},
		{err: quotadomain.ErrNotFound, status: http.StatusNotFound, typ: "not_found"},
		{err: fmt.Errorf("boom"), status: http.StatusInternalServerError, typ: "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.typ, func(t *testing.T) {
			svc := newFakeQuotaService()
			svc.err = tc.err
			engine := newTestServer(t, svc)

			rec := doJSON(t, engine, http.MethodGet, "/api/projects/projA/usage/object_storage_mb", nil)
			require.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.typ, decodeError(t, rec).Type)
		})
	}
}

func TestQuotaHistoryLimit(t *testing.T) {
	svc := newFakeQuotaService()
	engine := newTestServer(t, svc)

	rec := doJSON(t, engine, http.MethodGet, "/api/projects/projA/quotas/image_count/history?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, svc.lastHistory)

	rec = doJSON(t, engine, http.MethodGet, "/api/projects/projA/quotas/image_count/history?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExpirationRoutes(t *testing.T) {
	engine := newTestServer(t, newFakeQuotaService())

	rec := doJSON(t, engine, http.MethodGet, "/api/projects/projA/expiration", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, engine, http.MethodPut, "/api/projects/projA/expiration", map[string]any{"expires_on": "2024-06-30"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, engine, http.MethodGet, "/api/projects/projA/expiration", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data quotadomain.Expiration `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "2024-06-30", resp.Data.ExpiresOn)

	rec = doJSON(t, engine, http.MethodPut, "/api/projects/projA/expiration", map[string]any{"expires_on": "30/06/2024"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_expires_on", decodeError(t, rec).Errors[0].Code)

	rec = doJSON(t, engine, http.MethodGet, "/api/expirations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Data []quotadomain.Expiration `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Data, 1)
}

func TestHealthAndUnknownRoute(t *testing.T) {
	engine := newTestServer(t, newFakeQuotaService())

	rec := doJSON(t, engine, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, engine, http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Type)
}

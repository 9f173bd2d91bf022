package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	quotadomain "github.com/smallbiznis/quotaledger/internal/quota/domain"
)

// kindParam resolves the :kind path segment and tags the request log with it.
func kindParam(c *gin.Context) (quotadomain.ResourceKind, error) {
	kind, err := quotadomain.ParseKind(c.Param("kind"))
	if err != nil {
		return "", err
	}
	c.Set("resource_kind", kind.String())
	return kind, nil
}

func projectParam(c *gin.Context) string {
	return strings.TrimSpace(c.Param("project_id"))
}

package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	quotadomain "github.com/smallbiznis/quotaledger/internal/quota/domain"
)

type setQuotaRequest struct {
	Limit *int64 `json:"limit"`
}

type admissionRequest struct {
	Kind  string `json:"kind"`
	Delta *int64 `json:"delta"`
}

func (s *Server) ListQuotas(c *gin.Context) {
	resp, err := s.quotaSvc.ListQuotas(c.Request.Context(), projectParam(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetQuota(c *gin.Context) {
	kind, err := kindParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.quotaSvc.GetQuota(c.Request.Context(), projectParam(c), kind)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SetQuota(c *gin.Context) {
	kind, err := kindParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req setQuotaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Limit == nil {
		AbortWithError(c, quotadomain.ErrInvalidLimit)
		return
	}

	resp, err := s.quotaSvc.SetQuota(c.Request.Context(), quotadomain.SetQuotaRequest{
		ProjectID: projectParam(c),
		Kind:      kind,
		Limit:     *req.Limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) QuotaHistory(c *gin.Context) {
	kind, err := kindParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	limit, err := parseOptionalInt(c.Query("limit"))
	if err != nil || (limit != nil && *limit <= 0) {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "limit must be a positive integer"))
		return
	}
	pageSize := 0
	if limit != nil {
		pageSize = *limit
	}

	resp, err := s.quotaSvc.QuotaHistory(c.Request.Context(), projectParam(c), kind, pageSize)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetUsage(c *gin.Context) {
	kind, err := kindParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.quotaSvc.GetUsage(c.Request.Context(), projectParam(c), kind)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// CheckAdmission answers 200 for both admit and deny; only a failure to
// reach a decision is an error status.
func (s *Server) CheckAdmission(c *gin.Context) {
	var req admissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if kind, err := quotadomain.ParseKind(req.Kind); err == nil {
		c.Set("resource_kind", kind.String())
	}
	if req.Delta == nil {
		AbortWithError(c, quotadomain.ErrInvalidDelta)
		return
	}

	decision, err := s.quotaSvc.CheckAndAdmit(c.Request.Context(), quotadomain.AdmissionRequest{
		ProjectID: projectParam(c),
		Kind:      quotadomain.ResourceKind(req.Kind),
		Delta:     *req.Delta,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if decision.Admitted {
		c.Set("admission", "admitted")
	} else {
		c.Set("admission", "denied")
	}
	c.JSON(http.StatusOK, gin.H{"data": decision})
}

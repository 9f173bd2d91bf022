package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	quotadomain "github.com/smallbiznis/quotaledger/internal/quota/domain"
)

type setExpirationRequest struct {
	ExpiresOn string `json:"expires_on"`
}

func (s *Server) GetExpiration(c *gin.Context) {
	resp, err := s.quotaSvc.GetExpiration(c.Request.Context(), projectParam(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SetExpiration(c *gin.Context) {
	var req setExpirationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.ExpiresOn == "" {
		AbortWithError(c, quotadomain.ErrInvalidDate)
		return
	}

	resp, err := s.quotaSvc.SetExpiration(c.Request.Context(), projectParam(c), req.ExpiresOn)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListExpirations(c *gin.Context) {
	resp, err := s.quotaSvc.ListExpirations(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/lumenadtech/lumen/internal/audit/domain"
)

func (s *Server) ListAuditEntries(c *gin.Context) {
	var query struct {
		ConfigKey string `form:"config_key"`
		StartAt   string `form:"start_at"`
		EndAt     string `form:"end_at"`
		Page      int    `form:"page"`
		Limit     int    `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req := auditdomain.QueryRequest{
		ConfigKey: strings.TrimSpace(query.ConfigKey),
		Page:      query.Page,
		Limit:     query.Limit,
	}
	if query.StartAt != "" {
		at, err := time.Parse(time.RFC3339, query.StartAt)
		if err != nil {
			AbortWithError(c, newValidationError("start_at", "invalid_time", "start_at must be RFC 3339"))
			return
		}
		req.StartAt = &at
	}
	if query.EndAt != "" {
		at, err := time.Parse(time.RFC3339, query.EndAt)
		if err != nil {
			AbortWithError(c, newValidationError("end_at", "invalid_time", "end_at must be RFC 3339"))
			return
		}
		req.EndAt = &at
	}

	resp, err := s.auditSvc.Query(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	deliverydomain "github.com/lumenadtech/lumen/internal/delivery/domain"
)

type ingestFactRequest struct {
	CampaignID     string         `json:"campaign_id"`
	DeviceID       string         `json:"device_id"`
	Impressions    int64          `json:"impressions"`
	Engagements    int64          `json:"engagements"`
	Completions    int64          `json:"completions"`
	Conversions    int64          `json:"conversions"`
	SpendCents     int64          `json:"spend_cents"`
	RecordedAt     time.Time      `json:"recorded_at"`
	IdempotencyKey string         `json:"idempotency_key"`
	Metadata       map[string]any `json:"metadata"`
}

func (s *Server) IngestFact(c *gin.Context) {
	var req ingestFactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	fact, err := s.deliverySvc.Ingest(c.Request.Context(), deliverydomain.IngestRequest{
		CampaignID:     req.CampaignID,
		DeviceID:       req.DeviceID,
		Impressions:    req.Impressions,
		Engagements:    req.Engagements,
		Completions:    req.Completions,
		Conversions:    req.Conversions,
		SpendCents:     req.SpendCents,
		RecordedAt:     req.RecordedAt,
		IdempotencyKey: req.IdempotencyKey,
		Metadata:       req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": fact})
}

type periodQuery struct {
	PeriodStart time.Time `form:"period_start" time_format:"2006-01-02T15:04:05Z07:00"`
	PeriodEnd   time.Time `form:"period_end" time_format:"2006-01-02T15:04:05Z07:00"`
}

func (s *Server) AggregateCampaign(c *gin.Context) {
	var query periodQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.deliverySvc.AggregateCampaign(c.Request.Context(), c.Param("id"), query.PeriodStart, query.PeriodEnd)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) AggregateDevice(c *gin.Context) {
	var query periodQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.deliverySvc.AggregateDevice(c.Request.Context(), c.Param("id"), query.PeriodStart, query.PeriodEnd)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	campaigndomain "github.com/lumenadtech/lumen/internal/campaign/domain"
)

type createCampaignRequest struct {
	AdvertiserID     string `json:"advertiser_id"`
	Name             string `json:"name"`
	BudgetCents      int64  `json:"budget_cents"`
	DailyBudgetCents int64  `json:"daily_budget_cents"`
}

func (s *Server) CreateCampaign(c *gin.Context) {
	var req createCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		AbortWithError(c, newValidationError("name", "required", "name is required"))
		return
	}
	advertiserID, err := parsePathID(req.AdvertiserID)
	if err != nil {
		AbortWithError(c, newValidationError("advertiser_id", "invalid_advertiser_id", "invalid advertiser id"))
		return
	}

	now := time.Now().UTC()
	campaign := campaigndomain.Campaign{
		ID:               s.genID.Generate(),
		AdvertiserID:     advertiserID,
		Name:             strings.TrimSpace(req.Name),
		Status:           campaigndomain.StatusDraft,
		BudgetCents:      req.BudgetCents,
		DailyBudgetCents: req.DailyBudgetCents,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.db.WithContext(c.Request.Context()).Create(&campaign).Error; err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": campaign})
}

func (s *Server) GetCampaign(c *gin.Context) {
	campaign, err := s.campaignSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": campaign})
}

type transitionRequest struct {
	To             string `json:"to"`
	Reason         string `json:"reason"`
	ExpectedStatus string `json:"expected_status"`
}

func (s *Server) TransitionCampaign(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	to := campaigndomain.Status(strings.ToUpper(strings.TrimSpace(req.To)))
	domainReq := campaigndomain.TransitionRequest{
		CampaignID: c.Param("id"),
		To:         to,
		Reason:     strings.TrimSpace(req.Reason),
		Actor:      c.GetHeader("X-Actor-Id"),
	}
	if expected := strings.TrimSpace(req.ExpectedStatus); expected != "" {
		status := campaigndomain.Status(strings.ToUpper(expected))
		domainReq.ExpectedStatus = &status
	}

	campaign, err := s.campaignSvc.Transition(c.Request.Context(), domainReq)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": campaign})
}

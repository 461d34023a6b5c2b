package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type computeEarningsRequest struct {
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
}

func (s *Server) ComputeEarnings(c *gin.Context) {
	var req computeEarningsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	earning, err := s.settlementSvc.ComputeEarnings(c.Request.Context(), c.Param("id"), req.PeriodStart, req.PeriodEnd)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": earning})
}

func (s *Server) ListEarnings(c *gin.Context) {
	earnings, err := s.settlementSvc.ListEarnings(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": earnings})
}

func (s *Server) GetEarning(c *gin.Context) {
	earning, err := s.settlementSvc.GetEarning(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": earning})
}

type markPaidRequest struct {
	TransactionID string    `json:"transaction_id"`
	PaidDate      time.Time `json:"paid_date"`
}

func (s *Server) MarkEarningPaid(c *gin.Context) {
	var req markPaidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	earning, err := s.settlementSvc.MarkPaid(c.Request.Context(), c.Param("id"), req.TransactionID, req.PaidDate)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": earning})
}

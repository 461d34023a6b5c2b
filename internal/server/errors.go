package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/lumenadtech/lumen/internal/audit/domain"
	billingdomain "github.com/lumenadtech/lumen/internal/billing/domain"
	campaigndomain "github.com/lumenadtech/lumen/internal/campaign/domain"
	deliverydomain "github.com/lumenadtech/lumen/internal/delivery/domain"
	settlementdomain "github.com/lumenadtech/lumen/internal/settlement/domain"
)

// ErrNotFound is the generic not-found surfaced by handlers that hide
// resources instead of explaining them.
var ErrNotFound = errors.New("not_found")

type apiError struct {
	status  int
	code    string
	message string
	field   string
}

func (e *apiError) Error() string { return e.code }

func invalidRequestError() error {
	return &apiError{
		status:  http.StatusBadRequest,
		code:    "invalid_request",
		message: "request body could not be parsed",
	}
}

func newValidationError(field, code, message string) error {
	return &apiError{
		status:  http.StatusUnprocessableEntity,
		code:    code,
		message: message,
		field:   field,
	}
}

// statusOf maps domain sentinels onto HTTP statuses. Unknown errors are
// an internal 500 with a generic body so internals never leak.
func statusOf(err error) int {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, campaigndomain.ErrCampaignNotFound),
		errors.Is(err, billingdomain.ErrInvoiceNotFound),
		errors.Is(err, billingdomain.ErrPaymentNotFound),
		errors.Is(err, settlementdomain.ErrPartnerNotFound),
		errors.Is(err, settlementdomain.ErrEarningNotFound),
		errors.Is(err, deliverydomain.ErrDeviceNotFound):
		return http.StatusNotFound

	case errors.Is(err, campaigndomain.ErrInvalidTransition),
		errors.Is(err, campaigndomain.ErrConcurrentModification),
		errors.Is(err, billingdomain.ErrAlreadyInvoiced),
		errors.Is(err, billingdomain.ErrPaymentAlreadyApplied),
		errors.Is(err, billingdomain.ErrInvoiceAlreadySettled),
		errors.Is(err, settlementdomain.ErrAlreadySettled),
		errors.Is(err, settlementdomain.ErrEarningAlreadyPaid):
		return http.StatusConflict

	case errors.Is(err, campaigndomain.ErrReasonRequired),
		errors.Is(err, billingdomain.ErrPeriodOpen),
		errors.Is(err, billingdomain.ErrNoBillableSpend),
		errors.Is(err, billingdomain.ErrCampaignNotBillable),
		errors.Is(err, billingdomain.ErrPaymentNotCompleted),
		errors.Is(err, settlementdomain.ErrPeriodOpen),
		errors.Is(err, settlementdomain.ErrPartnerInactive):
		return http.StatusUnprocessableEntity

	case errors.Is(err, campaigndomain.ErrInvalidCampaignID),
		errors.Is(err, campaigndomain.ErrInvalidStatus),
		errors.Is(err, billingdomain.ErrInvalidInvoiceID),
		errors.Is(err, billingdomain.ErrInvalidPaymentID),
		errors.Is(err, billingdomain.ErrInvalidAdvertiserID),
		errors.Is(err, billingdomain.ErrInvalidPeriod),
		errors.Is(err, settlementdomain.ErrInvalidPartnerID),
		errors.Is(err, settlementdomain.ErrInvalidEarningID),
		errors.Is(err, settlementdomain.ErrInvalidPeriod),
		errors.Is(err, settlementdomain.ErrInvalidTransactionID),
		errors.Is(err, deliverydomain.ErrInvalidCampaign),
		errors.Is(err, deliverydomain.ErrInvalidDevice),
		errors.Is(err, deliverydomain.ErrInvalidFact),
		errors.Is(err, deliverydomain.ErrInvalidPeriod),
		errors.Is(err, auditdomain.ErrInvalidConfigKey),
		errors.Is(err, auditdomain.ErrInvalidPage):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// AbortWithError writes the error envelope for err and stops the chain.
func AbortWithError(c *gin.Context, err error) {
	var api *apiError
	if errors.As(err, &api) {
		body := gin.H{"code": api.code, "message": api.message}
		if api.field != "" {
			body["field"] = api.field
		}
		c.AbortWithStatusJSON(api.status, gin.H{"error": body})
		return
	}

	status := statusOf(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal_error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": gin.H{"code": message}})
}

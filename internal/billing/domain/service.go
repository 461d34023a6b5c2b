package domain

import (
	"context"
	"errors"
	"time"
)

// Service is the billing ledger: it turns aggregated spend into
// invoices and reconciles payments against them.
type Service interface {
	CreateInvoice(ctx context.Context, campaignID string, periodStart, periodEnd time.Time) (*Invoice, error)
	ApplyPayment(ctx context.Context, invoiceID, paymentID string) (*Invoice, error)
	MarkOverdue(ctx context.Context, now time.Time) (int, error)
	GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error)
	AccountSummary(ctx context.Context, advertiserID string) (AccountSummary, error)
}

var (
	ErrInvalidInvoiceID      = errors.New("invalid_invoice_id")
	ErrInvalidPaymentID      = errors.New("invalid_payment_id")
	ErrInvalidAdvertiserID   = errors.New("invalid_advertiser_id")
	ErrInvalidPeriod         = errors.New("invalid_period")
	ErrPeriodOpen            = errors.New("period_open")
	ErrInvoiceNotFound       = errors.New("invoice_not_found")
	ErrPaymentNotFound       = errors.New("payment_not_found")
	ErrPaymentNotCompleted   = errors.New("payment_not_completed")
	ErrPaymentAlreadyApplied = errors.New("payment_already_applied")
	ErrInvoiceAlreadySettled = errors.New("invoice_already_settled")
	ErrAlreadyInvoiced       = errors.New("already_invoiced")
	ErrCampaignNotBillable   = errors.New("campaign_not_billable")
	ErrNoBillableSpend       = errors.New("no_billable_spend")
)

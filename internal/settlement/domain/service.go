package domain

import (
	"context"
	"errors"
	"time"
)

// Service settles partner revenue shares. ComputeEarnings is
// exactly-once per partner and period; MarkPaid records the external
// payout.
type Service interface {
	ComputeEarnings(ctx context.Context, partnerID string, periodStart, periodEnd time.Time) (*PartnerEarning, error)
	MarkPaid(ctx context.Context, earningID, transactionID string, paidDate time.Time) (*PartnerEarning, error)
	GetEarning(ctx context.Context, earningID string) (*PartnerEarning, error)
	ListEarnings(ctx context.Context, partnerID string) ([]PartnerEarning, error)
}

var (
	ErrInvalidPartnerID     = errors.New("invalid_partner_id")
	ErrInvalidEarningID     = errors.New("invalid_earning_id")
	ErrInvalidPeriod        = errors.New("invalid_period")
	ErrInvalidTransactionID = errors.New("invalid_transaction_id")
	ErrPeriodOpen           = errors.New("period_open")
	ErrPartnerNotFound      = errors.New("partner_not_found")
	ErrPartnerInactive      = errors.New("partner_inactive")
	ErrEarningNotFound      = errors.New("earning_not_found")
	ErrAlreadySettled       = errors.New("already_settled")
	ErrEarningAlreadyPaid   = errors.New("earning_already_paid")
)

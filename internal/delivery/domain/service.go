package domain

import (
	"context"
	"errors"
	"time"
)

// IngestRequest reports one delivery fact.
type IngestRequest struct {
	CampaignID     string
	DeviceID       string
	Impressions    int64
	Engagements    int64
	Completions    int64
	Conversions    int64
	SpendCents     int64
	RecordedAt     time.Time
	IdempotencyKey string
	Metadata       map[string]any
}

// AggregateResult is the rollup of facts over one half-open period
// [PeriodStart, PeriodEnd). Provisional marks a period that has not
// elapsed yet: repeated calls may return different sums, and callers
// must not persist computations based on it.
type AggregateResult struct {
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Impressions int64     `json:"impressions"`
	Engagements int64     `json:"engagements"`
	Completions int64     `json:"completions"`
	Conversions int64     `json:"conversions"`
	SpendCents  int64     `json:"spend_cents"`
	Provisional bool      `json:"provisional"`
}

// Service ingests raw delivery facts and aggregates them per campaign or
// device. Aggregation is a pure function of the stored facts: for a
// closed period two identical calls return identical sums.
type Service interface {
	Ingest(ctx context.Context, req IngestRequest) (*DeliveryFact, error)
	AggregateCampaign(ctx context.Context, campaignID string, periodStart, periodEnd time.Time) (AggregateResult, error)
	AggregateDevice(ctx context.Context, deviceID string, periodStart, periodEnd time.Time) (AggregateResult, error)
}

var (
	ErrInvalidCampaign = errors.New("invalid_campaign")
	ErrInvalidDevice   = errors.New("invalid_device")
	ErrDeviceNotFound  = errors.New("device_not_found")
	ErrInvalidFact     = errors.New("invalid_fact")
	ErrInvalidPeriod   = errors.New("invalid_period")
)

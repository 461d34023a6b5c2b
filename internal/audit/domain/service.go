package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// AppendRequest describes one mutation to record.
type AppendRequest struct {
	ConfigKey     string
	ChangedBy     string
	PreviousValue map[string]any
	NewValue      map[string]any
	IPAddress     string
	UserAgent     string
}

// QueryRequest pages through the trail in reverse chronological order.
type QueryRequest struct {
	ConfigKey string
	StartAt   *time.Time
	EndAt     *time.Time
	Page      int
	Limit     int
}

// QueryResponse is one stable page of the trail.
type QueryResponse struct {
	Entries []*AuditEntry `json:"entries"`
	Total   int64         `json:"total"`
	Page    int           `json:"page"`
	Limit   int           `json:"limit"`
}

// Service appends to and queries the audit trail. Append requires the
// caller's open transaction: an audit write that could commit separately
// from its state change would defeat the trail.
type Service interface {
	Append(ctx context.Context, tx *gorm.DB, req AppendRequest) (*AuditEntry, error)
	Query(ctx context.Context, req QueryRequest) (QueryResponse, error)
}

var (
	ErrMissingTransaction = errors.New("missing_transaction")
	ErrInvalidConfigKey   = errors.New("invalid_config_key")
	ErrInvalidActor       = errors.New("invalid_actor")
	ErrInvalidPage        = errors.New("invalid_page")
)

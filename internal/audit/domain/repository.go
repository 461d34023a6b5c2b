package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// ListFilter narrows an audit query. Zero fields are unconstrained.
type ListFilter struct {
	ConfigKey string
	StartAt   *time.Time
	EndAt     *time.Time
	Page      int
	Limit     int
}

// Repository persists audit entries. Insert takes the caller's database
// handle so the append joins whatever transaction the mutation runs in.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditEntry) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditEntry, int64, error)
}

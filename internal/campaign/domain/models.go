package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Status is the campaign lifecycle state.
type Status string

const (
	StatusDraft           Status = "DRAFT"
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusActive          Status = "ACTIVE"
	StatusPaused          Status = "PAUSED"
	StatusCompleted       Status = "COMPLETED"
	StatusRejected        Status = "REJECTED"
	StatusCancelled       Status = "CANCELLED"
)

// Campaign is an advertiser's buy. Status mutation goes through the
// state machine only; everything else is owned by the CRUD surface
// outside this core.
type Campaign struct {
	ID               snowflake.ID      `gorm:"primaryKey"`
	AdvertiserID     snowflake.ID      `gorm:"not null;index"`
	Name             string            `gorm:"type:text;not null"`
	Status           Status            `gorm:"type:text;not null;default:'DRAFT';index"`
	BudgetCents      int64             `gorm:"not null;default:0"`
	DailyBudgetCents int64             `gorm:"not null;default:0"`
	StartDate        *time.Time        `gorm:""`
	EndDate          *time.Time        `gorm:""`
	RejectionReason  *string           `gorm:"type:text"`
	Metadata         datatypes.JSONMap `gorm:"not null;default:'{}'"`
	CreatedAt        time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Campaign) TableName() string { return "campaigns" }

// Package domain contains persistence models for raw delivery ingestion.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// DeliveryFact stores a single unit of ad delivery reported by a device.
// Facts are append-only; aggregation never mutates them.
type DeliveryFact struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	CampaignID  snowflake.ID `gorm:"not null;index:ix_facts_campaign_time,priority:1" json:"campaign_id"`
	DeviceID    snowflake.ID `gorm:"not null;index:ix_facts_device_time,priority:1" json:"device_id"`
	PartnerID   snowflake.ID `gorm:"not null;index" json:"partner_id"`
	Impressions int64        `gorm:"not null;default:0" json:"impressions"`
	Engagements int64        `gorm:"not null;default:0" json:"engagements"`
	Completions int64        `gorm:"not null;default:0" json:"completions"`
	Conversions int64        `gorm:"not null;default:0" json:"conversions"`
	SpendCents  int64        `gorm:"not null;default:0" json:"spend_cents"`
	RecordedAt  time.Time    `gorm:"not null;index:ix_facts_campaign_time,priority:2;index:ix_facts_device_time,priority:2" json:"recorded_at"`

	IdempotencyKey *string           `gorm:"type:text;uniqueIndex:ux_facts_idempotency" json:"idempotency_key,omitempty"`
	Metadata       datatypes.JSONMap `gorm:"not null;default:'{}'" json:"metadata"`
	CreatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

// TableName sets the database table name.
func (DeliveryFact) TableName() string { return "delivery_facts" }

// Device is a partner-owned screen. The running totals are a cheap read
// model for fleet views; settlement always recomputes from facts.
type Device struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	PartnerID    snowflake.ID `gorm:"not null;index" json:"partner_id"`
	Name         string       `gorm:"type:text;not null" json:"name"`
	Impressions  int64        `gorm:"not null;default:0" json:"impressions"`
	RevenueCents int64        `gorm:"not null;default:0" json:"revenue_cents"`
	LastSeenAt   *time.Time   `gorm:"" json:"last_seen_at,omitempty"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
	UpdatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

// TableName sets the database table name.
func (Device) TableName() string { return "devices" }

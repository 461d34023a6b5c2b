package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EarningStatus tracks the payout lifecycle of a partner earning.
type EarningStatus string

const (
	EarningStatusPending EarningStatus = "PENDING"
	EarningStatusPaid    EarningStatus = "PAID"
)

// Partner is a screen operator paid a revenue share for the delivery
// their devices produce. Rates are basis points; CPMCents, when set,
// overrides the platform default for that partner's devices.
type Partner struct {
	ID                snowflake.ID      `gorm:"primaryKey"`
	Name              string            `gorm:"type:text;not null"`
	Email             string            `gorm:"type:text;not null"`
	CommissionRateBps int64             `gorm:"not null;default:3000"`
	BonusRateBps      int64             `gorm:"not null;default:0"`
	CPMCents          *int64            `gorm:""`
	Active            bool              `gorm:"not null;default:true;index"`
	Metadata          datatypes.JSONMap `gorm:"not null;default:'{}'"`
	CreatedAt         time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Partner) TableName() string { return "partners" }

// PartnerEarning is one partner's settled share for one period. The
// unique period index makes settlement exactly-once per partner and
// period.
type PartnerEarning struct {
	ID               snowflake.ID  `gorm:"primaryKey"`
	PartnerID        snowflake.ID  `gorm:"not null;index;uniqueIndex:ux_earning_period,priority:1"`
	PeriodStart      time.Time     `gorm:"not null;uniqueIndex:ux_earning_period,priority:2"`
	PeriodEnd        time.Time     `gorm:"not null;uniqueIndex:ux_earning_period,priority:3"`
	TotalImpressions int64         `gorm:"not null;default:0"`
	TotalEngagements int64         `gorm:"not null;default:0"`
	RevenueCents     int64         `gorm:"not null;default:0"`
	AmountCents      int64         `gorm:"not null;default:0"`
	BonusCents       int64         `gorm:"not null;default:0"`
	Status           EarningStatus `gorm:"type:text;not null;default:'PENDING';index"`
	PaidDate         *time.Time    `gorm:""`
	TransactionID    *string       `gorm:"type:text"`
	CreatedAt        time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PartnerEarning) TableName() string { return "partner_earnings" }

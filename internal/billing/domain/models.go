package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// InvoiceStatus is derived from cumulative applied payments against the
// invoice total, plus the due-date sweep.
type InvoiceStatus string

const (
	InvoiceStatusUnpaid        InvoiceStatus = "UNPAID"
	InvoiceStatusPartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	InvoiceStatusPaid          InvoiceStatus = "PAID"
	InvoiceStatusOverdue       InvoiceStatus = "OVERDUE"
)

// PaymentStatus mirrors the external payment processor's lifecycle.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

// Invoice bills one campaign for one delivery period. The unique period
// index is the idempotence guard against double invoicing, and
// total = amount + tax holds at every observed state.
type Invoice struct {
	ID           snowflake.ID      `gorm:"primaryKey"`
	CampaignID   snowflake.ID      `gorm:"not null;index;uniqueIndex:ux_invoice_period,priority:1"`
	AdvertiserID snowflake.ID      `gorm:"not null;index"`
	PeriodStart  time.Time         `gorm:"not null;uniqueIndex:ux_invoice_period,priority:2"`
	PeriodEnd    time.Time         `gorm:"not null;uniqueIndex:ux_invoice_period,priority:3"`
	AmountCents  int64             `gorm:"not null"`
	TaxCents     int64             `gorm:"not null"`
	TotalCents   int64             `gorm:"not null"`
	Status       InvoiceStatus     `gorm:"type:text;not null;default:'UNPAID';index"`
	DueDate      time.Time         `gorm:"not null;index"`
	PaidAt       *time.Time        `gorm:""`
	Metadata     datatypes.JSONMap `gorm:"not null;default:'{}'"`
	CreatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// Payment is recorded by the payment-processing collaborator. The core
// only reads it; many payments may partially satisfy one invoice.
type Payment struct {
	ID            snowflake.ID  `gorm:"primaryKey"`
	AdvertiserID  snowflake.ID  `gorm:"not null;index"`
	AmountCents   int64         `gorm:"not null"`
	Status        PaymentStatus `gorm:"type:text;not null;default:'PENDING'"`
	Type          string        `gorm:"type:text;not null;default:'card'"`
	DateInitiated time.Time     `gorm:"not null"`
	DateCompleted *time.Time    `gorm:""`
	CreatedAt     time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }

// InvoicePayment links a payment to the invoice it settles. A payment
// attaches to an invoice at most once.
type InvoicePayment struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	InvoiceID   snowflake.ID `gorm:"not null;index;uniqueIndex:ux_invoice_payment,priority:1"`
	PaymentID   snowflake.ID `gorm:"not null;uniqueIndex:ux_invoice_payment,priority:2"`
	AmountCents int64        `gorm:"not null"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (InvoicePayment) TableName() string { return "invoice_payments" }

// AccountSummary is the cached money view of one advertiser.
type AccountSummary struct {
	AdvertiserID     string `json:"advertiser_id"`
	OpenInvoices     int64  `json:"open_invoices"`
	OutstandingCents int64  `json:"outstanding_cents"`
	PaidCents        int64  `json:"paid_cents"`
	OverdueInvoices  int64  `json:"overdue_invoices"`
}

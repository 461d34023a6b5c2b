package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// AuditEntry captures one immutable record of a state mutation: the key
// that changed, who changed it, and the before/after values. Entries are
// appended inside the transaction that performs the mutation and are
// never updated or deleted.
type AuditEntry struct {
	ID            snowflake.ID      `gorm:"primaryKey"`
	ConfigKey     string            `gorm:"type:text;not null;index:ix_audit_key_time,priority:1"`
	ChangedBy     string            `gorm:"type:text;not null"`
	ChangedByName *string           `gorm:"type:text"`
	PreviousValue datatypes.JSONMap `gorm:"not null;default:'{}'"`
	NewValue      datatypes.JSONMap `gorm:"not null;default:'{}'"`
	IPAddress     *string           `gorm:"type:text"`
	UserAgent     *string           `gorm:"type:text"`
	CreatedAt     time.Time         `gorm:"not null;index:ix_audit_key_time,priority:2;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (AuditEntry) TableName() string { return "audit_entries" }

package db

import "gorm.io/gorm"

// RowLock returns the row-locking suffix for raw queries. SQLite has a
// single writer lock, so the suffix is dropped there; every other
// dialect gets a plain FOR UPDATE.
func RowLock(gdb *gorm.DB) string {
	if gdb.Dialector.Name() == "sqlite" {
		return ""
	}
	return "FOR UPDATE"
}

// Package db opens the gorm connection and owns schema migration for the
// settlement core's tables.
package db

import (
	"fmt"

	"github.com/lumenadtech/lumen/internal/audit/domain"
	billingdomain "github.com/lumenadtech/lumen/internal/billing/domain"
	campaigndomain "github.com/lumenadtech/lumen/internal/campaign/domain"
	"github.com/lumenadtech/lumen/internal/config"
	deliverydomain "github.com/lumenadtech/lumen/internal/delivery/domain"
	"github.com/lumenadtech/lumen/internal/events"
	settlementdomain "github.com/lumenadtech/lumen/internal/settlement/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open connects to the configured store. TranslateError is enabled so
// unique-index violations surface as gorm.ErrDuplicatedKey on every
// driver, which the idempotence guards depend on.
func Open(cfg config.Config, log *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DB.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DB.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DB.DSN)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.DB.Driver)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.DB.ConnMaxLife)

	if cfg.DB.AutoMigrate {
		if err := Migrate(gdb); err != nil {
			return nil, err
		}
	}

	log.Info("database connected",
		zap.String("driver", cfg.DB.Driver),
		zap.Bool("auto_migrate", cfg.DB.AutoMigrate),
	)
	return gdb, nil
}

// Migrate creates or updates the core schema, including the unique
// indexes the invoice and earning idempotence guards rely on.
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&campaigndomain.Campaign{},
		&deliverydomain.DeliveryFact{},
		&deliverydomain.Device{},
		&billingdomain.Invoice{},
		&billingdomain.Payment{},
		&billingdomain.InvoicePayment{},
		&settlementdomain.Partner{},
		&settlementdomain.PartnerEarning{},
		&domain.AuditEntry{},
		&events.OutboxEvent{},
	)
}

// Module provides the gorm handle to the fx graph.
var Module = fx.Module("db",
	fx.Provide(Open),
)

// Package seed loads development fixtures: one advertiser with a live
// campaign, one partner with devices, and a month of delivery facts.
// It only runs when DB_SEED is set and never touches a non-empty store.
package seed

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	campaigndomain "github.com/lumenadtech/lumen/internal/campaign/domain"
	"github.com/lumenadtech/lumen/internal/config"
	deliverydomain "github.com/lumenadtech/lumen/internal/delivery/domain"
	settlementdomain "github.com/lumenadtech/lumen/internal/settlement/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Run inserts the fixture set if the campaigns table is empty.
func Run(ctx context.Context, db *gorm.DB, genID *snowflake.Node, log *zap.Logger) error {
	var count int64
	if err := db.WithContext(ctx).Model(&campaigndomain.Campaign{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	now := time.Now().UTC()
	advertiserID := genID.Generate()

	campaign := campaigndomain.Campaign{
		ID:           genID.Generate(),
		AdvertiserID: advertiserID,
		Name:         "launch fixture",
		Status:       campaigndomain.StatusActive,
		BudgetCents:  1_000_000,
	}
	partner := settlementdomain.Partner{
		ID:                genID.Generate(),
		Name:              "fixture partner",
		Email:             "partner@example.com",
		CommissionRateBps: 3000,
		Active:            true,
	}
	devices := []deliverydomain.Device{
		{ID: genID.Generate(), PartnerID: partner.ID, Name: "lobby screen"},
		{ID: genID.Generate(), PartnerID: partner.ID, Name: "atrium screen"},
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&campaign).Error; err != nil {
			return err
		}
		if err := tx.Create(&partner).Error; err != nil {
			return err
		}
		if err := tx.Create(&devices).Error; err != nil {
			return err
		}

		for day := 0; day < 30; day++ {
			for _, device := range devices {
				fact := deliverydomain.DeliveryFact{
					ID:          genID.Generate(),
					CampaignID:  campaign.ID,
					DeviceID:    device.ID,
					PartnerID:   partner.ID,
					Impressions: 1_000,
					Engagements: 40,
					SpendCents:  500,
					RecordedAt:  now.AddDate(0, 0, -day-1),
				}
				if err := tx.Create(&fact).Error; err != nil {
					return err
				}
			}
		}

		log.Info("seeded development fixtures",
			zap.String("campaign_id", campaign.ID.String()),
			zap.String("partner_id", partner.ID.String()),
		)
		return nil
	})
}

// Module runs the seeder on startup when enabled.
var Module = fx.Module("seed",
	fx.Invoke(func(lc fx.Lifecycle, db *gorm.DB, genID *snowflake.Node, cfg config.Config, log *zap.Logger) {
		if !cfg.DB.Seed {
			return
		}
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return Run(ctx, db, genID, log.Named("seed"))
			},
		})
	}),
)

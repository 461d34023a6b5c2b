package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lumenadtech/lumen/internal/clock"
	deliverydomain "github.com/lumenadtech/lumen/internal/delivery/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(p Params) deliverydomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("delivery.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

// Ingest stores one delivery fact and bumps the owning device's running
// totals in the same transaction. A repeated idempotency key returns the
// stored fact unchanged.
func (s *Service) Ingest(ctx context.Context, req deliverydomain.IngestRequest) (*deliverydomain.DeliveryFact, error) {
	campaignID, err := parseID(req.CampaignID)
	if err != nil {
		return nil, deliverydomain.ErrInvalidCampaign
	}
	deviceID, err := parseID(req.DeviceID)
	if err != nil {
		return nil, deliverydomain.ErrInvalidDevice
	}
	if req.Impressions < 0 || req.Engagements < 0 || req.Completions < 0 ||
		req.Conversions < 0 || req.SpendCents < 0 || req.RecordedAt.IsZero() {
		return nil, deliverydomain.ErrInvalidFact
	}

	var device deliverydomain.Device
	if err := s.db.WithContext(ctx).First(&device, "id = ?", deviceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, deliverydomain.ErrDeviceNotFound
		}
		return nil, err
	}

	fact := &deliverydomain.DeliveryFact{
		ID:          s.genID.Generate(),
		CampaignID:  campaignID,
		DeviceID:    deviceID,
		PartnerID:   device.PartnerID,
		Impressions: req.Impressions,
		Engagements: req.Engagements,
		Completions: req.Completions,
		Conversions: req.Conversions,
		SpendCents:  req.SpendCents,
		RecordedAt:  req.RecordedAt.UTC(),
		CreatedAt:   time.Now().UTC(),
	}
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		fact.IdempotencyKey = &key
	}
	if req.Metadata != nil {
		fact.Metadata = datatypes.JSONMap(req.Metadata)
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(fact).Error; err != nil {
			return err
		}
		now := time.Now().UTC()
		return tx.Exec(
			`UPDATE devices
			 SET impressions = impressions + ?, last_seen_at = ?, updated_at = ?
			 WHERE id = ?`,
			fact.Impressions,
			fact.RecordedAt,
			now,
			deviceID,
		).Error
	})
	if errors.Is(txErr, gorm.ErrDuplicatedKey) {
		// Same idempotency key: the fact is already recorded. Without a
		// key the duplicate is something else (a colliding primary key)
		// and is not ours to swallow.
		if fact.IdempotencyKey == nil {
			return nil, txErr
		}
		return s.loadByIdempotencyKey(ctx, *fact.IdempotencyKey)
	}
	if txErr != nil {
		return nil, txErr
	}
	return fact, nil
}

// AggregateCampaign sums a campaign's facts over [periodStart, periodEnd).
func (s *Service) AggregateCampaign(ctx context.Context, campaignID string, periodStart, periodEnd time.Time) (deliverydomain.AggregateResult, error) {
	id, err := parseID(campaignID)
	if err != nil {
		return deliverydomain.AggregateResult{}, deliverydomain.ErrInvalidCampaign
	}
	return s.aggregate(ctx, "campaign_id", id, periodStart, periodEnd)
}

// AggregateDevice sums a device's facts over [periodStart, periodEnd).
func (s *Service) AggregateDevice(ctx context.Context, deviceID string, periodStart, periodEnd time.Time) (deliverydomain.AggregateResult, error) {
	id, err := parseID(deviceID)
	if err != nil {
		return deliverydomain.AggregateResult{}, deliverydomain.ErrInvalidDevice
	}
	return s.aggregate(ctx, "device_id", id, periodStart, periodEnd)
}

func (s *Service) aggregate(ctx context.Context, column string, id snowflake.ID, periodStart, periodEnd time.Time) (deliverydomain.AggregateResult, error) {
	if !periodEnd.After(periodStart) {
		return deliverydomain.AggregateResult{}, deliverydomain.ErrInvalidPeriod
	}

	var sums struct {
		Impressions int64
		Engagements int64
		Completions int64
		Conversions int64
		SpendCents  int64
	}
	err := s.db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(impressions), 0) AS impressions,
		        COALESCE(SUM(engagements), 0) AS engagements,
		        COALESCE(SUM(completions), 0) AS completions,
		        COALESCE(SUM(conversions), 0) AS conversions,
		        COALESCE(SUM(spend_cents), 0) AS spend_cents
		 FROM delivery_facts
		 WHERE `+column+` = ? AND recorded_at >= ? AND recorded_at < ?`,
		id,
		periodStart.UTC(),
		periodEnd.UTC(),
	).Scan(&sums).Error
	if err != nil {
		return deliverydomain.AggregateResult{}, err
	}

	return deliverydomain.AggregateResult{
		PeriodStart: periodStart.UTC(),
		PeriodEnd:   periodEnd.UTC(),
		Impressions: sums.Impressions,
		Engagements: sums.Engagements,
		Completions: sums.Completions,
		Conversions: sums.Conversions,
		SpendCents:  sums.SpendCents,
		Provisional: periodEnd.After(s.clock.Now()),
	}, nil
}

func (s *Service) loadByIdempotencyKey(ctx context.Context, key string) (*deliverydomain.DeliveryFact, error) {
	var fact deliverydomain.DeliveryFact
	if err := s.db.WithContext(ctx).First(&fact, "idempotency_key = ?", key).Error; err != nil {
		return nil, err
	}
	return &fact, nil
}

func parseID(raw string) (snowflake.ID, error) {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || value == 0 {
		return 0, errors.New("invalid_id")
	}
	return snowflake.ID(value), nil
}

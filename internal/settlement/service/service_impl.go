package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/lumenadtech/lumen/internal/audit/domain"
	"github.com/lumenadtech/lumen/internal/cache"
	"github.com/lumenadtech/lumen/internal/clock"
	"github.com/lumenadtech/lumen/internal/config"
	deliverydomain "github.com/lumenadtech/lumen/internal/delivery/domain"
	"github.com/lumenadtech/lumen/internal/events"
	"github.com/lumenadtech/lumen/internal/money"
	"github.com/lumenadtech/lumen/internal/notify"
	"github.com/lumenadtech/lumen/internal/observability/metrics"
	settlementdomain "github.com/lumenadtech/lumen/internal/settlement/domain"
	"github.com/lumenadtech/lumen/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Cfg         config.Config
	Clock       clock.Clock
	AuditSvc    auditdomain.Service
	DeliverySvc deliverydomain.Service
	Outbox      *events.Outbox
	Notifier    notify.Notifier      `optional:"true"`
	Bus         *cache.Bus           `optional:"true"`
	Metrics     *metrics.CoreMetrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	cfg         config.Settlement
	clock       clock.Clock
	auditSvc    auditdomain.Service
	deliverySvc deliverydomain.Service
	outbox      *events.Outbox
	notifier    notify.Notifier
	bus         *cache.Bus
	metrics     *metrics.CoreMetrics
}

func NewService(p Params) settlementdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("settlement.service"),
		genID:       p.GenID,
		cfg:         p.Cfg.Settlement,
		clock:       p.Clock,
		auditSvc:    p.AuditSvc,
		deliverySvc: p.DeliverySvc,
		outbox:      p.Outbox,
		notifier:    p.Notifier,
		bus:         p.Bus,
		metrics:     p.Metrics,
	}
}

// ComputeEarnings settles one partner's share for a closed period. The
// unique (partner, period) index turns a concurrent or repeated
// invocation into ErrAlreadySettled, so the settlement exists exactly
// once no matter how many workers race it.
func (s *Service) ComputeEarnings(ctx context.Context, partnerID string, periodStart, periodEnd time.Time) (*settlementdomain.PartnerEarning, error) {
	id, err := parseID(partnerID)
	if err != nil {
		return nil, settlementdomain.ErrInvalidPartnerID
	}
	if !periodEnd.After(periodStart) {
		return nil, settlementdomain.ErrInvalidPeriod
	}
	if periodEnd.After(s.clock.Now()) {
		// Provisional sums must never be persisted as an earning.
		return nil, settlementdomain.ErrPeriodOpen
	}

	var partner settlementdomain.Partner
	if err := s.db.WithContext(ctx).First(&partner, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, settlementdomain.ErrPartnerNotFound
		}
		return nil, err
	}
	if !partner.Active {
		return nil, settlementdomain.ErrPartnerInactive
	}

	cpm := s.cfg.DefaultCPMCents
	if partner.CPMCents != nil {
		cpm = *partner.CPMCents
	}

	var deviceIDs []snowflake.ID
	err = s.db.WithContext(ctx).
		Raw(`SELECT id FROM devices WHERE partner_id = ? ORDER BY id ASC`, id).
		Scan(&deviceIDs).Error
	if err != nil {
		return nil, err
	}

	var impressions, engagements int64
	deviceRevenue := make(map[snowflake.ID]int64, len(deviceIDs))
	for _, deviceID := range deviceIDs {
		agg, err := s.deliverySvc.AggregateDevice(ctx, deviceID.String(), periodStart, periodEnd)
		if err != nil {
			return nil, err
		}
		impressions += agg.Impressions
		engagements += agg.Engagements
		if agg.Impressions > 0 {
			deviceRevenue[deviceID] = money.PerMille(agg.Impressions, cpm)
		}
	}

	revenue := money.PerMille(impressions, cpm)
	amount := money.ApplyBps(revenue, partner.CommissionRateBps)
	bonus := money.ApplyBps(revenue, partner.BonusRateBps)
	now := s.clock.Now()

	earning := &settlementdomain.PartnerEarning{
		ID:               s.genID.Generate(),
		PartnerID:        id,
		PeriodStart:      periodStart.UTC(),
		PeriodEnd:        periodEnd.UTC(),
		TotalImpressions: impressions,
		TotalEngagements: engagements,
		RevenueCents:     revenue,
		AmountCents:      amount,
		BonusCents:       bonus,
		Status:           settlementdomain.EarningStatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(earning).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return settlementdomain.ErrAlreadySettled
			}
			return err
		}

		// Running device totals move with the settlement so they commit
		// exactly once per period, like the earning row itself.
		for deviceID, cents := range deviceRevenue {
			if err := tx.Exec(
				`UPDATE devices SET revenue_cents = revenue_cents + ?, updated_at = ? WHERE id = ?`,
				cents,
				now,
				deviceID,
			).Error; err != nil {
				return err
			}
		}

		if _, err := s.auditSvc.Append(ctx, tx, auditdomain.AppendRequest{
			ConfigKey: "earning:" + earning.ID.String(),
			ChangedBy: "system",
			NewValue: map[string]any{
				"partner_id":   id.String(),
				"period_start": earning.PeriodStart.Format(time.RFC3339),
				"period_end":   earning.PeriodEnd.Format(time.RFC3339),
				"impressions":  impressions,
				"revenue":      money.Format(revenue),
				"amount":       money.Format(amount),
				"bonus":        money.Format(bonus),
				"status":       string(earning.Status),
			},
		}); err != nil {
			return err
		}

		return s.outbox.PublishTx(ctx, tx, events.Event{
			Type: events.EventEarningComputed,
			Payload: map[string]any{
				"earning_id":   earning.ID.String(),
				"partner_id":   id.String(),
				"amount_cents": amount,
			},
			DedupeKey: fmt.Sprintf("earning:%s:%d:%d", id, earning.PeriodStart.Unix(), earning.PeriodEnd.Unix()),
		})
	})
	if txErr != nil {
		if errors.Is(txErr, settlementdomain.ErrAlreadySettled) {
			s.metrics.IncEarningComputed("duplicate")
		} else {
			s.metrics.IncEarningComputed("rejected")
		}
		return nil, txErr
	}

	s.metrics.IncEarningComputed("computed")
	s.invalidateEarnings(id)
	s.log.Info("earning computed",
		zap.String("earning_id", earning.ID.String()),
		zap.String("partner_id", id.String()),
		zap.Int64("amount_cents", amount),
		zap.Int64("bonus_cents", bonus),
	)
	return earning, nil
}

// MarkPaid records the payout of a pending earning. A paid earning is
// immutable, so a second call reports ErrEarningAlreadyPaid.
func (s *Service) MarkPaid(ctx context.Context, earningID, transactionID string, paidDate time.Time) (*settlementdomain.PartnerEarning, error) {
	id, err := parseID(earningID)
	if err != nil {
		return nil, settlementdomain.ErrInvalidEarningID
	}
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, settlementdomain.ErrInvalidTransactionID
	}
	if paidDate.IsZero() {
		paidDate = s.clock.Now()
	}
	paidDate = paidDate.UTC()

	var earning settlementdomain.PartnerEarning
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.lockEarning(ctx, tx, id, &earning); err != nil {
			return err
		}
		if earning.Status == settlementdomain.EarningStatusPaid {
			return settlementdomain.ErrEarningAlreadyPaid
		}

		now := s.clock.Now()
		if err := tx.Exec(
			`UPDATE partner_earnings SET status = ?, paid_date = ?, transaction_id = ?, updated_at = ? WHERE id = ?`,
			settlementdomain.EarningStatusPaid,
			paidDate,
			transactionID,
			now,
			id,
		).Error; err != nil {
			return err
		}
		earning.Status = settlementdomain.EarningStatusPaid
		earning.PaidDate = &paidDate
		earning.TransactionID = &transactionID
		earning.UpdatedAt = now

		if _, err := s.auditSvc.Append(ctx, tx, auditdomain.AppendRequest{
			ConfigKey:     "earning:" + id.String(),
			ChangedBy:     "system",
			PreviousValue: map[string]any{"status": string(settlementdomain.EarningStatusPending)},
			NewValue: map[string]any{
				"status":         string(settlementdomain.EarningStatusPaid),
				"transaction_id": transactionID,
				"paid_date":      paidDate.Format(time.RFC3339),
			},
		}); err != nil {
			return err
		}

		return s.outbox.PublishTx(ctx, tx, events.Event{
			Type: events.EventEarningPaid,
			Payload: map[string]any{
				"earning_id":     id.String(),
				"partner_id":     earning.PartnerID.String(),
				"transaction_id": transactionID,
			},
			DedupeKey: "earning:" + id.String() + ":paid",
		})
	})
	if txErr != nil {
		s.metrics.IncEarningPaid("rejected")
		return nil, txErr
	}

	s.metrics.IncEarningPaid("paid")
	s.invalidateEarnings(earning.PartnerID)
	if s.notifier != nil {
		s.notifier.EarningPaid(ctx, id.String(), earning.PartnerID.String(), earning.AmountCents+earning.BonusCents)
	}
	return &earning, nil
}

// GetEarning loads one earning by id.
func (s *Service) GetEarning(ctx context.Context, earningID string) (*settlementdomain.PartnerEarning, error) {
	id, err := parseID(earningID)
	if err != nil {
		return nil, settlementdomain.ErrInvalidEarningID
	}
	var earning settlementdomain.PartnerEarning
	err = s.db.WithContext(ctx).First(&earning, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, settlementdomain.ErrEarningNotFound
	}
	if err != nil {
		return nil, err
	}
	return &earning, nil
}

// ListEarnings returns a partner's earnings, newest period first.
func (s *Service) ListEarnings(ctx context.Context, partnerID string) ([]settlementdomain.PartnerEarning, error) {
	id, err := parseID(partnerID)
	if err != nil {
		return nil, settlementdomain.ErrInvalidPartnerID
	}
	var earnings []settlementdomain.PartnerEarning
	err = s.db.WithContext(ctx).
		Where("partner_id = ?", id).
		Order("period_start DESC").
		Find(&earnings).Error
	if err != nil {
		return nil, err
	}
	return earnings, nil
}

func (s *Service) lockEarning(ctx context.Context, tx *gorm.DB, id snowflake.ID, out *settlementdomain.PartnerEarning) error {
	query := fmt.Sprintf(
		`SELECT id, partner_id, period_start, period_end, total_impressions,
		        total_engagements, revenue_cents, amount_cents, bonus_cents,
		        status, paid_date, transaction_id, created_at, updated_at
		 FROM partner_earnings
		 WHERE id = ?
		 %s`,
		db.RowLock(tx),
	)
	if err := tx.WithContext(ctx).Raw(query, id).Scan(out).Error; err != nil {
		return err
	}
	if out.ID == 0 {
		return settlementdomain.ErrEarningNotFound
	}
	return nil
}

func (s *Service) invalidateEarnings(partnerID snowflake.ID) {
	if s.bus != nil {
		s.bus.Invalidate(cache.PartnerEarningsKey(partnerID.String()))
	}
}

func parseID(raw string) (snowflake.ID, error) {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || value == 0 {
		return 0, errors.New("invalid_id")
	}
	return snowflake.ID(value), nil
}

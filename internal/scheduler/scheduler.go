// Package scheduler runs the recurring sweeps: overdue invoice marking,
// partner settlement for elapsed windows, and outbox draining. Every
// sweep is idempotent, so overlapping runs from multiple instances are
// safe.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/lumenadtech/lumen/internal/billing/domain"
	"github.com/lumenadtech/lumen/internal/clock"
	"github.com/lumenadtech/lumen/internal/config"
	"github.com/lumenadtech/lumen/internal/events"
	"github.com/lumenadtech/lumen/internal/observability/metrics"
	settlementdomain "github.com/lumenadtech/lumen/internal/settlement/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Cfg           config.Config
	Clock         clock.Clock
	BillingSvc    billingdomain.Service
	SettlementSvc settlementdomain.Service
	Outbox        *events.Outbox
	Metrics       *metrics.CoreMetrics `optional:"true"`
}

type Scheduler struct {
	db            *gorm.DB
	log           *zap.Logger
	cfg           config.Scheduler
	settlementCfg config.Settlement
	clock         clock.Clock
	billingSvc    billingdomain.Service
	settlementSvc settlementdomain.Service
	outbox        *events.Outbox
	metrics       *metrics.CoreMetrics
}

func New(p Params) *Scheduler {
	return &Scheduler{
		db:            p.DB,
		log:           p.Log.Named("scheduler"),
		cfg:           p.Cfg.Scheduler,
		settlementCfg: p.Cfg.Settlement,
		clock:         p.Clock,
		billingSvc:    p.BillingSvc,
		settlementSvc: p.SettlementSvc,
		outbox:        p.Outbox,
		metrics:       p.Metrics,
	}
}

// RunForever ticks until the context is cancelled. Errors are logged
// and the next tick retries; a failed sweep never stops the loop.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.log.Error("sweep failed", zap.Error(err))
			}
		}
	}
}

// RunOnce executes every sweep one time.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	now := s.clock.Now()

	start := time.Now()
	marked, err := s.billingSvc.MarkOverdue(ctx, now)
	s.metrics.ObserveSweep("overdue", time.Since(start))
	if err != nil {
		return fmt.Errorf("overdue sweep: %w", err)
	}
	if marked > 0 {
		s.log.Info("invoices marked overdue", zap.Int("count", marked))
	}

	start = time.Now()
	settled, err := s.settleElapsedWindow(ctx, now)
	s.metrics.ObserveSweep("settlement", time.Since(start))
	if err != nil {
		return fmt.Errorf("settlement sweep: %w", err)
	}
	if settled > 0 {
		s.log.Info("partners settled", zap.Int("count", settled))
	}

	start = time.Now()
	drained, err := s.drainOutbox(ctx)
	s.metrics.ObserveSweep("outbox", time.Since(start))
	if err != nil {
		return fmt.Errorf("outbox sweep: %w", err)
	}
	if drained > 0 {
		s.log.Info("outbox events published", zap.Int("count", drained))
	}
	return nil
}

// Window returns the most recent fully elapsed settlement window at
// now. Windows are aligned to the Unix epoch in whole PeriodDays
// strides, so every instance derives the same boundaries.
func (s *Scheduler) Window(now time.Time) (time.Time, time.Time) {
	stride := time.Duration(s.settlementCfg.PeriodDays) * 24 * time.Hour
	elapsed := now.UTC().Sub(time.Unix(0, 0).UTC())
	end := time.Unix(0, 0).UTC().Add(elapsed.Truncate(stride))
	return end.Add(-stride), end
}

// settleElapsedWindow settles every active partner for the latest
// closed window. The candidate scan only narrows the batch; the unique
// earning index is what keeps concurrent instances exactly-once, so a
// partner another run settled first reports already_settled and is
// skipped.
func (s *Scheduler) settleElapsedWindow(ctx context.Context, now time.Time) (int, error) {
	windowStart, windowEnd := s.Window(now)

	partnerIDs, err := s.claimPartners(ctx, windowStart, windowEnd)
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, partnerID := range partnerIDs {
		select {
		case <-ctx.Done():
			return settled, ctx.Err()
		default:
		}
		_, err := s.settlementSvc.ComputeEarnings(ctx, partnerID, windowStart, windowEnd)
		switch {
		case err == nil:
			settled++
		case errors.Is(err, settlementdomain.ErrAlreadySettled):
		case errors.Is(err, settlementdomain.ErrPartnerInactive):
		default:
			s.log.Error("settle partner failed",
				zap.String("partner_id", partnerID),
				zap.Error(err),
			)
		}
	}
	return settled, nil
}

func (s *Scheduler) claimPartners(ctx context.Context, windowStart, windowEnd time.Time) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Raw(
		`SELECT p.id FROM partners p
		 WHERE p.active = ?
		   AND NOT EXISTS (
		     SELECT 1 FROM partner_earnings e
		     WHERE e.partner_id = p.id
		       AND e.period_start = ?
		       AND e.period_end = ?
		   )
		 ORDER BY p.id ASC
		 LIMIT ?`,
		true, windowStart.UTC(), windowEnd.UTC(), s.cfg.BatchSize,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// drainOutbox publishes pending outbox rows. Delivery here is the
// application log; a broker client would slot in at the same point.
func (s *Scheduler) drainOutbox(ctx context.Context) (int, error) {
	pending, err := s.outbox.FetchUnpublished(ctx, s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	ids := make([]snowflake.ID, 0, len(pending))
	for _, event := range pending {
		s.log.Info("event",
			zap.String("event_id", event.ID.String()),
			zap.String("type", event.EventType),
		)
		ids = append(ids, event.ID)
	}
	if err := s.outbox.MarkPublished(ctx, ids); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Module starts the sweep loop on application start when enabled.
var Module = fx.Module("scheduler",
	fx.Provide(New),
	fx.Invoke(func(lc fx.Lifecycle, s *Scheduler, cfg config.Config) {
		if !cfg.Scheduler.Enabled {
			return
		}
		ctx, cancel := context.WithCancel(context.Background())
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go s.RunForever(ctx)
				return nil
			},
			OnStop: func(context.Context) error {
				cancel()
				return nil
			},
		})
	}),
)

package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/lumenadtech/lumen/internal/audit/domain"
	"github.com/lumenadtech/lumen/internal/cache"
	campaigndomain "github.com/lumenadtech/lumen/internal/campaign/domain"
	"github.com/lumenadtech/lumen/internal/clock"
	"github.com/lumenadtech/lumen/internal/events"
	"github.com/lumenadtech/lumen/internal/notify"
	"github.com/lumenadtech/lumen/internal/observability/metrics"
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
	Clock       clock.Clock
	AuditSvc    auditdomain.Service
	Outbox      *events.Outbox
	Invalidator cache.Invalidator    `optional:"true"`
	Notifier    notify.Notifier      `optional:"true"`
	Metrics     *metrics.CoreMetrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	auditSvc    auditdomain.Service
	outbox      *events.Outbox
	invalidator cache.Invalidator
	notifier    notify.Notifier
	metrics     *metrics.CoreMetrics
}

func NewService(p Params) campaigndomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("campaign.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		auditSvc:    p.AuditSvc,
		outbox:      p.Outbox,
		invalidator: p.Invalidator,
		notifier:    p.Notifier,
		metrics:     p.Metrics,
	}
}

// Transition validates and applies one status move as a single
// transaction: locked read, re-validation against the stored status,
// write, audit entry and outbox event commit or abort together.
func (s *Service) Transition(ctx context.Context, req campaigndomain.TransitionRequest) (*campaigndomain.Campaign, error) {
	campaignID, err := parseID(req.CampaignID)
	if err != nil {
		return nil, campaigndomain.ErrInvalidCampaignID
	}
	if !req.To.Valid() {
		return nil, campaigndomain.ErrInvalidStatus
	}
	reason := strings.TrimSpace(req.Reason)
	if req.To == campaigndomain.StatusRejected && reason == "" {
		return nil, campaigndomain.ErrReasonRequired
	}

	var campaign campaigndomain.Campaign
	var from campaigndomain.Status
	var applied bool

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.lockCampaign(ctx, tx, campaignID, &campaign); err != nil {
			return err
		}
		from = campaign.Status

		if req.ExpectedStatus != nil && *req.ExpectedStatus != from {
			return campaigndomain.ErrConcurrentModification
		}
		if from == req.To {
			// Re-requesting the current status is an idempotent no-op.
			return nil
		}
		if !campaigndomain.CanTransition(from, req.To) {
			return fmt.Errorf("%w: %s -> %s", campaigndomain.ErrInvalidTransition, from, req.To)
		}

		now := s.clock.Now()
		updates := map[string]any{
			"status":     req.To,
			"updated_at": now,
		}
		if req.To == campaigndomain.StatusRejected {
			updates["rejection_reason"] = reason
		}
		if err := tx.WithContext(ctx).
			Model(&campaigndomain.Campaign{}).
			Where("id = ?", campaignID).
			Updates(updates).Error; err != nil {
			return err
		}

		newValue := map[string]any{"status": string(req.To)}
		if reason != "" {
			newValue["reason"] = reason
		}
		if _, err := s.auditSvc.Append(ctx, tx, auditdomain.AppendRequest{
			ConfigKey:     "campaign:" + campaignID.String() + ":status",
			ChangedBy:     req.Actor,
			PreviousValue: map[string]any{"status": string(from)},
			NewValue:      newValue,
		}); err != nil {
			return err
		}

		if err := s.outbox.PublishTx(ctx, tx, events.Event{
			Type: events.EventCampaignStatusChanged,
			Payload: map[string]any{
				"campaign_id": campaignID.String(),
				"from":        string(from),
				"to":          string(req.To),
				"reason":      reason,
			},
		}); err != nil {
			return err
		}

		campaign.Status = req.To
		campaign.UpdatedAt = now
		if req.To == campaigndomain.StatusRejected {
			campaign.RejectionReason = &reason
		}
		applied = true
		return nil
	})
	if txErr != nil {
		s.metrics.IncTransition("rejected")
		return nil, txErr
	}

	if !applied {
		s.metrics.IncTransition("noop")
		return &campaign, nil
	}

	s.metrics.IncTransition("applied")
	s.invalidate(cache.CampaignKey(campaignID.String()))
	s.notifyTransition(ctx, &campaign, reason)

	s.log.Info("campaign transitioned",
		zap.String("campaign_id", campaignID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(campaign.Status)),
	)
	return &campaign, nil
}

// Get loads a campaign by id.
func (s *Service) Get(ctx context.Context, id string) (*campaigndomain.Campaign, error) {
	campaignID, err := parseID(id)
	if err != nil {
		return nil, campaigndomain.ErrInvalidCampaignID
	}
	var campaign campaigndomain.Campaign
	err = s.db.WithContext(ctx).First(&campaign, "id = ?", campaignID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, campaigndomain.ErrCampaignNotFound
	}
	if err != nil {
		return nil, err
	}
	return &campaign, nil
}

func (s *Service) lockCampaign(ctx context.Context, tx *gorm.DB, id snowflake.ID, out *campaigndomain.Campaign) error {
	query := fmt.Sprintf(
		`SELECT id, advertiser_id, name, status, budget_cents, daily_budget_cents,
		        start_date, end_date, rejection_reason, created_at, updated_at
		 FROM campaigns
		 WHERE id = ?
		 %s`,
		db.RowLock(tx),
	)
	if err := tx.WithContext(ctx).Raw(query, id).Scan(out).Error; err != nil {
		return err
	}
	if out.ID == 0 {
		return campaigndomain.ErrCampaignNotFound
	}
	return nil
}

func (s *Service) invalidate(key string) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(key)
	}
}

// notifyTransition fires the outbound hook after commit. Failures are the
// notifier's problem; the transition has already committed.
func (s *Service) notifyTransition(ctx context.Context, campaign *campaigndomain.Campaign, reason string) {
	if s.notifier == nil {
		return
	}
	switch campaign.Status {
	case campaigndomain.StatusActive:
		s.notifier.CampaignApproved(ctx, campaign.ID.String(), campaign.AdvertiserID.String())
	case campaigndomain.StatusRejected:
		s.notifier.CampaignRejected(ctx, campaign.ID.String(), campaign.AdvertiserID.String(), reason)
	}
}

func parseID(raw string) (snowflake.ID, error) {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || value == 0 {
		return 0, errors.New("invalid_id")
	}
	return snowflake.ID(value), nil
}

// RetryTransition retries a transition a bounded number of times when it
// loses an optimistic race, clearing ExpectedStatus so each retry
// validates against the freshly stored status.
func RetryTransition(ctx context.Context, svc campaigndomain.Service, req campaigndomain.TransitionRequest, attempts int) (*campaigndomain.Campaign, error) {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		campaign, err := svc.Transition(ctx, req)
		if err == nil {
			return campaign, nil
		}
		if !errors.Is(err, campaigndomain.ErrConcurrentModification) {
			return nil, err
		}
		lastErr = err
		req.ExpectedStatus = nil
	}
	return nil, lastErr
}

package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/lumenadtech/lumen/internal/audit/domain"
	auditrepository "github.com/lumenadtech/lumen/internal/audit/repository"
	auditservice "github.com/lumenadtech/lumen/internal/audit/service"
	"github.com/lumenadtech/lumen/internal/cache"
	campaigndomain "github.com/lumenadtech/lumen/internal/campaign/domain"
	"github.com/lumenadtech/lumen/internal/clock"
	"github.com/lumenadtech/lumen/internal/events"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func setupCampaignTest(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&campaigndomain.Campaign{}, &auditdomain.AuditEntry{}, &events.OutboxEvent{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  auditrepository.Provide(),
	})
	svc := NewService(Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       clock.Fixed{At: testNow},
		AuditSvc:    auditSvc,
		Outbox:      events.NewOutbox(db, node),
		Invalidator: cache.NewBus(),
	}).(*Service)
	return svc, db
}

func seedCampaign(t *testing.T, db *gorm.DB, id int64, status campaigndomain.Status) {
	t.Helper()
	campaign := campaigndomain.Campaign{
		ID:           snowflake.ID(id),
		AdvertiserID: snowflake.ID(100),
		Name:         "spring launch",
		Status:       status,
	}
	if err := db.Create(&campaign).Error; err != nil {
		t.Fatalf("seed campaign: %v", err)
	}
}

func transition(t *testing.T, svc *Service, id int64, to campaigndomain.Status, reason string) (*campaigndomain.Campaign, error) {
	t.Helper()
	return svc.Transition(context.Background(), campaigndomain.TransitionRequest{
		CampaignID: fmt.Sprint(id),
		To:         to,
		Reason:     reason,
		Actor:      "user:1",
	})
}

func TestTransitionTable(t *testing.T) {
	statuses := []campaigndomain.Status{
		campaigndomain.StatusDraft,
		campaigndomain.StatusPendingApproval,
		campaigndomain.StatusActive,
		campaigndomain.StatusPaused,
		campaigndomain.StatusCompleted,
		campaigndomain.StatusRejected,
		campaigndomain.StatusCancelled,
	}
	allowed := map[campaigndomain.Status][]campaigndomain.Status{
		campaigndomain.StatusDraft:           {campaigndomain.StatusPendingApproval, campaigndomain.StatusCancelled},
		campaigndomain.StatusPendingApproval: {campaigndomain.StatusActive, campaigndomain.StatusRejected, campaigndomain.StatusCancelled},
		campaigndomain.StatusActive:          {campaigndomain.StatusPaused, campaigndomain.StatusCompleted, campaigndomain.StatusCancelled},
		campaigndomain.StatusPaused:          {campaigndomain.StatusActive, campaigndomain.StatusCompleted, campaigndomain.StatusCancelled},
		campaigndomain.StatusCompleted:       {},
		campaigndomain.StatusRejected:        {campaigndomain.StatusDraft},
		campaigndomain.StatusCancelled:       {campaigndomain.StatusDraft},
	}

	for _, from := range statuses {
		for _, to := range statuses {
			want := from == to
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			got := from == to || campaigndomain.CanTransition(from, to)
			if got != want {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestTransitionAppliesAndAudits(t *testing.T) {
	svc, db := setupCampaignTest(t)
	seedCampaign(t, db, 1, campaigndomain.StatusPendingApproval)

	campaign, err := transition(t, svc, 1, campaigndomain.StatusActive, "")
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if campaign.Status != campaigndomain.StatusActive {
		t.Fatalf("expected ACTIVE, got %s", campaign.Status)
	}

	var auditCount int64
	if err := db.Model(&auditdomain.AuditEntry{}).Count(&auditCount).Error; err != nil {
		t.Fatalf("count audit: %v", err)
	}
	if auditCount != 1 {
		t.Fatalf("expected exactly one audit entry, got %d", auditCount)
	}

	var eventCount int64
	if err := db.Model(&events.OutboxEvent{}).Where("event_type = ?", events.EventCampaignStatusChanged).Count(&eventCount).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if eventCount != 1 {
		t.Fatalf("expected one outbox event, got %d", eventCount)
	}
}

func TestTransitionActiveToDraftFails(t *testing.T) {
	svc, db := setupCampaignTest(t)
	seedCampaign(t, db, 2, campaigndomain.StatusPendingApproval)

	if _, err := transition(t, svc, 2, campaigndomain.StatusActive, ""); err != nil {
		t.Fatalf("approve: %v", err)
	}
	_, err := transition(t, svc, 2, campaigndomain.StatusDraft, "")
	if !errors.Is(err, campaigndomain.ErrInvalidTransition) {
		t.Fatalf("expected invalid_transition, got %v", err)
	}

	var stored campaigndomain.Campaign
	if err := db.First(&stored, "id = ?", 2).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.Status != campaigndomain.StatusActive {
		t.Fatalf("failed transition must not mutate status, got %s", stored.Status)
	}
}

func TestTransitionSameStatusIsNoop(t *testing.T) {
	svc, db := setupCampaignTest(t)
	seedCampaign(t, db, 3, campaigndomain.StatusActive)

	campaign, err := transition(t, svc, 3, campaigndomain.StatusActive, "")
	if err != nil {
		t.Fatalf("noop transition: %v", err)
	}
	if campaign.Status != campaigndomain.StatusActive {
		t.Fatalf("expected ACTIVE, got %s", campaign.Status)
	}

	var auditCount int64
	if err := db.Model(&auditdomain.AuditEntry{}).Count(&auditCount).Error; err != nil {
		t.Fatalf("count audit: %v", err)
	}
	if auditCount != 0 {
		t.Fatalf("no-op must not write audit entries, got %d", auditCount)
	}
}

func TestTransitionRejectedRequiresReason(t *testing.T) {
	svc, db := setupCampaignTest(t)
	seedCampaign(t, db, 4, campaigndomain.StatusPendingApproval)

	_, err := transition(t, svc, 4, campaigndomain.StatusRejected, "")
	if !errors.Is(err, campaigndomain.ErrReasonRequired) {
		t.Fatalf("expected reason_required, got %v", err)
	}

	campaign, err := transition(t, svc, 4, campaigndomain.StatusRejected, "creative violates policy")
	if err != nil {
		t.Fatalf("reject with reason: %v", err)
	}
	if campaign.RejectionReason == nil || *campaign.RejectionReason != "creative violates policy" {
		t.Fatalf("expected stored reason, got %v", campaign.RejectionReason)
	}

	var entry auditdomain.AuditEntry
	if err := db.First(&entry).Error; err != nil {
		t.Fatalf("load audit entry: %v", err)
	}
	if entry.NewValue["reason"] != "creative violates policy" {
		t.Fatalf("expected reason in audit new value, got %v", entry.NewValue)
	}
}

func TestTransitionConcurrentModification(t *testing.T) {
	svc, db := setupCampaignTest(t)
	seedCampaign(t, db, 5, campaigndomain.StatusPendingApproval)

	// A second caller still believes the campaign is pending after the
	// first caller's approval lands.
	if _, err := transition(t, svc, 5, campaigndomain.StatusActive, ""); err != nil {
		t.Fatalf("approve: %v", err)
	}

	expected := campaigndomain.StatusPendingApproval
	_, err := svc.Transition(context.Background(), campaigndomain.TransitionRequest{
		CampaignID:     "5",
		To:             campaigndomain.StatusCancelled,
		Actor:          "user:2",
		ExpectedStatus: &expected,
	})
	if !errors.Is(err, campaigndomain.ErrConcurrentModification) {
		t.Fatalf("expected concurrent_modification, got %v", err)
	}

	// The retry helper re-reads and applies against the new status.
	campaign, err := RetryTransition(context.Background(), svc, campaigndomain.TransitionRequest{
		CampaignID:     "5",
		To:             campaigndomain.StatusCancelled,
		Actor:          "user:2",
		ExpectedStatus: &expected,
	}, 3)
	if err != nil {
		t.Fatalf("retry transition: %v", err)
	}
	if campaign.Status != campaigndomain.StatusCancelled {
		t.Fatalf("expected CANCELLED after retry, got %s", campaign.Status)
	}
}

func TestTransitionStampsInjectedClock(t *testing.T) {
	svc, db := setupCampaignTest(t)
	seedCampaign(t, db, 6, campaigndomain.StatusDraft)

	if _, err := transition(t, svc, 6, campaigndomain.StatusPendingApproval, ""); err != nil {
		t.Fatalf("transition: %v", err)
	}

	var campaign campaigndomain.Campaign
	if err := db.First(&campaign, "id = ?", 6).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !campaign.UpdatedAt.Equal(testNow) {
		t.Fatalf("expected updated_at %s from the clock, got %s", testNow, campaign.UpdatedAt)
	}
}

func TestTransitionUnknownCampaign(t *testing.T) {
	svc, _ := setupCampaignTest(t)
	_, err := transition(t, svc, 999, campaigndomain.StatusActive, "")
	if !errors.Is(err, campaigndomain.ErrCampaignNotFound) {
		t.Fatalf("expected campaign_not_found, got %v", err)
	}
}

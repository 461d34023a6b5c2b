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
	campaigndomain "github.com/lumenadtech/lumen/internal/campaign/domain"
	"github.com/lumenadtech/lumen/internal/clock"
	"github.com/lumenadtech/lumen/internal/config"
	deliverydomain "github.com/lumenadtech/lumen/internal/delivery/domain"
	deliveryservice "github.com/lumenadtech/lumen/internal/delivery/service"
	"github.com/lumenadtech/lumen/internal/events"
	settlementdomain "github.com/lumenadtech/lumen/internal/settlement/domain"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var (
	testNow     = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	periodStart = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	periodEnd   = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
)

type settlementFixture struct {
	svc *Service
	db  *gorm.DB
}

func setupSettlementTest(t *testing.T) settlementFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	err = db.AutoMigrate(
		&campaigndomain.Campaign{},
		&deliverydomain.DeliveryFact{},
		&deliverydomain.Device{},
		&settlementdomain.Partner{},
		&settlementdomain.PartnerEarning{},
		&auditdomain.AuditEntry{},
		&events.OutboxEvent{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	node, err := snowflake.NewNode(2)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}

	fixed := clock.Fixed{At: testNow}
	auditSvc := auditservice.NewService(auditservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Repo: auditrepository.Provide(),
	})
	deliverySvc := deliveryservice.NewService(deliveryservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: fixed,
	})

	cfg := config.Config{}
	cfg.Settlement = config.Settlement{DefaultCPMCents: 500, PeriodDays: 30}

	svc := NewService(Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Cfg:         cfg,
		Clock:       fixed,
		AuditSvc:    auditSvc,
		DeliverySvc: deliverySvc,
		Outbox:      events.NewOutbox(db, node),
	}).(*Service)

	return settlementFixture{svc: svc, db: db}
}

func seedPartner(t *testing.T, db *gorm.DB, commissionBps, bonusBps int64) {
	t.Helper()
	if err := db.Create(&settlementdomain.Partner{
		ID:                snowflake.ID(20),
		Name:              "mall group north",
		Email:             "finance@example.com",
		CommissionRateBps: commissionBps,
		BonusRateBps:      bonusBps,
		Active:            true,
	}).Error; err != nil {
		t.Fatalf("seed partner: %v", err)
	}
	if err := db.Create(&deliverydomain.Device{
		ID:        snowflake.ID(10),
		PartnerID: snowflake.ID(20),
		Name:      "atrium screen",
	}).Error; err != nil {
		t.Fatalf("seed device: %v", err)
	}
}

func seedFact(t *testing.T, db *gorm.DB, id int64, impressions int64, at time.Time) {
	t.Helper()
	if err := db.Create(&deliverydomain.DeliveryFact{
		ID:          snowflake.ID(id),
		CampaignID:  snowflake.ID(1),
		DeviceID:    snowflake.ID(10),
		PartnerID:   snowflake.ID(20),
		Impressions: impressions,
		RecordedAt:  at,
	}).Error; err != nil {
		t.Fatalf("seed fact: %v", err)
	}
}

func TestComputeEarningsCommissionMath(t *testing.T) {
	f := setupSettlementTest(t)
	seedPartner(t, f.db, 3000, 0)
	seedFact(t, f.db, 1000, 10_000, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))

	earning, err := f.svc.ComputeEarnings(context.Background(), "20", periodStart, periodEnd)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	// 10,000 impressions at a 5.00 CPM is 50.00 revenue; a 30%
	// commission takes 15.00 of it.
	if earning.TotalImpressions != 10_000 {
		t.Fatalf("expected 10000 impressions, got %d", earning.TotalImpressions)
	}
	if earning.RevenueCents != 5_000 {
		t.Fatalf("expected revenue 5000, got %d", earning.RevenueCents)
	}
	if earning.AmountCents != 1_500 {
		t.Fatalf("expected amount 1500, got %d", earning.AmountCents)
	}
	if earning.BonusCents != 0 {
		t.Fatalf("expected no bonus, got %d", earning.BonusCents)
	}
	if earning.Status != settlementdomain.EarningStatusPending {
		t.Fatalf("expected PENDING, got %s", earning.Status)
	}
}

func TestComputeEarningsBonusItemized(t *testing.T) {
	f := setupSettlementTest(t)
	seedPartner(t, f.db, 3000, 500)
	seedFact(t, f.db, 1000, 10_000, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))

	earning, err := f.svc.ComputeEarnings(context.Background(), "20", periodStart, periodEnd)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if earning.AmountCents != 1_500 {
		t.Fatalf("expected amount 1500, got %d", earning.AmountCents)
	}
	if earning.BonusCents != 250 {
		t.Fatalf("expected bonus 250 at 5%%, got %d", earning.BonusCents)
	}
}

func TestComputeEarningsCPMOverride(t *testing.T) {
	f := setupSettlementTest(t)
	seedPartner(t, f.db, 3000, 0)
	override := int64(800)
	if err := f.db.Model(&settlementdomain.Partner{}).Where("id = ?", 20).
		Update("cpm_cents", override).Error; err != nil {
		t.Fatalf("set override: %v", err)
	}
	seedFact(t, f.db, 1000, 10_000, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))

	earning, err := f.svc.ComputeEarnings(context.Background(), "20", periodStart, periodEnd)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if earning.RevenueCents != 8_000 {
		t.Fatalf("expected revenue 8000 at 8.00 CPM, got %d", earning.RevenueCents)
	}
	if earning.AmountCents != 2_400 {
		t.Fatalf("expected amount 2400, got %d", earning.AmountCents)
	}
}

func TestComputeEarningsUpdatesDeviceRevenue(t *testing.T) {
	f := setupSettlementTest(t)
	seedPartner(t, f.db, 3000, 0)
	seedFact(t, f.db, 1000, 10_000, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	earning, err := f.svc.ComputeEarnings(ctx, "20", periodStart, periodEnd)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	var device deliverydomain.Device
	if err := f.db.First(&device, "id = ?", 10).Error; err != nil {
		t.Fatalf("reload device: %v", err)
	}
	if device.RevenueCents != earning.RevenueCents {
		t.Fatalf("expected device revenue %d, got %d", earning.RevenueCents, device.RevenueCents)
	}

	// The running total moves once per settled period.
	if _, err := f.svc.ComputeEarnings(ctx, "20", periodStart, periodEnd); !errors.Is(err, settlementdomain.ErrAlreadySettled) {
		t.Fatalf("expected already_settled, got %v", err)
	}
	if err := f.db.First(&device, "id = ?", 10).Error; err != nil {
		t.Fatalf("reload device: %v", err)
	}
	if device.RevenueCents != 5_000 {
		t.Fatalf("expected revenue total unchanged at 5000, got %d", device.RevenueCents)
	}
}

func TestComputeEarningsExactlyOnce(t *testing.T) {
	f := setupSettlementTest(t)
	seedPartner(t, f.db, 3000, 0)
	seedFact(t, f.db, 1000, 10_000, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	if _, err := f.svc.ComputeEarnings(ctx, "20", periodStart, periodEnd); err != nil {
		t.Fatalf("first compute: %v", err)
	}
	_, err := f.svc.ComputeEarnings(ctx, "20", periodStart, periodEnd)
	if !errors.Is(err, settlementdomain.ErrAlreadySettled) {
		t.Fatalf("expected already_settled, got %v", err)
	}

	var count int64
	if err := f.db.Model(&settlementdomain.PartnerEarning{}).Count(&count).Error; err != nil {
		t.Fatalf("count earnings: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one earning, got %d", count)
	}
}

func TestComputeEarningsRejectsOpenPeriod(t *testing.T) {
	f := setupSettlementTest(t)
	seedPartner(t, f.db, 3000, 0)
	_, err := f.svc.ComputeEarnings(context.Background(), "20", periodStart, testNow.Add(time.Hour))
	if !errors.Is(err, settlementdomain.ErrPeriodOpen) {
		t.Fatalf("expected period_open, got %v", err)
	}
}

func TestComputeEarningsZeroDelivery(t *testing.T) {
	f := setupSettlementTest(t)
	seedPartner(t, f.db, 3000, 0)

	earning, err := f.svc.ComputeEarnings(context.Background(), "20", periodStart, periodEnd)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if earning.RevenueCents != 0 || earning.AmountCents != 0 {
		t.Fatalf("expected zero earning, got revenue=%d amount=%d", earning.RevenueCents, earning.AmountCents)
	}
}

func TestComputeEarningsUnknownPartner(t *testing.T) {
	f := setupSettlementTest(t)
	_, err := f.svc.ComputeEarnings(context.Background(), "99", periodStart, periodEnd)
	if !errors.Is(err, settlementdomain.ErrPartnerNotFound) {
		t.Fatalf("expected partner_not_found, got %v", err)
	}
}

func TestMarkPaidOnce(t *testing.T) {
	f := setupSettlementTest(t)
	seedPartner(t, f.db, 3000, 0)
	seedFact(t, f.db, 1000, 10_000, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	earning, err := f.svc.ComputeEarnings(ctx, "20", periodStart, periodEnd)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	paidAt := time.Date(2026, 4, 3, 9, 0, 0, 0, time.UTC)
	paid, err := f.svc.MarkPaid(ctx, earning.ID.String(), "bank-tx-991", paidAt)
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if paid.Status != settlementdomain.EarningStatusPaid {
		t.Fatalf("expected PAID, got %s", paid.Status)
	}
	if paid.PaidDate == nil || !paid.PaidDate.Equal(paidAt) {
		t.Fatalf("expected paid date %s, got %v", paidAt, paid.PaidDate)
	}
	if paid.TransactionID == nil || *paid.TransactionID != "bank-tx-991" {
		t.Fatalf("expected transaction id recorded, got %+v", paid)
	}

	_, err = f.svc.MarkPaid(ctx, earning.ID.String(), "bank-tx-992", paidAt.Add(time.Hour))
	if !errors.Is(err, settlementdomain.ErrEarningAlreadyPaid) {
		t.Fatalf("expected earning_already_paid, got %v", err)
	}

	reloaded, err := f.svc.GetEarning(ctx, earning.ID.String())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if *reloaded.TransactionID != "bank-tx-991" {
		t.Fatalf("expected first transaction retained, got %s", *reloaded.TransactionID)
	}
}

func TestMarkPaidValidation(t *testing.T) {
	f := setupSettlementTest(t)
	if _, err := f.svc.MarkPaid(context.Background(), "123", "   ", testNow); !errors.Is(err, settlementdomain.ErrInvalidTransactionID) {
		t.Fatalf("expected invalid_transaction_id, got %v", err)
	}
	if _, err := f.svc.MarkPaid(context.Background(), "123", "tx-1", testNow); !errors.Is(err, settlementdomain.ErrEarningNotFound) {
		t.Fatalf("expected earning_not_found, got %v", err)
	}
}

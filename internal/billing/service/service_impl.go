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
	billingdomain "github.com/lumenadtech/lumen/internal/billing/domain"
	"github.com/lumenadtech/lumen/internal/cache"
	campaigndomain "github.com/lumenadtech/lumen/internal/campaign/domain"
	"github.com/lumenadtech/lumen/internal/clock"
	"github.com/lumenadtech/lumen/internal/config"
	deliverydomain "github.com/lumenadtech/lumen/internal/delivery/domain"
	"github.com/lumenadtech/lumen/internal/events"
	"github.com/lumenadtech/lumen/internal/money"
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
	Cfg         config.Config
	Clock       clock.Clock
	AuditSvc    auditdomain.Service
	DeliverySvc deliverydomain.Service
	Outbox      *events.Outbox
	Bus         *cache.Bus           `optional:"true"`
	Metrics     *metrics.CoreMetrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	cfg         config.Billing
	clock       clock.Clock
	auditSvc    auditdomain.Service
	deliverySvc deliverydomain.Service
	outbox      *events.Outbox
	bus         *cache.Bus
	metrics     *metrics.CoreMetrics

	summaries *cache.TTLCache[string, billingdomain.AccountSummary]
}

func NewService(p Params) billingdomain.Service {
	s := &Service{
		db:          p.DB,
		log:         p.Log.Named("billing.service"),
		genID:       p.GenID,
		cfg:         p.Cfg.Billing,
		clock:       p.Clock,
		auditSvc:    p.AuditSvc,
		deliverySvc: p.DeliverySvc,
		outbox:      p.Outbox,
		bus:         p.Bus,
		metrics:     p.Metrics,
		summaries:   cache.NewTTLCache[string, billingdomain.AccountSummary](),
	}
	if p.Bus != nil {
		p.Bus.Subscribe(func(key string) {
			s.summaries.Delete(key)
		})
	}
	return s
}

// CreateInvoice bills a campaign for a closed delivery period. The
// unique (campaign, period) index makes a re-invocation fail with
// ErrAlreadyInvoiced instead of double charging.
func (s *Service) CreateInvoice(ctx context.Context, campaignID string, periodStart, periodEnd time.Time) (*billingdomain.Invoice, error) {
	id, err := parseID(campaignID)
	if err != nil {
		return nil, campaigndomain.ErrInvalidCampaignID
	}
	if !periodEnd.After(periodStart) {
		return nil, billingdomain.ErrInvalidPeriod
	}
	if periodEnd.After(s.clock.Now()) {
		// An open period still accrues; invoicing it would persist a
		// provisional number.
		return nil, billingdomain.ErrPeriodOpen
	}

	agg, err := s.deliverySvc.AggregateCampaign(ctx, campaignID, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}
	if agg.SpendCents == 0 {
		s.metrics.IncInvoiceCreated("rejected")
		return nil, billingdomain.ErrNoBillableSpend
	}

	amount := agg.SpendCents
	tax := money.ApplyBps(amount, s.cfg.TaxRateBps)
	now := s.clock.Now()

	invoice := &billingdomain.Invoice{
		ID:          s.genID.Generate(),
		CampaignID:  id,
		PeriodStart: periodStart.UTC(),
		PeriodEnd:   periodEnd.UTC(),
		AmountCents: amount,
		TaxCents:    tax,
		TotalCents:  amount + tax,
		Status:      billingdomain.InvoiceStatusUnpaid,
		DueDate:     now.AddDate(0, 0, s.cfg.PaymentTermsDays),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var campaign campaigndomain.Campaign
		if err := tx.First(&campaign, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return campaigndomain.ErrCampaignNotFound
			}
			return err
		}
		if !campaign.Status.CanAccrueBillables() {
			return billingdomain.ErrCampaignNotBillable
		}
		invoice.AdvertiserID = campaign.AdvertiserID

		if err := tx.Create(invoice).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return billingdomain.ErrAlreadyInvoiced
			}
			return err
		}

		if _, err := s.auditSvc.Append(ctx, tx, auditdomain.AppendRequest{
			ConfigKey: "invoice:" + invoice.ID.String(),
			ChangedBy: "system",
			NewValue: map[string]any{
				"campaign_id":  id.String(),
				"period_start": invoice.PeriodStart.Format(time.RFC3339),
				"period_end":   invoice.PeriodEnd.Format(time.RFC3339),
				"amount":       money.Format(invoice.AmountCents),
				"tax":          money.Format(invoice.TaxCents),
				"total":        money.Format(invoice.TotalCents),
				"status":       string(invoice.Status),
			},
		}); err != nil {
			return err
		}

		return s.outbox.PublishTx(ctx, tx, events.Event{
			Type: events.EventInvoiceCreated,
			Payload: map[string]any{
				"invoice_id":  invoice.ID.String(),
				"campaign_id": id.String(),
			},
			DedupeKey: fmt.Sprintf("invoice:%s:%d:%d", id, invoice.PeriodStart.Unix(), invoice.PeriodEnd.Unix()),
		})
	})
	if txErr != nil {
		if errors.Is(txErr, billingdomain.ErrAlreadyInvoiced) {
			s.metrics.IncInvoiceCreated("duplicate")
		} else {
			s.metrics.IncInvoiceCreated("rejected")
		}
		return nil, txErr
	}

	s.metrics.IncInvoiceCreated("created")
	s.invalidateSummary(invoice.AdvertiserID)
	s.log.Info("invoice created",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("campaign_id", id.String()),
		zap.Int64("total_cents", invoice.TotalCents),
	)
	return invoice, nil
}

// ApplyPayment attaches a completed payment to an invoice and derives
// the new status from the cumulative applied amount, all inside one
// row-locked transaction so two racing payments cannot both conclude
// "not yet paid".
func (s *Service) ApplyPayment(ctx context.Context, invoiceID, paymentID string) (*billingdomain.Invoice, error) {
	invID, err := parseID(invoiceID)
	if err != nil {
		return nil, billingdomain.ErrInvalidInvoiceID
	}
	payID, err := parseID(paymentID)
	if err != nil {
		return nil, billingdomain.ErrInvalidPaymentID
	}

	var invoice billingdomain.Invoice
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var payment billingdomain.Payment
		if err := tx.First(&payment, "id = ?", payID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return billingdomain.ErrPaymentNotFound
			}
			return err
		}
		if payment.Status != billingdomain.PaymentStatusCompleted {
			return billingdomain.ErrPaymentNotCompleted
		}

		if err := s.lockInvoice(ctx, tx, invID, &invoice); err != nil {
			return err
		}
		if invoice.Status == billingdomain.InvoiceStatusPaid {
			// Paid invoices are immutable; overpayment goes through an
			// explicit refund path, never through here.
			return billingdomain.ErrInvoiceAlreadySettled
		}

		link := billingdomain.InvoicePayment{
			ID:          s.genID.Generate(),
			InvoiceID:   invID,
			PaymentID:   payID,
			AmountCents: payment.AmountCents,
			CreatedAt:   time.Now().UTC(),
		}
		if err := tx.Create(&link).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return billingdomain.ErrPaymentAlreadyApplied
			}
			return err
		}

		var applied int64
		if err := tx.Raw(
			`SELECT COALESCE(SUM(amount_cents), 0) FROM invoice_payments WHERE invoice_id = ?`,
			invID,
		).Scan(&applied).Error; err != nil {
			return err
		}

		previous := invoice.Status
		now := time.Now().UTC()
		if applied >= invoice.TotalCents {
			invoice.Status = billingdomain.InvoiceStatusPaid
			invoice.PaidAt = &now
		} else {
			invoice.Status = billingdomain.InvoiceStatusPartiallyPaid
			invoice.PaidAt = nil
		}
		invoice.UpdatedAt = now

		if err := tx.Exec(
			`UPDATE invoices SET status = ?, paid_at = ?, updated_at = ? WHERE id = ?`,
			invoice.Status,
			invoice.PaidAt,
			now,
			invID,
		).Error; err != nil {
			return err
		}

		if _, err := s.auditSvc.Append(ctx, tx, auditdomain.AppendRequest{
			ConfigKey:     "invoice:" + invID.String(),
			ChangedBy:     "system",
			PreviousValue: map[string]any{"status": string(previous)},
			NewValue: map[string]any{
				"status":        string(invoice.Status),
				"payment_id":    payID.String(),
				"applied_cents": applied,
			},
		}); err != nil {
			return err
		}

		eventType := events.EventPaymentApplied
		if invoice.Status == billingdomain.InvoiceStatusPaid {
			eventType = events.EventInvoicePaid
		}
		return s.outbox.PublishTx(ctx, tx, events.Event{
			Type: eventType,
			Payload: map[string]any{
				"invoice_id": invID.String(),
				"payment_id": payID.String(),
				"status":     string(invoice.Status),
			},
			DedupeKey: fmt.Sprintf("invoice:%s:payment:%s", invID, payID),
		})
	})
	if txErr != nil {
		s.metrics.IncPaymentApplied("rejected")
		return nil, txErr
	}

	if invoice.Status == billingdomain.InvoiceStatusPaid {
		s.metrics.IncPaymentApplied("settled")
	} else {
		s.metrics.IncPaymentApplied("partial")
	}
	s.invalidateSummary(invoice.AdvertiserID)
	return &invoice, nil
}

// MarkOverdue sweeps unpaid invoices past their due date. Each invoice
// is its own transaction, so an interrupted sweep leaves no partial
// state and the next run picks up where it stopped.
func (s *Service) MarkOverdue(ctx context.Context, now time.Time) (int, error) {
	ids, err := s.fetchOverdueCandidates(ctx, now)
	if err != nil {
		return 0, err
	}

	marked := 0
	for _, id := range ids {
		select {
		case <-ctx.Done():
			return marked, ctx.Err()
		default:
		}
		changed, err := s.markOneOverdue(ctx, id, now)
		if err != nil {
			return marked, err
		}
		if changed {
			marked++
		}
	}
	s.metrics.AddOverdueMarked(marked)
	return marked, nil
}

// GetInvoice loads an invoice by id.
func (s *Service) GetInvoice(ctx context.Context, invoiceID string) (*billingdomain.Invoice, error) {
	id, err := parseID(invoiceID)
	if err != nil {
		return nil, billingdomain.ErrInvalidInvoiceID
	}
	var invoice billingdomain.Invoice
	err = s.db.WithContext(ctx).First(&invoice, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, billingdomain.ErrInvoiceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// AccountSummary returns the advertiser's money view, cached until the
// next mutation invalidates it.
func (s *Service) AccountSummary(ctx context.Context, advertiserID string) (billingdomain.AccountSummary, error) {
	id, err := parseID(advertiserID)
	if err != nil {
		return billingdomain.AccountSummary{}, billingdomain.ErrInvalidAdvertiserID
	}

	key := cache.AccountSummaryKey(id.String())
	if cached, ok := s.summaries.Get(key); ok {
		return cached, nil
	}

	var row struct {
		OpenInvoices     int64
		OutstandingCents int64
		PaidCents        int64
		OverdueInvoices  int64
	}
	err = s.db.WithContext(ctx).Raw(
		`SELECT
		   COALESCE(SUM(CASE WHEN status != 'PAID' THEN 1 ELSE 0 END), 0) AS open_invoices,
		   COALESCE(SUM(CASE WHEN status != 'PAID' THEN total_cents ELSE 0 END), 0) AS outstanding_cents,
		   COALESCE(SUM(CASE WHEN status = 'PAID' THEN total_cents ELSE 0 END), 0) AS paid_cents,
		   COALESCE(SUM(CASE WHEN status = 'OVERDUE' THEN 1 ELSE 0 END), 0) AS overdue_invoices
		 FROM invoices
		 WHERE advertiser_id = ?`,
		id,
	).Scan(&row).Error
	if err != nil {
		return billingdomain.AccountSummary{}, err
	}

	summary := billingdomain.AccountSummary{
		AdvertiserID:     id.String(),
		OpenInvoices:     row.OpenInvoices,
		OutstandingCents: row.OutstandingCents,
		PaidCents:        row.PaidCents,
		OverdueInvoices:  row.OverdueInvoices,
	}
	s.summaries.Set(key, summary, s.cfg.SummaryCacheTTL)
	return summary, nil
}

func (s *Service) fetchOverdueCandidates(ctx context.Context, now time.Time) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := s.db.WithContext(ctx).Raw(
		`SELECT id FROM invoices
		 WHERE status IN (?, ?) AND due_date < ?
		 ORDER BY due_date ASC`,
		billingdomain.InvoiceStatusUnpaid,
		billingdomain.InvoiceStatusPartiallyPaid,
		now.UTC(),
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Service) markOneOverdue(ctx context.Context, id snowflake.ID, now time.Time) (bool, error) {
	changed := false
	var advertiserID snowflake.ID
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var invoice billingdomain.Invoice
		if err := s.lockInvoice(ctx, tx, id, &invoice); err != nil {
			return err
		}
		// Re-check under lock: a payment may have settled it since the
		// candidate scan.
		if invoice.Status != billingdomain.InvoiceStatusUnpaid &&
			invoice.Status != billingdomain.InvoiceStatusPartiallyPaid {
			return nil
		}
		if !invoice.DueDate.Before(now) {
			return nil
		}

		previous := invoice.Status
		if err := tx.Exec(
			`UPDATE invoices SET status = ?, updated_at = ? WHERE id = ?`,
			billingdomain.InvoiceStatusOverdue,
			now.UTC(),
			id,
		).Error; err != nil {
			return err
		}

		if _, err := s.auditSvc.Append(ctx, tx, auditdomain.AppendRequest{
			ConfigKey:     "invoice:" + id.String(),
			ChangedBy:     "system",
			PreviousValue: map[string]any{"status": string(previous)},
			NewValue:      map[string]any{"status": string(billingdomain.InvoiceStatusOverdue)},
		}); err != nil {
			return err
		}

		if err := s.outbox.PublishTx(ctx, tx, events.Event{
			Type: events.EventInvoiceOverdue,
			Payload: map[string]any{
				"invoice_id": id.String(),
			},
			DedupeKey: fmt.Sprintf("invoice:%s:overdue:%d", id, now.Unix()),
		}); err != nil {
			return err
		}

		changed = true
		advertiserID = invoice.AdvertiserID
		return nil
	})
	// Invalidate only once the new status is committed, otherwise a
	// racing reader can cache the pre-commit summary and go stale.
	if err == nil && changed {
		s.invalidateSummary(advertiserID)
	}
	return changed, err
}

func (s *Service) lockInvoice(ctx context.Context, tx *gorm.DB, id snowflake.ID, out *billingdomain.Invoice) error {
	query := fmt.Sprintf(
		`SELECT id, campaign_id, advertiser_id, period_start, period_end,
		        amount_cents, tax_cents, total_cents, status, due_date,
		        paid_at, created_at, updated_at
		 FROM invoices
		 WHERE id = ?
		 %s`,
		db.RowLock(tx),
	)
	if err := tx.WithContext(ctx).Raw(query, id).Scan(out).Error; err != nil {
		return err
	}
	if out.ID == 0 {
		return billingdomain.ErrInvoiceNotFound
	}
	return nil
}

func (s *Service) invalidateSummary(advertiserID snowflake.ID) {
	key := cache.AccountSummaryKey(advertiserID.String())
	s.summaries.Delete(key)
	if s.bus != nil {
		s.bus.Invalidate(key)
	}
}

func parseID(raw string) (snowflake.ID, error) {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || value == 0 {
		return 0, errors.New("invalid_id")
	}
	return snowflake.ID(value), nil
}

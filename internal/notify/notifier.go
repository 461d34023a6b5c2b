// Package notify is the outbound notification hook. Delivery is
// best-effort: a failed notification is logged and dropped, never
// propagated to the transaction that triggered it.
package notify

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Notifier receives lifecycle events after their transactions commit.
type Notifier interface {
	CampaignApproved(ctx context.Context, campaignID, advertiserID string)
	CampaignRejected(ctx context.Context, campaignID, advertiserID, reason string)
	EarningPaid(ctx context.Context, earningID, partnerID string, amountCents int64)
}

// LogNotifier records notifications in the application log. It stands in
// for the delivery channel (email, push) owned by the notification
// service outside this core.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log.Named("notify")}
}

func (n *LogNotifier) CampaignApproved(ctx context.Context, campaignID, advertiserID string) {
	n.log.Info("campaign approved",
		zap.String("campaign_id", campaignID),
		zap.String("advertiser_id", advertiserID),
	)
}

func (n *LogNotifier) CampaignRejected(ctx context.Context, campaignID, advertiserID, reason string) {
	n.log.Info("campaign rejected",
		zap.String("campaign_id", campaignID),
		zap.String("advertiser_id", advertiserID),
		zap.String("reason", reason),
	)
}

func (n *LogNotifier) EarningPaid(ctx context.Context, earningID, partnerID string, amountCents int64) {
	n.log.Info("earning paid",
		zap.String("earning_id", earningID),
		zap.String("partner_id", partnerID),
		zap.Int64("amount_cents", amountCents),
	)
}

// Module provides the default notifier.
var Module = fx.Module("notify",
	fx.Provide(NewLogNotifier),
	fx.Provide(func(n *LogNotifier) Notifier { return n }),
)

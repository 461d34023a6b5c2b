package events

// Event types emitted by the settlement core.
const (
	EventCampaignStatusChanged = "campaign.status_changed"
	EventInvoiceCreated        = "invoice.created"
	EventInvoicePaid           = "invoice.paid"
	EventInvoiceOverdue        = "invoice.overdue"
	EventPaymentApplied        = "payment.applied"
	EventEarningComputed       = "earning.computed"
	EventEarningPaid           = "earning.paid"
)

package domain

import (
	"context"
	"errors"
)

// TransitionRequest asks the state machine to move a campaign.
// ExpectedStatus, when set, is the status the caller last observed; the
// transition aborts with ErrConcurrentModification if the stored status
// has moved on, so the caller can re-read and retry.
type TransitionRequest struct {
	CampaignID     string
	To             Status
	Reason         string
	Actor          string
	ExpectedStatus *Status
}

// Service applies campaign status transitions.
type Service interface {
	Transition(ctx context.Context, req TransitionRequest) (*Campaign, error)
	Get(ctx context.Context, campaignID string) (*Campaign, error)
}

var (
	ErrCampaignNotFound       = errors.New("campaign_not_found")
	ErrInvalidCampaignID      = errors.New("invalid_campaign_id")
	ErrInvalidStatus          = errors.New("invalid_status")
	ErrInvalidTransition      = errors.New("invalid_transition")
	ErrReasonRequired         = errors.New("reason_required")
	ErrConcurrentModification = errors.New("concurrent_modification")
)

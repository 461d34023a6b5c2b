package domain

// transitions is the closed set of legal status moves. COMPLETED is
// terminal; REJECTED and CANCELLED can only be reset to DRAFT.
var transitions = map[Status][]Status{
	StatusDraft:           {StatusPendingApproval, StatusCancelled},
	StatusPendingApproval: {StatusActive, StatusRejected, StatusCancelled},
	StatusActive:          {StatusPaused, StatusCompleted, StatusCancelled},
	StatusPaused:          {StatusActive, StatusCompleted, StatusCancelled},
	StatusCompleted:       {},
	StatusRejected:        {StatusDraft},
	StatusCancelled:       {StatusDraft},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether from -> to is a legal move. Re-requesting
// the current status is not a transition and is handled by the caller.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// CanAccrueBillables reports whether a campaign in status s may still
// generate billable delivery. DRAFT, PENDING_APPROVAL, REJECTED and
// CANCELLED never reach devices; COMPLETED campaigns may still be
// invoiced for delivery inside their final period.
func (s Status) CanAccrueBillables() bool {
	switch s {
	case StatusActive, StatusPaused, StatusCompleted:
		return true
	default:
		return false
	}
}

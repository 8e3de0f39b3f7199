// Package audit records operator-relevant actions (claim submitted,
// approved, rejected) to a relational store. Recording is best effort:
// callers log failures and move on, the primary flow never depends on it.
package audit

import "context"

// Event is one audited action.
type Event struct {
	Action  string
	UserID  int64
	Details string
}

// Well-known audit actions.
const (
	ActionClaimSubmitted = "claim_submitted"
	ActionClaimApproved  = "claim_approved"
	ActionClaimRejected  = "claim_rejected"
	ActionCacheReload    = "cache_reload"
)

// Recorder persists audit events.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Nop discards every event. Used when no audit database is configured.
type Nop struct{}

func (Nop) Record(ctx context.Context, ev Event) error { return nil }

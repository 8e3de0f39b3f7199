package models

import "time"

// PaymentClaim is the logical unit of "this user says they paid for this
// product". RecordRef is filled in once the persistence worker succeeds.
type PaymentClaim struct {
	UserID      int64
	Username    string
	PaymentType string
	ProductCode string
	Artifact    ProofArtifact
	RecordRef   string
	CreatedAt   time.Time
}

package models

import "time"

// Entitlement is the access grant resulting from an approved claim. A nil
// ExpiresAt means unlimited access (the product has no access duration).
type Entitlement struct {
	ProductName string
	ExpiresAt   *time.Time
}

// Active reports whether the entitlement grants access at the given instant.
func (e Entitlement) Active(at time.Time) bool {
	return e.ExpiresAt == nil || at.Before(*e.ExpiresAt)
}

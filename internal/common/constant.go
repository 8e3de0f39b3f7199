package common

// Payment record statuses as stored in the external record store.
const (
	StatusSubmitted = "submitted"
	StatusPaid      = "paid"
	StatusRejected  = "rejected"
)

// Package common defines shared constants and sentinel errors used across
// the bot's layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Store/repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal    = errors.New("internal error")
	ErrorUnavailable = errors.New("record store unavailable")

	// Review-flow errors.
	ErrUnknownApproval = errors.New("unknown approval reference")
	ErrNotAuthorized   = errors.New("not authorized")

	// Intake errors.
	ErrUnsupportedArtifact = errors.New("unsupported artifact kind")
	ErrDuplicateArtifact   = errors.New("duplicate artifact")
)

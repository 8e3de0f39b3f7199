// Package archive stores copies of submitted proof artifacts in object
// storage. The transport's file refs can go stale, the archived copy is
// the durable one. Archival is best effort and never blocks the claim flow.
package archive

import "context"

// Archiver stores a proof artifact and returns the storage key.
type Archiver interface {
	Store(ctx context.Context, userID int64, fileRef string) (string, error)
}

// Nop skips archival. Used when no object storage is configured.
type Nop struct{}

func (Nop) Store(ctx context.Context, userID int64, fileRef string) (string, error) {
	return "", nil
}

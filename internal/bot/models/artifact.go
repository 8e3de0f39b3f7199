// Package models holds the domain types shared by the intake pipeline, the
// persistence worker and the reviewer flow.
package models

import "strings"

// ArtifactKind distinguishes the two accepted proof shapes.
type ArtifactKind string

const (
	ArtifactPhoto    ArtifactKind = "photo"
	ArtifactDocument ArtifactKind = "document"
)

// ProofArtifact is a user-submitted image or document offered as proof of
// payment. FileRef is the opaque transport handle usable to re-send the same
// artifact; UniqueID is the opaque per-upload dedup key. Never mutated after
// receipt.
type ProofArtifact struct {
	Kind     ArtifactKind
	FileRef  string
	UniqueID string
	MIMEType string
	FileName string
}

// Supported reports whether the artifact is of an accepted kind: a photo, or
// a document carrying an image/* or application/pdf MIME type.
func (a ProofArtifact) Supported() bool {
	if a.Kind == ArtifactPhoto {
		return true
	}
	mime := strings.ToLower(a.MIMEType)
	return strings.HasPrefix(mime, "image/") || mime == "application/pdf"
}

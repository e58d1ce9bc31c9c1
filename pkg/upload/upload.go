// Package upload hands the finalized artifact to the external collaborator.
package upload

import (
	"context"
)

// Metadata travels with the artifact at finalize time.
type Metadata struct {
	SessionID string
	Title     string
	Source    string
}

// Result identifies the created remote record.
type Result struct {
	Ref       string
	SizeBytes int64
}

// Uploader externalizes one concatenated artifact. A non-nil error means
// the artifact was not safely received and local chunks must be retained.
type Uploader interface {
	Upload(ctx context.Context, artifact []byte, meta Metadata) (*Result, error)
}

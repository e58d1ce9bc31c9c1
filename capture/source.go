// Package capture delivers raw audio frames from a platform capture API.
package capture

import (
	"context"
	"time"
)

// Frame is one batch of floating-point samples per channel, normalized to
// [-1, 1]. Right is nil for mono sources. Buffers are owned by the
// receiver; the source never reuses them.
type Frame struct {
	Left      []float32
	Right     []float32
	Timestamp time.Time
}

// Source is a live audio stream. Frames is closed when the source stops;
// Errors carries device-level failures (stream lost, backend gone).
type Source interface {
	Start(ctx context.Context) error
	Stop() error
	Frames() <-chan Frame
	Errors() <-chan error
}

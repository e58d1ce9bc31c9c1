package service

import (
	"context"
	"errors"
	"fmt"
)

// ErrIncompleteArtifact means the stored chunk indices are not the
// contiguous sequence 0..N-1. The reassembled bytes are still returned so
// the partial artifact can be offered with a warning instead of discarded.
var ErrIncompleteArtifact = errors.New("chunk sequence has gaps")

type assembledArtifact struct {
	bytes      []byte
	chunkCount int
}

// assembleArtifact reads back every chunk for the session in index order
// and concatenates the payloads into one artifact, asserting index
// contiguity along the way.
func (c *Controller) assembleArtifact(ctx context.Context, sessionID string) (*assembledArtifact, error) {
	records, err := c.repo.GetChunkRecords(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	total := 0
	gap := false
	for i, record := range records {
		if record.ChunkIndex != i {
			gap = true
		}
		total += len(record.Payload)
	}

	artifact := make([]byte, 0, total)
	for _, record := range records {
		artifact = append(artifact, record.Payload...)
	}

	result := &assembledArtifact{bytes: artifact, chunkCount: len(records)}
	if gap {
		return result, fmt.Errorf("%w: %d chunks stored for session %s", ErrIncompleteArtifact, len(records), sessionID)
	}
	return result, nil
}

package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"capture-agent/constant"
	"capture-agent/entities"
)

func newTestRepo(t *testing.T) (ChunkRepository, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.db")
	repo, err := NewRepo(path)
	require.NoError(t, err)
	return repo, path
}

func TestSaveAndGetAllChunksOrdered(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	// Write out of index order; reads must still come back sorted.
	require.NoError(t, repo.SaveChunk(ctx, "s1", 2, []byte("c2")))
	require.NoError(t, repo.SaveChunk(ctx, "s1", 0, []byte("c0")))
	require.NoError(t, repo.SaveChunk(ctx, "s1", 1, []byte("c1")))

	chunks, err := repo.GetAllChunks(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, []byte("c0"), chunks[0])
	assert.Equal(t, []byte("c1"), chunks[1])
	assert.Equal(t, []byte("c2"), chunks[2])
}

func TestGetAllChunksEmptySession(t *testing.T) {
	repo, _ := newTestRepo(t)

	chunks, err := repo.GetAllChunks(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSaveChunkIdempotent(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveChunk(ctx, "s1", 0, []byte("payload")))
	require.NoError(t, repo.SaveChunk(ctx, "s1", 0, []byte("payload")))

	chunks, err := repo.GetAllChunks(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, []byte("payload"), chunks[0])
}

func TestSessionsAreIsolated(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveChunk(ctx, "a", 0, []byte("a0")))
	require.NoError(t, repo.SaveChunk(ctx, "b", 0, []byte("b0")))

	chunks, err := repo.GetAllChunks(ctx, "a")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, []byte("a0"), chunks[0])
}

func TestClearRecording(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveChunk(ctx, "s1", 0, []byte("c0")))
	require.NoError(t, repo.SaveChunk(ctx, "s1", 1, []byte("c1")))
	require.NoError(t, repo.SaveChunk(ctx, "s2", 0, []byte("other")))

	require.NoError(t, repo.ClearRecording(ctx, "s1"))

	chunks, err := repo.GetAllChunks(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, chunks)

	// The other session is untouched.
	chunks, err = repo.GetAllChunks(ctx, "s2")
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
}

func TestClearRecordingReleasesSessionLock(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.SaveChunk(ctx, "s1", 0, []byte("c0")))
	_, err := r.GetAllChunks(ctx, "s1")
	require.NoError(t, err)

	require.NoError(t, r.ClearRecording(ctx, "s1"))

	// A cleared session leaves nothing behind in the lock map.
	impl := r.(*repo)
	impl.locksMu.Lock()
	_, held := impl.locks["s1"]
	impl.locksMu.Unlock()
	assert.False(t, held)

	// The session is still fully usable afterwards.
	require.NoError(t, r.SaveChunk(ctx, "s1", 0, []byte("again")))
	chunks, err := r.GetAllChunks(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
}

func TestGetUnfinishedRecordings(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	ids, err := repo.GetUnfinishedRecordings(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, repo.SaveChunk(ctx, "abc", 0, []byte("c0")))
	require.NoError(t, repo.SaveChunk(ctx, "abc", 1, []byte("c1")))
	require.NoError(t, repo.SaveChunk(ctx, "xyz", 0, []byte("c0")))

	ids, err = repo.GetUnfinishedRecordings(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"abc", "xyz"}, ids)
}

func TestChunksSurviveReopen(t *testing.T) {
	repo, path := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveChunk(ctx, "abc", 0, []byte("c0")))
	require.NoError(t, repo.SaveChunk(ctx, "abc", 1, []byte("c1")))

	// Simulate a crash and restart with a fresh handle on the same file.
	reopened, err := NewRepo(path)
	require.NoError(t, err)

	ids, err := reopened.GetUnfinishedRecordings(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"abc"}, ids)

	chunks, err := reopened.GetAllChunks(ctx, "abc")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, []byte("c0"), chunks[0])
	assert.Equal(t, []byte("c1"), chunks[1])
}

func TestSessionMetadataLifecycle(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	session := &entities.RecordingSession{
		ID:          "s1",
		Title:       "standup",
		Source:      "microphone",
		SampleRate:  44100,
		Channels:    1,
		BitrateKbps: 64,
		Status:      constant.RecordingStatusActive,
		StartedAt:   time.Now(),
	}
	require.NoError(t, repo.CreateSession(ctx, session))

	require.NoError(t, repo.UpdateSessionStatus(ctx, "s1", constant.RecordingStatusFinalized, 3))

	got, err := repo.FindSessionById(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, constant.RecordingStatusFinalized, got.Status)
	assert.Equal(t, 3, got.TotalChunks)
	assert.NotNil(t, got.FinalizedAt)
}

package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"capture-agent/constant"
	"capture-agent/entities"
)

// ErrStorage marks chunk store failures (quota, corruption, unavailable
// backend). Not retryable against the same backend.
var ErrStorage = errors.New("chunk store failure")

// ChunkRepository is the durable store for encoded chunks, keyed by
// (session id, chunk index), plus the session metadata rows.
type ChunkRepository interface {
	SaveChunk(ctx context.Context, sessionID string, chunkIndex int, payload []byte) error
	GetAllChunks(ctx context.Context, sessionID string) ([][]byte, error)
	GetChunkRecords(ctx context.Context, sessionID string) ([]*entities.EncodedChunk, error)
	ClearRecording(ctx context.Context, sessionID string) error
	GetUnfinishedRecordings(ctx context.Context) ([]string, error)

	CreateSession(ctx context.Context, session *entities.RecordingSession) error
	FindSessionById(ctx context.Context, id string) (*entities.RecordingSession, error)
	UpdateSessionStatus(ctx context.Context, id string, status constant.RecordingStatus, totalChunks int) error
}

type repo struct {
	db *gorm.DB

	// Clears are serialized against reads of the same session so a
	// concurrent GetAllChunks never observes a half-deleted session.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewRepo(path string) (ChunkRepository, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Join(ErrStorage, err)
	}

	if err := db.AutoMigrate(&entities.EncodedChunk{}, &entities.RecordingSession{}); err != nil {
		return nil, errors.Join(ErrStorage, err)
	}

	return &repo{
		db:    db,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

func (r *repo) sessionLock(sessionID string) *sync.Mutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()
	mu, ok := r.locks[sessionID]
	if !ok {
		mu = &sync.Mutex{}
		r.locks[sessionID] = mu
	}
	return mu
}

// SaveChunk upserts the record at (sessionID, chunkIndex). A repeated call
// with the same key is idempotent, which makes write retries safe.
func (r *repo) SaveChunk(ctx context.Context, sessionID string, chunkIndex int, payload []byte) error {
	chunk := &entities.EncodedChunk{
		SessionID:  sessionID,
		ChunkIndex: chunkIndex,
		Payload:    payload,
		CreatedAt:  time.Now(),
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "chunk_index"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload"}),
	}).Create(chunk).Error
	if err != nil {
		return errors.Join(ErrStorage, err)
	}
	return nil
}

// GetChunkRecords returns the session's chunk records sorted ascending by
// chunk index regardless of physical write order.
func (r *repo) GetChunkRecords(ctx context.Context, sessionID string) ([]*entities.EncodedChunk, error) {
	mu := r.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	var chunks []*entities.EncodedChunk
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("chunk_index ASC").
		Find(&chunks).Error
	if err != nil {
		return nil, errors.Join(ErrStorage, err)
	}
	return chunks, nil
}

// GetAllChunks returns the ordered payloads only. No chunks is an empty
// slice, not an error.
func (r *repo) GetAllChunks(ctx context.Context, sessionID string) ([][]byte, error) {
	chunks, err := r.GetChunkRecords(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	payloads := make([][]byte, 0, len(chunks))
	for _, chunk := range chunks {
		payloads = append(payloads, chunk.Payload)
	}
	return payloads, nil
}

// ClearRecording deletes every chunk for the session in one transaction.
func (r *repo) ClearRecording(ctx context.Context, sessionID string) error {
	mu := r.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Where("session_id = ?", sessionID).Delete(&entities.EncodedChunk{}).Error
	})
	if err != nil {
		return errors.Join(ErrStorage, err)
	}

	// The session is gone; drop its lock entry so the map does not grow
	// with every recording a long-lived agent finishes.
	r.locksMu.Lock()
	delete(r.locks, sessionID)
	r.locksMu.Unlock()
	return nil
}

// GetUnfinishedRecordings lists distinct session ids holding at least one
// chunk. Consulted at startup to offer recovery, never on the hot path.
func (r *repo) GetUnfinishedRecordings(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&entities.EncodedChunk{}).
		Distinct().
		Order("session_id ASC").
		Pluck("session_id", &ids).Error
	if err != nil {
		return nil, errors.Join(ErrStorage, err)
	}
	return ids, nil
}

func (r *repo) CreateSession(ctx context.Context, session *entities.RecordingSession) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return errors.Join(ErrStorage, err)
	}
	return nil
}

func (r *repo) FindSessionById(ctx context.Context, id string) (*entities.RecordingSession, error) {
	session := &entities.RecordingSession{}
	err := r.db.WithContext(ctx).First(session, "id = ?", id).Error
	if err != nil {
		return nil, errors.Join(ErrStorage, err)
	}
	return session, nil
}

func (r *repo) UpdateSessionStatus(ctx context.Context, id string, status constant.RecordingStatus, totalChunks int) error {
	updates := map[string]interface{}{
		"status":       status,
		"total_chunks": totalChunks,
	}
	if status == constant.RecordingStatusFinalized {
		updates["finalized_at"] = time.Now()
	}
	err := r.db.WithContext(ctx).
		Model(&entities.RecordingSession{}).
		Where("id = ?", id).
		Updates(updates).Error
	if err != nil {
		return errors.Join(ErrStorage, err)
	}
	return nil
}

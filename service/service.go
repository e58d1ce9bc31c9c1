package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"capture-agent/capture"
	"capture-agent/config"
	"capture-agent/constant"
	"capture-agent/dto"
	"capture-agent/encoder"
	"capture-agent/entities"
	"capture-agent/metrics"
	"capture-agent/pkg/rabbitmq"
	"capture-agent/pkg/upload"
	"capture-agent/repository"
)

var (
	// ErrCaptureStart means the audio stream could not be acquired. No
	// session id is allocated and no side effects remain.
	ErrCaptureStart = errors.New("cannot start recording")
	// ErrSessionActive rejects a second concurrent capture.
	ErrSessionActive = errors.New("a capture session is already active")
	// ErrInvalidState rejects a transition the state machine does not allow.
	ErrInvalidState = errors.New("invalid session state")
	// ErrRecordingAtRisk means chunk persistence failed and only a prefix
	// of the recording is durable. The prefix is preserved, never deleted.
	ErrRecordingAtRisk = errors.New("recording at risk, partial data saved")
	// ErrUploadFailed means the artifact was not externalized; local
	// chunks are retained so finalize can be retried without re-recording.
	ErrUploadFailed = errors.New("upload failed, local chunks retained")
	// ErrNoRecordingData rejects finalize for a session with no stored
	// chunks, so an empty artifact is never uploaded or announced.
	ErrNoRecordingData = errors.New("no stored chunks for session")
)

// SourceFactory acquires a live audio stream for one session.
type SourceFactory func(cfg config.Audio) (capture.Source, error)

// CodecFactory builds one self-contained encoder instance per session.
type CodecFactory func(cfg encoder.Config) (encoder.Codec, error)

// Controller sequences capture, encoding, chunk persistence and finalize.
// At most one session is active per controller.
type Controller struct {
	baseCtx   context.Context
	cfg       *config.Config
	repo      repository.ChunkRepository
	uploader  upload.Uploader
	publisher rabbitmq.Publisher
	newSource SourceFactory
	newCodec  CodecFactory

	mu     sync.Mutex
	state  constant.SessionState
	active *activeSession
}

type activeSession struct {
	id     string
	title  string
	source string

	src capture.Source
	enc *encoder.Encoder

	paused     atomic.Bool
	ended      atomic.Bool
	cancel     context.CancelFunc
	pumpDone   chan struct{}
	writerDone chan struct{}

	// writeErr and chunkCount are written by the writer goroutine and
	// read only after writerDone is closed.
	writeErr   error
	chunkCount int
	byteCount  int64
}

func NewController(
	ctx context.Context,
	cfg *config.Config,
	repo repository.ChunkRepository,
	uploader upload.Uploader,
	publisher rabbitmq.Publisher,
	newSource SourceFactory,
	newCodec CodecFactory,
) *Controller {
	return &Controller{
		baseCtx:   ctx,
		cfg:       cfg,
		repo:      repo,
		uploader:  uploader,
		publisher: publisher,
		newSource: newSource,
		newCodec:  newCodec,
		state:     constant.SessionStateIdle,
	}
}

// State reports the current lifecycle state.
func (c *Controller) State() constant.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ActiveSessionID returns the running session id, or "" when idle.
func (c *Controller) ActiveSessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return ""
	}
	return c.active.id
}

// Start acquires the stream, initializes the encoder and begins feeding
// frames. On acquisition failure the controller stays Idle.
func (c *Controller) Start(ctx context.Context, req dto.StartRecordingRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != constant.SessionStateIdle && c.state != constant.SessionStateFailed {
		return "", ErrSessionActive
	}

	src, err := c.newSource(c.cfg.Audio)
	if err != nil {
		return "", errors.Join(ErrCaptureStart, err)
	}
	if err := src.Start(ctx); err != nil {
		return "", errors.Join(ErrCaptureStart, err)
	}

	codec, err := c.newCodec(encoder.Config{
		SampleRate:  c.cfg.Audio.SampleRate,
		Channels:    c.cfg.Audio.Channels,
		BitrateKbps: c.cfg.Audio.BitrateKbps,
	})
	if err != nil {
		_ = src.Stop()
		return "", errors.Join(ErrCaptureStart, err)
	}

	sessionID := uuid.NewString()
	sessCtx, cancel := context.WithCancel(c.baseCtx)

	enc := encoder.New(codec)
	if err := enc.Start(sessCtx); err != nil {
		cancel()
		_ = src.Stop()
		return "", err
	}

	if err := c.repo.CreateSession(ctx, &entities.RecordingSession{
		ID:          sessionID,
		Title:       req.Title,
		Source:      req.Source,
		SampleRate:  c.cfg.Audio.SampleRate,
		Channels:    c.cfg.Audio.Channels,
		BitrateKbps: c.cfg.Audio.BitrateKbps,
		Status:      constant.RecordingStatusActive,
		StartedAt:   time.Now(),
	}); err != nil {
		// Metadata only; chunk durability does not depend on this row.
		zerolog.Ctx(sessCtx).Warn().Err(err).Str("session_id", sessionID).Msg("failed to persist session metadata")
	}

	session := &activeSession{
		id:         sessionID,
		title:      req.Title,
		source:     req.Source,
		src:        src,
		enc:        enc,
		cancel:     cancel,
		pumpDone:   make(chan struct{}),
		writerDone: make(chan struct{}),
	}
	c.active = session
	c.state = constant.SessionStateCapturing
	metrics.ActiveSessions.Inc()

	go c.pump(sessCtx, session)
	go c.persistChunks(sessCtx, session)
	go c.watchSource(sessCtx, session)

	zerolog.Ctx(sessCtx).Info().
		Str("session_id", sessionID).
		Int("sample_rate", c.cfg.Audio.SampleRate).
		Int("channels", c.cfg.Audio.Channels).
		Int("bitrate_kbps", c.cfg.Audio.BitrateKbps).
		Msg("capture session started")

	return sessionID, nil
}

// pump forwards frames from the source to the encoder. Paused sessions
// swallow frames without submitting them, so the chunk index sequence
// continues without gaps on resume.
func (c *Controller) pump(ctx context.Context, s *activeSession) {
	defer close(s.pumpDone)
	for f := range s.src.Frames() {
		if s.paused.Load() {
			continue
		}
		if err := s.enc.Encode(f.Left, f.Right); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("session_id", s.id).Msg("frame submission failed")
			c.failSession(ctx, s)
			return
		}
	}
}

// persistChunks writes encoder output to the chunk store with a
// monotonically increasing index starting at 0. A failed write is retried
// once immediately; the index never advances past a failure, so the
// already-durable prefix stays intact.
func (c *Controller) persistChunks(ctx context.Context, s *activeSession) {
	defer close(s.writerDone)

	index := 0
	for chunk := range s.enc.Chunks() {
		err := c.repo.SaveChunk(ctx, s.id, index, chunk)
		if err != nil {
			metrics.StorageFailures.Inc()
			zerolog.Ctx(ctx).Warn().Err(err).
				Str("session_id", s.id).
				Int("chunk_index", index).
				Msg("chunk write failed, retrying once")
			err = c.repo.SaveChunk(ctx, s.id, index, chunk)
		}
		if err != nil {
			metrics.StorageFailures.Inc()
			s.writeErr = errors.Join(ErrRecordingAtRisk, err)
			zerolog.Ctx(ctx).Error().Err(err).
				Str("session_id", s.id).
				Int("chunk_index", index).
				Msg("chunk write failed after retry")
			c.failSession(ctx, s)
			return
		}

		metrics.ChunksPersisted.Inc()
		metrics.BytesEncoded.Add(float64(len(chunk)))
		s.chunkCount++
		s.byteCount += int64(len(chunk))
		index++
	}
}

// watchSource surfaces device-level errors. The stream and its durable
// chunks are preserved; nothing is deleted on a device failure.
func (c *Controller) watchSource(ctx context.Context, s *activeSession) {
	for {
		select {
		case err, ok := <-s.src.Errors():
			if !ok {
				return
			}
			zerolog.Ctx(ctx).Warn().Err(err).Str("session_id", s.id).Msg("capture source error")
		case <-ctx.Done():
			return
		}
	}
}

// failSession moves a live session into the error-terminal state. Durable
// chunks are never deleted here; they remain recoverable.
func (c *Controller) failSession(ctx context.Context, s *activeSession) {
	c.mu.Lock()
	if c.active != s {
		c.mu.Unlock()
		return
	}
	c.state = constant.SessionStateFailed
	c.mu.Unlock()

	s.cancel()
	_ = s.src.Stop()
	if s.ended.CompareAndSwap(false, true) {
		metrics.ActiveSessions.Dec()
	}

	// Shut down the encode worker once the pump stops submitting. Runs off
	// this goroutine because the pump itself can be the caller. The session
	// context is already cancelled, so the worker drops queued work instead
	// of blocking on a consumer that is gone.
	go func() {
		<-s.pumpDone
		if err := s.enc.Finish(context.Background()); err != nil && !errors.Is(err, encoder.ErrFinished) {
			zerolog.Ctx(ctx).Debug().Err(err).Str("session_id", s.id).Msg("encoder teardown")
		}
	}()

	if err := c.repo.UpdateSessionStatus(ctx, s.id, constant.RecordingStatusAtRisk, s.chunkCount); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("session_id", s.id).Msg("failed to mark session at risk")
	}
	c.clearActive(s)
}

// Pause suspends frame submission. The encoder and stream stay allocated.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != constant.SessionStateCapturing {
		return ErrInvalidState
	}
	c.active.paused.Store(true)
	c.state = constant.SessionStatePaused
	return nil
}

// Resume continues frame submission after a pause.
func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != constant.SessionStatePaused {
		return ErrInvalidState
	}
	c.active.paused.Store(false)
	c.state = constant.SessionStateCapturing
	return nil
}

// Stop finalizes the active session: flush the encoder, persist the final
// chunk, reassemble the artifact, upload it, and clear local chunks only
// after the upload is confirmed.
func (c *Controller) Stop(ctx context.Context) (*dto.FinalizeResponse, error) {
	c.mu.Lock()
	if c.state != constant.SessionStateCapturing && c.state != constant.SessionStatePaused {
		c.mu.Unlock()
		return nil, ErrInvalidState
	}
	s := c.active
	c.state = constant.SessionStateFinalizing
	c.mu.Unlock()

	logger := zerolog.Ctx(ctx)
	logger.Info().Str("session_id", s.id).Msg("finalizing capture session")

	if err := s.src.Stop(); err != nil {
		logger.Warn().Err(err).Str("session_id", s.id).Msg("source stop failed")
	}
	<-s.pumpDone

	finishErr := s.enc.Finish(ctx)
	<-s.writerDone

	s.cancel()
	if s.ended.CompareAndSwap(false, true) {
		metrics.ActiveSessions.Dec()
	}

	if s.writeErr != nil {
		// The durable prefix stays; session is recoverable at startup.
		c.setState(constant.SessionStateFailed)
		c.clearActive(s)
		return nil, s.writeErr
	}
	if finishErr != nil {
		c.setState(constant.SessionStateFailed)
		c.clearActive(s)
		if err := c.repo.UpdateSessionStatus(ctx, s.id, constant.RecordingStatusAtRisk, s.chunkCount); err != nil {
			logger.Warn().Err(err).Str("session_id", s.id).Msg("failed to mark session at risk")
		}
		return nil, finishErr
	}

	resp, err := c.finalize(ctx, s.id, upload.Metadata{
		SessionID: s.id,
		Title:     s.title,
		Source:    s.source,
	})
	if err != nil {
		c.setState(constant.SessionStateIdle)
		c.clearActive(s)
		return resp, err
	}

	c.setState(constant.SessionStateIdle)
	c.clearActive(s)
	return resp, nil
}

// FinalizeUnfinished reassembles, uploads and clears a session recovered
// from the startup listing.
func (c *Controller) FinalizeUnfinished(ctx context.Context, sessionID string, meta upload.Metadata) (*dto.FinalizeResponse, error) {
	if c.ActiveSessionID() == sessionID {
		return nil, ErrSessionActive
	}
	meta.SessionID = sessionID
	return c.finalize(ctx, sessionID, meta)
}

// finalize runs reconstruct -> upload -> publish -> clear. The clear only
// happens after the upload collaborator confirmed receipt, so there is no
// window where local chunks are gone but the artifact is not safe.
func (c *Controller) finalize(ctx context.Context, sessionID string, meta upload.Metadata) (*dto.FinalizeResponse, error) {
	logger := zerolog.Ctx(ctx)

	artifact, err := c.assembleArtifact(ctx, sessionID)
	if err != nil && !errors.Is(err, ErrIncompleteArtifact) {
		return nil, err
	}
	if artifact.chunkCount == 0 {
		return nil, ErrNoRecordingData
	}

	warning := ""
	if errors.Is(err, ErrIncompleteArtifact) {
		// Offer the partial artifact rather than discarding it.
		warning = err.Error()
		logger.Warn().Str("session_id", sessionID).Msg("chunk sequence has gaps, artifact may be incomplete")
	}

	result, uploadErr := c.uploader.Upload(ctx, artifact.bytes, meta)
	if uploadErr != nil {
		return nil, errors.Join(ErrUploadFailed, uploadErr)
	}

	if c.publisher != nil {
		event := dto.RecordingReadyEvent{
			SessionID:       sessionID,
			UploadRef:       result.Ref,
			SizeBytes:       result.SizeBytes,
			ChunkCount:      artifact.chunkCount,
			DurationSeconds: c.estimateDuration(len(artifact.bytes)),
		}
		if err := c.publisher.PublishRecordingReady(ctx, event); err != nil {
			// Best effort: a publish failure never undoes a finalize.
			logger.Warn().Err(err).Str("session_id", sessionID).Msg("recording.ready publish failed")
		}
	}

	if err := c.repo.ClearRecording(ctx, sessionID); err != nil {
		logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to clear local chunks after upload")
		return nil, err
	}
	if err := c.repo.UpdateSessionStatus(ctx, sessionID, constant.RecordingStatusFinalized, artifact.chunkCount); err != nil {
		logger.Warn().Err(err).Str("session_id", sessionID).Msg("failed to update session metadata")
	}

	metrics.SessionsFinalized.Inc()
	logger.Info().
		Str("session_id", sessionID).
		Str("upload_ref", result.Ref).
		Int("chunk_count", artifact.chunkCount).
		Int64("size_bytes", result.SizeBytes).
		Msg("capture session finalized")

	return &dto.FinalizeResponse{
		SessionID:  sessionID,
		UploadRef:  result.Ref,
		SizeBytes:  result.SizeBytes,
		ChunkCount: artifact.chunkCount,
		Warning:    warning,
	}, nil
}

// ListUnfinished returns session ids with durable chunks left behind.
func (c *Controller) ListUnfinished(ctx context.Context) ([]string, error) {
	return c.repo.GetUnfinishedRecordings(ctx)
}

// Discard deletes a session's chunks without uploading. Only ever called
// explicitly; unfinished sessions are never deleted silently.
func (c *Controller) Discard(ctx context.Context, sessionID string) error {
	if c.ActiveSessionID() == sessionID {
		return ErrSessionActive
	}
	zerolog.Ctx(ctx).Info().Str("session_id", sessionID).Msg("discarding unfinished recording")
	return c.repo.ClearRecording(ctx, sessionID)
}

func (c *Controller) estimateDuration(sizeBytes int) int {
	if c.cfg.Audio.BitrateKbps <= 0 {
		return 0
	}
	return sizeBytes * 8 / (c.cfg.Audio.BitrateKbps * 1000)
}

func (c *Controller) setState(state constant.SessionState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

func (c *Controller) clearActive(s *activeSession) {
	c.mu.Lock()
	if c.active == s {
		c.active = nil
	}
	c.mu.Unlock()
}

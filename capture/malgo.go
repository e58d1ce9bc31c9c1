package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
)

// ErrSourceState is returned for Start on a running source or Stop on a
// stopped one.
var ErrSourceState = errors.New("capture source state error")

// MalgoConfig configures the default capture device.
type MalgoConfig struct {
	SampleRate uint32
	Channels   uint32
	// BufferFrames is the batch size requested from the device.
	BufferFrames uint32
}

// MalgoSource captures from the default input device via miniaudio. Frames
// arrive on a buffered channel; a batch is dropped rather than blocking the
// device callback when the consumer falls behind.
type MalgoSource struct {
	config MalgoConfig

	ctx    *malgo.AllocatedContext
	device *malgo.Device

	frames chan Frame
	errs   chan error

	mu      sync.Mutex
	running atomic.Bool
}

func NewMalgoSource(config MalgoConfig) *MalgoSource {
	if config.SampleRate == 0 {
		config.SampleRate = 44100
	}
	if config.Channels == 0 {
		config.Channels = 1
	}
	if config.BufferFrames == 0 {
		config.BufferFrames = 4096
	}
	return &MalgoSource{
		config: config,
		frames: make(chan Frame, 64),
		errs:   make(chan error, 8),
	}
}

func (s *MalgoSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return ErrSourceState
	}

	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return err
	}
	s.ctx = malgoCtx

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = s.config.Channels
	deviceConfig.SampleRate = s.config.SampleRate
	deviceConfig.PeriodSizeInFrames = s.config.BufferFrames
	deviceConfig.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: s.onAudioData,
		Stop: s.onDeviceStop,
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = malgoCtx.Uninit()
		s.ctx = nil
		return err
	}
	s.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = malgoCtx.Uninit()
		s.device = nil
		s.ctx = nil
		return err
	}

	s.running.Store(true)
	return nil
}

func (s *MalgoSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return ErrSourceState
	}
	s.running.Store(false)

	if s.device != nil {
		_ = s.device.Stop()
		s.device.Uninit()
		s.device = nil
	}
	if s.ctx != nil {
		_ = s.ctx.Uninit()
		s.ctx = nil
	}

	close(s.frames)
	close(s.errs)
	return nil
}

func (s *MalgoSource) Frames() <-chan Frame {
	return s.frames
}

func (s *MalgoSource) Errors() <-chan error {
	return s.errs
}

// onAudioData runs on the device thread: deinterleave, copy out of the
// reused callback buffer and hand off without blocking.
func (s *MalgoSource) onAudioData(_, input []byte, frameCount uint32) {
	if !s.running.Load() || frameCount == 0 {
		return
	}

	channels := int(s.config.Channels)
	left := make([]float32, frameCount)
	var right []float32
	if channels == 2 {
		right = make([]float32, frameCount)
	}

	for i := 0; i < int(frameCount); i++ {
		base := i * channels * 4
		left[i] = math.Float32frombits(binary.LittleEndian.Uint32(input[base:]))
		if right != nil {
			right[i] = math.Float32frombits(binary.LittleEndian.Uint32(input[base+4:]))
		}
	}

	select {
	case s.frames <- Frame{Left: left, Right: right, Timestamp: time.Now()}:
	default:
		// Consumer fell behind; dropping is better than stalling the
		// device callback.
		select {
		case s.errs <- errors.New("capture frame dropped"):
		default:
		}
	}
}

func (s *MalgoSource) onDeviceStop() {
	if !s.running.Load() {
		return
	}
	select {
	case s.errs <- errors.New("capture device stopped unexpectedly"):
	default:
	}
}

package encoder

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubCodec tags each emission so ordering is observable. Calls for which
// emitEvery does not divide the call count return no bytes, mimicking the
// internal buffering of a real MP3 encoder.
type stubCodec struct {
	calls     int
	emitEvery int
	flushed   bool
	lastMono  bool
	encodeErr error
}

func (s *stubCodec) Encode(left, right []int16) ([]byte, error) {
	s.calls++
	s.lastMono = right == nil
	if s.encodeErr != nil {
		return nil, s.encodeErr
	}
	if s.emitEvery > 1 && s.calls%s.emitEvery != 0 {
		return nil, nil
	}
	return []byte(fmt.Sprintf("chunk-%d", s.calls)), nil
}

func (s *stubCodec) Flush() ([]byte, error) {
	s.flushed = true
	return []byte("final"), nil
}

func collect(t *testing.T, ch <-chan []byte) [][]byte {
	t.Helper()
	var out [][]byte
	timeout := time.After(5 * time.Second)
	for {
		select {
		case chunk, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, chunk)
		case <-timeout:
			t.Fatal("chunk channel never closed")
		}
	}
}

func TestEncodeBeforeStartFails(t *testing.T) {
	enc := New(&stubCodec{emitEvery: 1})
	err := enc.Encode([]float32{0}, nil)
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestFinishBeforeStartFails(t *testing.T) {
	enc := New(&stubCodec{emitEvery: 1})
	err := enc.Finish(context.Background())
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestStartTwiceFails(t *testing.T) {
	enc := New(&stubCodec{emitEvery: 1})
	require.NoError(t, enc.Start(context.Background()))
	assert.ErrorIs(t, enc.Start(context.Background()), ErrAlreadyStarted)
	require.NoError(t, enc.Finish(context.Background()))
}

func TestChunksArriveInSubmissionOrder(t *testing.T) {
	ctx := context.Background()
	enc := New(&stubCodec{emitEvery: 1})
	require.NoError(t, enc.Start(ctx))

	done := make(chan [][]byte)
	go func() { done <- collect(t, enc.Chunks()) }()

	const n = 10
	for i := 0; i < n; i++ {
		require.NoError(t, enc.Encode([]float32{0.1, -0.1}, nil))
	}
	require.NoError(t, enc.Finish(ctx))

	chunks := <-done
	require.Len(t, chunks, n+1)
	for i := 0; i < n; i++ {
		assert.Equal(t, fmt.Sprintf("chunk-%d", i+1), string(chunks[i]))
	}
	assert.Equal(t, "final", string(chunks[n]))
}

func TestEmptyCodecOutputEmitsNoChunk(t *testing.T) {
	ctx := context.Background()
	enc := New(&stubCodec{emitEvery: 3})
	require.NoError(t, enc.Start(ctx))

	done := make(chan [][]byte)
	go func() { done <- collect(t, enc.Chunks()) }()

	for i := 0; i < 7; i++ {
		require.NoError(t, enc.Encode([]float32{0}, nil))
	}
	require.NoError(t, enc.Finish(ctx))

	// Emissions at calls 3 and 6, plus the flush.
	chunks := <-done
	require.Len(t, chunks, 3)
	assert.Equal(t, "chunk-3", string(chunks[0]))
	assert.Equal(t, "chunk-6", string(chunks[1]))
	assert.Equal(t, "final", string(chunks[2]))
}

func TestEncodeAfterFinishFails(t *testing.T) {
	ctx := context.Background()
	enc := New(&stubCodec{emitEvery: 1})
	require.NoError(t, enc.Start(ctx))

	done := make(chan [][]byte)
	go func() { done <- collect(t, enc.Chunks()) }()
	require.NoError(t, enc.Finish(ctx))
	<-done

	assert.ErrorIs(t, enc.Encode([]float32{0}, nil), ErrFinished)
	assert.ErrorIs(t, enc.Finish(ctx), ErrFinished)
}

func TestMonoInputPassesNilRight(t *testing.T) {
	ctx := context.Background()
	codec := &stubCodec{emitEvery: 1}
	enc := New(codec)
	require.NoError(t, enc.Start(ctx))

	done := make(chan [][]byte)
	go func() { done <- collect(t, enc.Chunks()) }()

	require.NoError(t, enc.Encode([]float32{0.5}, nil))
	require.NoError(t, enc.Finish(ctx))
	<-done

	assert.True(t, codec.lastMono)
	assert.True(t, codec.flushed)
}

func TestFinishReleasesWorkerWithoutConsumer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	enc := New(&stubCodec{emitEvery: 1})
	require.NoError(t, enc.Start(ctx))

	// Nobody reads Chunks; produce more output than its buffer holds so the
	// worker stalls on the send.
	for i := 0; i < 80; i++ {
		require.NoError(t, enc.Encode([]float32{0.1}, nil))
	}
	cancel()

	done := make(chan error, 1)
	go func() { done <- enc.Finish(context.Background()) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("finish blocked with no chunk consumer")
	}
}

func TestCodecErrorSurfaces(t *testing.T) {
	ctx := context.Background()
	codecErr := errors.New("bitstream corrupt")
	enc := New(&stubCodec{emitEvery: 1, encodeErr: codecErr})
	require.NoError(t, enc.Start(ctx))

	done := make(chan [][]byte)
	go func() { done <- collect(t, enc.Chunks()) }()

	require.NoError(t, enc.Encode([]float32{0}, nil))
	err := enc.Finish(ctx)
	assert.ErrorIs(t, err, codecErr)
	assert.ErrorIs(t, enc.Err(), codecErr)
	<-done
}

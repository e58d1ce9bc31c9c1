package encoder

import (
	"context"
	"errors"
	"sync"

	"capture-agent/pcm"
)

var (
	// ErrNotStarted marks ENCODE or FINISH before INIT.
	ErrNotStarted = errors.New("encoder not started")
	// ErrAlreadyStarted marks a second INIT on the same session.
	ErrAlreadyStarted = errors.New("encoder already started")
	// ErrFinished marks use of the encoder after FINISH.
	ErrFinished = errors.New("encoder finished")
)

type frame struct {
	left  []float32
	right []float32
}

// Encoder drives one Codec through the INIT/ENCODE/FINISH protocol. Frames
// are submitted by a single producer; encoding runs on its own goroutine;
// chunks come out strictly in submission order on Chunks. The channel is
// closed exactly once, after the final flush chunk.
type Encoder struct {
	codec Codec

	jobs       chan frame
	chunks     chan []byte
	workerDone chan struct{}

	mu       sync.Mutex
	started  bool
	finished bool
	err      error
}

func New(codec Codec) *Encoder {
	return &Encoder{
		codec:      codec,
		jobs:       make(chan frame, 64),
		chunks:     make(chan []byte, 64),
		workerDone: make(chan struct{}),
	}
}

// Start transitions Uninitialized -> Ready and launches the encode worker.
// Called exactly once per session.
func (e *Encoder) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finished {
		return ErrFinished
	}
	if e.started {
		return ErrAlreadyStarted
	}
	e.started = true
	go e.run(ctx)
	return nil
}

// Encode submits one raw frame. right may be nil for mono input. The call
// only queues work; compression happens on the worker goroutine.
func (e *Encoder) Encode(left, right []float32) error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return ErrNotStarted
	}
	if e.finished {
		e.mu.Unlock()
		return ErrFinished
	}
	err := e.err
	e.mu.Unlock()
	if err != nil {
		return err
	}

	e.jobs <- frame{left: left, right: right}
	return nil
}

// Finish transitions Ready -> Finished: flushes buffered encoder state,
// emits the final chunk if non-empty and closes Chunks. Terminal.
func (e *Encoder) Finish(ctx context.Context) error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return ErrNotStarted
	}
	if e.finished {
		e.mu.Unlock()
		return ErrFinished
	}
	e.finished = true
	e.mu.Unlock()

	close(e.jobs)
	select {
	case <-e.workerDone:
	case <-ctx.Done():
		return ctx.Err()
	}
	return e.Err()
}

// Chunks is the ordered stream of compressed output. Closed after FINISH.
func (e *Encoder) Chunks() <-chan []byte {
	return e.chunks
}

// Err reports the first codec failure, if any.
func (e *Encoder) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

func (e *Encoder) setErr(err error) {
	e.mu.Lock()
	if e.err == nil {
		e.err = err
	}
	e.mu.Unlock()
}

func (e *Encoder) run(ctx context.Context) {
	defer close(e.workerDone)
	defer close(e.chunks)

	failed := false
	for f := range e.jobs {
		if failed || ctx.Err() != nil {
			// Keep draining so a blocked producer can finish.
			continue
		}

		left := pcm.Float32ToInt16(f.left)
		var right []int16
		if f.right != nil {
			right = pcm.Float32ToInt16(f.right)
		}

		out, err := e.codec.Encode(left, right)
		if err != nil {
			e.setErr(err)
			failed = true
			continue
		}
		if len(out) == 0 {
			continue
		}
		select {
		case e.chunks <- out:
		case <-ctx.Done():
			failed = true
		}
	}

	if failed || ctx.Err() != nil {
		return
	}

	out, err := e.codec.Flush()
	if err != nil {
		e.setErr(err)
		return
	}
	if len(out) > 0 {
		select {
		case e.chunks <- out:
		case <-ctx.Done():
		}
	}
}

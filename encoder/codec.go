// Package encoder turns converted sample blocks into compressed MP3 chunks
// on a dedicated goroutine, so capture never waits on compression.
package encoder

import (
	"bytes"
	"fmt"

	lame "github.com/viert/go-lame"

	"capture-agent/pcm"
)

// Config is the encoder setup fixed at session start.
type Config struct {
	SampleRate  int
	Channels    int
	BitrateKbps int
}

// Codec is the underlying MP3 encoder for one session. Implementations own
// their bitstream state; nothing is shared between sessions. Encode returns
// the bytes produced by this block, which may be empty while the codec
// buffers. Flush drains whatever remains.
type Codec interface {
	Encode(left, right []int16) ([]byte, error)
	Flush() ([]byte, error)
}

type lameCodec struct {
	buf      bytes.Buffer
	enc      *lame.Encoder
	channels int
	flushed  bool
}

// NewLameCodec builds a libmp3lame instance scoped to one session.
func NewLameCodec(cfg Config) (Codec, error) {
	c := &lameCodec{channels: cfg.Channels}
	c.enc = lame.NewEncoder(&c.buf)
	if err := c.enc.SetNumChannels(cfg.Channels); err != nil {
		return nil, fmt.Errorf("lame channels: %w", err)
	}
	if err := c.enc.SetInSamplerate(cfg.SampleRate); err != nil {
		return nil, fmt.Errorf("lame sample rate: %w", err)
	}
	if err := c.enc.SetBrate(cfg.BitrateKbps); err != nil {
		return nil, fmt.Errorf("lame bitrate: %w", err)
	}
	return c, nil
}

func (c *lameCodec) Encode(left, right []int16) ([]byte, error) {
	var samples []int16
	switch {
	case c.channels == 2 && right != nil:
		samples = pcm.Interleave(left, right)
	case c.channels == 2:
		// Right channel omitted on a stereo session: duplicate left into
		// both slots to keep the interleaved layout lame expects.
		samples = pcm.Interleave(left, left)
	default:
		samples = left
	}

	if _, err := c.enc.Write(pcm.Bytes(samples)); err != nil {
		return nil, fmt.Errorf("lame encode: %w", err)
	}
	return c.take(), nil
}

func (c *lameCodec) Flush() ([]byte, error) {
	if !c.flushed {
		c.enc.Close()
		c.flushed = true
	}
	return c.take(), nil
}

func (c *lameCodec) take() []byte {
	if c.buf.Len() == 0 {
		return nil
	}
	out := make([]byte, c.buf.Len())
	copy(out, c.buf.Bytes())
	c.buf.Reset()
	return out
}

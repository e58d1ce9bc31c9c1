package pcm

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloat32ToInt16Extremes(t *testing.T) {
	out := Float32ToInt16([]float32{-1.0, 0.0, 1.0})
	assert.Equal(t, []int16{-32768, 0, 32767}, out)
}

func TestFloat32ToInt16Clamps(t *testing.T) {
	out := Float32ToInt16([]float32{-2.5, 1.7, -1.0001, 1.0001})
	assert.Equal(t, []int16{-32768, 32767, -32768, 32767}, out)
}

func TestFloat32ToInt16TruncatesTowardZero(t *testing.T) {
	// 0.5*32767 = 16383.5 and -0.5*32768 = -16384, so truncation must not
	// round away from zero.
	out := Float32ToInt16([]float32{0.5, -0.5})
	assert.Equal(t, []int16{16383, -16384}, out)
}

func TestFloat32ToInt16RoundTripWithinOneStep(t *testing.T) {
	src := make([]float32, 0, 2001)
	for v := -1.0; v <= 1.0; v += 0.001 {
		src = append(src, float32(v))
	}
	out := Float32ToInt16(src)
	require.Len(t, out, len(src))

	for i, s := range src {
		var back float64
		if out[i] < 0 {
			back = float64(out[i]) / 32768
		} else {
			back = float64(out[i]) / 32767
		}
		step := 1.0 / 32767
		assert.LessOrEqual(t, math.Abs(back-float64(s)), step,
			"sample %d: %f -> %d -> %f", i, s, out[i], back)
	}
}

func TestInterleave(t *testing.T) {
	out := Interleave([]int16{1, 3, 5}, []int16{2, 4, 6})
	assert.Equal(t, []int16{1, 2, 3, 4, 5, 6}, out)
}

func TestBytesLittleEndian(t *testing.T) {
	out := Bytes([]int16{0x0102, -1})
	require.Len(t, out, 4)
	assert.Equal(t, uint16(0x0102), binary.LittleEndian.Uint16(out[0:2]))
	assert.Equal(t, uint16(0xFFFF), binary.LittleEndian.Uint16(out[2:4]))
}

// Package pcm converts floating-point audio frames into the fixed-point
// format expected by the MP3 encoder.
package pcm

import "encoding/binary"

// Float32ToInt16 converts normalized [-1, 1] samples to signed 16-bit PCM.
// Out-of-range input is clamped first; scaling is asymmetric (32768 for
// negative values, 32767 for non-negative) and truncates toward zero.
func Float32ToInt16(src []float32) []int16 {
	out := make([]int16, len(src))
	for i, s := range src {
		if s < -1.0 {
			s = -1.0
		} else if s > 1.0 {
			s = 1.0
		}
		if s < 0 {
			out[i] = int16(s * 32768)
		} else {
			out[i] = int16(s * 32767)
		}
	}
	return out
}

// Interleave merges left and right channel buffers into L/R interleaved
// PCM. Both buffers must have the same length.
func Interleave(left, right []int16) []int16 {
	out := make([]int16, 0, len(left)*2)
	for i := range left {
		out = append(out, left[i], right[i])
	}
	return out
}

// Bytes serializes samples as little-endian 16-bit PCM.
func Bytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// Package audio provides microphone capture and speaker playback on top
// of miniaudio. Capture produces fixed-size mono frames tagged with a
// sequence number and RMS energy on a bounded channel; playback accepts
// float32 PCM and drains it through the default output device.
package audio

import (
	"encoding/binary"
	"math"
)

// RMS computes the root-mean-square energy of samples in [-1, 1].
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func floatBits(f float64) uint64     { return math.Float64bits(f) }
func floatFromBits(b uint64) float64 { return math.Float64frombits(b) }

// S16LEToFloat32 decodes little-endian signed 16-bit PCM into [-1, 1].
func S16LEToFloat32(data []byte) []float32 {
	n := len(data) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(data[i*2:]))
		out[i] = float32(v) / 32768.0
	}
	return out
}

// Float32ToS16LE encodes [-1, 1] samples as little-endian signed 16-bit
// PCM, clamping out-of-range values.
func Float32ToS16LE(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(s * 32767)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

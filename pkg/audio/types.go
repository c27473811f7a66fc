// ABOUTME: Audio type definitions
// ABOUTME: Defines the stream format and float sample conversions
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// 16-bit audio range constants
	Max16Bit = 32767
	Min16Bit = -32768

	// DefaultSampleRate matches the lab's one-second, 44.1kHz noise blocks
	DefaultSampleRate = 44100
)

// Format describes an output stream format
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int // 16 or 32 (float)
}

// Validate checks the format is usable for playback
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("invalid channel count: %d", f.Channels)
	}
	switch f.BitDepth {
	case 16, 32:
	default:
		return fmt.Errorf("unsupported bit depth: %d (supported: 16, 32)", f.BitDepth)
	}
	return nil
}

// BytesPerFrame returns the size of one interleaved frame in bytes
func (f Format) BytesPerFrame() int {
	return f.Channels * f.BitDepth / 8
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/%dbit", f.SampleRate, f.Channels, f.BitDepth)
}

// Clamp limits a float sample to [-1, 1]. NaN becomes silence.
func Clamp(s float32) float32 {
	if s != s {
		return 0
	}
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}

// FloatToInt16 converts a float sample to 16-bit PCM with clipping
func FloatToInt16(s float32) int16 {
	return int16(math.Round(float64(Clamp(s)) * Max16Bit))
}

// PutFloat32LE writes samples into out as little-endian float32.
// It returns the number of samples written.
func PutFloat32LE(out []byte, samples []float32) int {
	n := len(out) / 4
	if n > len(samples) {
		n = len(samples)
	}
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(samples[i]))
	}
	return n
}

// PutInt16LE writes samples into out as little-endian 16-bit PCM.
// It returns the number of samples written.
func PutInt16LE(out []byte, samples []float32) int {
	n := len(out) / 2
	if n > len(samples) {
		n = len(samples)
	}
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(FloatToInt16(samples[i])))
	}
	return n
}

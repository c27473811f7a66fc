// ABOUTME: Frequency-domain colored noise generator
// ABOUTME: FFT white noise, weight bins by the RMS-normalised PSD, inverse FFT
package noise

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/mjibson/go-dsp/fft"
)

// MinSamples is the smallest buffer that has at least one non-DC bin
const MinSamples = 2

// ErrInvalidParameter is returned for unknown colors and bad sample counts
var ErrInvalidParameter = errors.New("invalid parameter")

// Generator draws colored noise from its own random source.
// It is not safe for concurrent use.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator creates a generator seeded with seed
func NewGenerator(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

// Generate returns n samples of noise shaped to color, using a fresh seed
func Generate(color Color, n int) ([]float64, error) {
	return NewGenerator(rand.Int63()).Generate(color, n)
}

// Generate returns n samples of noise shaped to color.
// The result is not amplitude-normalised; for unit-variance white input
// its variance is close to 1 for every color.
func (g *Generator) Generate(color Color, n int) ([]float64, error) {
	if !color.Valid() {
		return nil, fmt.Errorf("%w: unknown color %d", ErrInvalidParameter, int32(color))
	}
	if n < MinSamples {
		return nil, fmt.Errorf("%w: sample count %d (minimum %d)", ErrInvalidParameter, n, MinSamples)
	}

	seed := make([]float64, n)
	for i := range seed {
		seed[i] = g.rng.NormFloat64()
	}

	spectrum := fft.FFTReal(seed)
	weights := Weights(color, n)

	// Bins above n/2 mirror bin n-k; scaling both by the same real weight
	// keeps the spectrum Hermitian so the inverse stays real.
	for k := range spectrum {
		m := k
		if m > n/2 {
			m = n - k
		}
		spectrum[k] *= complex(weights[m], 0)
	}

	shaped := fft.IFFT(spectrum)
	out := make([]float64, n)
	for i, v := range shaped {
		out[i] = real(v)
	}
	return out, nil
}

// Weights returns S(f_k) for the rfft bins k = 0..n/2 of an n-sample
// buffer, scaled so that their root-mean-square is 1. An all-zero shape
// is returned unscaled.
func Weights(color Color, n int) []float64 {
	bins := n/2 + 1
	w := make([]float64, bins)

	var sumSq float64
	for k := range w {
		s := color.Shape(float64(k) / float64(n))
		w[k] = s
		sumSq += s * s
	}

	rms := math.Sqrt(sumSq / float64(bins))
	if rms == 0 || math.IsInf(rms, 0) || math.IsNaN(rms) {
		return w
	}
	for k := range w {
		w[k] /= rms
	}
	return w
}

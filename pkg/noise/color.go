// ABOUTME: Noise color tags and their PSD shaping functions
// ABOUTME: Maps each color to the amplitude weight applied per FFT bin
package noise

import (
	"fmt"
	"math"
	"strings"
)

// Color selects the spectral shape of generated noise
type Color int32

const (
	White Color = iota
	Pink
	Blue
	Brown
	Violet
)

var colorNames = [...]string{
	White:  "white",
	Pink:   "pink",
	Blue:   "blue",
	Brown:  "brown",
	Violet: "violet",
}

// Colors returns every supported color, in panel order
func Colors() []Color {
	return []Color{White, Pink, Brown, Blue, Violet}
}

// Valid reports whether c is one of the defined colors
func (c Color) Valid() bool {
	return c >= White && c <= Violet
}

func (c Color) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Color(%d)", int32(c))
	}
	return colorNames[c]
}

// MarshalText encodes the color by name
func (c Color) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: unknown color %d", ErrInvalidParameter, int32(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText decodes a color name
func (c *Color) UnmarshalText(text []byte) error {
	parsed, err := ParseColor(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseColor parses a color name. "red" and "brownian" are accepted for brown.
func ParseColor(s string) (Color, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white":
		return White, nil
	case "pink":
		return Pink, nil
	case "blue":
		return Blue, nil
	case "brown", "brownian", "red":
		return Brown, nil
	case "violet", "purple":
		return Violet, nil
	}
	return White, fmt.Errorf("%w: unknown color %q", ErrInvalidParameter, s)
}

// Shape returns the amplitude weight S(f) for normalized frequency f
// (cycles per sample, f >= 0). Brown and pink are zero at DC.
func (c Color) Shape(f float64) float64 {
	switch c {
	case White:
		return 1
	case Blue:
		return math.Sqrt(f)
	case Violet:
		return f
	case Brown:
		if f == 0 {
			return 0
		}
		return 1 / f
	case Pink:
		if f == 0 {
			return 0
		}
		return 1 / math.Sqrt(f)
	}
	return 0
}

// ABOUTME: Tests for noise color tags
// ABOUTME: Covers parsing, naming and the PSD shape table
package noise

import (
	"errors"
	"math"
	"testing"
)

func TestParseColor(t *testing.T) {
	tests := []struct {
		in   string
		want Color
	}{
		{"white", White},
		{"Pink", Pink},
		{" blue ", Blue},
		{"brown", Brown},
		{"red", Brown},
		{"brownian", Brown},
		{"VIOLET", Violet},
	}

	for _, tt := range tests {
		got, err := ParseColor(tt.in)
		if err != nil {
			t.Errorf("ParseColor(%q) failed: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseColor(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseColorUnknown(t *testing.T) {
	_, err := ParseColor("green")
	if !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter, got %v", err)
	}
}

func TestColorStringRoundTrip(t *testing.T) {
	for _, c := range Colors() {
		got, err := ParseColor(c.String())
		if err != nil || got != c {
			t.Errorf("round trip of %v gave %v (err %v)", c, got, err)
		}
	}
	if len(Colors()) != 5 {
		t.Errorf("expected 5 colors, got %d", len(Colors()))
	}
}

func TestColorValid(t *testing.T) {
	if Color(-1).Valid() || Color(5).Valid() {
		t.Error("out of range colors must be invalid")
	}
	if Color(42).String() != "Color(42)" {
		t.Errorf("unexpected name for invalid color: %s", Color(42).String())
	}
	if _, err := Color(42).MarshalText(); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter marshaling invalid color, got %v", err)
	}
}

func TestColorTextEncoding(t *testing.T) {
	var c Color
	if err := c.UnmarshalText([]byte("pink")); err != nil {
		t.Fatalf("UnmarshalText failed: %v", err)
	}
	if c != Pink {
		t.Errorf("expected Pink, got %v", c)
	}
	text, err := Violet.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText failed: %v", err)
	}
	if string(text) != "violet" {
		t.Errorf("expected 'violet', got %q", text)
	}
}

func TestShapeTable(t *testing.T) {
	const f = 0.25
	tests := []struct {
		color Color
		want  float64
	}{
		{White, 1},
		{Blue, 0.5},
		{Violet, 0.25},
		{Brown, 4},
		{Pink, 2},
	}

	for _, tt := range tests {
		if got := tt.color.Shape(f); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("%v.Shape(%v) = %v, want %v", tt.color, f, got, tt.want)
		}
	}
}

func TestShapeAtDC(t *testing.T) {
	for _, c := range []Color{Brown, Pink} {
		s := c.Shape(0)
		if s != 0 {
			t.Errorf("%v.Shape(0) = %v, want 0", c, s)
		}
	}
	if White.Shape(0) != 1 {
		t.Error("white noise keeps its DC weight")
	}
}

package signal

import (
	"math"
	"testing"

	"github.com/cwbudde/algo-reverb/dsp/core"
)

func TestSine(t *testing.T) {
	g := NewGenerator(core.WithSampleRate(48000))

	out, err := g.Sine(1000, 0.5, 48)
	if err != nil {
		t.Fatal(err)
	}

	if len(out) != 48 {
		t.Fatalf("len = %d, want 48", len(out))
	}

	if out[0] != 0 {
		t.Errorf("sine must start at zero, got %v", out[0])
	}

	// One full cycle of 1 kHz at 48 kHz spans 48 samples; peak at sample 12.
	if math.Abs(out[12]-0.5) > 1e-12 {
		t.Errorf("quarter cycle = %v, want 0.5", out[12])
	}
}

func TestSineValidation(t *testing.T) {
	g := NewGenerator()

	if _, err := g.Sine(1000, 1, 0); err == nil {
		t.Error("expected error for zero samples")
	}
}

func TestNoiseDeterministic(t *testing.T) {
	a := NewGenerator()
	b := NewGenerator()

	na, err := a.Noise(7, 1, 256)
	if err != nil {
		t.Fatal(err)
	}

	nb, err := b.Noise(7, 1, 256)
	if err != nil {
		t.Fatal(err)
	}

	for i := range na {
		if na[i] != nb[i] {
			t.Fatalf("sample %d differs across generators with same seed", i)
		}

		if na[i] < -1 || na[i] > 1 {
			t.Fatalf("sample %d out of range: %v", i, na[i])
		}
	}
}

func TestImpulse(t *testing.T) {
	g := NewGenerator()

	out, err := g.Impulse(16, 3)
	if err != nil {
		t.Fatal(err)
	}

	for i, v := range out {
		want := 0.0
		if i == 3 {
			want = 1
		}

		if v != want {
			t.Fatalf("sample %d = %v, want %v", i, v, want)
		}
	}
}

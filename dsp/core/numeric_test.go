package core

import (
	"math"
	"testing"
)

func TestClamp(t *testing.T) {
	tests := []struct {
		name             string
		value, min, max  float64
		want             float64
	}{
		{"inside", 0.5, 0, 1, 0.5},
		{"below", -2, 0, 1, 0},
		{"above", 3, 0, 1, 1},
		{"swapped bounds", 0.5, 1, 0, 0.5},
		{"at min", 0, 0, 1, 0},
		{"at max", 1, 0, 1, 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Clamp(tc.value, tc.min, tc.max)
			if got != tc.want {
				t.Errorf("Clamp(%v, %v, %v) = %v, want %v", tc.value, tc.min, tc.max, got, tc.want)
			}
		})
	}
}

func TestClampFinite(t *testing.T) {
	if got := ClampFinite(math.NaN()); got != 0 {
		t.Errorf("ClampFinite(NaN) = %v, want 0", got)
	}
	if got := ClampFinite(math.Inf(1)); got != 0 {
		t.Errorf("ClampFinite(+Inf) = %v, want 0", got)
	}
	if got := ClampFinite(math.Inf(-1)); got != 0 {
		t.Errorf("ClampFinite(-Inf) = %v, want 0", got)
	}
	if got := ClampFinite(0.25); got != 0.25 {
		t.Errorf("ClampFinite(0.25) = %v, want 0.25", got)
	}
}

func TestFlushDenormals(t *testing.T) {
	if got := FlushDenormals(1e-35); got != 0 {
		t.Errorf("FlushDenormals(1e-35) = %v, want 0", got)
	}
	if got := FlushDenormals(1e-20); got != 1e-20 {
		t.Errorf("FlushDenormals(1e-20) = %v, want 1e-20", got)
	}
}

func TestDBToLinearRoundTrip(t *testing.T) {
	for _, db := range []float64{-60, -18, -6, 0, 6} {
		linear := DBToLinear(db)
		back := LinearToDB(linear)
		if !NearlyEqual(back, db, 1e-9) {
			t.Errorf("round trip %v dB: got %v", db, back)
		}
	}
}

// TestForgetFactor checks that the derived factor reproduces the target dB
// loss when applied once per sample over the target duration.
func TestForgetFactor(t *testing.T) {
	const (
		targetDB = -18.0
		duration = 24.0
		fs       = 48000.0
	)

	alpha := ForgetFactor(targetDB, duration, fs)
	if alpha <= 0 || alpha >= 1 {
		t.Fatalf("alpha out of (0,1): %v", alpha)
	}

	total := math.Pow(alpha, duration*fs)
	want := DBToLinear(targetDB)
	if !NearlyEqual(total, want, 1e-9) {
		t.Errorf("alpha^(T*fs) = %v, want %v", total, want)
	}
}

func TestOnePoleCoeffMs(t *testing.T) {
	// One time constant should leave e^-1 of the initial distance.
	const (
		fs     = 48000.0
		timeMs = 50.0
	)

	coeff := OnePoleCoeffMs(timeMs, fs)
	state := 1.0
	steps := int(timeMs / 1000 * fs)
	for i := 0; i < steps; i++ {
		state *= coeff
	}

	if !NearlyEqual(state, math.Exp(-1), 1e-3) {
		t.Errorf("state after one tau = %v, want %v", state, math.Exp(-1))
	}
}

func TestSecondsToSamples(t *testing.T) {
	if got := SecondsToSamples(0.5, 48000); got != 24000 {
		t.Errorf("SecondsToSamples(0.5, 48000) = %d, want 24000", got)
	}
	if got := SecondsToSamples(0, 48000); got != 1 {
		t.Errorf("SecondsToSamples(0, 48000) = %d, want 1", got)
	}
}

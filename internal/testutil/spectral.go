package testutil

import (
	"testing"

	algofft "github.com/cwbudde/algo-fft"
	"github.com/cwbudde/algo-vecmath"
)

// MagnitudeSpectrum returns the magnitude spectrum of signal up to Nyquist.
// The signal is zero-padded to the next power of two.
func MagnitudeSpectrum(t *testing.T, signal []float64) []float64 {
	t.Helper()

	fftSize := 1
	for fftSize < len(signal) {
		fftSize *= 2
	}

	in := make([]complex128, fftSize)
	for i, v := range signal {
		in[i] = complex(v, 0)
	}

	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		t.Fatalf("fft plan: %v", err)
	}

	out := make([]complex128, fftSize)
	if err := plan.Forward(out, in); err != nil {
		t.Fatalf("fft forward: %v", err)
	}

	bins := fftSize/2 + 1
	re := make([]float64, bins)
	im := make([]float64, bins)

	for i := 0; i < bins; i++ {
		re[i] = real(out[i])
		im[i] = imag(out[i])
	}

	mag := make([]float64, bins)
	vecmath.Magnitude(mag, re, im)

	return mag
}

// BandEnergy sums spectral magnitude between loHz and hiHz.
func BandEnergy(mag []float64, loHz, hiHz, sampleRate float64) float64 {
	fftSize := 2 * (len(mag) - 1)
	if fftSize <= 0 {
		return 0
	}

	binHz := sampleRate / float64(fftSize)
	sum := 0.0

	for i, m := range mag {
		f := float64(i) * binHz
		if f >= loHz && f <= hiHz {
			sum += m
		}
	}

	return sum
}

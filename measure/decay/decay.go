// Package decay estimates reverberation decay metrics from impulse
// responses via Schroeder backward integration.
package decay

import (
	"errors"
	"math"
)

// Errors returned by decay analysis.
var (
	ErrEmptyResponse     = errors.New("decay: impulse response is empty")
	ErrInvalidSampleRate = errors.New("decay: sample rate must be positive")
	ErrNoDecay           = errors.New("decay: insufficient decay for estimation")
)

// curveFloorDb is the floor applied where the integrated energy underflows.
const curveFloorDb = -200.0

// Times holds reverberation time estimates in seconds. RT60 is taken
// from T30 when the response decays far enough, otherwise from T20.
type Times struct {
	RT60 float64
	EDT  float64 // early decay time, 0 to -10 dB slope
	T20  float64 // -5 to -25 dB slope
	T30  float64 // -5 to -35 dB slope
}

// Curve returns the Schroeder decay curve of the impulse response in dB:
// the backward-integrated squared response normalized to total energy.
func Curve(ir []float64) ([]float64, error) {
	if len(ir) == 0 {
		return nil, ErrEmptyResponse
	}

	curve := make([]float64, len(ir))

	sum := 0.0
	for i := len(ir) - 1; i >= 0; i-- {
		sum += ir[i] * ir[i]
		curve[i] = sum
	}

	total := curve[0]
	if total <= 0 {
		for i := range curve {
			curve[i] = curveFloorDb
		}

		return curve, nil
	}

	for i := range curve {
		ratio := curve[i] / total
		if ratio <= 0 {
			curve[i] = curveFloorDb
		} else {
			curve[i] = 10 * math.Log10(ratio)
		}
	}

	return curve, nil
}

// Analyze estimates reverberation times from an impulse response. The
// response should start at the direct sound.
func Analyze(ir []float64, sampleRate float64) (Times, error) {
	if len(ir) == 0 {
		return Times{}, ErrEmptyResponse
	}

	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return Times{}, ErrInvalidSampleRate
	}

	curve, err := Curve(ir)
	if err != nil {
		return Times{}, err
	}

	t := Times{
		EDT: slopeTime(curve, sampleRate, 0, -10),
		T20: slopeTime(curve, sampleRate, -5, -25),
		T30: slopeTime(curve, sampleRate, -5, -35),
	}

	switch {
	case t.T30 > 0:
		t.RT60 = t.T30
	case t.T20 > 0:
		t.RT60 = t.T20
	default:
		return Times{}, ErrNoDecay
	}

	return t, nil
}

// slopeTime fits a line to the decay curve between startDb and endDb and
// extrapolates the slope to a 60 dB drop.
func slopeTime(curve []float64, sampleRate, startDb, endDb float64) float64 {
	start, end := -1, -1

	for i, v := range curve {
		if start < 0 && v <= startDb {
			start = i
		}

		if start >= 0 && v <= endDb {
			end = i
			break
		}
	}

	if start < 0 || end <= start+1 {
		return 0
	}

	// Least-squares slope over the fitting window, in dB per sample.
	var sumX, sumY, sumXX, sumXY float64

	for i := start; i <= end; i++ {
		x := float64(i - start)
		y := curve[i]
		sumX += x
		sumY += y
		sumXX += x * x
		sumXY += x * y
	}

	n := float64(end - start + 1)

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}

	slope := (n*sumXY - sumX*sumY) / denom
	if slope >= 0 {
		return 0
	}

	rt := -60.0 / (slope * sampleRate)
	if rt < 0 || math.IsInf(rt, 0) || math.IsNaN(rt) {
		return 0
	}

	return rt
}

// TrimOnset returns the response starting at its absolute peak. Useful
// before Analyze when the response carries pre-delay.
func TrimOnset(ir []float64) []float64 {
	peakIdx := 0
	peak := 0.0

	for i, v := range ir {
		if a := math.Abs(v); a > peak {
			peak = a
			peakIdx = i
		}
	}

	return ir[peakIdx:]
}

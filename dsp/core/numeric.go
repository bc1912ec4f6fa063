package core

import "math"

const defaultEpsilon = 1e-12

// Clamp limits value to the inclusive range [min, max].
func Clamp(value, min, max float64) float64 {
	if min > max {
		min, max = max, min
	}

	if value < min {
		return min
	}

	if value > max {
		return max
	}

	return value
}

// NearlyEqual reports whether a and b are equal within eps.
func NearlyEqual(a, b, eps float64) bool {
	if eps <= 0 {
		eps = defaultEpsilon
	}

	diff := math.Abs(a - b)
	if diff <= eps {
		return true
	}

	largest := math.Max(math.Abs(a), math.Abs(b))
	if largest == 0 {
		return diff <= eps
	}

	return diff/largest <= eps
}

// FlushDenormals converts tiny denormal-like values to exact zero.
// This can reduce denormal-related CPU slowdowns in hot DSP loops.
func FlushDenormals(x float64) float64 {
	const epsilon = 1e-30
	if x > -epsilon && x < epsilon {
		return 0
	}

	return x
}

// ClampFinite replaces NaN and infinities with zero. Capture and feedback
// paths scrub their inputs with this instead of checking samples after the
// fact.
func ClampFinite(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}

	return x
}

// DBToLinear converts dB to linear amplitude (20*log10 convention).
func DBToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

// LinearToDB converts linear amplitude to dB (20*log10 convention).
// Returns -Inf for zero and NaN for negative values.
func LinearToDB(linear float64) float64 {
	if linear < 0 {
		return math.NaN()
	}

	if linear == 0 {
		return math.Inf(-1)
	}

	return 20 * math.Log10(linear)
}

// ForgetFactor derives a per-update exponential decay factor from a target
// dB loss over a target duration at the given sample rate. The result is
// in (0, 1) for negative targetDB and positive duration.
func ForgetFactor(targetDB, durationSeconds, sampleRate float64) float64 {
	if durationSeconds <= 0 || sampleRate <= 0 {
		return 0
	}

	linear := DBToLinear(targetDB)

	return math.Pow(linear, 1/(durationSeconds*sampleRate))
}

// OnePoleCoeffMs returns the one-pole smoothing coefficient for a time
// constant in milliseconds: exp(-1 / (t * fs)).
func OnePoleCoeffMs(timeMs, sampleRate float64) float64 {
	if timeMs <= 0 || sampleRate <= 0 {
		return 0
	}

	return math.Exp(-1 / (timeMs / 1000 * sampleRate))
}

// OnePoleCoeffHz returns the feed coefficient of a one-pole lowpass with the
// given cutoff: 1 - exp(-2*pi*fc/fs). The filter form is
// state += coeff * (x - state).
func OnePoleCoeffHz(cutoffHz, sampleRate float64) float64 {
	if cutoffHz <= 0 || sampleRate <= 0 {
		return 1
	}

	omega := 2 * math.Pi * cutoffHz / sampleRate

	return 1 - math.Exp(-omega)
}

// SecondsToSamples converts a duration to a sample count, never below one.
func SecondsToSamples(seconds, sampleRate float64) int {
	n := int(math.Round(seconds * sampleRate))
	if n < 1 {
		n = 1
	}

	return n
}

package node

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-reverb/dsp/core"
	"github.com/cwbudde/algo-reverb/dsp/param"
)

const (
	defaultOutputGainDb = 0.0
	minOutputGainDb     = -60.0
	maxOutputGainDb     = 12.0
	outputSmoothMs      = 20.0

	// Soft ceiling keeps downstream converters out of hard clip.
	outputCeiling = 0.98
)

// Output is the final trim stage: smoothed output gain, a soft ceiling,
// and non-finite scrubbing so one bad upstream sample cannot propagate.
type Output struct {
	Bypass

	gainDb float64
	gain   *param.Smoother
}

// NewOutput returns an output stage at unity gain.
func NewOutput() *Output {
	return &Output{
		gainDb: defaultOutputGainDb,
		gain:   param.NewSmoother(outputSmoothMs),
	}
}

// Prepare sets the smoothing rate.
func (o *Output) Prepare(sampleRate float64, maxBlockSize, channels int) error {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return fmt.Errorf("output sample rate must be > 0: %f", sampleRate)
	}

	o.gain.Prepare(sampleRate)
	o.gain.Reset(math.Pow(10, o.gainDb/20))

	return nil
}

// SetGainDb sets the output gain in dB, ramped.
func (o *Output) SetGainDb(gainDb float64) error {
	if gainDb < minOutputGainDb || gainDb > maxOutputGainDb || math.IsNaN(gainDb) || math.IsInf(gainDb, 0) {
		return fmt.Errorf("output gain must be in [%g, %g] dB: %f", minOutputGainDb, maxOutputGainDb, gainDb)
	}

	o.gainDb = gainDb
	o.gain.SetTarget(math.Pow(10, gainDb/20))

	return nil
}

// Reset snaps the gain ramp.
func (o *Output) Reset() {
	o.gain.Reset(math.Pow(10, o.gainDb/20))
}

// Process trims and limits in place.
func (o *Output) Process(block [][]float64) {
	samples := 0
	if len(block) > 0 {
		samples = len(block[0])
	}

	for i := 0; i < samples; i++ {
		g := o.gain.Next()
		for ch := range block {
			x := core.ClampFinite(block[ch][i]) * g
			if x > outputCeiling {
				x = outputCeiling + math.Tanh(x-outputCeiling)*(1-outputCeiling)
			} else if x < -outputCeiling {
				x = -outputCeiling + math.Tanh(x+outputCeiling)*(1-outputCeiling)
			}

			block[ch][i] = x
		}
	}
}

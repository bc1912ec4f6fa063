package node

import (
	"fmt"
	"math"
)

const (
	defaultTrembleRateHz = 0.8
	defaultTrembleDepth  = 0.25
	maxTrembleRateHz     = 20.0

	// Quadrature offset between channels keeps the total level steady
	// while the image sways.
	tremblePhaseOffset = math.Pi / 2
)

// Tremble is a slow amplitude modulation stage. Channels are modulated
// with offset LFO phases for a drifting, breathing motion.
type Tremble struct {
	Bypass

	sampleRate float64
	rateHz     float64
	depth      float64
	phase      float64
}

// NewTremble returns a tremble stage with gentle defaults.
func NewTremble() *Tremble {
	return &Tremble{
		rateHz: defaultTrembleRateHz,
		depth:  defaultTrembleDepth,
	}
}

// Prepare stores the sample rate.
func (m *Tremble) Prepare(sampleRate float64, maxBlockSize, channels int) error {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return fmt.Errorf("tremble sample rate must be > 0: %f", sampleRate)
	}

	m.sampleRate = sampleRate

	return nil
}

// SetRate sets the modulation rate in Hz.
func (m *Tremble) SetRate(hz float64) error {
	if hz < 0 || hz > maxTrembleRateHz || math.IsNaN(hz) || math.IsInf(hz, 0) {
		return fmt.Errorf("tremble rate must be in [0,%g] Hz: %f", maxTrembleRateHz, hz)
	}

	m.rateHz = hz

	return nil
}

// SetDepth sets the modulation depth in [0,1].
func (m *Tremble) SetDepth(depth float64) error {
	if depth < 0 || depth > 1 || math.IsNaN(depth) || math.IsInf(depth, 0) {
		return fmt.Errorf("tremble depth must be in [0,1]: %f", depth)
	}

	m.depth = depth

	return nil
}

// Reset rewinds the LFO.
func (m *Tremble) Reset() {
	m.phase = 0
}

// Process applies the amplitude modulation in place.
func (m *Tremble) Process(block [][]float64) {
	if m.sampleRate <= 0 {
		return
	}

	phaseInc := 2 * math.Pi * m.rateHz / m.sampleRate

	samples := 0
	if len(block) > 0 {
		samples = len(block[0])
	}

	for i := 0; i < samples; i++ {
		for ch := range block {
			lfo := math.Sin(m.phase + float64(ch)*tremblePhaseOffset)
			gain := 1 - m.depth*0.5*(1+lfo)
			block[ch][i] *= gain
		}

		m.phase += phaseInc
		if m.phase >= 2*math.Pi {
			m.phase -= 2 * math.Pi
		}
	}
}

package param

import (
	"math"
	"sync/atomic"

	"github.com/cwbudde/algo-reverb/dsp/core"
)

// Smoother is a one-pole parameter smoother. The target may be written from
// any goroutine; Next and NextBlock must only be called from the processing
// goroutine.
type Smoother struct {
	sampleRate float64
	timeMs     float64
	coeff      float64

	target  atomic.Uint64 // float64 bits
	current float64
}

// NewSmoother returns a smoother with the given time constant in
// milliseconds. Prepare must be called before processing.
func NewSmoother(timeMs float64) *Smoother {
	s := &Smoother{timeMs: math.Max(0, timeMs)}
	s.target.Store(math.Float64bits(0))

	return s
}

// Prepare sets the sample rate and recomputes the smoothing coefficient.
func (s *Smoother) Prepare(sampleRate float64) {
	if sampleRate <= 0 {
		sampleRate = 44100
	}

	s.sampleRate = sampleRate
	s.coeff = core.OnePoleCoeffMs(s.timeMs, sampleRate)
}

// SetTimeMs updates the smoothing time constant.
func (s *Smoother) SetTimeMs(timeMs float64) {
	s.timeMs = math.Max(0, timeMs)
	if s.sampleRate > 0 {
		s.coeff = core.OnePoleCoeffMs(s.timeMs, s.sampleRate)
	}
}

// SetTarget publishes a new target value. Safe from any goroutine.
func (s *Smoother) SetTarget(value float64) {
	s.target.Store(math.Float64bits(value))
}

// Target returns the currently published target.
func (s *Smoother) Target() float64 {
	return math.Float64frombits(s.target.Load())
}

// Reset snaps the current value and target to value. Processing goroutine
// only.
func (s *Smoother) Reset(value float64) {
	s.current = value
	s.SetTarget(value)
}

// Current returns the last smoothed value without advancing.
func (s *Smoother) Current() float64 {
	return s.current
}

// Next advances the smoother by one sample and returns the smoothed value.
func (s *Smoother) Next() float64 {
	target := s.Target()
	if s.coeff <= 0 {
		s.current = target
		return s.current
	}

	s.current = target + (s.current-target)*s.coeff
	s.current = core.FlushDenormals(s.current)

	return s.current
}

// NextBlock fills dst with consecutive smoothed values.
func (s *Smoother) NextBlock(dst []float64) {
	for i := range dst {
		dst[i] = s.Next()
	}
}

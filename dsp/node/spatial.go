package node

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-reverb/dsp/param"
)

const (
	defaultSpatialWidth = 1.0
	maxSpatialWidth     = 2.0
	spatialSmoothMs     = 30.0
)

// Spatial is a mid-side width stage. Width 0 collapses to mono, 1 is
// unchanged, values above 1 exaggerate the side signal.
type Spatial struct {
	Bypass

	width *param.Smoother
	value float64
}

// NewSpatial returns a width stage at unity width.
func NewSpatial() *Spatial {
	return &Spatial{
		width: param.NewSmoother(spatialSmoothMs),
		value: defaultSpatialWidth,
	}
}

// Prepare sets the smoothing rate.
func (s *Spatial) Prepare(sampleRate float64, maxBlockSize, channels int) error {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return fmt.Errorf("spatial sample rate must be > 0: %f", sampleRate)
	}

	s.width.Prepare(sampleRate)
	s.width.Reset(s.value)

	return nil
}

// SetWidth sets the stereo width in [0,2], ramped.
func (s *Spatial) SetWidth(width float64) error {
	if width < 0 || width > maxSpatialWidth || math.IsNaN(width) || math.IsInf(width, 0) {
		return fmt.Errorf("spatial width must be in [0,%g]: %f", maxSpatialWidth, width)
	}

	s.value = width
	s.width.SetTarget(width)

	return nil
}

// Reset snaps the width ramp.
func (s *Spatial) Reset() {
	s.width.Reset(s.value)
}

// Process rebalances mid and side in place. Mono blocks pass through.
func (s *Spatial) Process(block [][]float64) {
	if len(block) < 2 {
		return
	}

	left, right := block[0], block[1]
	for i := range left {
		w := s.width.Next()
		mid := (left[i] + right[i]) * 0.5
		side := (left[i] - right[i]) * 0.5 * w
		left[i] = mid + side
		right[i] = mid - side
	}
}

package node

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-reverb/dsp/filter"
	"github.com/cwbudde/algo-reverb/dsp/param"
)

const (
	defaultDriveGainDb = 0.0
	defaultDriveAmount = 1.15
	minDriveAmount     = 0.01
	maxDriveAmount     = 8.0
	minDriveGainDb     = -60.0
	maxDriveGainDb     = 24.0

	driveDCBlockHz    = 20.0
	driveGainSmoothMs = 20.0
)

// Drive is the input stage: a DC blocker, a smoothed input gain, and a tanh
// soft clipper. Gain changes ramp over 20 ms to stay click-free.
type Drive struct {
	Bypass

	sampleRate float64
	channels   int

	gainDb float64
	amount float64

	gain      *param.Smoother
	dcBlocker []*filter.Section
}

// NewDrive returns a drive stage with unity gain and mild saturation.
func NewDrive() *Drive {
	return &Drive{
		gainDb: defaultDriveGainDb,
		amount: defaultDriveAmount,
		gain:   param.NewSmoother(driveGainSmoothMs),
	}
}

// Prepare allocates per-channel filter state for the given layout.
func (d *Drive) Prepare(sampleRate float64, maxBlockSize, channels int) error {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return fmt.Errorf("drive sample rate must be > 0: %f", sampleRate)
	}

	if channels <= 0 {
		return fmt.Errorf("drive channels must be > 0: %d", channels)
	}

	d.sampleRate = sampleRate
	d.channels = channels

	coeffs := filter.Highpass(driveDCBlockHz, 1/math.Sqrt2, sampleRate)
	d.dcBlocker = make([]*filter.Section, channels)
	for ch := range d.dcBlocker {
		d.dcBlocker[ch] = filter.NewSection(coeffs)
	}

	d.gain.Prepare(sampleRate)
	d.gain.Reset(math.Pow(10, d.gainDb/20))

	return nil
}

// SetGainDb sets the input gain in dB, ramped over the smoothing time.
func (d *Drive) SetGainDb(gainDb float64) error {
	if gainDb < minDriveGainDb || gainDb > maxDriveGainDb || math.IsNaN(gainDb) || math.IsInf(gainDb, 0) {
		return fmt.Errorf("drive gain must be in [%g, %g] dB: %f", minDriveGainDb, maxDriveGainDb, gainDb)
	}

	d.gainDb = gainDb
	d.gain.SetTarget(math.Pow(10, gainDb/20))

	return nil
}

// SetAmount sets the saturation drive in [0.01, 8].
func (d *Drive) SetAmount(amount float64) error {
	if amount < minDriveAmount || amount > maxDriveAmount || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return fmt.Errorf("drive amount must be in [%g, %g]: %f", minDriveAmount, maxDriveAmount, amount)
	}

	d.amount = amount

	return nil
}

// Reset clears filter and smoother state.
func (d *Drive) Reset() {
	for _, s := range d.dcBlocker {
		s.Reset()
	}

	d.gain.Reset(math.Pow(10, d.gainDb/20))
}

// Process applies the stage in place. The saturator normalizes by
// tanh(amount) so unity input stays near unity output at low drive.
func (d *Drive) Process(block [][]float64) {
	norm := math.Tanh(d.amount)
	if norm <= 0 {
		norm = 1
	}

	samples := 0
	if len(block) > 0 {
		samples = len(block[0])
	}

	for i := 0; i < samples; i++ {
		g := d.gain.Next()
		for ch := range block {
			x := block[ch][i]
			if ch < len(d.dcBlocker) {
				x = d.dcBlocker[ch].ProcessSample(x)
			}

			x *= g
			block[ch][i] = math.Tanh(x*d.amount) / norm
		}
	}
}

package node

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-reverb/dsp/delay"
)

const (
	diffuserStages          = 4
	defaultDiffuserDensity  = 0.5
	maxDiffuserCoefficient  = 0.7
	diffuserReferenceRateHz = 44100.0
)

// Prime-length delays keep the stages mutually inharmonic. The right
// channel is offset to decorrelate the stereo image.
var diffuserDelaySamples = [diffuserStages]int{113, 337, 571, 911}

const diffuserChannelOffset = 17

// Diffuser is a chain of Schroeder allpass stages that smears transients
// without coloring the long-term spectrum.
type Diffuser struct {
	Bypass

	sampleRate float64
	channels   int
	density    float64

	lines  [][]*delay.Line // [channel][stage]
	delays [][]int
}

// NewDiffuser returns a diffuser at medium density.
func NewDiffuser() *Diffuser {
	return &Diffuser{density: defaultDiffuserDensity}
}

// Prepare allocates the allpass delay lines, scaled to the sample rate.
func (d *Diffuser) Prepare(sampleRate float64, maxBlockSize, channels int) error {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return fmt.Errorf("diffuser sample rate must be > 0: %f", sampleRate)
	}

	if channels <= 0 {
		return fmt.Errorf("diffuser channels must be > 0: %d", channels)
	}

	d.sampleRate = sampleRate
	d.channels = channels
	scale := sampleRate / diffuserReferenceRateHz

	d.lines = make([][]*delay.Line, channels)
	d.delays = make([][]int, channels)

	for ch := 0; ch < channels; ch++ {
		d.lines[ch] = make([]*delay.Line, diffuserStages)
		d.delays[ch] = make([]int, diffuserStages)

		for st := 0; st < diffuserStages; st++ {
			samples := int(math.Round(float64(diffuserDelaySamples[st]+ch*diffuserChannelOffset) * scale))
			if samples < 1 {
				samples = 1
			}

			line, err := delay.New(samples + 4)
			if err != nil {
				return fmt.Errorf("diffuser stage %d: %w", st, err)
			}

			d.lines[ch][st] = line
			d.delays[ch][st] = samples
		}
	}

	return nil
}

// SetDensity sets the allpass coefficient drive in [0,1].
func (d *Diffuser) SetDensity(density float64) error {
	if density < 0 || density > 1 || math.IsNaN(density) || math.IsInf(density, 0) {
		return fmt.Errorf("diffuser density must be in [0,1]: %f", density)
	}

	d.density = density

	return nil
}

// Reset clears all delay lines.
func (d *Diffuser) Reset() {
	for _, chLines := range d.lines {
		for _, line := range chLines {
			line.Reset()
		}
	}
}

// Process runs the allpass chain in place.
func (d *Diffuser) Process(block [][]float64) {
	g := d.density * maxDiffuserCoefficient

	for ch := range block {
		if ch >= len(d.lines) {
			break
		}

		buf := block[ch]
		chLines := d.lines[ch]
		chDelays := d.delays[ch]

		for st := 0; st < diffuserStages; st++ {
			line := chLines[st]
			dl := chDelays[st]

			for i, x := range buf {
				z := line.Read(dl)
				y := -g*x + z
				line.Write(x + g*y)
				buf[i] = y
			}
		}
	}
}

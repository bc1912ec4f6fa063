package node

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-reverb/dsp/core"
	"github.com/cwbudde/algo-reverb/dsp/delay"
)

const (
	fdnSize = 8

	defaultReverbWet         = 0.35
	defaultReverbDry         = 1.0
	defaultReverbRT60Seconds = 2.4
	defaultReverbDamp        = 0.3
	defaultReverbModDepthSec = 0.002
	defaultReverbModRateHz   = 0.1

	reverbReferenceRateHz = 44100.0
)

// Mutually prime delay lengths at the reference rate. The per-channel
// offset decorrelates left and right tanks.
var fdnDelaySamples = [fdnSize]float64{1537, 1753, 1999, 2251, 2473, 2689, 2851, 3067}

const fdnChannelOffset = 23.0

var fdnHadamard = [fdnSize][fdnSize]float64{
	{1, 1, 1, 1, 1, 1, 1, 1},
	{1, -1, 1, -1, 1, -1, 1, -1},
	{1, 1, -1, -1, 1, 1, -1, -1},
	{1, -1, -1, 1, 1, -1, -1, 1},
	{1, 1, 1, 1, -1, -1, -1, -1},
	{1, -1, 1, -1, -1, 1, -1, 1},
	{1, 1, -1, -1, -1, -1, 1, 1},
	{1, -1, -1, 1, -1, 1, 1, -1},
}

// fdnTank is one channel of the feedback delay network.
type fdnTank struct {
	lines        [fdnSize]*delay.Line
	baseDelay    [fdnSize]float64
	feedbackGain [fdnSize]float64
	filterState  [fdnSize]float64
	lfoPhase     float64
}

// Reverb is a stereo feedback-delay-network tail with damping and slow
// delay modulation. Each channel runs its own decorrelated tank.
type Reverb struct {
	Bypass

	sampleRate float64
	channels   int

	wet         float64
	dry         float64
	rt60Seconds float64
	damp        float64
	modDepthSec float64
	modRateHz   float64

	delayScale      float64
	modDepthSamples float64
	matrixScale     float64

	tanks []*fdnTank
}

// NewReverb returns a reverb with a medium hall tail.
func NewReverb() *Reverb {
	return &Reverb{
		wet:         defaultReverbWet,
		dry:         defaultReverbDry,
		rt60Seconds: defaultReverbRT60Seconds,
		damp:        defaultReverbDamp,
		modDepthSec: defaultReverbModDepthSec,
		modRateHz:   defaultReverbModRateHz,
		matrixScale: 1 / math.Sqrt(float64(fdnSize)),
	}
}

// Prepare sizes the delay network for the given layout.
func (r *Reverb) Prepare(sampleRate float64, maxBlockSize, channels int) error {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return fmt.Errorf("reverb sample rate must be > 0: %f", sampleRate)
	}

	if channels <= 0 {
		return fmt.Errorf("reverb channels must be > 0: %d", channels)
	}

	r.sampleRate = sampleRate
	r.channels = channels
	r.delayScale = sampleRate / reverbReferenceRateHz
	r.modDepthSamples = r.modDepthSec * sampleRate

	r.tanks = make([]*fdnTank, channels)

	for ch := 0; ch < channels; ch++ {
		tank := &fdnTank{}

		for i := 0; i < fdnSize; i++ {
			base := (fdnDelaySamples[i] + float64(ch)*fdnChannelOffset) * r.delayScale
			tank.baseDelay[i] = base

			size := int(math.Ceil(base+r.modDepthSamples)) + 4

			line, err := delay.New(size)
			if err != nil {
				return fmt.Errorf("reverb line %d: %w", i, err)
			}

			tank.lines[i] = line
		}

		r.tanks[ch] = tank
	}

	r.updateFeedbackGains()

	return nil
}

// SetWet sets wet gain.
func (r *Reverb) SetWet(v float64) error {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("reverb wet must be >= 0: %f", v)
	}

	r.wet = v

	return nil
}

// SetDry sets dry gain.
func (r *Reverb) SetDry(v float64) error {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("reverb dry must be >= 0: %f", v)
	}

	r.dry = v

	return nil
}

// SetRT60 sets decay time to -60 dB in seconds.
func (r *Reverb) SetRT60(seconds float64) error {
	if seconds <= 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return fmt.Errorf("reverb RT60 must be > 0: %f", seconds)
	}

	r.rt60Seconds = seconds
	r.updateFeedbackGains()

	return nil
}

// SetDamp sets feedback damping in [0,1].
func (r *Reverb) SetDamp(v float64) error {
	if v < 0 || v > 1 || math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("reverb damp must be in [0,1]: %f", v)
	}

	r.damp = v

	return nil
}

// SetModRate sets delay modulation rate in Hz.
func (r *Reverb) SetModRate(hz float64) error {
	if hz < 0 || math.IsNaN(hz) || math.IsInf(hz, 0) {
		return fmt.Errorf("reverb mod rate must be >= 0: %f", hz)
	}

	r.modRateHz = hz

	return nil
}

// RT60 returns decay time to -60 dB in seconds.
func (r *Reverb) RT60() float64 { return r.rt60Seconds }

// Reset clears all delay and filter state.
func (r *Reverb) Reset() {
	for _, tank := range r.tanks {
		for i := range tank.lines {
			tank.lines[i].Reset()
			tank.filterState[i] = 0
		}

		tank.lfoPhase = 0
	}
}

// Process renders the tail in place, mixing dry and wet per channel.
func (r *Reverb) Process(block [][]float64) {
	for ch := range block {
		if ch >= len(r.tanks) {
			break
		}

		r.processChannel(r.tanks[ch], block[ch])
	}
}

func (r *Reverb) processChannel(tank *fdnTank, buf []float64) {
	phaseInc := 2 * math.Pi * r.modRateHz / r.sampleRate
	inputGain := r.matrixScale
	outputGain := r.matrixScale

	for n, input := range buf {
		var taps [fdnSize]float64

		for i := 0; i < fdnSize; i++ {
			phaseOffset := (2 * math.Pi * float64(i)) / float64(fdnSize)
			mod := 0.5 * (1 + math.Sin(tank.lfoPhase+phaseOffset))
			taps[i] = tank.lines[i].ReadFractional(tank.baseDelay[i] + r.modDepthSamples*mod)
		}

		tank.lfoPhase += phaseInc
		if tank.lfoPhase >= 2*math.Pi {
			tank.lfoPhase -= 2 * math.Pi
		}

		for i := 0; i < fdnSize; i++ {
			feedback := 0.0
			for j := 0; j < fdnSize; j++ {
				feedback += fdnHadamard[i][j] * taps[j]
			}

			feedback *= r.matrixScale
			filtered := feedback*(1-r.damp) + tank.filterState[i]*r.damp
			tank.filterState[i] = core.FlushDenormals(filtered)
			tank.lines[i].Write(input*inputGain + filtered*tank.feedbackGain[i])
		}

		out := 0.0
		for i := 0; i < fdnSize; i++ {
			out += taps[i]
		}

		buf[n] = input*r.dry + out*outputGain*r.wet
	}
}

func (r *Reverb) updateFeedbackGains() {
	if r.sampleRate <= 0 || r.rt60Seconds <= 0 {
		return
	}

	for _, tank := range r.tanks {
		for i := 0; i < fdnSize; i++ {
			delaySeconds := tank.baseDelay[i] / r.sampleRate
			tank.feedbackGain[i] = math.Pow(10, -3*delaySeconds/r.rt60Seconds)
		}
	}
}

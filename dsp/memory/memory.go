// Package memory implements the temporal memory system: two decaying
// circular buffers that accumulate the wet output of the engine, and a
// probabilistic recall path that resurfaces aged fragments during quiet
// passages.
package memory

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/cwbudde/algo-reverb/dsp/core"
	"github.com/cwbudde/algo-reverb/dsp/node"
	"github.com/cwbudde/algo-reverb/dsp/param"
)

const (
	defaultShortSpanSeconds = 24.0
	defaultLongSpanSeconds  = 180.0
	maxSpanSeconds          = 600.0

	shortTargetDecayDb = -18.0
	longTargetDecayDb  = -45.0
	shortCaptureGain   = 0.35
	longCaptureGain    = 0.002
	freezeCaptureScale = 0.1
	memoryEpsilon      = 1.0e-4
	captureRmsTimeMs   = 250.0

	memorySmoothingMs = 300.0
	depthSmoothingMs  = 300.0
	decaySmoothingMs  = 450.0
	driftSmoothingMs  = 450.0

	recallQuietThreshold      = 0.03
	recallIntervalMinSeconds  = 6.0
	recallIntervalMaxSeconds  = 18.0
	recallCooldownMinSeconds  = 2.0
	recallCooldownMaxSeconds  = 6.0
	recallWidthMinMs          = 200.0
	recallWidthMaxMs          = 800.0
	recallWidthLongMinMs      = 350.0
	recallWidthLongMaxMs      = 900.0
	recallFadeMinSeconds      = 1.0
	recallFadeMaxSeconds      = 3.0
	recallHoldMinSeconds      = 0.5
	recallHoldMaxSeconds      = 2.0
	recallTargetPeakShort     = 0.012
	recallTargetPeakLong      = 0.008
	recallProbeFloor          = 0.0015
	recallGainMax             = 0.25
	recallCandidates          = 6
	recallProbesPerCandidate  = 12
	recallLowpassMaxHz        = 12000.0
	recallLowpassMinHz        = 2500.0
	recallSaturationDriveMax  = 1.6
	recallAgeGainReductionMax = 0.35

	driftCentsMax = 15.0
	driftUpdateMs = 140.0
	driftSlewMs   = 200.0

	defaultInjectGain = 0.25
	defaultRandomSeed = 1
)

// Control pool slots, one per smoothed control.
const (
	slotMemory = iota
	slotDepth
	slotDecay
	slotDrift
	controlSlots
)

// State identifies the phase of the recall envelope.
type State int

// Recall envelope phases.
const (
	StateIdle State = iota
	StateFadeIn
	StateHold
	StateFadeOut
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFadeIn:
		return "fade-in"
	case StateHold:
		return "hold"
	case StateFadeOut:
		return "fade-out"
	default:
		return "unknown"
	}
}

// Module is the temporal memory processor. Process injects recalled
// fragments into the pre-reverb signal; CaptureWet folds the post-reverb
// wet output into the memory buffers. At most one recall is active at a
// time.
//
// Setters are safe from any goroutine. Process, CaptureWet, Reset, and
// SetRandomSeed belong to the processing goroutine.
type Module struct {
	node.Bypass

	sampleRate   float64
	maxBlockSize int
	channels     int

	shortSpanSeconds float64
	longSpanSeconds  float64

	shortBuf    [2][]float64
	longBuf     []float64
	shortLen    int
	longLen     int
	shortWrite  int
	longWrite   int
	shortFilled int
	longFilled  int

	shortForget float64
	longForget  float64

	captureRmsTau float64 // smoothing time constant in samples
	captureRms    float64

	memory *param.Smoother
	depth  *param.Smoother
	decay  *param.Smoother
	drift  *param.Smoother
	pool   *param.Pool

	injectGain     *param.Value
	injectToBuffer bool
	freeze         bool

	memoryForCapture float64
	memoryEnabled    bool
	primed           bool

	rng       *rand.Rand
	seed      int64
	rateScale float64

	recallBuf [2][]float64

	state            State
	usesLong         bool
	centerPos        float64
	widthSamples     int
	totalSamples     int
	samplesRemaining int
	fadeInSamples    int
	holdSamples      int
	fadeOutSamples   int
	baseGain         float64
	envGain          float64
	envGainStep      float64
	cooldownSamples  int
	playbackPos      float64
	playbackStep     float64
	lowpassStateL    float64
	lowpassStateR    float64

	driftCents      float64
	driftTarget     float64
	driftCentsMax   float64
	driftSlewCoeff  float64
	driftUpdateLen  int
	driftUpdateLeft int
}

// New returns a memory module with default spans and a deterministic seed.
func New() *Module {
	return &Module{
		shortSpanSeconds: defaultShortSpanSeconds,
		longSpanSeconds:  defaultLongSpanSeconds,
		memory:           param.NewSmoother(memorySmoothingMs),
		depth:            param.NewSmoother(depthSmoothingMs),
		decay:            param.NewSmoother(decaySmoothingMs),
		drift:            param.NewSmoother(driftSmoothingMs),
		injectGain:       param.NewValue(defaultInjectGain),
		injectToBuffer:   true,
		rng:              rand.New(rand.NewSource(defaultRandomSeed)),
		seed:             defaultRandomSeed,
		rateScale:        1,
	}
}

var _ node.Module = (*Module)(nil)

// Prepare allocates both memory buffers and the recall scratch buffer.
func (m *Module) Prepare(sampleRate float64, maxBlockSize, channels int) error {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return fmt.Errorf("memory sample rate must be > 0: %f", sampleRate)
	}

	if maxBlockSize <= 0 {
		return fmt.Errorf("memory max block size must be > 0: %d", maxBlockSize)
	}

	if channels <= 0 {
		return fmt.Errorf("memory channels must be > 0: %d", channels)
	}

	m.sampleRate = sampleRate
	m.maxBlockSize = maxBlockSize
	m.channels = channels

	m.shortLen = core.SecondsToSamples(m.shortSpanSeconds, sampleRate)
	m.longLen = core.SecondsToSamples(m.longSpanSeconds, sampleRate)

	m.shortBuf[0] = make([]float64, m.shortLen)
	m.shortBuf[1] = make([]float64, m.shortLen)
	m.longBuf = make([]float64, m.longLen)
	m.recallBuf[0] = make([]float64, maxBlockSize)
	m.recallBuf[1] = make([]float64, maxBlockSize)

	m.shortForget = math.Pow(core.DBToLinear(shortTargetDecayDb), 1/(m.shortSpanSeconds*sampleRate))
	m.longForget = math.Pow(core.DBToLinear(longTargetDecayDb), 1/(m.longSpanSeconds*sampleRate))

	m.captureRmsTau = captureRmsTimeMs / 1000 * sampleRate

	m.memory.Prepare(sampleRate)
	m.depth.Prepare(sampleRate)
	m.decay.Prepare(sampleRate)
	m.drift.Prepare(sampleRate)

	pool, err := param.NewPool(controlSlots, maxBlockSize)
	if err != nil {
		return fmt.Errorf("memory control pool: %w", err)
	}

	m.pool = pool

	m.driftSlewCoeff = core.OnePoleCoeffMs(driftSlewMs, sampleRate)
	m.driftUpdateLen = core.SecondsToSamples(driftUpdateMs/1000, sampleRate)
	m.driftUpdateLeft = m.driftUpdateLen

	m.Reset()

	return nil
}

// SetSpans replaces the short and long memory spans in seconds and
// reallocates the buffers, discarding their contents. Spans beyond ten
// minutes are rejected and the previous spans stay in effect. Off-line
// use only; never call while audio is running.
func (m *Module) SetSpans(shortSeconds, longSeconds float64) error {
	if shortSeconds <= 0 || shortSeconds > maxSpanSeconds ||
		math.IsNaN(shortSeconds) || math.IsInf(shortSeconds, 0) {
		return fmt.Errorf("memory short span must be in (0, %g] s: %f", maxSpanSeconds, shortSeconds)
	}

	if longSeconds <= 0 || longSeconds > maxSpanSeconds ||
		math.IsNaN(longSeconds) || math.IsInf(longSeconds, 0) {
		return fmt.Errorf("memory long span must be in (0, %g] s: %f", maxSpanSeconds, longSeconds)
	}

	m.shortSpanSeconds = shortSeconds
	m.longSpanSeconds = longSeconds

	if m.sampleRate > 0 {
		return m.Prepare(m.sampleRate, m.maxBlockSize, m.channels)
	}

	return nil
}

// Reset clears both memory buffers, the recall state, and the envelopes.
func (m *Module) Reset() {
	for ch := range m.shortBuf {
		for i := range m.shortBuf[ch] {
			m.shortBuf[ch][i] = 0
		}
	}

	for i := range m.longBuf {
		m.longBuf[i] = 0
	}

	for ch := range m.recallBuf {
		for i := range m.recallBuf[ch] {
			m.recallBuf[ch][i] = 0
		}
	}

	m.shortWrite = 0
	m.longWrite = 0
	m.shortFilled = 0
	m.longFilled = 0
	m.captureRms = 0

	m.memoryEnabled = false
	m.memoryForCapture = 0
	m.freeze = false
	m.primed = false

	m.state = StateIdle
	m.usesLong = false
	m.centerPos = 0
	m.widthSamples = 0
	m.totalSamples = 0
	m.samplesRemaining = 0
	m.baseGain = 0
	m.envGain = 0
	m.envGainStep = 0
	m.cooldownSamples = 0
	m.playbackPos = 0
	m.playbackStep = 0
	m.lowpassStateL = 0
	m.lowpassStateR = 0

	m.driftCents = 0
	m.driftTarget = 0
	m.driftCentsMax = 0
	m.driftUpdateLeft = m.driftUpdateLen
}

// SetMemory sets the memory amount in [0,1]. Zero disables capture and
// recall once the smoothed value settles below the activation epsilon.
func (m *Module) SetMemory(amount float64) error {
	if amount < 0 || amount > 1 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return fmt.Errorf("memory amount must be in [0,1]: %f", amount)
	}

	m.memory.SetTarget(amount)

	return nil
}

// SetDepth sets the recall depth in [0,1]. Depth biases recall toward the
// long buffer quadratically.
func (m *Module) SetDepth(depth float64) error {
	if depth < 0 || depth > 1 || math.IsNaN(depth) || math.IsInf(depth, 0) {
		return fmt.Errorf("memory depth must be in [0,1]: %f", depth)
	}

	m.depth.SetTarget(depth)

	return nil
}

// SetDecay sets the age-coloring decay amount in [0,1].
func (m *Module) SetDecay(decay float64) error {
	if decay < 0 || decay > 1 || math.IsNaN(decay) || math.IsInf(decay, 0) {
		return fmt.Errorf("memory decay must be in [0,1]: %f", decay)
	}

	m.decay.SetTarget(decay)

	return nil
}

// SetDrift sets the recall pitch drift amount in [0,1].
func (m *Module) SetDrift(drift float64) error {
	if drift < 0 || drift > 1 || math.IsNaN(drift) || math.IsInf(drift, 0) {
		return fmt.Errorf("memory drift must be in [0,1]: %f", drift)
	}

	m.drift.SetTarget(drift)

	return nil
}

// SetFreeze suspends recall scheduling and scales capture down to a tenth
// while held. Existing buffer contents keep decaying only under capture,
// so a frozen memory is close to static.
func (m *Module) SetFreeze(freeze bool) {
	m.freeze = freeze
}

// SetInjectToBuffer controls whether Process adds recall output into the
// passed block. When disabled the output is still available from
// RecallOutput for external mixing.
func (m *Module) SetInjectToBuffer(inject bool) {
	m.injectToBuffer = inject
}

// SetInjectGain sets the gain applied when injecting recall output into
// the processed block.
func (m *Module) SetInjectGain(gain float64) error {
	if gain < 0 || gain > 1 || math.IsNaN(gain) || math.IsInf(gain, 0) {
		return fmt.Errorf("memory inject gain must be in [0,1]: %f", gain)
	}

	m.injectGain.Store(gain)

	return nil
}

// SetRandomSeed reseeds recall scheduling for deterministic runs.
func (m *Module) SetRandomSeed(seed int64) {
	m.seed = seed
	m.rng.Seed(seed)
}

// SetRecallRateScale multiplies the recall trigger probability. Values
// above one make recalls proportionally more frequent; useful for fast
// deterministic exercises of the recall path.
func (m *Module) SetRecallRateScale(scale float64) error {
	if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return fmt.Errorf("memory recall rate scale must be > 0: %f", scale)
	}

	m.rateScale = scale

	return nil
}

// RecallState returns the current recall envelope phase.
func (m *Module) RecallState() State {
	return m.state
}

// RecallOutput returns the recall scratch buffer holding the most recent
// block of recall-only output, stereo, valid until the next Process call.
func (m *Module) RecallOutput() [][]float64 {
	return [][]float64{m.recallBuf[0], m.recallBuf[1]}
}

// CaptureRms returns the smoothed RMS of captured wet audio, the level
// the quiet gate compares against.
func (m *Module) CaptureRms() float64 {
	return m.captureRms
}

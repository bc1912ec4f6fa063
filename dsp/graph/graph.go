// Package graph executes one audio block through a routable set of
// processing modules. Connections are applied in listed order; topology
// changes publish immutable preset snapshots that the audio thread picks
// up at block boundaries only.
package graph

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/cwbudde/algo-reverb/dsp/core"
	"github.com/cwbudde/algo-reverb/dsp/filter"
	"github.com/cwbudde/algo-reverb/dsp/memory"
	"github.com/cwbudde/algo-reverb/dsp/node"
	"github.com/cwbudde/algo-reverb/dsp/param"
)

// ModuleID names one slot in the closed module set.
type ModuleID int

// The orchestrated module set.
const (
	ModuleDrive ModuleID = iota
	ModuleDiffuser
	ModuleReverb
	ModuleSpatial
	ModuleTremble
	ModuleMemory
	ModuleOutput

	moduleCount
)

var moduleNames = map[ModuleID]string{
	ModuleDrive:    "drive",
	ModuleDiffuser: "diffuser",
	ModuleReverb:   "reverb",
	ModuleSpatial:  "spatial",
	ModuleTremble:  "tremble",
	ModuleMemory:   "memory",
	ModuleOutput:   "output",
}

func (id ModuleID) String() string {
	if name, ok := moduleNames[id]; ok {
		return name
	}

	return fmt.Sprintf("module(%d)", int(id))
}

// ModuleIDByName resolves the textual module name used in preset files.
func ModuleIDByName(name string) (ModuleID, bool) {
	for id, n := range moduleNames {
		if n == name {
			return id, true
		}
	}

	return 0, false
}

// Mode selects how a connection routes signal into its destination.
type Mode int

// Connection modes.
const (
	// ModeSeries processes the destination on the running signal.
	ModeSeries Mode = iota
	// ModeParallel processes the dry input in the destination and adds the
	// result into the running signal, scaled by Blend.
	ModeParallel
	// ModeParallelMix processes the running signal in the destination and
	// crossfades dry/wet by Blend.
	ModeParallelMix
	// ModeFeedback mixes the previous block's output (clamped, lowpassed)
	// into the running signal before processing the destination.
	ModeFeedback
	// ModeCrossfeed folds the mid signal into both channels by Crossfeed.
	ModeCrossfeed
	// ModeBypass skips the destination entirely.
	ModeBypass
)

var modeNames = map[Mode]string{
	ModeSeries:      "series",
	ModeParallel:    "parallel",
	ModeParallelMix: "parallel-mix",
	ModeFeedback:    "feedback",
	ModeCrossfeed:   "crossfeed",
	ModeBypass:      "bypass",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}

	return fmt.Sprintf("mode(%d)", int(m))
}

// ModeByName resolves the textual mode name used in preset files.
func ModeByName(name string) (Mode, bool) {
	for m, n := range modeNames {
		if n == name {
			return m, true
		}
	}

	return 0, false
}

// MaxConnections bounds every preset so switching never allocates.
const MaxConnections = 16

// MaxFeedbackGain is the structural stability clamp on feedback edges.
const MaxFeedbackGain = 0.95

const (
	feedbackLowpassHz     = 8000.0
	feedbackGainSmoothMs  = 50.0
	defaultGraphBlendGain = 0.5
)

// Connection is one routed edge. Immutable once published in a Preset.
type Connection struct {
	Source      ModuleID
	Destination ModuleID
	Mode        Mode

	Blend        float64 // parallel modes, [0,1]
	FeedbackGain float64 // feedback mode, [0,0.95]
	Crossfeed    float64 // crossfeed mode, [0,1]

	Enabled bool
}

// NewConnection returns an enabled connection with the default blend.
func NewConnection(src, dst ModuleID, mode Mode) Connection {
	return Connection{
		Source:       src,
		Destination:  dst,
		Mode:         mode,
		Blend:        defaultGraphBlendGain,
		FeedbackGain: 0.3,
		Crossfeed:    0.5,
		Enabled:      true,
	}
}

// Preset is an immutable snapshot of the routing topology: an ordered,
// capacity-bounded connection list plus a per-module bypass vector.
type Preset struct {
	Name           string
	Connections    [MaxConnections]Connection
	NumConnections int
	Bypassed       [moduleCount]bool
}

// Validation errors.
var (
	ErrUnknownModule      = errors.New("graph: connection references unknown module")
	ErrTooManyConnections = errors.New("graph: too many connections")
	ErrUnlabeledCycle     = errors.New("graph: cycle through non-feedback connections")
)

// Graph owns the module set and the active routing snapshot.
type Graph struct {
	modules [moduleCount]node.Module
	mem     *memory.Module

	active atomic.Pointer[Preset]
	mu     sync.Mutex // serializes writers; the audio thread never takes it

	log zerolog.Logger

	sampleRate   float64
	maxBlockSize int
	channels     int
	prepared     bool

	dryBuf   [][]float64
	tempBufs [moduleCount][][]float64
	fbBuf    [][]float64

	fbGain     *param.Smoother
	fbGainPool *param.Pool
	fbLowpass  []*filter.Section
}

// Option configures a Graph.
type Option func(*Graph)

// WithModule replaces the module installed in the given slot. Mainly for
// tests that route through pass-through stubs.
func WithModule(id ModuleID, m node.Module) Option {
	return func(g *Graph) {
		if id >= 0 && id < moduleCount && m != nil {
			g.modules[id] = m

			if id == ModuleMemory {
				mem, ok := m.(*memory.Module)
				if !ok {
					mem = nil
				}

				g.mem = mem
			}
		}
	}
}

// WithLogger sets the control-plane logger. Processing never logs.
func WithLogger(log zerolog.Logger) Option {
	return func(g *Graph) {
		g.log = log
	}
}

// New returns a graph with the full module set installed and the classic
// hall preset active.
func New(opts ...Option) *Graph {
	mem := memory.New()

	g := &Graph{
		mem:    mem,
		log:    zerolog.Nop(),
		fbGain: param.NewSmoother(feedbackGainSmoothMs),
	}

	g.modules[ModuleDrive] = node.NewDrive()
	g.modules[ModuleDiffuser] = node.NewDiffuser()
	g.modules[ModuleReverb] = node.NewReverb()
	g.modules[ModuleSpatial] = node.NewSpatial()
	g.modules[ModuleTremble] = node.NewTremble()
	g.modules[ModuleMemory] = mem
	g.modules[ModuleOutput] = node.NewOutput()

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	preset := buildPreset(PresetClassicHall)
	g.active.Store(&preset)

	return g
}

// Prepare allocates all routing scratch buffers and prepares every module
// for the given layout. Not real-time safe.
func (g *Graph) Prepare(sampleRate float64, maxBlockSize, channels int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("graph sample rate must be > 0: %f", sampleRate)
	}

	if maxBlockSize <= 0 {
		return fmt.Errorf("graph max block size must be > 0: %d", maxBlockSize)
	}

	if channels <= 0 {
		return fmt.Errorf("graph channels must be > 0: %d", channels)
	}

	g.sampleRate = sampleRate
	g.maxBlockSize = maxBlockSize
	g.channels = channels

	g.dryBuf = core.NewBlock(channels, maxBlockSize)
	g.fbBuf = core.NewBlock(channels, maxBlockSize)

	for i := range g.tempBufs {
		g.tempBufs[i] = core.NewBlock(channels, maxBlockSize)
	}

	coeffs := filter.Lowpass(feedbackLowpassHz, 0.7071, sampleRate)
	g.fbLowpass = make([]*filter.Section, channels)
	for ch := range g.fbLowpass {
		g.fbLowpass[ch] = filter.NewSection(coeffs)
	}

	g.fbGain.Prepare(sampleRate)
	g.fbGain.Reset(0)

	pool, err := param.NewPool(1, maxBlockSize)
	if err != nil {
		return fmt.Errorf("graph gain pool: %w", err)
	}

	g.fbGainPool = pool

	for id, m := range g.modules {
		if err := m.Prepare(sampleRate, maxBlockSize, channels); err != nil {
			return fmt.Errorf("prepare %v: %w", ModuleID(id), err)
		}
	}

	g.prepared = true

	return nil
}

// Reset clears all module and routing state without reallocation.
func (g *Graph) Reset() {
	for _, m := range g.modules {
		m.Reset()
	}

	core.ZeroBlock(g.fbBuf)
	core.ZeroBlock(g.dryBuf)

	for ch := range g.fbLowpass {
		g.fbLowpass[ch].Reset()
	}

	g.fbGain.Reset(0)
}

// Module returns the module installed in the given slot, or nil.
func (g *Graph) Module(id ModuleID) node.Module {
	if id < 0 || id >= moduleCount {
		return nil
	}

	return g.modules[id]
}

// Memory returns the installed memory module, or nil when a stub replaced
// it.
func (g *Graph) Memory() *memory.Module {
	return g.mem
}

// ActivePreset returns a copy of the currently published preset.
func (g *Graph) ActivePreset() Preset {
	return *g.active.Load()
}

// SetModuleBypass toggles processing of one module across all presets.
// Safe from any goroutine.
func (g *Graph) SetModuleBypass(id ModuleID, bypass bool) error {
	if id < 0 || id >= moduleCount {
		return fmt.Errorf("%w: %d", ErrUnknownModule, int(id))
	}

	g.modules[id].SetBypassed(bypass)

	return nil
}

// SetRouting validates and publishes a custom topology. On failure the
// previous routing stays active with no partial effect. Safe from any
// goroutine.
func (g *Graph) SetRouting(name string, connections []Connection, bypassed map[ModuleID]bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	preset, err := buildCustomPreset(name, connections, bypassed)
	if err != nil {
		return err
	}

	g.active.Store(&preset)

	return nil
}

// LoadPreset publishes one of the built-in topologies. Safe from any
// goroutine.
func (g *Graph) LoadPreset(id PresetID) error {
	if id < 0 || id >= presetCount {
		return fmt.Errorf("graph: unknown preset %d", int(id))
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	preset := buildPreset(id)
	g.active.Store(&preset)

	return nil
}

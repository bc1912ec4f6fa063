package graph

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cwbudde/algo-reverb/dsp/node"
	"github.com/cwbudde/algo-reverb/dsp/param"
	"github.com/cwbudde/algo-reverb/internal/testutil"
)

const (
	testSampleRate = 48000.0
	testBlockSize  = 512
)

// stubModule scales the signal by a fixed gain. Used to make routing math
// observable without real processing in the way.
type stubModule struct {
	node.Bypass
	gain     float64
	prepared bool
}

func newStub(gain float64) *stubModule {
	return &stubModule{gain: gain}
}

func (s *stubModule) Prepare(sampleRate float64, maxBlockSize, channels int) error {
	s.prepared = true
	return nil
}

func (s *stubModule) Reset() {}

func (s *stubModule) Process(block [][]float64) {
	for ch := range block {
		for i := range block[ch] {
			block[ch][i] *= s.gain
		}
	}
}

// newStubGraph installs pass-through stubs in every slot so tests can
// reason about the routing arithmetic in isolation.
func newStubGraph(t *testing.T, opts ...Option) *Graph {
	t.Helper()

	all := make([]Option, 0, int(moduleCount)+len(opts))
	for id := ModuleID(0); id < moduleCount; id++ {
		all = append(all, WithModule(id, newStub(1)))
	}

	all = append(all, opts...)

	g := New(all...)
	if err := g.Prepare(testSampleRate, testBlockSize, 2); err != nil {
		t.Fatalf("prepare: %v", err)
	}

	return g
}

func setRouting(t *testing.T, g *Graph, connections []Connection) {
	t.Helper()

	if err := g.SetRouting("test", connections, nil); err != nil {
		t.Fatalf("set routing: %v", err)
	}
}

// A pure series chain of unity stubs must reproduce the input exactly.
func TestSeriesChainIsTransparent(t *testing.T) {
	g := newStubGraph(t)
	setRouting(t, g, []Connection{
		NewConnection(ModuleDrive, ModuleDiffuser, ModeSeries),
		NewConnection(ModuleDiffuser, ModuleReverb, ModeSeries),
		NewConnection(ModuleReverb, ModuleOutput, ModeSeries),
	})

	input := testutil.DeterministicNoise(1, 0.5, testBlockSize)
	block := testutil.StereoBlock(input)
	g.Process(block)

	for ch := range block {
		testutil.RequireSliceNearlyEqual(t, block[ch], input, 0)
	}
}

// Two series stages of gain 2 compound to gain 4.
func TestSeriesChainCompoundsGains(t *testing.T) {
	g := newStubGraph(t,
		WithModule(ModuleDiffuser, newStub(2)),
		WithModule(ModuleReverb, newStub(2)),
	)
	setRouting(t, g, []Connection{
		NewConnection(ModuleDrive, ModuleDiffuser, ModeSeries),
		NewConnection(ModuleDiffuser, ModuleReverb, ModeSeries),
	})

	input := testutil.DeterministicNoise(2, 0.1, testBlockSize)
	block := testutil.StereoBlock(input)
	g.Process(block)

	want := make([]float64, len(input))
	for i, v := range input {
		want[i] = 4 * v
	}

	for ch := range block {
		testutil.RequireSliceNearlyEqual(t, block[ch], want, 1e-12)
	}
}

// A parallel branch adds the processed dry signal scaled by the blend:
// with a unity branch and blend 0.5 the result is 1.5x the input.
func TestParallelAddsBlendedBranch(t *testing.T) {
	g := newStubGraph(t)

	conn := NewConnection(ModuleDrive, ModuleReverb, ModeParallel)
	conn.Blend = 0.5
	setRouting(t, g, []Connection{conn})

	input := testutil.DeterministicNoise(3, 0.2, testBlockSize)
	block := testutil.StereoBlock(input)
	g.Process(block)

	want := make([]float64, len(input))
	for i, v := range input {
		want[i] = 1.5 * v
	}

	for ch := range block {
		testutil.RequireSliceNearlyEqual(t, block[ch], want, 1e-12)
	}
}

// Parallel-mix crossfades dry against wet: a gain-3 branch at blend 0.25
// yields 0.75*dry + 0.25*3*dry = 1.5*dry.
func TestParallelMixCrossfades(t *testing.T) {
	g := newStubGraph(t, WithModule(ModuleReverb, newStub(3)))

	conn := NewConnection(ModuleDrive, ModuleReverb, ModeParallelMix)
	conn.Blend = 0.25
	setRouting(t, g, []Connection{conn})

	input := testutil.DeterministicNoise(4, 0.2, testBlockSize)
	block := testutil.StereoBlock(input)
	g.Process(block)

	want := make([]float64, len(input))
	for i, v := range input {
		want[i] = 1.5 * v
	}

	for ch := range block {
		testutil.RequireSliceNearlyEqual(t, block[ch], want, 1e-12)
	}
}

// Full crossfeed collapses both channels onto the mid signal.
func TestCrossfeedCollapsesToMid(t *testing.T) {
	g := newStubGraph(t)

	conn := NewConnection(ModuleDrive, ModuleSpatial, ModeCrossfeed)
	conn.Crossfeed = 1
	setRouting(t, g, []Connection{conn})

	block := [][]float64{
		testutil.DC(1, testBlockSize),
		testutil.DC(0, testBlockSize),
	}
	g.Process(block)

	testutil.RequireSliceNearlyEqual(t, block[0], testutil.DC(0.5, testBlockSize), 1e-12)
	testutil.RequireSliceNearlyEqual(t, block[1], testutil.DC(0.5, testBlockSize), 1e-12)
}

// A bypassed source module disables every connection departing from it.
func TestBypassedSourceSkipsConnection(t *testing.T) {
	g := newStubGraph(t, WithModule(ModuleDiffuser, newStub(2)))
	setRouting(t, g, []Connection{
		NewConnection(ModuleDrive, ModuleDiffuser, ModeSeries),
	})

	if err := g.SetModuleBypass(ModuleDrive, true); err != nil {
		t.Fatalf("set bypass: %v", err)
	}

	input := testutil.DeterministicNoise(5, 0.3, testBlockSize)
	block := testutil.StereoBlock(input)
	g.Process(block)

	for ch := range block {
		testutil.RequireSliceNearlyEqual(t, block[ch], input, 0)
	}
}

// A preset-level bypass of the destination skips its processing.
func TestPresetBypassSkipsDestination(t *testing.T) {
	g := newStubGraph(t, WithModule(ModuleDiffuser, newStub(2)))

	err := g.SetRouting("test",
		[]Connection{NewConnection(ModuleDrive, ModuleDiffuser, ModeSeries)},
		map[ModuleID]bool{ModuleDiffuser: true})
	if err != nil {
		t.Fatalf("set routing: %v", err)
	}

	input := testutil.DeterministicNoise(6, 0.3, testBlockSize)
	block := testutil.StereoBlock(input)
	g.Process(block)

	for ch := range block {
		testutil.RequireSliceNearlyEqual(t, block[ch], input, 0)
	}
}

// A cycle made of plain series connections must be rejected; relabeling
// the returning edge as feedback makes the same topology legal.
func TestCycleValidation(t *testing.T) {
	g := newStubGraph(t)

	forward := NewConnection(ModuleDiffuser, ModuleReverb, ModeSeries)
	back := NewConnection(ModuleReverb, ModuleDiffuser, ModeSeries)

	err := g.SetRouting("cyclic", []Connection{forward, back}, nil)
	if !errors.Is(err, ErrUnlabeledCycle) {
		t.Fatalf("expected ErrUnlabeledCycle, got %v", err)
	}

	back.Mode = ModeFeedback
	if err := g.SetRouting("looped", []Connection{forward, back}, nil); err != nil {
		t.Fatalf("feedback-labeled cycle rejected: %v", err)
	}
}

// A failed SetRouting must leave the previously published routing active.
func TestFailedRoutingKeepsPrevious(t *testing.T) {
	g := newStubGraph(t)

	if err := g.LoadPreset(PresetSparse); err != nil {
		t.Fatalf("load preset: %v", err)
	}

	bad := NewConnection(ModuleDrive, moduleCount+3, ModeSeries)
	if err := g.SetRouting("bad", []Connection{bad}, nil); !errors.Is(err, ErrUnknownModule) {
		t.Fatalf("expected ErrUnknownModule, got %v", err)
	}

	if got := g.ActivePreset().Name; got != PresetSparse.String() {
		t.Fatalf("active preset changed to %q after failed update", got)
	}
}

// Every built-in preset must satisfy the same validation rules as custom
// routings.
func TestBuiltinPresetsAreValid(t *testing.T) {
	for id := PresetID(0); id < presetCount; id++ {
		p := buildPreset(id)
		if err := validateConnections(p.Connections[:p.NumConnections]); err != nil {
			t.Errorf("preset %v: %v", id, err)
		}

		if p.NumConnections == 0 {
			t.Errorf("preset %v has no connections", id)
		}
	}
}

func TestLoadPresetRejectsUnknownID(t *testing.T) {
	g := newStubGraph(t)

	if err := g.LoadPreset(presetCount); err == nil {
		t.Fatal("expected error for out-of-range preset id")
	}

	if err := g.LoadPreset(-1); err == nil {
		t.Fatal("expected error for negative preset id")
	}
}

// An impulse circulating a feedback loop must decay: the loop gain is
// clamped below unity regardless of the configured value.
func TestFeedbackLoopIsStable(t *testing.T) {
	g := newStubGraph(t)

	conn := NewConnection(ModuleDrive, ModuleDrive, ModeFeedback)
	conn.FeedbackGain = 2.0 // clamped to MaxFeedbackGain internally
	setRouting(t, g, []Connection{conn})

	block := testutil.StereoBlock(testutil.Impulse(testBlockSize, 0))
	g.Process(block)

	peak := func(b [][]float64) float64 {
		p := 0.0
		for ch := range b {
			for _, v := range b[ch] {
				if a := math.Abs(v); a > p {
					p = a
				}
			}
		}

		return p
	}

	prev := peak(block)
	silence := testutil.StereoBlock(make([]float64, testBlockSize))

	for i := 0; i < 200; i++ {
		for ch := range block {
			copy(block[ch], silence[ch])
		}

		g.Process(block)
		testutil.RequireBlockFinite(t, block)

		p := peak(block)
		if p > prev+1e-9 && p > 0.1 {
			t.Fatalf("block %d: peak grew from %v to %v", i, prev, p)
		}

		prev = p
	}

	if prev > 1e-3 {
		t.Fatalf("feedback tail failed to decay, final peak %v", prev)
	}
}

// The signal returned through a feedback edge is lowpassed, so the
// recirculated component must carry far less energy above the cutoff
// than below it.
func TestFeedbackPathIsLowpassed(t *testing.T) {
	g := New(WithModule(ModuleDrive, newStub(1)))
	blockSize := 2048

	if err := g.Prepare(testSampleRate, blockSize, 2); err != nil {
		t.Fatalf("prepare: %v", err)
	}

	conn := NewConnection(ModuleDrive, ModuleDrive, ModeFeedback)
	conn.FeedbackGain = 0.9
	setRouting(t, g, []Connection{conn})

	// Warm up so the smoothed feedback gain reaches its target.
	for i := 0; i < 10; i++ {
		noise := testutil.DeterministicNoise(int64(i), 0.5, blockSize)
		g.Process(testutil.StereoBlock(noise))
	}

	input := testutil.DeterministicNoise(100, 0.5, blockSize)
	block := testutil.StereoBlock(input)
	g.Process(block)

	// The feedback contribution is whatever was added on top of the input.
	diff := make([]float64, blockSize)
	for i := range diff {
		diff[i] = block[0][i] - input[i]
	}

	mag := testutil.MagnitudeSpectrum(t, diff)
	low := testutil.BandEnergy(mag, 500, 4000, testSampleRate)
	high := testutil.BandEnergy(mag, 18000, 23000, testSampleRate)

	if low < 2*high {
		t.Fatalf("feedback path not lowpassed: low band %v, high band %v", low, high)
	}
}

// The feedback gain must ramp sample by sample inside a single block, not
// jump to the target at the block boundary.
func TestFeedbackGainRampsWithinBlock(t *testing.T) {
	g := newStubGraph(t)

	conn := NewConnection(ModuleDrive, ModuleDrive, ModeFeedback)
	conn.FeedbackGain = 0.9
	setRouting(t, g, []Connection{conn})

	// Seed the recirculation buffer with DC so the output exposes the gain
	// trajectory directly.
	for ch := range g.fbBuf {
		for i := range g.fbBuf[ch] {
			g.fbBuf[ch][i] = 1
		}
	}

	block := testutil.StereoBlock(make([]float64, testBlockSize))
	g.Process(block)

	want := make([]float64, testBlockSize)
	ref := param.NewSmoother(feedbackGainSmoothMs)
	ref.Prepare(testSampleRate)
	ref.Reset(0)
	ref.SetTarget(0.9)
	ref.NextBlock(want)

	testutil.RequireSliceNearlyEqual(t, block[0], want, 1e-12)

	for i := 1; i < testBlockSize; i++ {
		if block[0][i] <= block[0][i-1] {
			t.Fatalf("gain not ramping at sample %d: %v then %v", i-1, block[0][i-1], block[0][i])
		}
	}
}

// Two independently constructed graphs with the same topology must
// produce bit-identical output for the same input.
func TestRoutingIsDeterministic(t *testing.T) {
	run := func() [][]float64 {
		g := New()
		if err := g.Prepare(testSampleRate, testBlockSize, 2); err != nil {
			t.Fatalf("prepare: %v", err)
		}

		if err := g.LoadPreset(PresetFeedbackBloom); err != nil {
			t.Fatalf("load preset: %v", err)
		}

		var block [][]float64
		for i := 0; i < 50; i++ {
			noise := testutil.DeterministicNoise(int64(i), 0.3, testBlockSize)
			block = testutil.StereoBlock(noise)
			g.Process(block)
		}

		return block
	}

	a := run()
	b := run()

	for ch := range a {
		testutil.RequireSliceNearlyEqual(t, a[ch], b[ch], 0)
	}
}

// Switching presets mid-stream takes effect cleanly at the next block
// and never destabilizes the output.
func TestPresetSwitchMidStream(t *testing.T) {
	g := New()
	if err := g.Prepare(testSampleRate, testBlockSize, 2); err != nil {
		t.Fatalf("prepare: %v", err)
	}

	for i := 0; i < 30; i++ {
		if i == 10 {
			if err := g.LoadPreset(PresetParallelTriple); err != nil {
				t.Fatalf("load preset: %v", err)
			}
		}

		if i == 20 {
			if err := g.LoadPreset(PresetMemoryWash); err != nil {
				t.Fatalf("load preset: %v", err)
			}
		}

		noise := testutil.DeterministicNoise(int64(i), 0.3, testBlockSize)
		block := testutil.StereoBlock(noise)
		g.Process(block)
		testutil.RequireBlockFinite(t, block)
	}

	if got := g.ActivePreset().Name; got != PresetMemoryWash.String() {
		t.Fatalf("active preset %q after switch", got)
	}
}

// The full default chain must stay finite and below the output ceiling
// under sustained broadband input.
func TestFullChainBounded(t *testing.T) {
	g := New()
	if err := g.Prepare(testSampleRate, testBlockSize, 2); err != nil {
		t.Fatalf("prepare: %v", err)
	}

	for i := 0; i < 200; i++ {
		noise := testutil.DeterministicNoise(int64(i), 0.8, testBlockSize)
		block := testutil.StereoBlock(noise)
		g.Process(block)

		testutil.RequireBlockFinite(t, block)
		for ch := range block {
			testutil.RequirePeakBelow(t, block[ch], 1.0)
		}
	}
}

func TestProcessBeforePrepareIsNoop(t *testing.T) {
	g := New()

	input := testutil.DeterministicNoise(7, 0.5, testBlockSize)
	block := testutil.StereoBlock(input)
	g.Process(block)

	for ch := range block {
		testutil.RequireSliceNearlyEqual(t, block[ch], input, 0)
	}
}

const presetTOML = `
name = "wide-hall"
bypass = ["tremble"]

[[connection]]
source = "drive"
destination = "diffuser"
mode = "series"

[[connection]]
source = "diffuser"
destination = "reverb"
mode = "parallel-mix"
blend = 0.7

[[connection]]
source = "reverb"
destination = "diffuser"
mode = "feedback"
feedback_gain = 0.4

[[connection]]
source = "reverb"
destination = "output"
mode = "series"
`

func TestReadPresetFromTOML(t *testing.T) {
	g := newStubGraph(t)

	if err := g.ReadPreset(strings.NewReader(presetTOML)); err != nil {
		t.Fatalf("read preset: %v", err)
	}

	p := g.ActivePreset()
	if p.Name != "wide-hall" {
		t.Fatalf("preset name %q", p.Name)
	}

	if p.NumConnections != 4 {
		t.Fatalf("connection count %d", p.NumConnections)
	}

	if !p.Bypassed[ModuleTremble] {
		t.Fatal("tremble bypass not applied")
	}

	mix := p.Connections[1]
	if mix.Mode != ModeParallelMix || mix.Blend != 0.7 {
		t.Fatalf("parallel-mix connection %+v", mix)
	}

	fb := p.Connections[2]
	if fb.Mode != ModeFeedback || fb.FeedbackGain != 0.4 {
		t.Fatalf("feedback connection %+v", fb)
	}

	// Absent optional keys keep the connection defaults.
	if got := p.Connections[0].Blend; got != defaultGraphBlendGain {
		t.Fatalf("default blend %v", got)
	}
}

func TestLoadPresetFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preset.toml")
	if err := os.WriteFile(path, []byte(presetTOML), 0o644); err != nil {
		t.Fatalf("write preset file: %v", err)
	}

	g := newStubGraph(t)
	if err := g.LoadPresetFile(path); err != nil {
		t.Fatalf("load preset file: %v", err)
	}

	if got := g.ActivePreset().Name; got != "wide-hall" {
		t.Fatalf("preset name %q", got)
	}
}

func TestReadPresetRejectsUnknownNames(t *testing.T) {
	g := newStubGraph(t)

	before := g.ActivePreset().Name

	bad := `
[[connection]]
source = "drive"
destination = "chorus"
`
	err := g.ReadPreset(strings.NewReader(bad))
	if !errors.Is(err, ErrUnknownModule) {
		t.Fatalf("expected ErrUnknownModule, got %v", err)
	}

	if got := g.ActivePreset().Name; got != before {
		t.Fatalf("active preset changed to %q after failed load", got)
	}
}

func TestModuleAndModeNamesRoundTrip(t *testing.T) {
	for id := ModuleID(0); id < moduleCount; id++ {
		got, ok := ModuleIDByName(id.String())
		if !ok || got != id {
			t.Errorf("module %v did not round-trip", id)
		}
	}

	for m := ModeSeries; m <= ModeBypass; m++ {
		got, ok := ModeByName(m.String())
		if !ok || got != m {
			t.Errorf("mode %v did not round-trip", m)
		}
	}

	if _, ok := ModuleIDByName("chorus"); ok {
		t.Error("unknown module name resolved")
	}
}

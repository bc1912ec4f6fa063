package node

import (
	"math"
	"testing"

	"github.com/cwbudde/algo-reverb/internal/testutil"
)

const testRate = 48000.0

func prepare(t *testing.T, m Module, channels int) {
	t.Helper()

	if err := m.Prepare(testRate, 512, channels); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
}

func TestBypassFlag(t *testing.T) {
	d := NewDrive()

	if d.Bypassed() {
		t.Fatal("fresh module must not be bypassed")
	}

	d.SetBypassed(true)
	if !d.Bypassed() {
		t.Fatal("SetBypassed(true) not visible")
	}
}

// TestDriveBlocksDC feeds a constant offset and expects the DC blocker to
// drain it from the output.
func TestDriveBlocksDC(t *testing.T) {
	d := NewDrive()
	prepare(t, d, 1)

	// One second of DC gives the 20 Hz highpass time to settle.
	var last float64
	for b := 0; b < 100; b++ {
		block := [][]float64{testutil.DC(0.5, 480)}
		d.Process(block)
		last = block[0][len(block[0])-1]
	}

	if math.Abs(last) > 0.01 {
		t.Errorf("DC residue after 1 s: %v", last)
	}
}

func TestDriveStaysBounded(t *testing.T) {
	d := NewDrive()
	prepare(t, d, 2)

	if err := d.SetAmount(8); err != nil {
		t.Fatal(err)
	}

	if err := d.SetGainDb(24); err != nil {
		t.Fatal(err)
	}

	block := testutil.StereoBlock(testutil.DeterministicNoise(3, 1, 4096))
	d.Process(block)

	for _, ch := range block {
		testutil.RequirePeakBelow(t, ch, 1.0001)
	}
}

func TestDriveSetterValidation(t *testing.T) {
	d := NewDrive()

	if err := d.SetGainDb(100); err == nil {
		t.Error("expected error for gain above range")
	}

	if err := d.SetAmount(0); err == nil {
		t.Error("expected error for zero amount")
	}

	if err := d.SetAmount(math.NaN()); err == nil {
		t.Error("expected error for NaN amount")
	}
}

// TestDiffuserSpreadsImpulse checks that a single impulse leaves the chain
// as many echoes rather than one spike.
func TestDiffuserSpreadsImpulse(t *testing.T) {
	d := NewDiffuser()
	prepare(t, d, 1)

	if err := d.SetDensity(0.8); err != nil {
		t.Fatal(err)
	}

	block := [][]float64{testutil.Impulse(8192, 0)}
	d.Process(block)

	nonzero := 0
	for _, v := range block[0] {
		if math.Abs(v) > 1e-9 {
			nonzero++
		}
	}

	if nonzero < 8 {
		t.Errorf("impulse produced only %d nonzero samples", nonzero)
	}

	testutil.RequireFinite(t, block[0])
}

// TestDiffuserPreservesEnergy relies on the allpass property: total signal
// energy through the chain is unchanged.
func TestDiffuserPreservesEnergy(t *testing.T) {
	d := NewDiffuser()
	prepare(t, d, 1)

	in := testutil.Impulse(1<<15, 0)
	inEnergy := 0.0
	for _, v := range in {
		inEnergy += v * v
	}

	block := [][]float64{in}
	d.Process(block)

	outEnergy := 0.0
	for _, v := range block[0] {
		outEnergy += v * v
	}

	if math.Abs(outEnergy-inEnergy) > 0.05*inEnergy {
		t.Errorf("energy changed: in %v out %v", inEnergy, outEnergy)
	}
}

func TestDiffuserZeroDensityPassthrough(t *testing.T) {
	d := NewDiffuser()
	prepare(t, d, 1)

	if err := d.SetDensity(0); err != nil {
		t.Fatal(err)
	}

	in := testutil.DeterministicSine(440, testRate, 0.5, 4096)
	want := make([]float64, len(in))

	// With g=0 each stage is a pure delay: y = z, write x. The output is
	// the input delayed by the summed stage delays.
	totalDelay := 0
	for _, dl := range d.delays[0] {
		totalDelay += dl
	}

	for i := range want {
		if i >= totalDelay {
			want[i] = in[i-totalDelay]
		}
	}

	block := [][]float64{in}
	d.Process(block)

	testutil.RequireSliceNearlyEqual(t, block[0], want, 1e-12)
}

func TestReverbTailDecays(t *testing.T) {
	r := NewReverb()
	prepare(t, r, 2)

	if err := r.SetRT60(0.5); err != nil {
		t.Fatal(err)
	}

	if err := r.SetDry(0); err != nil {
		t.Fatal(err)
	}

	if err := r.SetWet(1); err != nil {
		t.Fatal(err)
	}

	// Excite once, then measure the free tail per second.
	block := testutil.StereoBlock(testutil.Impulse(4800, 0))
	r.Process(block)

	level := func() float64 {
		silent := testutil.StereoBlock(make([]float64, 4800))
		r.Process(silent)
		return testutil.RMS(silent[0])
	}

	early := level()

	var late float64
	for i := 0; i < 20; i++ {
		late = level()
	}

	if late >= early {
		t.Errorf("tail did not decay: early %v late %v", early, late)
	}

	if late > 1e-3 {
		t.Errorf("tail still audible after 2 s with RT60=0.5: %v", late)
	}
}

func TestReverbWetZeroPassthrough(t *testing.T) {
	r := NewReverb()
	prepare(t, r, 2)

	if err := r.SetWet(0); err != nil {
		t.Fatal(err)
	}

	in := testutil.DeterministicSine(220, testRate, 0.5, 512)
	block := testutil.StereoBlock(in)
	r.Process(block)

	testutil.RequireSliceNearlyEqual(t, block[0], in, 1e-12)
	testutil.RequireSliceNearlyEqual(t, block[1], in, 1e-12)
}

func TestReverbChannelsDecorrelated(t *testing.T) {
	r := NewReverb()
	prepare(t, r, 2)

	if err := r.SetDry(0); err != nil {
		t.Fatal(err)
	}

	block := testutil.StereoBlock(testutil.Impulse(1<<14, 0))
	r.Process(block)

	diff, err := testutil.MaxAbsDiff(block[0], block[1])
	if err != nil {
		t.Fatal(err)
	}

	if diff == 0 {
		t.Error("left and right tails are identical; tanks are not decorrelated")
	}
}

func TestSpatialWidthZeroCollapsesToMono(t *testing.T) {
	s := NewSpatial()

	if err := s.SetWidth(0); err != nil {
		t.Fatal(err)
	}

	prepare(t, s, 2)

	left := testutil.DeterministicSine(440, testRate, 0.5, 512)
	right := testutil.DeterministicSine(660, testRate, 0.5, 512)
	block := [][]float64{left, right}
	s.Process(block)

	testutil.RequireSliceNearlyEqual(t, block[0], block[1], 1e-12)
}

func TestSpatialUnityWidthPassthrough(t *testing.T) {
	s := NewSpatial()
	prepare(t, s, 2)

	in := testutil.DeterministicSine(440, testRate, 0.5, 256)
	right := testutil.DeterministicNoise(5, 0.5, 256)

	wantL := make([]float64, len(in))
	wantR := make([]float64, len(right))
	copy(wantL, in)
	copy(wantR, right)

	block := [][]float64{in, right}
	s.Process(block)

	testutil.RequireSliceNearlyEqual(t, block[0], wantL, 1e-12)
	testutil.RequireSliceNearlyEqual(t, block[1], wantR, 1e-12)
}

func TestTrembleZeroDepthPassthrough(t *testing.T) {
	m := NewTremble()
	prepare(t, m, 2)

	if err := m.SetDepth(0); err != nil {
		t.Fatal(err)
	}

	in := testutil.DeterministicSine(440, testRate, 0.5, 512)
	block := testutil.StereoBlock(in)
	m.Process(block)

	testutil.RequireSliceNearlyEqual(t, block[0], in, 1e-12)
}

func TestTrembleModulatesLevel(t *testing.T) {
	m := NewTremble()
	prepare(t, m, 1)

	if err := m.SetDepth(1); err != nil {
		t.Fatal(err)
	}

	if err := m.SetRate(4); err != nil {
		t.Fatal(err)
	}

	block := [][]float64{testutil.DC(1, 48000)}
	m.Process(block)

	minV, maxV := block[0][0], block[0][0]
	for _, v := range block[0] {
		minV = math.Min(minV, v)
		maxV = math.Max(maxV, v)
	}

	if maxV-minV < 0.5 {
		t.Errorf("full-depth tremble barely moved: min %v max %v", minV, maxV)
	}
}

func TestOutputCeilingLimits(t *testing.T) {
	o := NewOutput()
	prepare(t, o, 1)

	block := [][]float64{testutil.DC(10, 256)}
	o.Process(block)

	testutil.RequirePeakBelow(t, block[0], 1.0)
}

func TestOutputScrubsNonFinite(t *testing.T) {
	o := NewOutput()
	prepare(t, o, 1)

	block := [][]float64{{0.5, math.NaN(), math.Inf(1), -0.5}}
	o.Process(block)

	testutil.RequireFinite(t, block[0])
}

func TestOutputGainApplies(t *testing.T) {
	o := NewOutput()
	prepare(t, o, 1)

	if err := o.SetGainDb(-20); err != nil {
		t.Fatal(err)
	}

	// Run long enough for the 20 ms ramp to settle.
	var last float64
	for b := 0; b < 10; b++ {
		block := [][]float64{testutil.DC(0.5, 480)}
		o.Process(block)
		last = block[0][len(block[0])-1]
	}

	want := 0.5 * math.Pow(10, -20.0/20)
	if math.Abs(last-want) > 1e-4 {
		t.Errorf("gained output = %v, want %v", last, want)
	}
}

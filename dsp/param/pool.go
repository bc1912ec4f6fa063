package param

import "fmt"

// Pool owns preallocated per-sample parameter arrays. It is sized once for
// the maximum anticipated block length; Fill never allocates.
type Pool struct {
	bufs       [][]float64
	maxSamples int
}

// NewPool allocates a pool with the given number of slots, each holding up
// to maxSamples values.
func NewPool(slots, maxSamples int) (*Pool, error) {
	if slots <= 0 {
		return nil, fmt.Errorf("param pool slots must be > 0: %d", slots)
	}

	if maxSamples <= 0 {
		return nil, fmt.Errorf("param pool max samples must be > 0: %d", maxSamples)
	}

	backing := make([]float64, slots*maxSamples)
	bufs := make([][]float64, slots)
	for i := range bufs {
		bufs[i] = backing[i*maxSamples : (i+1)*maxSamples]
	}

	return &Pool{bufs: bufs, maxSamples: maxSamples}, nil
}

// Slots returns the number of slots.
func (p *Pool) Slots() int {
	return len(p.bufs)
}

// Capacity returns the per-slot sample capacity.
func (p *Pool) Capacity() int {
	return p.maxSamples
}

// Slot returns the backing array of the given slot, full capacity.
func (p *Pool) Slot(i int) []float64 {
	return p.bufs[i]
}

// Fill renders n smoothed values from s into the given slot and returns a
// per-sample View over them. n is clamped to the slot capacity. Fill
// advances the smoother state; call it once per block per smoother.
func (p *Pool) Fill(slot int, s *Smoother, n int) View {
	if n > p.maxSamples {
		n = p.maxSamples
	}

	if n < 0 {
		n = 0
	}

	dst := p.bufs[slot][:n]
	s.NextBlock(dst)

	return PerSample(dst)
}

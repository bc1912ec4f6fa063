package param

import (
	"math"
	"sync/atomic"
)

// Value is a lock-free block-rate scalar. A control thread stores it at any
// time; the audio thread loads it once per block. There is no smoothing;
// wrap a Value's reading in a Smoother when steps would be audible.
type Value struct {
	bits atomic.Uint64
}

// NewValue returns a Value holding v.
func NewValue(v float64) *Value {
	val := &Value{}
	val.Store(v)

	return val
}

// Store publishes v. Safe from any goroutine.
func (v *Value) Store(x float64) {
	v.bits.Store(math.Float64bits(x))
}

// Load returns the most recently stored value.
func (v *Value) Load() float64 {
	return math.Float64frombits(v.bits.Load())
}

// Package node contains the processing modules orchestrated by the routing
// graph. Every module is block-based, stereo-capable, and allocation-free
// after Prepare.
package node

import "sync/atomic"

// Module is a routable processing block. Prepare may allocate; Process and
// Reset must not. Process receives channel-major audio and works in place.
type Module interface {
	Prepare(sampleRate float64, maxBlockSize, channels int) error
	Reset()
	Process(block [][]float64)
	SetBypassed(bypassed bool)
	Bypassed() bool
}

// Bypass is an embeddable atomic bypass flag. SetBypassed is safe from any
// goroutine; the processing goroutine reads it once per block.
type Bypass struct {
	bypassed atomic.Bool
}

// SetBypassed sets the bypass flag.
func (b *Bypass) SetBypassed(bypassed bool) {
	b.bypassed.Store(bypassed)
}

// Bypassed reports the bypass flag.
func (b *Bypass) Bypassed() bool {
	return b.bypassed.Load()
}

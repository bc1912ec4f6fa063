package graph

import (
	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-reverb/dsp/core"
)

// Process runs one block through the active topology in place. The preset
// snapshot is loaded once at block start, so a concurrent publish takes
// effect at the next block boundary. Real-time safe after Prepare.
func (g *Graph) Process(block [][]float64) {
	if !g.prepared || len(block) == 0 || len(block[0]) == 0 {
		return
	}

	preset := g.active.Load()
	numSamples := len(block[0])

	// Dry copy for the parallel modes.
	for ch := range block {
		if ch >= len(g.dryBuf) {
			break
		}

		copy(g.dryBuf[ch][:numSamples], block[ch][:numSamples])
	}

	for i := 0; i < preset.NumConnections; i++ {
		conn := &preset.Connections[i]
		if !conn.Enabled || g.bypassed(preset, conn.Source) {
			continue
		}

		switch conn.Mode {
		case ModeSeries:
			g.processModule(preset, conn.Destination, block)

		case ModeParallel:
			g.applyParallel(preset, conn, block, numSamples)

		case ModeParallelMix:
			g.applyParallelMix(preset, conn, block, numSamples)

		case ModeFeedback:
			g.applyFeedback(preset, conn, block, numSamples)

		case ModeCrossfeed:
			g.applyCrossfeed(conn, block, numSamples)

		case ModeBypass:
			// Destination is skipped entirely.
		}
	}

	// The memory system hears the finished wet output of every block.
	if g.mem != nil && !g.bypassed(preset, ModuleMemory) {
		g.mem.CaptureWet(block)
	}
}

// bypassed combines the snapshot bypass vector with the live per-module
// flag.
func (g *Graph) bypassed(p *Preset, id ModuleID) bool {
	return p.Bypassed[id] || g.modules[id].Bypassed()
}

func (g *Graph) processModule(p *Preset, id ModuleID, block [][]float64) {
	if g.bypassed(p, id) {
		return
	}

	g.modules[id].Process(block)
}

// applyParallel processes the dry input through the destination and adds
// the result into the running signal, scaled by the blend weight.
func (g *Graph) applyParallel(p *Preset, conn *Connection, block [][]float64, numSamples int) {
	if g.bypassed(p, conn.Destination) {
		return
	}

	temp := g.tempBufs[conn.Destination]
	for ch := range block {
		copy(temp[ch][:numSamples], g.dryBuf[ch][:numSamples])
	}

	g.modules[conn.Destination].Process(trim(temp, len(block), numSamples))

	for ch := range block {
		vecmath.ScaleBlockInPlace(temp[ch][:numSamples], conn.Blend)
		vecmath.AddBlockInPlace(block[ch][:numSamples], temp[ch][:numSamples])
	}
}

// applyParallelMix processes the running signal through the destination
// and crossfades it against the dry copy.
func (g *Graph) applyParallelMix(p *Preset, conn *Connection, block [][]float64, numSamples int) {
	if g.bypassed(p, conn.Destination) {
		return
	}

	temp := g.tempBufs[conn.Destination]
	for ch := range block {
		copy(temp[ch][:numSamples], block[ch][:numSamples])
	}

	g.modules[conn.Destination].Process(trim(temp, len(block), numSamples))

	for ch := range block {
		vecmath.ScaleBlock(block[ch][:numSamples], g.dryBuf[ch][:numSamples], 1-conn.Blend)
		vecmath.ScaleBlockInPlace(temp[ch][:numSamples], conn.Blend)
		vecmath.AddBlockInPlace(block[ch][:numSamples], temp[ch][:numSamples])
	}
}

// applyFeedback mixes the previous block's stored output into the running
// signal with a smoothed, clamped gain, processes the destination, then
// lowpasses the result and stores it for the next block. The one-block
// delay is what keeps the per-block computation acyclic.
func (g *Graph) applyFeedback(p *Preset, conn *Connection, block [][]float64, numSamples int) {
	safeGain := core.Clamp(conn.FeedbackGain, 0, MaxFeedbackGain)
	g.fbGain.SetTarget(safeGain)
	gain := g.fbGainPool.Fill(0, g.fbGain, numSamples)

	for i := 0; i < numSamples; i++ {
		gi := gain.At(i)
		for ch := range block {
			block[ch][i] += g.fbBuf[ch][i] * gi
		}
	}

	g.processModule(p, conn.Destination, block)

	// Copy then filter the copy: the 8 kHz lowpass tames the loop without
	// darkening the direct output.
	for ch := range block {
		fb := g.fbBuf[ch][:numSamples]
		copy(fb, block[ch][:numSamples])
		g.fbLowpass[ch].ProcessBlock(fb)
	}
}

// applyCrossfeed folds the mid signal into both channels:
// L' = L*(1-a) + (L+R)/2*a, and symmetrically for R.
func (g *Graph) applyCrossfeed(conn *Connection, block [][]float64, numSamples int) {
	if len(block) < 2 {
		return
	}

	amount := core.Clamp(conn.Crossfeed, 0, 1)
	dry := 1 - amount
	left, right := block[0], block[1]

	for i := 0; i < numSamples; i++ {
		mid := 0.5 * (left[i] + right[i])
		l := left[i]*dry + mid*amount
		r := right[i]*dry + mid*amount
		left[i], right[i] = l, r
	}
}

// trim views the first channels/samples of a scratch block.
func trim(buf [][]float64, channels, numSamples int) [][]float64 {
	if channels > len(buf) {
		channels = len(buf)
	}

	out := buf[:channels]
	for ch := range out {
		out[ch] = out[ch][:numSamples]
	}

	return out
}

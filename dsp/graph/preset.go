package graph

// PresetID selects one of the built-in routing topologies.
type PresetID int

// Built-in presets.
const (
	// PresetClassicHall is the traditional chain: drive, diffuser, reverb,
	// spatial, tremble, output, with memory listening alongside.
	PresetClassicHall PresetID = iota
	// PresetSparse keeps only early diffusion: the reverb tail and
	// tremble are bypassed.
	PresetSparse
	// PresetFeedbackBloom routes the reverb output back into the diffuser
	// for slow regenerative swells.
	PresetFeedbackBloom
	// PresetParallelTriple runs diffuser, reverb, and tremble as parallel
	// branches over the dry signal.
	PresetParallelTriple
	// PresetShimmerDrift adds a feedback loop around the tremble stage
	// after the reverb.
	PresetShimmerDrift
	// PresetCrossweave narrows the image with crossfeed between the
	// diffusion and the tail.
	PresetCrossweave
	// PresetMemoryWash leans on the memory module: recall is injected
	// ahead of a long reverb and the dry path is diluted.
	PresetMemoryWash

	presetCount
)

var presetNames = map[PresetID]string{
	PresetClassicHall:    "classic-hall",
	PresetSparse:         "sparse",
	PresetFeedbackBloom:  "feedback-bloom",
	PresetParallelTriple: "parallel-triple",
	PresetShimmerDrift:   "shimmer-drift",
	PresetCrossweave:     "crossweave",
	PresetMemoryWash:     "memory-wash",
}

func (id PresetID) String() string {
	if name, ok := presetNames[id]; ok {
		return name
	}

	return "unknown"
}

// buildPreset constructs a built-in topology snapshot. The connection
// lists are fixed and known-valid, so no validation pass runs here.
func buildPreset(id PresetID) Preset {
	var p Preset
	p.Name = id.String()

	add := func(c Connection) {
		p.Connections[p.NumConnections] = c
		p.NumConnections++
	}

	series := func(src, dst ModuleID) {
		add(NewConnection(src, dst, ModeSeries))
	}

	switch id {
	case PresetSparse:
		series(ModuleDrive, ModuleDiffuser)
		series(ModuleDiffuser, ModuleSpatial)
		series(ModuleSpatial, ModuleOutput)
		p.Bypassed[ModuleReverb] = true
		p.Bypassed[ModuleTremble] = true

	case PresetFeedbackBloom:
		series(ModuleDrive, ModuleDiffuser)
		series(ModuleDiffuser, ModuleMemory)
		series(ModuleMemory, ModuleReverb)

		fb := NewConnection(ModuleReverb, ModuleDiffuser, ModeFeedback)
		fb.FeedbackGain = 0.35
		add(fb)

		series(ModuleReverb, ModuleSpatial)
		series(ModuleSpatial, ModuleOutput)

	case PresetParallelTriple:
		series(ModuleDrive, ModuleMemory)

		branch := func(dst ModuleID, blend float64) {
			c := NewConnection(ModuleDrive, dst, ModeParallel)
			c.Blend = blend
			add(c)
		}

		branch(ModuleDiffuser, 0.33)
		branch(ModuleReverb, 0.33)
		branch(ModuleTremble, 0.34)

		series(ModuleReverb, ModuleSpatial)
		series(ModuleSpatial, ModuleOutput)

	case PresetShimmerDrift:
		series(ModuleDrive, ModuleDiffuser)
		series(ModuleDiffuser, ModuleMemory)
		series(ModuleMemory, ModuleReverb)
		series(ModuleReverb, ModuleTremble)

		fb := NewConnection(ModuleTremble, ModuleReverb, ModeFeedback)
		fb.FeedbackGain = 0.4
		add(fb)

		series(ModuleTremble, ModuleOutput)

	case PresetCrossweave:
		series(ModuleDrive, ModuleDiffuser)

		cross := NewConnection(ModuleDiffuser, ModuleSpatial, ModeCrossfeed)
		cross.Crossfeed = 0.6
		add(cross)

		series(ModuleDiffuser, ModuleMemory)
		series(ModuleMemory, ModuleReverb)
		series(ModuleReverb, ModuleSpatial)
		series(ModuleSpatial, ModuleOutput)

	case PresetMemoryWash:
		series(ModuleDrive, ModuleMemory)

		mix := NewConnection(ModuleMemory, ModuleReverb, ModeParallelMix)
		mix.Blend = 0.8
		add(mix)

		series(ModuleReverb, ModuleSpatial)
		series(ModuleSpatial, ModuleOutput)

	case PresetClassicHall:
		fallthrough
	default:
		p.Name = PresetClassicHall.String()

		series(ModuleDrive, ModuleDiffuser)
		series(ModuleDiffuser, ModuleMemory)
		series(ModuleMemory, ModuleReverb)
		series(ModuleReverb, ModuleSpatial)
		series(ModuleSpatial, ModuleTremble)
		series(ModuleTremble, ModuleOutput)
	}

	return p
}

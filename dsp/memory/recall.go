package memory

import (
	"math"

	"github.com/cwbudde/algo-reverb/dsp/core"
)

// Process renders recall output for one block and, when injection is
// enabled, adds it into block ahead of the reverb core. The recall-only
// signal is always mirrored into the scratch buffer for RecallOutput.
// The four controls are rendered into per-sample views once per block;
// the sample loop reads values through them.
func (m *Module) Process(block [][]float64) {
	if m.pool == nil || len(block) == 0 || len(block[0]) == 0 {
		return
	}

	numSamples := len(block[0])

	if !m.primed {
		m.memory.Reset(m.memory.Target())
		m.depth.Reset(m.depth.Target())
		m.decay.Reset(m.decay.Target())
		m.drift.Reset(m.drift.Target())
		m.primed = true
	}

	recallReady := len(m.recallBuf[0]) >= numSamples
	if recallReady {
		for ch := range m.recallBuf {
			clear(m.recallBuf[ch][:numSamples])
		}
	}

	left := block[0]
	var right []float64
	if len(block) > 1 {
		right = block[1]
	}

	if m.cooldownSamples > 0 {
		m.cooldownSamples -= numSamples
		if m.cooldownSamples < 0 {
			m.cooldownSamples = 0
		}
	}

	memoryView := m.pool.Fill(slotMemory, m.memory, numSamples)
	depthView := m.pool.Fill(slotDepth, m.depth, numSamples)
	decayView := m.pool.Fill(slotDecay, m.decay, numSamples)
	driftView := m.pool.Fill(slotDrift, m.drift, numSamples)

	memoryAmount := core.Clamp(memoryView.At(0), 0, 1)
	depth := core.Clamp(depthView.At(0), 0, 1)
	decayAmount := core.Clamp(decayView.At(0), 0, 1)
	driftAmount := core.Clamp(driftView.At(0), 0, 1)

	if !m.freeze {
		m.maybeStartRecall(numSamples, memoryAmount, depth, decayAmount, driftAmount)
	}

	injectGain := m.injectGain.Load()

	for i := 0; i < numSamples; i++ {
		if i > 0 {
			memoryAmount = core.Clamp(memoryView.At(i), 0, 1)
			depth = core.Clamp(depthView.At(i), 0, 1)
			decayAmount = core.Clamp(decayView.At(i), 0, 1)
			driftAmount = core.Clamp(driftView.At(i), 0, 1)
		}

		m.memoryForCapture = memoryAmount
		m.memoryEnabled = memoryAmount > memoryEpsilon

		outL, outR := 0.0, 0.0

		switch {
		case m.memoryEnabled && m.state != StateIdle && !m.freeze:
			outL, outR = m.renderRecallSample(decayAmount)
		case !m.memoryEnabled:
			m.state = StateIdle
			m.samplesRemaining = 0
			m.envGain = 0
		}

		if recallReady {
			m.recallBuf[0][i] = outL
			m.recallBuf[1][i] = outR
		}

		if m.injectToBuffer && (outL != 0 || outR != 0) {
			left[i] += outL * injectGain
			if right != nil {
				right[i] += outR * injectGain
			}
		}
	}
}

// renderRecallSample produces one stereo sample of the active recall and
// advances its playhead, drift, and envelope.
func (m *Module) renderRecallSample(decayAmount float64) (outL, outR float64) {
	readPos := m.centerPos + m.playbackPos

	var sampleL, sampleR, age float64
	if m.usesLong {
		mono, a := m.readLong(readPos)
		sampleL, sampleR, age = mono, mono, a
	} else {
		sampleL, sampleR, age = m.readShort(readPos)
	}

	// Older fragments darken, saturate, and lose level.
	ageWeight := core.Clamp(age*(0.35+0.65*decayAmount), 0, 1)
	cutoff := recallLowpassMaxHz + (recallLowpassMinHz-recallLowpassMaxHz)*ageWeight
	lowpassCoeff := core.OnePoleCoeffHz(cutoff, m.sampleRate)

	m.lowpassStateL += lowpassCoeff * (sampleL - m.lowpassStateL)
	m.lowpassStateR += lowpassCoeff * (sampleR - m.lowpassStateR)
	sampleL = m.lowpassStateL
	sampleR = m.lowpassStateR

	drive := 1 + (recallSaturationDriveMax-1)*ageWeight
	if drive > 1.001 {
		norm := 1 / math.Tanh(drive)
		sampleL = math.Tanh(drive*sampleL) * norm
		sampleR = math.Tanh(drive*sampleR) * norm
	}

	gainErosion := 1 - recallAgeGainReductionMax*ageWeight
	if m.usesLong {
		gainErosion *= 0.9
	}

	gain := m.baseGain * m.envGain * gainErosion
	outL = core.Clamp(sampleL*gain, -1, 1)
	outR = core.Clamp(sampleR*gain, -1, 1)

	if m.driftCentsMax > 0 {
		m.driftUpdateLeft--
		if m.driftUpdateLeft <= 0 {
			m.driftUpdateLeft = m.driftUpdateLen
			m.driftTarget = (m.rng.Float64()*2 - 1) * m.driftCentsMax
		}

		m.driftCents = m.driftTarget + m.driftSlewCoeff*(m.driftCents-m.driftTarget)
	} else {
		m.driftCents = 0
	}

	driftRatio := math.Pow(2, m.driftCents/1200)
	m.playbackPos += m.playbackStep * driftRatio

	halfWidth := 0.5 * float64(m.widthSamples)
	if m.playbackPos > halfWidth {
		m.playbackPos = halfWidth
	} else if m.playbackPos < -halfWidth {
		m.playbackPos = -halfWidth
	}

	if m.state == StateFadeIn || m.state == StateFadeOut {
		m.envGain = core.Clamp(m.envGain+m.envGainStep, 0, 1)
	}

	m.samplesRemaining--
	if m.samplesRemaining <= 0 {
		m.advanceRecall()
	}

	return outL, outR
}

// maybeStartRecall rolls the per-block trigger. The probability scales
// with block duration over the memory-dependent interval, squared quiet
// weight, and the configured rate scale.
func (m *Module) maybeStartRecall(blockSamples int, memoryAmount, depth, decayAmount, driftAmount float64) {
	if m.state != StateIdle || m.cooldownSamples > 0 {
		return
	}

	if memoryAmount <= memoryEpsilon {
		return
	}

	quietFactor := core.Clamp((recallQuietThreshold-m.captureRms)/recallQuietThreshold, 0, 1)
	quietWeight := quietFactor * quietFactor
	if quietWeight <= 0 {
		return
	}

	intervalSeconds := recallIntervalMaxSeconds +
		(recallIntervalMinSeconds-recallIntervalMaxSeconds)*memoryAmount
	blockSeconds := float64(blockSamples) / m.sampleRate
	probability := blockSeconds / intervalSeconds * quietWeight * m.rateScale

	if m.rng.Float64() >= probability {
		return
	}

	longBias := depth * depth
	useLong := m.rng.Float64() < longBias

	longReady := m.longFilled >= m.longLen/4
	shortReady := m.shortFilled >= m.shortLen/4

	if useLong && !longReady {
		useLong = shortReady
	}

	if !useLong && !shortReady {
		useLong = longReady
	}

	if !longReady && !shortReady {
		return
	}

	m.startRecall(useLong, memoryAmount, decayAmount, driftAmount)
}

// startRecall scans candidate positions in the chosen buffer and starts
// the loudest one, or goes straight to cooldown when the whole scan sits
// below the probe floor.
func (m *Module) startRecall(useLong bool, memoryAmount, decayAmount, driftAmount float64) {
	m.usesLong = useLong
	m.state = StateFadeIn

	bufferLength := m.shortLen
	writePos := m.shortWrite
	filled := m.shortFilled
	widthMinMs, widthMaxMs := recallWidthMinMs, recallWidthMaxMs

	if useLong {
		bufferLength = m.longLen
		writePos = m.longWrite
		filled = m.longFilled
		widthMinMs, widthMaxMs = recallWidthLongMinMs, recallWidthLongMaxMs
	}

	widthMs := m.randomRange(widthMinMs, widthMaxMs)
	m.widthSamples = core.SecondsToSamples(widthMs/1000, m.sampleRate)

	filledNorm := float64(filled) / float64(bufferLength)
	maxDistance := core.Clamp(filledNorm, 0.2, 0.95)
	minDistance := math.Min(0.1, maxDistance*0.6)

	bestPeak := 0.0
	bestCenter := 0.0

	for candidate := 0; candidate < recallCandidates; candidate++ {
		r := m.rng.Float64()
		if useLong {
			// Square-law warp pushes long recalls toward older material.
			r = 1 - (1-r)*(1-r)
		}

		distanceNorm := minDistance + (maxDistance-minDistance)*r
		distanceSamples := distanceNorm * float64(bufferLength-1)

		center := float64(writePos) - distanceSamples
		if center < 0 {
			center += float64(bufferLength)
		}

		probePeak := 0.0
		for i := 0; i < recallProbesPerCandidate; i++ {
			t := float64(i) / float64(recallProbesPerCandidate-1)
			readPos := center + (t-0.5)*float64(m.widthSamples)

			if useLong {
				mono, _ := m.readLong(readPos)
				probePeak = math.Max(probePeak, math.Abs(mono))
			} else {
				l, r, _ := m.readShort(readPos)
				probePeak = math.Max(probePeak, math.Max(math.Abs(l), math.Abs(r)))
			}
		}

		if probePeak > bestPeak {
			bestPeak = probePeak
			bestCenter = center
		}
	}

	if bestPeak < recallProbeFloor {
		m.state = StateIdle
		m.cooldownSamples = core.SecondsToSamples(
			m.randomRange(recallCooldownMinSeconds, recallCooldownMaxSeconds), m.sampleRate)

		return
	}

	m.centerPos = bestCenter

	m.fadeInSamples = core.SecondsToSamples(
		m.randomRange(recallFadeMinSeconds, recallFadeMaxSeconds), m.sampleRate)
	m.holdSamples = core.SecondsToSamples(
		m.randomRange(recallHoldMinSeconds, recallHoldMaxSeconds), m.sampleRate)
	m.fadeOutSamples = core.SecondsToSamples(
		m.randomRange(recallFadeMinSeconds, recallFadeMaxSeconds), m.sampleRate)

	m.samplesRemaining = m.fadeInSamples
	m.totalSamples = m.fadeInSamples + m.holdSamples + m.fadeOutSamples

	m.envGain = 0
	m.envGainStep = 1 / float64(m.fadeInSamples)

	targetPeak := recallTargetPeakShort
	if useLong {
		targetPeak = recallTargetPeakLong
	}

	normalization := targetPeak / math.Max(bestPeak, recallProbeFloor)
	m.baseGain = core.Clamp(normalization*memoryAmount, 0, recallGainMax)
	m.baseGain *= 1 - 0.15*decayAmount
	if useLong {
		m.baseGain *= 0.9
	}

	m.playbackPos = -0.5 * float64(m.widthSamples)
	m.playbackStep = float64(m.widthSamples) / float64(m.totalSamples)

	m.lowpassStateL = 0
	m.lowpassStateR = 0

	m.driftCents = 0
	m.driftTarget = 0
	m.driftCentsMax = driftCentsMax * driftAmount
	if useLong {
		m.driftCentsMax *= 1.1
	}

	m.driftUpdateLeft = m.driftUpdateLen
}

// advanceRecall steps the envelope state machine.
func (m *Module) advanceRecall() {
	switch m.state {
	case StateFadeIn:
		m.state = StateHold
		m.samplesRemaining = m.holdSamples
		m.envGain = 1
		m.envGainStep = 0
	case StateHold:
		m.state = StateFadeOut
		m.samplesRemaining = m.fadeOutSamples
		m.envGainStep = -1 / float64(m.fadeOutSamples)
	default:
		m.state = StateIdle
		m.samplesRemaining = 0
		m.envGain = 0
		m.envGainStep = 0
		m.cooldownSamples = core.SecondsToSamples(
			m.randomRange(recallCooldownMinSeconds, recallCooldownMaxSeconds), m.sampleRate)
	}
}

func (m *Module) randomRange(minValue, maxValue float64) float64 {
	return minValue + (maxValue-minValue)*m.rng.Float64()
}

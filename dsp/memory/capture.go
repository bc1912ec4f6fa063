package memory

import (
	"math"

	"github.com/cwbudde/algo-reverb/dsp/core"
)

// CaptureWet folds one block of post-reverb wet audio into the memory
// buffers. Each buffer cell is scaled by the forget factor when the write
// head revisits it, then receives the new sample at the capture gain. The
// forget factors are derived from the -18 dB (short) and -45 dB (long)
// decay targets across each span. Capture is skipped entirely while
// memory sits below the activation epsilon.
func (m *Module) CaptureWet(block [][]float64) {
	if m.memoryForCapture <= memoryEpsilon {
		return
	}

	if len(block) == 0 || len(block[0]) == 0 || m.shortLen == 0 {
		return
	}

	left := block[0]
	right := left
	if len(block) > 1 {
		right = block[1]
	}

	captureScale := core.Clamp(m.memoryForCapture, 0, 1)
	if m.freeze {
		captureScale *= freezeCaptureScale
	}

	shortGain := shortCaptureGain * captureScale
	longGain := longCaptureGain * captureScale

	shortL, shortR := m.shortBuf[0], m.shortBuf[1]
	longData := m.longBuf

	sumSquares := 0.0

	for i := range left {
		inL := core.ClampFinite(left[i])
		inR := core.ClampFinite(right[i])
		mono := 0.5 * (inL + inR)

		shortL[m.shortWrite] = shortL[m.shortWrite]*m.shortForget + inL*shortGain
		shortR[m.shortWrite] = shortR[m.shortWrite]*m.shortForget + inR*shortGain
		longData[m.longWrite] = longData[m.longWrite]*m.longForget + mono*longGain

		sumSquares += mono * mono

		m.shortWrite++
		if m.shortWrite >= m.shortLen {
			m.shortWrite = 0
		}

		m.longWrite++
		if m.longWrite >= m.longLen {
			m.longWrite = 0
		}

		if m.shortFilled < m.shortLen {
			m.shortFilled++
		}

		if m.longFilled < m.longLen {
			m.longFilled++
		}
	}

	// The smoothing coefficient accounts for the block length so the gate
	// tracks a true 250 ms window regardless of block size.
	rms := math.Sqrt(sumSquares / float64(len(left)))
	coeff := math.Exp(-float64(len(left)) / m.captureRmsTau)
	m.captureRms = coeff*m.captureRms + (1-coeff)*rms
}

// readShort reads the stereo short buffer with linear interpolation and
// wraparound. age is the normalized distance behind the write head.
func (m *Module) readShort(readPos float64) (l, r, age float64) {
	if m.shortLen <= 0 {
		return 0, 0, 0
	}

	pos := readPos
	length := float64(m.shortLen)

	if pos < 0 {
		pos += length
	} else if pos >= length {
		pos -= length
	}

	idx0 := int(pos)
	idx1 := idx0 + 1
	if idx1 >= m.shortLen {
		idx1 = 0
	}

	frac := pos - float64(idx0)

	l0, r0 := m.shortBuf[0][idx0], m.shortBuf[1][idx0]
	l1, r1 := m.shortBuf[0][idx1], m.shortBuf[1][idx1]

	l = l0 + (l1-l0)*frac
	r = r0 + (r1-r0)*frac

	distance := float64(m.shortWrite) - pos
	if distance < 0 {
		distance += length
	}

	age = core.Clamp(distance/length, 0, 1)

	return l, r, age
}

// readLong reads the mono long buffer with linear interpolation.
func (m *Module) readLong(readPos float64) (sample, age float64) {
	if m.longLen <= 0 {
		return 0, 0
	}

	pos := readPos
	length := float64(m.longLen)

	if pos < 0 {
		pos += length
	} else if pos >= length {
		pos -= length
	}

	idx0 := int(pos)
	idx1 := idx0 + 1
	if idx1 >= m.longLen {
		idx1 = 0
	}

	frac := pos - float64(idx0)
	s0, s1 := m.longBuf[idx0], m.longBuf[idx1]

	distance := float64(m.longWrite) - pos
	if distance < 0 {
		distance += length
	}

	age = core.Clamp(distance/length, 0, 1)

	return s0 + (s1-s0)*frac, age
}

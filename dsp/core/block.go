package core

// Audio blocks are channel-major, non-interleaved: block[ch][sample].
// All per-block helpers below are allocation-free except NewBlock.

// NewBlock returns a zero-filled audio block with the given channel count
// and length, backed by a single contiguous allocation.
func NewBlock(channels, samples int) [][]float64 {
	if channels < 0 {
		channels = 0
	}
	if samples < 0 {
		samples = 0
	}

	backing := make([]float64, channels*samples)
	block := make([][]float64, channels)
	for ch := range block {
		block[ch] = backing[ch*samples : (ch+1)*samples]
	}

	return block
}

// ZeroBlock sets every sample in block to 0.
func ZeroBlock(block [][]float64) {
	for ch := range block {
		for i := range block[ch] {
			block[ch][i] = 0
		}
	}
}

// CopyBlock copies src into dst channel by channel, limited to the shorter
// channel count and length per channel.
func CopyBlock(dst, src [][]float64) {
	n := len(dst)
	if len(src) < n {
		n = len(src)
	}
	for ch := 0; ch < n; ch++ {
		CopyInto(dst[ch], src[ch])
	}
}

// EnsureLen returns a slice with the requested length, reusing buf capacity if possible.
func EnsureLen(buf []float64, n int) []float64 {
	if n <= 0 {
		return buf[:0]
	}
	if cap(buf) >= n {
		return buf[:n]
	}
	return make([]float64, n)
}

// Zero sets all values in buf to 0.
func Zero(buf []float64) {
	for i := range buf {
		buf[i] = 0
	}
}

// CopyInto copies src into dst and returns the number of copied elements.
func CopyInto(dst, src []float64) int {
	n := len(dst)
	if len(src) < n {
		n = len(src)
	}
	copy(dst[:n], src[:n])
	return n
}

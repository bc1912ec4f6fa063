package param

// View is a read-only handle onto one parameter for the current block.
// It is passed by value and is valid only for the block it was built for.
type View struct {
	data      []float64
	constant  float64
	perSample bool
}

// PerSample wraps a per-sample value array. The caller keeps ownership of
// data; the slice must outlive the block being processed.
func PerSample(data []float64) View {
	return View{data: data, perSample: true}
}

// Constant wraps a single block-rate value.
func Constant(value float64) View {
	return View{constant: value}
}

// At returns the parameter value at the given sample index. Constant views
// return the same value for every index. The index is not bounds-checked
// beyond what the backing slice enforces.
func (v View) At(i int) float64 {
	if v.perSample {
		return v.data[i]
	}

	return v.constant
}

// PerSampleLen returns the backing array length, or 0 for constant views.
func (v View) PerSampleLen() int {
	if !v.perSample {
		return 0
	}

	return len(v.data)
}

// IsPerSample reports whether the view reads a per-sample array.
func (v View) IsPerSample() bool {
	return v.perSample
}

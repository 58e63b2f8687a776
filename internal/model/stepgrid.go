package model

// StepGrid is a fixed-length on/off step pattern. It drives the fallback
// waveform drawing and the step metadata export only; it is not audio.
type StepGrid []bool

// NewStepGrid returns an all-off grid of n steps.
func NewStepGrid(n int) StepGrid {
	if n < 0 {
		n = 0
	}
	return make(StepGrid, n)
}

// Clone copies the grid.
func (g StepGrid) Clone() StepGrid {
	if g == nil {
		return nil
	}
	out := make(StepGrid, len(g))
	copy(out, g)
	return out
}

// Active returns the indices of the steps that are on.
func (g StepGrid) Active() []int {
	var out []int
	for i, on := range g {
		if on {
			out = append(out, i)
		}
	}
	return out
}

// Resize returns a grid of n steps, truncating or padding with off steps.
func (g StepGrid) Resize(n int) StepGrid {
	out := NewStepGrid(n)
	copy(out, g)
	return out
}

// Waveform returns width peak values in [0,1] that sketch the grid as a
// decaying hit per active step, for blocks whose sample is not loaded.
func (g StepGrid) Waveform(width int) []float32 {
	if width <= 0 {
		return nil
	}
	out := make([]float32, width)
	if len(g) == 0 {
		return out
	}
	stepWidth := float64(width) / float64(len(g))
	for _, step := range g.Active() {
		start := int(float64(step) * stepWidth)
		end := int(float64(step+1) * stepWidth)
		if end <= start {
			end = start + 1
		}
		for x := start; x < end && x < width; x++ {
			// linear decay across the step
			v := float32(1 - float64(x-start)/float64(end-start))
			if v > out[x] {
				out[x] = v
			}
		}
	}
	return out
}

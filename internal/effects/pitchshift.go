package effects

import "math"

// PitchShift transposes audio without changing its length. Two taps sweep
// through a short delay line half a window apart and are crossfaded with
// triangular windows, so one tap is always silent while it wraps.
type PitchShift struct {
	bufL, bufR []float32
	pos        int
	size       int
	window     float64 // sweep length in samples
	step       float64 // phase change per sample
	phase      float64
}

// NewPitchShift creates a shifter transposing by semitones, using a sweep
// window of windowMs milliseconds (30-100ms is typical).
func NewPitchShift(sampleRate int, semitones, windowMs float64) *PitchShift {
	window := windowMs * float64(sampleRate) / 1000
	if window < 4 {
		window = 4
	}
	size := int(window) + 4
	ratio := math.Pow(2, semitones/12)
	return &PitchShift{
		bufL:   make([]float32, size),
		bufR:   make([]float32, size),
		size:   size,
		window: window,
		step:   (1 - ratio) / window,
	}
}

func (p *PitchShift) Process(l, r float32) (float32, float32) {
	p.bufL[p.pos] = l
	p.bufR[p.pos] = r

	p.phase += p.step
	p.phase -= math.Floor(p.phase)

	var outL, outR float32
	for _, shift := range [2]float64{0, 0.5} {
		ph := p.phase + shift
		ph -= math.Floor(ph)
		g := float32(1 - math.Abs(2*ph-1))
		dl, dr := p.read(ph*p.window + 1)
		outL += dl * g
		outR += dr * g
	}

	p.pos++
	if p.pos >= p.size {
		p.pos = 0
	}
	return outL, outR
}

// read returns the samples delay frames behind the write head.
func (p *PitchShift) read(delay float64) (float32, float32) {
	readPos := float64(p.pos) - delay
	for readPos < 0 {
		readPos += float64(p.size)
	}
	idx := int(readPos)
	frac := float32(readPos - float64(idx))
	idx2 := idx + 1
	if idx2 >= p.size {
		idx2 = 0
	}
	return p.bufL[idx]*(1-frac) + p.bufL[idx2]*frac,
		p.bufR[idx]*(1-frac) + p.bufR[idx2]*frac
}

func (p *PitchShift) Reset() {
	for i := range p.bufL {
		p.bufL[i] = 0
		p.bufR[i] = 0
	}
	p.pos = 0
	p.phase = 0
}

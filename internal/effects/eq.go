package effects

import "math"

// Band centre frequencies of the track EQ.
const (
	LowShelfHz  = 200
	MidPeakHz   = 1000
	HighShelfHz = 4000
)

type biquadKind int

const (
	lowShelf biquadKind = iota
	peaking
	highShelf
)

// biquad is a stereo direct form I filter with RBJ cookbook coefficients.
type biquad struct {
	b0, b1, b2, a1, a2 float64
	xl1, xl2, yl1, yl2 float64
	xr1, xr2, yr1, yr2 float64
}

func newBiquad(kind biquadKind, sampleRate int, freq, q, gainDB float64) *biquad {
	a := math.Pow(10, gainDB/40)
	w0 := 2 * math.Pi * freq / float64(sampleRate)
	cosw, sinw := math.Cos(w0), math.Sin(w0)
	alpha := sinw / (2 * q)
	sqA := 2 * math.Sqrt(a) * alpha

	var b0, b1, b2, a0, a1, a2 float64
	switch kind {
	case lowShelf:
		b0 = a * ((a + 1) - (a-1)*cosw + sqA)
		b1 = 2 * a * ((a - 1) - (a+1)*cosw)
		b2 = a * ((a + 1) - (a-1)*cosw - sqA)
		a0 = (a + 1) + (a-1)*cosw + sqA
		a1 = -2 * ((a - 1) + (a+1)*cosw)
		a2 = (a + 1) + (a-1)*cosw - sqA
	case highShelf:
		b0 = a * ((a + 1) + (a-1)*cosw + sqA)
		b1 = -2 * a * ((a - 1) + (a+1)*cosw)
		b2 = a * ((a + 1) + (a-1)*cosw - sqA)
		a0 = (a + 1) - (a-1)*cosw + sqA
		a1 = 2 * ((a - 1) - (a+1)*cosw)
		a2 = (a + 1) - (a-1)*cosw - sqA
	default:
		b0 = 1 + alpha*a
		b1 = -2 * cosw
		b2 = 1 - alpha*a
		a0 = 1 + alpha/a
		a1 = -2 * cosw
		a2 = 1 - alpha/a
	}
	return &biquad{b0: b0 / a0, b1: b1 / a0, b2: b2 / a0, a1: a1 / a0, a2: a2 / a0}
}

func (f *biquad) Process(l, r float32) (float32, float32) {
	x := float64(l)
	y := f.b0*x + f.b1*f.xl1 + f.b2*f.xl2 - f.a1*f.yl1 - f.a2*f.yl2
	f.xl2, f.xl1 = f.xl1, x
	f.yl2, f.yl1 = f.yl1, y
	outL := y

	x = float64(r)
	y = f.b0*x + f.b1*f.xr1 + f.b2*f.xr2 - f.a1*f.yr1 - f.a2*f.yr2
	f.xr2, f.xr1 = f.xr1, x
	f.yr2, f.yr1 = f.yr1, y
	return float32(outL), float32(y)
}

func (f *biquad) Reset() {
	f.xl1, f.xl2, f.yl1, f.yl2 = 0, 0, 0, 0
	f.xr1, f.xr2, f.yr1, f.yr2 = 0, 0, 0, 0
}

// EQ3Band is a low shelf, mid peak and high shelf in series. Gains are in
// dB; 0 dB on every band passes the signal unchanged.
type EQ3Band struct {
	low, mid, high *biquad
}

// NewEQ3Band creates a 3-band EQ at the standard band frequencies.
func NewEQ3Band(sampleRate int, lowDB, midDB, highDB float64) *EQ3Band {
	return &EQ3Band{
		low:  newBiquad(lowShelf, sampleRate, LowShelfHz, math.Sqrt2/2, lowDB),
		mid:  newBiquad(peaking, sampleRate, MidPeakHz, 1, midDB),
		high: newBiquad(highShelf, sampleRate, HighShelfHz, math.Sqrt2/2, highDB),
	}
}

func (eq *EQ3Band) Process(l, r float32) (float32, float32) {
	l, r = eq.low.Process(l, r)
	l, r = eq.mid.Process(l, r)
	return eq.high.Process(l, r)
}

func (eq *EQ3Band) Reset() {
	eq.low.Reset()
	eq.mid.Reset()
	eq.high.Reset()
}

package effects

import (
	"math"

	"github.com/viterin/vek/vek32"
)

// Gain scales both channels.
type Gain struct {
	level float32
}

func NewGain(level float32) *Gain {
	if level < 0 {
		level = 0
	}
	return &Gain{level: level}
}

func (g *Gain) Process(l, r float32) (float32, float32) {
	return l * g.level, r * g.level
}

func (g *Gain) ProcessBlock(l, r []float32) {
	vek32.MulNumber_Inplace(l, g.level)
	vek32.MulNumber_Inplace(r, g.level)
}

func (g *Gain) Reset() {}

// Pan is an equal-power stereo panner. -1 folds everything into the left
// channel, 1 into the right, 0 passes the input through.
type Pan struct {
	pos          float32
	gainL, gainR float32
}

func NewPan(pos float32) *Pan {
	pos = clamp(pos, -1, 1)
	x := float64(pos)
	if pos <= 0 {
		x += 1
	}
	return &Pan{
		pos:   pos,
		gainL: float32(math.Cos(x * math.Pi / 2)),
		gainR: float32(math.Sin(x * math.Pi / 2)),
	}
}

func (p *Pan) Process(l, r float32) (float32, float32) {
	if p.pos <= 0 {
		return l + r*p.gainL, r * p.gainR
	}
	return l * p.gainL, r + l*p.gainR
}

func (p *Pan) Reset() {}

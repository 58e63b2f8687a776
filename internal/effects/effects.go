// Package effects holds the per-track processing stages: gain, pan, a
// three band EQ and a pitch shifter, assembled into a Chain.
package effects

// Effector processes stereo audio one frame at a time.
type Effector interface {
	Process(l, r float32) (float32, float32)
	Reset()
}

// BlockEffector is an Effector with a faster path for whole blocks.
type BlockEffector interface {
	Effector
	ProcessBlock(l, r []float32)
}

// Chain applies a sequence of effects in order.
type Chain struct {
	effects []Effector
}

func NewChain(effects ...Effector) *Chain {
	return &Chain{effects: effects}
}

func (c *Chain) Process(l, r float32) (float32, float32) {
	for _, e := range c.effects {
		l, r = e.Process(l, r)
	}
	return l, r
}

// ProcessBlock runs l and r (equal length) through every stage in place,
// one stage at a time.
func (c *Chain) ProcessBlock(l, r []float32) {
	for _, e := range c.effects {
		if b, ok := e.(BlockEffector); ok {
			b.ProcessBlock(l, r)
			continue
		}
		for i := range l {
			l[i], r[i] = e.Process(l[i], r[i])
		}
	}
}

func (c *Chain) Reset() {
	for _, e := range c.effects {
		e.Reset()
	}
}

func (c *Chain) Add(e Effector) {
	c.effects = append(c.effects, e)
}

// Len returns the number of stages.
func (c *Chain) Len() int {
	return len(c.effects)
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

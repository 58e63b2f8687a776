// Package generator builds "drop" variations of an arrangement: each block is
// kept whole, cut to its first half (build), its second half (drop), or split
// into two halves (breakdown), with occasional structural cuts at a fixed bar.
package generator

import (
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/cbegin/arrange-go/internal/layout"
	"github.com/cbegin/arrange-go/internal/model"
)

// Variant is the treatment drawn for one block.
type Variant int

const (
	Full Variant = iota
	Build
	Drop
	Breakdown
)

var variantNames = [...]string{"full", "build", "drop", "breakdown"}

func (v Variant) String() string {
	if v < Full || v > Breakdown {
		return "unknown"
	}
	return variantNames[v]
}

// Defaults for Config.
const (
	DefaultCutProbability       = 0.30
	DefaultTrackDropProbability = 0.40
	DefaultCutBar               = 8
	DefaultBaseBlockBars        = 8
)

// Config holds the probabilities and bar positions of the generator.
type Config struct {
	CutProbability       float64 // chance of truncating blocks that cross CutBar
	TrackDropProbability float64 // per-track chance of deleting blocks from CutBar on
	CutBar               int
	BaseBlockBars        int // size of the base blocks made for an empty selection
}

// DefaultConfig returns the stock generator settings.
func DefaultConfig() Config {
	return Config{
		CutProbability:       DefaultCutProbability,
		TrackDropProbability: DefaultTrackDropProbability,
		CutBar:               DefaultCutBar,
		BaseBlockBars:        DefaultBaseBlockBars,
	}
}

// Generator draws variations. It is not safe for concurrent use.
type Generator struct {
	cfg   Config
	rng   *rand.Rand
	newID func() string
}

// New creates a generator. A nil seed gives a different sequence per
// generator; a seed makes every draw reproducible.
func New(cfg Config, seed *uint64) *Generator {
	var src rand.Source
	if seed != nil {
		src = rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15)
	} else {
		src = rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64())
	}
	if cfg.CutBar < 2 {
		cfg.CutBar = DefaultCutBar
	}
	if cfg.BaseBlockBars < 1 {
		cfg.BaseBlockBars = DefaultBaseBlockBars
	}
	return &Generator{cfg: cfg, rng: rand.New(src), newID: uuid.NewString}
}

// Result describes the edit to apply: remove the listed blocks, add the new
// ones and make sure the ceiling is at least TotalBars.
type Result struct {
	Remove    []string
	Add       []model.PatternBlock
	TotalBars int
	Variants  map[string]Variant // by source block id (or base block id)
	Cut       bool
	Dropped   []string // tracks that lost every block from CutBar on
}

// Apply varies the selected blocks of arr. With an empty selection, base
// blocks tiling every track up to the ceiling are generated and varied
// instead, and nothing existing is removed.
func (g *Generator) Apply(arr model.Arrangement, selection []string) Result {
	res := Result{Variants: make(map[string]Variant)}
	var input []model.PatternBlock
	if len(selection) == 0 {
		input = g.baseBlocks(arr)
	} else {
		want := make(map[string]bool, len(selection))
		for _, id := range selection {
			want[id] = true
		}
		for _, b := range arr.Blocks {
			if want[b.ID] {
				input = append(input, b.Clone())
				res.Remove = append(res.Remove, b.ID)
			}
		}
	}

	var out []model.PatternBlock
	for _, b := range input {
		v := Variant(g.rng.IntN(4))
		res.Variants[b.ID] = v
		out = append(out, g.vary(b, v)...)
	}

	if g.rng.Float64() < g.cfg.CutProbability {
		res.Cut = true
		out = g.cutAt(out)
	}

	for _, t := range tracksOf(out) {
		if g.rng.Float64() < g.cfg.TrackDropProbability {
			res.Dropped = append(res.Dropped, t)
			out = dropFrom(out, t, g.cfg.CutBar)
		}
	}

	res.Add = out
	res.TotalBars = arr.TotalBars
	for _, b := range out {
		if e := b.EndBar(); e > res.TotalBars {
			res.TotalBars = e
		}
	}
	return res
}

func (g *Generator) baseBlocks(arr model.Arrangement) []model.PatternBlock {
	var out []model.PatternBlock
	for _, t := range arr.Tracks {
		for start := 1; start <= arr.TotalBars; start += g.cfg.BaseBlockBars {
			d := g.cfg.BaseBlockBars
			if start+d-1 > arr.TotalBars {
				d = arr.TotalBars - start + 1
			}
			out = append(out, model.PatternBlock{
				ID:        g.newID(),
				Name:      t.Name,
				TrackID:   t.ID,
				StartBar:  start,
				Duration:  d,
				Steps:     t.Steps.Clone(),
				BPM:       arr.BPM,
				StepCount: arr.StepsPerPattern,
				Color:     t.Color,
			})
		}
	}
	return out
}

func (g *Generator) vary(b model.PatternBlock, v Variant) []model.PatternBlock {
	half := b.Duration / 2
	switch v {
	case Build:
		if half < 1 {
			return []model.PatternBlock{g.renew(b)}
		}
		out := g.renew(b)
		out.Duration = half
		out.Name = b.Name + " Build"
		return []model.PatternBlock{out}
	case Drop:
		if half < 1 {
			return []model.PatternBlock{g.renew(b)}
		}
		out := g.renew(b)
		out.StartBar = b.StartBar + half
		out.Duration = b.Duration - half
		out.Name = b.Name + " Drop"
		return []model.PatternBlock{out}
	case Breakdown:
		if half < 1 {
			return []model.PatternBlock{g.renew(b)}
		}
		a, bb := layout.SplitBlock(b, half, g.newID)
		a.Name, bb.Name = b.Name+" A", b.Name+" B"
		return []model.PatternBlock{a, bb}
	default:
		return []model.PatternBlock{g.renew(b)}
	}
}

func (g *Generator) renew(b model.PatternBlock) model.PatternBlock {
	out := b.Clone()
	out.ID = g.newID()
	return out
}

// cutAt truncates blocks that run across the cut bar so they end just
// before it.
func (g *Generator) cutAt(blocks []model.PatternBlock) []model.PatternBlock {
	bar := g.cfg.CutBar
	for i, b := range blocks {
		if b.StartBar < bar && b.EndBar() >= bar {
			blocks[i].Duration = bar - b.StartBar
		}
	}
	return blocks
}

func dropFrom(blocks []model.PatternBlock, trackID string, bar int) []model.PatternBlock {
	out := blocks[:0]
	for _, b := range blocks {
		if b.TrackID == trackID && b.StartBar >= bar {
			continue
		}
		out = append(out, b)
	}
	return out
}

func tracksOf(blocks []model.PatternBlock) []string {
	seen := make(map[string]bool)
	var out []string
	for _, b := range blocks {
		if !seen[b.TrackID] {
			seen[b.TrackID] = true
			out = append(out, b.TrackID)
		}
	}
	return out
}

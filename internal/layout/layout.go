package layout

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/math"

	"github.com/cbegin/arrange-go/internal/model"
)

// Edge selects which side of a block Resize drags.
type Edge int

const (
	EdgeLeft Edge = iota
	EdgeRight
)

// DuplicateOffset is how far BulkDuplicate shifts each clone, in bars.
const DuplicateOffset = 8

// TruncatedSuffix marks blocks shortened by a ceiling change.
const TruncatedSuffix = " (truncated)"

var (
	ErrUnknownBlock = errors.New("unknown pattern block")
	ErrUnknownTrack = errors.New("unknown track")
	ErrDuplicateID  = errors.New("duplicate track id")
	ErrCannotSplit  = errors.New("pattern must be at least 2 bars to split")
	ErrInvalidRange = errors.New("invalid export marker range")
)

// Listener receives a snapshot after every successful operation.
type Listener func(model.Arrangement)

// Engine owns the arrangement and applies layout operations atomically.
// Every operation works on a copy, validates it and only then swaps it in,
// so a failed operation leaves the arrangement untouched.
type Engine struct {
	mu        sync.Mutex
	arr       model.Arrangement
	listeners []Listener
	newID     func() string
}

// New creates an engine over arr, which must satisfy the model invariants.
func New(arr model.Arrangement) (*Engine, error) {
	if err := arr.Validate(); err != nil {
		return nil, err
	}
	return &Engine{arr: arr.Clone(), newID: uuid.NewString}, nil
}

// Subscribe registers fn to be called with each new snapshot.
func (e *Engine) Subscribe(fn Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// Snapshot returns a copy of the current arrangement.
func (e *Engine) Snapshot() model.Arrangement {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.arr.Clone()
}

func (e *Engine) update(fn func(a *model.Arrangement) error) error {
	e.mu.Lock()
	next := e.arr.Clone()
	if err := fn(&next); err != nil {
		e.mu.Unlock()
		return err
	}
	if err := next.Validate(); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("layout invariant violated: %w", err)
	}
	e.arr = next
	listeners := append([]Listener(nil), e.listeners...)
	e.mu.Unlock()
	for _, l := range listeners {
		l(next.Clone())
	}
	return nil
}

func indexOf(a *model.Arrangement, id string) (int, error) {
	for i, b := range a.Blocks {
		if b.ID == id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %s", ErrUnknownBlock, id)
}

// Place creates a block for trackID covering duration bars from startBar.
// It snapshots the track's step grid and the current tempo.
func (e *Engine) Place(trackID string, startBar, duration int) (model.PatternBlock, error) {
	var placed model.PatternBlock
	err := e.update(func(a *model.Arrangement) error {
		tr, ok := a.Track(trackID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownTrack, trackID)
		}
		b := model.PatternBlock{
			ID:        e.newID(),
			Name:      tr.Name,
			TrackID:   tr.ID,
			StartBar:  startBar,
			Duration:  duration,
			Steps:     tr.Steps.Clone(),
			BPM:       a.BPM,
			StepCount: a.StepsPerPattern,
			Color:     tr.Color,
		}
		if err := b.Validate(a.TotalBars); err != nil {
			return err
		}
		a.Blocks = append(a.Blocks, b)
		placed = b.Clone()
		return nil
	})
	return placed, err
}

// Move shifts a block to newStartBar, clamped to the timeline.
func (e *Engine) Move(id string, newStartBar int) error {
	return e.update(func(a *model.Arrangement) error {
		i, err := indexOf(a, id)
		if err != nil {
			return err
		}
		b := &a.Blocks[i]
		start := math.Max(1, newStartBar)
		b.StartBar = math.Max(1, math.Min(start, a.TotalBars-b.Duration+1))
		return nil
	})
}

// Resize drags one edge of a block by delta bars. The left edge moves the
// start and changes the duration inversely; the right edge changes only the
// duration. Durations never drop below one bar.
func (e *Engine) Resize(id string, edge Edge, delta int) error {
	return e.update(func(a *model.Arrangement) error {
		i, err := indexOf(a, id)
		if err != nil {
			return err
		}
		b := &a.Blocks[i]
		end := b.EndBar()
		switch edge {
		case EdgeLeft:
			start := math.Min(math.Max(1, b.StartBar+delta), end)
			b.StartBar = start
			b.Duration = end - start + 1
		case EdgeRight:
			d := math.Max(1, b.Duration+delta)
			b.Duration = math.Min(d, a.TotalBars-b.StartBar+1)
		default:
			return fmt.Errorf("unknown edge %d", edge)
		}
		return nil
	})
}

// Duplicate places a copy of the block right after its end bar.
func (e *Engine) Duplicate(id string) (model.PatternBlock, error) {
	var clone model.PatternBlock
	err := e.update(func(a *model.Arrangement) error {
		i, err := indexOf(a, id)
		if err != nil {
			return err
		}
		c := a.Blocks[i].Clone()
		c.ID = e.newID()
		c.StartBar = a.Blocks[i].EndBar() + 1
		if err := c.Validate(a.TotalBars); err != nil {
			return err
		}
		a.Blocks = append(a.Blocks, c)
		clone = c.Clone()
		return nil
	})
	return clone, err
}

// Split replaces a block with its first floor(d/2) bars and the remainder.
func (e *Engine) Split(id string) ([2]model.PatternBlock, error) {
	var halves [2]model.PatternBlock
	err := e.update(func(a *model.Arrangement) error {
		i, err := indexOf(a, id)
		if err != nil {
			return err
		}
		b := a.Blocks[i]
		if b.Duration < 2 {
			return ErrCannotSplit
		}
		first, second := SplitBlock(b, b.Duration/2, e.newID)
		first.Name, second.Name = b.Name+" 1", b.Name+" 2"
		a.Blocks[i] = first
		a.Blocks = insertAt(a.Blocks, i+1, second)
		halves = [2]model.PatternBlock{first.Clone(), second.Clone()}
		return nil
	})
	return halves, err
}

// SplitBlock cuts b after its first n bars into two new blocks with fresh ids.
// n must be in [1, b.Duration-1].
func SplitBlock(b model.PatternBlock, n int, newID func() string) (model.PatternBlock, model.PatternBlock) {
	first := b.Clone()
	first.ID = newID()
	first.Duration = n
	second := b.Clone()
	second.ID = newID()
	second.StartBar = b.StartBar + n
	second.Duration = b.Duration - n
	return first, second
}

func insertAt(blocks []model.PatternBlock, i int, b model.PatternBlock) []model.PatternBlock {
	blocks = append(blocks, model.PatternBlock{})
	copy(blocks[i+1:], blocks[i:])
	blocks[i] = b
	return blocks
}

// Remove deletes one block.
func (e *Engine) Remove(id string) error {
	return e.BulkRemove([]string{id})
}

// BulkRemove deletes every listed block. Unknown ids fail the whole call.
func (e *Engine) BulkRemove(ids []string) error {
	return e.update(func(a *model.Arrangement) error {
		drop := make(map[string]bool, len(ids))
		for _, id := range ids {
			if _, err := indexOf(a, id); err != nil {
				return err
			}
			drop[id] = true
		}
		kept := a.Blocks[:0]
		for _, b := range a.Blocks {
			if !drop[b.ID] {
				kept = append(kept, b)
			}
		}
		a.Blocks = kept
		return nil
	})
}

// BulkDuplicate clones every listed block DuplicateOffset bars later.
// Clones that would not fit under the ceiling are skipped; the returned
// error then wraps model.ErrExceedsTimeline with the count.
func (e *Engine) BulkDuplicate(ids []string) ([]model.PatternBlock, error) {
	var clones []model.PatternBlock
	skipped := 0
	err := e.update(func(a *model.Arrangement) error {
		for _, id := range ids {
			i, err := indexOf(a, id)
			if err != nil {
				return err
			}
			c := a.Blocks[i].Clone()
			c.ID = e.newID()
			c.StartBar += DuplicateOffset
			if c.Validate(a.TotalBars) != nil {
				skipped++
				continue
			}
			clones = append(clones, c)
		}
		a.Blocks = append(a.Blocks, clones...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		return clones, fmt.Errorf("%w: %d of %d copies skipped", model.ErrExceedsTimeline, skipped, len(ids))
	}
	return clones, nil
}

// Rename changes a block's display name.
func (e *Engine) Rename(id, name string) error {
	return e.update(func(a *model.Arrangement) error {
		i, err := indexOf(a, id)
		if err != nil {
			return err
		}
		a.Blocks[i].Name = name
		return nil
	})
}

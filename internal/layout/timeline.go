package layout

import (
	"fmt"

	"github.com/pkg/math"

	"github.com/cbegin/arrange-go/internal/model"
)

// ClipReport lists the blocks changed by a ceiling change.
type ClipReport struct {
	Clipped []string
	Dropped []string
}

// Clip applies the ceiling n to blocks: blocks starting past n are dropped,
// blocks ending past n are shortened to end at n and renamed.
func Clip(blocks []model.PatternBlock, n int) ([]model.PatternBlock, ClipReport) {
	var rep ClipReport
	out := make([]model.PatternBlock, 0, len(blocks))
	for _, b := range blocks {
		switch {
		case b.StartBar > n:
			rep.Dropped = append(rep.Dropped, b.ID)
			continue
		case b.EndBar() > n:
			b.Duration = n - b.StartBar + 1
			b.Name += TruncatedSuffix
			rep.Clipped = append(rep.Clipped, b.ID)
		}
		out = append(out, b)
	}
	return out, rep
}

// ClipToCeiling sets the timeline ceiling to n and clips every block to it.
func (e *Engine) ClipToCeiling(n int) (ClipReport, error) {
	var rep ClipReport
	err := e.update(func(a *model.Arrangement) error {
		if n < 1 {
			return model.ErrInvalidBars
		}
		a.TotalBars = n
		a.Blocks, rep = Clip(a.Blocks, n)
		if a.Markers.StartBar > n {
			a.Markers = model.ExportMarkers{}
		} else if a.Markers.EndBar > n {
			a.Markers.EndBar = n
		}
		return nil
	})
	return rep, err
}

// SetTotalBars changes the ceiling; shrinking triggers the clipping pass.
func (e *Engine) SetTotalBars(n int) (ClipReport, error) {
	return e.ClipToCeiling(n)
}

// SetBPM changes the global tempo. Blocks keep the tempo they were made at.
func (e *Engine) SetBPM(bpm float64) error {
	return e.update(func(a *model.Arrangement) error {
		if bpm <= 0 {
			return model.ErrInvalidBPM
		}
		a.BPM = bpm
		return nil
	})
}

// SetMasterVolume sets the master gain applied on top of track volumes.
func (e *Engine) SetMasterVolume(v float64) error {
	return e.update(func(a *model.Arrangement) error {
		if v < 0 {
			v = 0
		}
		a.MasterVolume = v
		return nil
	})
}

// AddTrack appends a track. Its step grid is sized to the session's steps
// per pattern when empty.
func (e *Engine) AddTrack(t model.Track) error {
	return e.update(func(a *model.Arrangement) error {
		if t.ID == "" {
			t.ID = e.newID()
		}
		if _, ok := a.Track(t.ID); ok {
			return fmt.Errorf("%w: %s", ErrDuplicateID, t.ID)
		}
		if len(t.Steps) == 0 {
			t.Steps = model.NewStepGrid(a.StepsPerPattern)
		}
		a.Tracks = append(a.Tracks, t)
		return nil
	})
}

// UpdateTrack replaces the track with the same id.
func (e *Engine) UpdateTrack(t model.Track) error {
	return e.update(func(a *model.Arrangement) error {
		for i := range a.Tracks {
			if a.Tracks[i].ID == t.ID {
				a.Tracks[i] = t
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrUnknownTrack, t.ID)
	})
}

// RemoveTrack deletes a track and every block placed for it.
func (e *Engine) RemoveTrack(id string) error {
	return e.update(func(a *model.Arrangement) error {
		found := false
		tracks := a.Tracks[:0]
		for _, t := range a.Tracks {
			if t.ID == id {
				found = true
				continue
			}
			tracks = append(tracks, t)
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrUnknownTrack, id)
		}
		a.Tracks = tracks
		blocks := a.Blocks[:0]
		for _, b := range a.Blocks {
			if b.TrackID != id {
				blocks = append(blocks, b)
			}
		}
		a.Blocks = blocks
		return nil
	})
}

// SetMixer replaces a track's channel strip.
func (e *Engine) SetMixer(trackID string, s model.MixerSettings) error {
	return e.update(func(a *model.Arrangement) error {
		for i := range a.Tracks {
			if a.Tracks[i].ID == trackID {
				m := s.Clamped()
				a.Tracks[i].Mixer = &m
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrUnknownTrack, trackID)
	})
}

// SetMarkers activates export markers over [start, end].
func (e *Engine) SetMarkers(start, end int) error {
	return e.update(func(a *model.Arrangement) error {
		m := model.ExportMarkers{StartBar: start, EndBar: end, Active: true}
		if !m.Valid() || end > a.TotalBars {
			return fmt.Errorf("%w: %d-%d", ErrInvalidRange, start, end)
		}
		a.Markers = m
		return nil
	})
}

// ActivateMarkers turns on markers spanning the current blocks, unless
// markers are already active.
func (e *Engine) ActivateMarkers() (model.ExportMarkers, error) {
	var m model.ExportMarkers
	err := e.update(func(a *model.Arrangement) error {
		if a.Markers.Active {
			m = a.Markers
			return nil
		}
		span, ok := model.SpanMarkers(a.Blocks)
		if !ok {
			return fmt.Errorf("%w: no patterns placed", ErrInvalidRange)
		}
		span.Active = true
		a.Markers = span
		m = span
		return nil
	})
	return m, err
}

// ResetMarkers deactivates the markers; they follow the block span again.
func (e *Engine) ResetMarkers() error {
	return e.update(func(a *model.Arrangement) error {
		a.Markers = model.ExportMarkers{}
		return nil
	})
}

// Markers returns the active markers, or inactive markers spanning the
// current blocks.
func (e *Engine) Markers() model.ExportMarkers {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.arr.Markers.Active {
		return e.arr.Markers
	}
	m, _ := model.SpanMarkers(e.arr.Blocks)
	return m
}

// ReplaceBlocks removes the listed blocks and inserts add where the first
// removed block was, raising the ceiling to at least minTotalBars. Blocks
// in add without an id get a fresh one.
func (e *Engine) ReplaceBlocks(remove []string, add []model.PatternBlock, minTotalBars int) error {
	return e.update(func(a *model.Arrangement) error {
		drop := make(map[string]bool, len(remove))
		for _, id := range remove {
			if _, err := indexOf(a, id); err != nil {
				return err
			}
			drop[id] = true
		}
		a.TotalBars = math.Max(a.TotalBars, minTotalBars)
		fresh := make([]model.PatternBlock, len(add))
		for i, b := range add {
			b = b.Clone()
			if b.ID == "" {
				b.ID = e.newID()
			}
			fresh[i] = b
		}
		out := make([]model.PatternBlock, 0, len(a.Blocks)+len(fresh))
		inserted := false
		for _, b := range a.Blocks {
			if drop[b.ID] {
				if !inserted {
					out = append(out, fresh...)
					inserted = true
				}
				continue
			}
			out = append(out, b)
		}
		if !inserted {
			out = append(out, fresh...)
		}
		a.Blocks = out
		return nil
	})
}

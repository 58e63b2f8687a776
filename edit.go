package arrange

import (
	"errors"

	"github.com/cbegin/arrange-go/internal/layout"
	"github.com/cbegin/arrange-go/internal/model"
	"github.com/cbegin/arrange-go/internal/notify"
)

// Every edit below applies atomically: on error the arrangement is
// unchanged and the user gets a warning.

func (s *Session) warn(err error) error {
	if err != nil {
		s.notify(notify.Warning, "%s", describe(err))
	}
	return err
}

func describe(err error) string {
	switch {
	case errors.Is(err, model.ErrExceedsTimeline):
		return "Pattern does not fit on the timeline: " + err.Error()
	case errors.Is(err, layout.ErrCannotSplit):
		return "Pattern must be at least 2 bars long to split"
	case errors.Is(err, layout.ErrInvalidRange):
		return "Invalid export range: " + err.Error()
	}
	return err.Error()
}

func (s *Session) AddTrack(t model.Track) error {
	return s.warn(s.layout.AddTrack(t))
}

func (s *Session) UpdateTrack(t model.Track) error {
	return s.warn(s.layout.UpdateTrack(t))
}

// RemoveTrack deletes the track with all its blocks and drops its decoded
// sample when no other track shares it.
func (s *Session) RemoveTrack(id string) error {
	arr := s.layout.Snapshot()
	if err := s.warn(s.layout.RemoveTrack(id)); err != nil {
		return err
	}
	if t, ok := arr.Track(id); ok && t.Sample != "" {
		for _, other := range arr.Tracks {
			if other.ID != id && other.Sample == t.Sample {
				return nil
			}
		}
		s.cache.Forget(t.Sample)
	}
	return nil
}

func (s *Session) SetMixer(trackID string, m model.MixerSettings) error {
	return s.warn(s.layout.SetMixer(trackID, m))
}

// Place puts a new block for trackID on the timeline.
func (s *Session) Place(trackID string, startBar, bars int) (model.PatternBlock, error) {
	b, err := s.layout.Place(trackID, startBar, bars)
	return b, s.warn(err)
}

func (s *Session) Move(id string, startBar int) error {
	return s.warn(s.layout.Move(id, startBar))
}

func (s *Session) Resize(id string, edge layout.Edge, delta int) error {
	return s.warn(s.layout.Resize(id, edge, delta))
}

func (s *Session) Duplicate(id string) (model.PatternBlock, error) {
	b, err := s.layout.Duplicate(id)
	return b, s.warn(err)
}

func (s *Session) Split(id string) ([2]model.PatternBlock, error) {
	halves, err := s.layout.Split(id)
	return halves, s.warn(err)
}

func (s *Session) Remove(ids ...string) error {
	return s.warn(s.layout.BulkRemove(ids))
}

// DuplicateAll copies the blocks layout.DuplicateOffset bars later. Copies
// that do not fit are skipped with a warning; the others are kept.
func (s *Session) DuplicateAll(ids ...string) ([]model.PatternBlock, error) {
	clones, err := s.layout.BulkDuplicate(ids)
	return clones, s.warn(err)
}

func (s *Session) Rename(id, name string) error {
	return s.warn(s.layout.Rename(id, name))
}

// SetTotalBars changes the timeline length. Blocks past a shorter ceiling
// are truncated or removed, which is reported as a warning.
func (s *Session) SetTotalBars(n int) (layout.ClipReport, error) {
	rep, err := s.layout.SetTotalBars(n)
	if err != nil {
		return rep, s.warn(err)
	}
	if len(rep.Clipped)+len(rep.Dropped) > 0 {
		s.notify(notify.Warning, "Timeline shortened to %d bars: %d patterns truncated, %d removed",
			n, len(rep.Clipped), len(rep.Dropped))
	}
	return rep, nil
}

func (s *Session) SetBPM(bpm float64) error {
	return s.warn(s.layout.SetBPM(bpm))
}

func (s *Session) SetMasterVolume(v float64) error {
	return s.warn(s.layout.SetMasterVolume(v))
}

// SetMarkers activates export markers over [start, end].
func (s *Session) SetMarkers(start, end int) error {
	return s.warn(s.layout.SetMarkers(start, end))
}

// ActivateMarkers turns on markers covering the placed blocks.
func (s *Session) ActivateMarkers() (model.ExportMarkers, error) {
	m, err := s.layout.ActivateMarkers()
	return m, s.warn(err)
}

func (s *Session) ResetMarkers() error {
	return s.warn(s.layout.ResetMarkers())
}

// Markers returns the active markers or the span of the placed blocks.
func (s *Session) Markers() model.ExportMarkers {
	return s.layout.Markers()
}

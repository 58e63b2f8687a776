package render

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/cbegin/arrange-go/internal/audio"
	"github.com/cbegin/arrange-go/internal/effects"
	"github.com/cbegin/arrange-go/internal/model"
	"github.com/cbegin/arrange-go/internal/samples"
)

// BusEngine receives the per-track processing chains. *audio.Context
// implements it.
type BusEngine interface {
	SetBus(name string, chain audio.Processor)
	ClearBuses()
}

// Mix is the channel strip state to prepare sources with. Mixer entries
// override the tracks' own settings; a zero MasterVolume means the
// arrangement's.
type Mix struct {
	SampleRate   int
	MasterVolume float64
	Mixer        map[string]model.MixerSettings
}

// SourceSet holds the decoded, routed source of every audible track.
type SourceSet struct {
	sources map[string]audio.Source
	Skipped map[string]error // tracks whose audio failed to load
	Muted   []string
}

// Source implements scheduler.Sources.
func (s *SourceSet) Source(trackID string) (audio.Source, bool) {
	src, ok := s.sources[trackID]
	return src, ok
}

// Len returns the number of audible tracks.
func (s *SourceSet) Len() int { return len(s.sources) }

// Prepare decodes every unmuted track at mix.SampleRate and installs its
// processing chain on bus. Tracks that fail to load are logged and skipped;
// they never fail the whole set.
func Prepare(ctx context.Context, cache *samples.Cache, bus BusEngine, arr model.Arrangement, mix Mix, log logrus.FieldLogger) *SourceSet {
	if log == nil {
		log = logrus.StandardLogger()
	}
	set := &SourceSet{sources: make(map[string]audio.Source), Skipped: make(map[string]error)}
	master := mix.MasterVolume
	if master <= 0 {
		master = arr.Master()
	}

	type pending struct {
		track model.Track
		strip model.MixerSettings
	}
	var todo []pending
	var refs []string
	for _, t := range arr.Tracks {
		strip := t.MixerOrDefault()
		if m, ok := mix.Mixer[t.ID]; ok {
			strip = m.Clamped()
		}
		if strip.Mute {
			set.Muted = append(set.Muted, t.ID)
			continue
		}
		if t.Sample == "" {
			continue
		}
		todo = append(todo, pending{t, strip})
		refs = append(refs, t.Sample)
	}

	failed := cache.Preload(ctx, refs, mix.SampleRate)
	bus.ClearBuses()
	for _, p := range todo {
		entry := log.WithField("track", p.track.ID)
		if err := failed[p.track.Sample]; err != nil {
			entry.WithError(err).Warn("skipping track audio")
			set.Skipped[p.track.ID] = err
			continue
		}
		buf, err := cache.Load(ctx, p.track.Sample, mix.SampleRate)
		if err != nil {
			entry.WithError(err).Warn("skipping track audio")
			set.Skipped[p.track.ID] = err
			continue
		}
		bus.SetBus(p.track.ID, effects.NewTrackChain(mix.SampleRate, effects.TrackParams{
			Volume:       p.strip.Volume,
			MasterVolume: master,
			Pan:          p.strip.Pan,
			Low:          p.strip.EQ.Low,
			Mid:          p.strip.EQ.Mid,
			High:         p.strip.EQ.High,
			PitchShift:   p.track.PitchShift,
		}))
		set.sources[p.track.ID] = audio.Source{Buffer: buf, Rate: p.track.Rate(), Bus: p.track.ID}
		entry.WithField("seconds", buf.Duration()).Debug("track audio ready")
	}
	return set
}

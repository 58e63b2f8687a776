// Package render bounces an arrangement to a buffer faster than real time,
// using the same event generation and audio engine as live playback.
package render

import (
	"context"
	"errors"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/cbegin/arrange-go/internal/audio"
	"github.com/cbegin/arrange-go/internal/events"
	"github.com/cbegin/arrange-go/internal/model"
	"github.com/cbegin/arrange-go/internal/samples"
	"github.com/cbegin/arrange-go/internal/timing"
)

// DefaultSampleRate is the offline render rate.
const DefaultSampleRate = 96000

var ErrEmptyArrangement = errors.New("render: arrangement has no patterns to render")

// Options select what to render. Markers, when set and valid, override the
// arrangement's own markers.
type Options struct {
	SampleRate   int
	MasterVolume float64
	Mixer        map[string]model.MixerSettings
	Markers      *model.ExportMarkers
}

// Report describes a finished render.
type Report struct {
	FromBar, ToBar int
	Events         int
	Seconds        float64
	Skipped        map[string]error
	Muted          []string
}

// Renderer renders arrangements with samples from a shared cache.
type Renderer struct {
	cache *samples.Cache
	log   logrus.FieldLogger
}

func New(cache *samples.Cache, log logrus.FieldLogger) *Renderer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Renderer{cache: cache, log: log}
}

// Range returns the bars an export covers: explicit markers, active
// arrangement markers, or bar 1 through the last block. ok is false when
// there is nothing to export.
func Range(arr model.Arrangement, markers *model.ExportMarkers) (from, to int, ok bool) {
	switch {
	case markers != nil && markers.Valid():
		return markers.StartBar, markers.EndBar, true
	case arr.Markers.Active && arr.Markers.Valid():
		return arr.Markers.StartBar, arr.Markers.EndBar, true
	}
	to = arr.MaxEndBar()
	return 1, to, to >= 1
}

// Render produces a stereo buffer of exactly (to-from+1) bars. Tracks whose
// audio fails to load are skipped and listed in the report.
func (r *Renderer) Render(ctx context.Context, arr model.Arrangement, opts Options) (*audio.Buffer, Report, error) {
	var rep Report
	if len(arr.Blocks) == 0 {
		return nil, rep, ErrEmptyArrangement
	}
	from, to, ok := Range(arr, opts.Markers)
	if !ok {
		return nil, rep, ErrEmptyArrangement
	}
	rate := opts.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	rep.FromBar, rep.ToBar = from, to
	rep.Seconds = timing.BarsToDuration(to-from+1, arr.BPM)

	engine := audio.NewContext(rate)
	engine.SetBPM(arr.BPM)
	set := Prepare(ctx, r.cache, engine, arr, Mix{
		SampleRate:   rate,
		MasterVolume: opts.MasterVolume,
		Mixer:        opts.Mixer,
	}, r.log)
	rep.Skipped, rep.Muted = set.Skipped, set.Muted
	if err := ctx.Err(); err != nil {
		return nil, rep, err
	}

	plan := events.Plan{
		BPM:       arr.BPM,
		Blocks:    arr.Blocks,
		Durations: make(map[string]float64),
		FromBar:   from,
		ToBar:     to,
	}
	for id, src := range set.sources {
		plan.Durations[id] = src.Seconds()
	}
	for _, ev := range events.Generate(plan) {
		if err := engine.Schedule(set.sources[ev.TrackID], ev.Start, ev.Offset, ev.Duration); err != nil {
			r.log.WithError(err).WithField("track", ev.TrackID).Warn("render event")
			continue
		}
		rep.Events++
	}
	engine.Start()

	total := int(math.Round(rep.Seconds * float64(rate)))
	out := audio.NewBuffer(2, 0, rate)
	for done := 0; done < total; {
		if err := ctx.Err(); err != nil {
			return nil, rep, err
		}
		n := rate
		if total-done < n {
			n = total - done
		}
		out.Append(engine.Render(float64(n) / float64(rate)))
		done += n
	}
	r.log.WithFields(logrus.Fields{
		"from":    from,
		"to":      to,
		"events":  rep.Events,
		"skipped": len(rep.Skipped),
	}).Info("offline render finished")
	return out, rep, nil
}

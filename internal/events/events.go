// Package events turns placed pattern blocks into timed playback events. It
// is the one place that decides when each sample plays, for both live
// playback and offline rendering.
package events

import (
	"math"
	"sort"

	"github.com/cbegin/arrange-go/internal/model"
	"github.com/cbegin/arrange-go/internal/timing"
)

// loopEpsilon absorbs floating point error when a block length is an exact
// multiple of the sample length.
const loopEpsilon = 1e-9

// Event plays Duration seconds of a track's source, starting Offset seconds
// into it, at timeline time Start. All values are timeline seconds, so a
// source with a playback rate r reads Offset*r seconds into its buffer.
type Event struct {
	TrackID  string
	BlockID  string
	Offset   float64
	Duration float64
	Start    float64
}

// End is the timeline time at which the event stops.
func (e Event) End() float64 {
	return e.Start + e.Duration
}

// ForBlock returns the events for one block whose track source lasts ds
// seconds (after the playback rate). A source shorter than the block is
// looped; the final loop is cut at the block end.
func ForBlock(b model.PatternBlock, ds float64, secondsPerBar float64) []Event {
	if ds <= 0 || b.Duration < 1 {
		return nil
	}
	start := float64(b.StartBar-1) * secondsPerBar
	dp := float64(b.Duration) * secondsPerBar
	if ds >= dp {
		return []Event{{TrackID: b.TrackID, BlockID: b.ID, Duration: dp, Start: start}}
	}
	loops := int(math.Ceil(dp/ds - loopEpsilon))
	out := make([]Event, 0, loops)
	for i := 0; i < loops; i++ {
		at := float64(i) * ds
		out = append(out, Event{
			TrackID:  b.TrackID,
			BlockID:  b.ID,
			Duration: math.Min(ds, dp-at),
			Start:    start + at,
		})
	}
	return out
}

// Plan describes what to schedule: the blocks, the rate-adjusted source
// length per track, and the bar window [FromBar, ToBar]. Tracks missing
// from Durations have no audio and are left out.
type Plan struct {
	BPM       float64
	Blocks    []model.PatternBlock
	Durations map[string]float64
	FromBar   int
	ToBar     int
}

// Generate returns every event of the plan, clipped to the window and
// shifted so the window starts at time zero, ordered by start time.
// Overlapping blocks on one track each keep their own events.
func Generate(p Plan) []Event {
	if p.BPM <= 0 || p.ToBar < p.FromBar {
		return nil
	}
	spb := timing.SecondsPerBar(p.BPM)
	winStart := timing.BarToSeconds(float64(p.FromBar), p.BPM)
	winEnd := timing.BarToSeconds(float64(p.ToBar+1), p.BPM)
	var out []Event
	for _, b := range p.Blocks {
		if b.EndBar() < p.FromBar || b.StartBar > p.ToBar {
			continue
		}
		ds, ok := p.Durations[b.TrackID]
		if !ok || ds <= 0 {
			continue
		}
		for _, ev := range ForBlock(b, ds, spb) {
			if clipped, ok := Clip(ev, winStart, winEnd); ok {
				out = append(out, clipped)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].TrackID < out[j].TrackID
	})
	return out
}

// Clip trims ev to the window [from, to) and rebases it so from becomes
// time zero. ok is false when nothing of the event is audible in the window.
func Clip(ev Event, from, to float64) (Event, bool) {
	if ev.End() <= from+loopEpsilon || ev.Start >= to-loopEpsilon {
		return Event{}, false
	}
	if ev.Start < from {
		cut := from - ev.Start
		ev.Offset += cut
		ev.Duration -= cut
		ev.Start = from
	}
	if ev.End() > to {
		ev.Duration = to - ev.Start
	}
	ev.Start -= from
	return ev, true
}

// Window returns the bar range to play: the active export markers with
// fromBar clamped inside them, or fromBar through the last block.
func Window(arr model.Arrangement, fromBar int) (from, to int) {
	if arr.Markers.Active && arr.Markers.Valid() {
		from = fromBar
		if from < arr.Markers.StartBar || from > arr.Markers.EndBar {
			from = arr.Markers.StartBar
		}
		return from, arr.Markers.EndBar
	}
	if fromBar < 1 {
		fromBar = 1
	}
	return fromBar, arr.MaxEndBar()
}

// TotalDuration is the summed length of the events, in seconds.
func TotalDuration(evs []Event) float64 {
	var sum float64
	for _, e := range evs {
		sum += e.Duration
	}
	return sum
}

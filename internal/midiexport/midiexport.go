// Package midiexport writes the step grids of placed blocks as a Standard
// MIDI File: one note per active step, one MIDI track per pattern track.
package midiexport

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/cbegin/arrange-go/internal/model"
	"github.com/cbegin/arrange-go/internal/timing"
)

// TicksPerQuarter is the file resolution.
const TicksPerQuarter = 960

// MaxSteps is the longest grid that still gets at least one tick per step.
const MaxSteps = TicksPerQuarter * timing.BeatsPerBar

var (
	ErrNoSteps      = errors.New("midiexport: no active steps to export")
	ErrTooManySteps = errors.New("midiexport: step grid finer than the file resolution")
	ErrKeyRange     = errors.New("midiexport: track note past MIDI key 127")
)

// Options control note assignment. Track i plays BaseNote+i on Channel.
type Options struct {
	Channel  uint8
	BaseNote uint8
	Velocity uint8
	FromBar  int // 0 means the first bar
	ToBar    int // 0 means the last block's end
}

// DefaultOptions maps tracks onto the General MIDI drum channel from the
// kick drum upwards.
func DefaultOptions() Options {
	return Options{Channel: 9, BaseNote: 36, Velocity: 100}
}

type note struct {
	tick uint32
	on   bool
	key  uint8
}

// Build assembles the SMF for arr.
func Build(arr model.Arrangement, opts Options) (*smf.SMF, int, error) {
	from, to := opts.FromBar, opts.ToBar
	if from < 1 {
		from = 1
	}
	if to < 1 {
		to = arr.MaxEndBar()
	}
	barTicks := uint32(TicksPerQuarter * timing.BeatsPerBar)

	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(TicksPerQuarter)

	var conductor smf.Track
	conductor.Add(0, smf.MetaMeter(timing.BeatsPerBar, 4))
	conductor.Add(0, smf.MetaTempo(arr.BPM))
	conductor.Close(0)
	if err := sm.Add(conductor); err != nil {
		return nil, 0, fmt.Errorf("add tempo track: %w", err)
	}

	total := 0
	for i, t := range arr.Tracks {
		var notes []note
		for _, b := range arr.Blocks {
			if b.TrackID != t.ID {
				continue
			}
			active := b.Steps.Active()
			if len(active) == 0 {
				continue
			}
			if len(b.Steps) > MaxSteps {
				return nil, 0, fmt.Errorf("%w: block %s has %d steps, max %d", ErrTooManySteps, b.ID, len(b.Steps), MaxSteps)
			}
			if int(opts.BaseNote)+i > 127 {
				return nil, 0, fmt.Errorf("%w: track %s would play key %d", ErrKeyRange, t.ID, int(opts.BaseNote)+i)
			}
			key := opts.BaseNote + uint8(i)
			stepTicks := barTicks / uint32(len(b.Steps))
			length := stepTicks - 1
			if length == 0 {
				length = 1
			}
			for bar := b.StartBar; bar <= b.EndBar(); bar++ {
				if bar < from || bar > to {
					continue
				}
				base := uint32(bar-from) * barTicks
				for _, s := range active {
					on := base + uint32(s)*stepTicks
					notes = append(notes, note{on, true, key}, note{on + length, false, key})
				}
			}
		}
		if len(notes) == 0 {
			continue
		}
		sort.SliceStable(notes, func(a, b int) bool {
			if notes[a].tick != notes[b].tick {
				return notes[a].tick < notes[b].tick
			}
			return !notes[a].on && notes[b].on
		})

		var track smf.Track
		track.Add(0, smf.MetaTrackSequenceName(t.Name))
		var last uint32
		for _, n := range notes {
			delta := n.tick - last
			last = n.tick
			if n.on {
				track.Add(delta, midi.NoteOn(opts.Channel, n.key, opts.Velocity))
				total++
			} else {
				track.Add(delta, midi.NoteOff(opts.Channel, n.key))
			}
		}
		end := uint32(to-from+1) * barTicks
		var rest uint32
		if end > last {
			rest = end - last
		}
		track.Close(rest)
		if err := sm.Add(track); err != nil {
			return nil, 0, fmt.Errorf("add track %s: %w", t.ID, err)
		}
	}
	if total == 0 {
		return nil, 0, ErrNoSteps
	}
	return sm, total, nil
}

// Write encodes the step grids of arr as an SMF to w and returns the number
// of notes written.
func Write(w io.Writer, arr model.Arrangement, opts Options) (int, error) {
	sm, n, err := Build(arr, opts)
	if err != nil {
		return 0, err
	}
	if _, err := sm.WriteTo(w); err != nil {
		return 0, fmt.Errorf("write midi: %w", err)
	}
	return n, nil
}

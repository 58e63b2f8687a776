package model

import (
	"errors"
	"fmt"
	"math"
)

// DefaultTotalBars is the timeline ceiling of a new session.
const DefaultTotalBars = 64

// DefaultStepsPerPattern sizes new step grids (one bar of sixteenths).
const DefaultStepsPerPattern = 16

var (
	ErrInvalidBars     = errors.New("bar count must be at least 1")
	ErrInvalidDuration = errors.New("pattern duration must be at least 1 bar")
	ErrInvalidBPM      = errors.New("bpm must be positive")
	ErrBeforeStart     = errors.New("pattern cannot start before bar 1")
	ErrExceedsTimeline = errors.New("pattern extends past the end of the timeline")
)

type (
	// EQGains are the three band gains of a track EQ, in dB (0 = flat).
	EQGains struct {
		Low  float64 `yaml:"low,omitempty"`
		Mid  float64 `yaml:"mid,omitempty"`
		High float64 `yaml:"high,omitempty"`
	}

	// MixerSettings is the per-track channel strip.
	MixerSettings struct {
		Volume float64 `yaml:"volume"`
		Pan    float64 `yaml:"pan,omitempty"`
		Mute   bool    `yaml:"mute,omitempty"`
		EQ     EQGains `yaml:"eq,omitempty"`
	}

	// Track is a named audio source. Sample is a store reference (path or
	// URL); an empty reference means the track has no audio.
	Track struct {
		ID           string         `yaml:"id"`
		Name         string         `yaml:"name"`
		Color        string         `yaml:"color,omitempty"`
		Sample       string         `yaml:"sample,omitempty"`
		PitchShift   float64        `yaml:"pitchShift,omitempty"`
		PlaybackRate float64        `yaml:"playbackRate,omitempty"`
		Mixer        *MixerSettings `yaml:"mixer,omitempty"`
		Steps        StepGrid       `yaml:"steps,flow,omitempty"`
	}

	// PatternBlock is a placed, time-bounded reference to a track's loop.
	// The end bar is always derived from StartBar and Duration.
	PatternBlock struct {
		ID        string   `yaml:"id"`
		Name      string   `yaml:"name"`
		TrackID   string   `yaml:"track"`
		StartBar  int      `yaml:"start"`
		Duration  int      `yaml:"bars"`
		Steps     StepGrid `yaml:"steps,flow,omitempty"`
		BPM       float64  `yaml:"bpm,omitempty"`
		StepCount int      `yaml:"stepCount,omitempty"`
		Color     string   `yaml:"color,omitempty"`
	}

	// ExportMarkers restrict playback and export to [StartBar, EndBar].
	ExportMarkers struct {
		StartBar int  `yaml:"start"`
		EndBar   int  `yaml:"end"`
		Active   bool `yaml:"active"`
	}

	// Arrangement is the timeline session state: global tempo and ceiling,
	// the tracks and every placed block.
	Arrangement struct {
		TotalBars       int            `yaml:"totalBars"`
		BPM             float64        `yaml:"bpm"`
		StepsPerPattern int            `yaml:"stepsPerPattern,omitempty"`
		MasterVolume    float64        `yaml:"masterVolume,omitempty"`
		Tracks          []Track        `yaml:"tracks"`
		Blocks          []PatternBlock `yaml:"blocks"`
		Markers         ExportMarkers  `yaml:"markers,omitempty"`
	}
)

// DefaultMixer returns a unity-gain, centred, unmuted channel strip.
func DefaultMixer() MixerSettings {
	return MixerSettings{Volume: 1}
}

// Clamped returns s with volume in [0,1] and pan in [-1,1].
func (s MixerSettings) Clamped() MixerSettings {
	s.Volume = math.Max(0, math.Min(1, s.Volume))
	s.Pan = math.Max(-1, math.Min(1, s.Pan))
	return s
}

// Rate returns the effective playback rate multiplier of the track.
func (t Track) Rate() float64 {
	if t.PlaybackRate <= 0 {
		return 1
	}
	return t.PlaybackRate
}

// MixerOrDefault returns the track's mixer settings or the default strip.
func (t Track) MixerOrDefault() MixerSettings {
	if t.Mixer == nil {
		return DefaultMixer()
	}
	return t.Mixer.Clamped()
}

// EndBar is the last bar (inclusive) covered by the block.
func (b PatternBlock) EndBar() int {
	return b.StartBar + b.Duration - 1
}

// Contains reports whether bar lies inside the block's span.
func (b PatternBlock) Contains(bar int) bool {
	return bar >= b.StartBar && bar <= b.EndBar()
}

// Validate checks the placement invariants against the timeline ceiling.
func (b PatternBlock) Validate(totalBars int) error {
	switch {
	case b.Duration < 1:
		return ErrInvalidDuration
	case b.StartBar < 1:
		return ErrBeforeStart
	case b.EndBar() > totalBars:
		return fmt.Errorf("%w: bars %d-%d, timeline has %d", ErrExceedsTimeline, b.StartBar, b.EndBar(), totalBars)
	}
	return nil
}

// Clone returns a copy of the block that shares no slices with b.
func (b PatternBlock) Clone() PatternBlock {
	b.Steps = b.Steps.Clone()
	return b
}

// NewArrangement returns an empty session at the given tempo.
func NewArrangement(bpm float64) Arrangement {
	return Arrangement{
		TotalBars:       DefaultTotalBars,
		BPM:             bpm,
		StepsPerPattern: DefaultStepsPerPattern,
		MasterVolume:    1,
	}
}

// Clone deep-copies the arrangement so the copy can be read while the
// original keeps changing.
func (a Arrangement) Clone() Arrangement {
	tracks := make([]Track, len(a.Tracks))
	for i, t := range a.Tracks {
		if t.Mixer != nil {
			m := *t.Mixer
			t.Mixer = &m
		}
		t.Steps = t.Steps.Clone()
		tracks[i] = t
	}
	blocks := make([]PatternBlock, len(a.Blocks))
	for i, b := range a.Blocks {
		blocks[i] = b.Clone()
	}
	a.Tracks = tracks
	a.Blocks = blocks
	return a
}

// Track looks up a track by id.
func (a Arrangement) Track(id string) (Track, bool) {
	for _, t := range a.Tracks {
		if t.ID == id {
			return t, true
		}
	}
	return Track{}, false
}

// Block looks up a block by id.
func (a Arrangement) Block(id string) (PatternBlock, bool) {
	for _, b := range a.Blocks {
		if b.ID == id {
			return b, true
		}
	}
	return PatternBlock{}, false
}

// MaxEndBar returns the last bar covered by any block, or 0 when empty.
func (a Arrangement) MaxEndBar() int {
	end := 0
	for _, b := range a.Blocks {
		if e := b.EndBar(); e > end {
			end = e
		}
	}
	return end
}

// Master returns the master volume, treating an unset value as unity.
func (a Arrangement) Master() float64 {
	if a.MasterVolume <= 0 {
		return 1
	}
	return a.MasterVolume
}

// Validate checks the session-wide invariants.
func (a Arrangement) Validate() error {
	if a.TotalBars < 1 {
		return ErrInvalidBars
	}
	if a.BPM <= 0 {
		return ErrInvalidBPM
	}
	for _, b := range a.Blocks {
		if err := b.Validate(a.TotalBars); err != nil {
			return fmt.Errorf("block %s: %w", b.ID, err)
		}
	}
	return nil
}

// SpanMarkers builds inactive markers covering the min/max bar span of
// blocks. ok is false when there are no blocks.
func SpanMarkers(blocks []PatternBlock) (m ExportMarkers, ok bool) {
	for i, b := range blocks {
		if i == 0 || b.StartBar < m.StartBar {
			m.StartBar = b.StartBar
		}
		if i == 0 || b.EndBar() > m.EndBar {
			m.EndBar = b.EndBar()
		}
	}
	return m, len(blocks) > 0
}

// Bars returns the number of bars covered by the markers.
func (m ExportMarkers) Bars() int {
	return m.EndBar - m.StartBar + 1
}

// Valid reports whether the markers describe a non-empty range.
func (m ExportMarkers) Valid() bool {
	return m.StartBar >= 1 && m.EndBar >= m.StartBar
}

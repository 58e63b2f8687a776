// Package scheduler plays an arrangement live: it turns blocks into events,
// submits them to an audio engine and tracks the playhead while the
// transport runs.
package scheduler

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cbegin/arrange-go/internal/audio"
	"github.com/cbegin/arrange-go/internal/events"
	"github.com/cbegin/arrange-go/internal/model"
	"github.com/cbegin/arrange-go/internal/timing"
)

var ErrNothingToPlay = errors.New("scheduler: nothing to play")

// Defaults for Config.
const (
	DefaultPollInterval = 16 * time.Millisecond
	DefaultEpsilon      = 0.01
)

// Engine is the audio engine surface the scheduler drives. *audio.Context
// implements it.
type Engine interface {
	Schedule(src audio.Source, when, offset, duration float64) error
	StopAll()
	CancelScheduled()
	Start()
	Stop()
	SetSeconds(s float64)
	Position() timing.Position
	SetBPM(bpm float64)
}

// Sources resolves a track to its decoded source. ok is false for tracks
// without audio.
type Sources interface {
	Source(trackID string) (audio.Source, bool)
}

// State is the playback state.
type State int

const (
	Stopped State = iota
	Playing
)

func (s State) String() string {
	if s == Playing {
		return "playing"
	}
	return "stopped"
}

// Config tunes the playhead poll. A zero PollInterval disables the internal
// ticker; the host then calls Poll itself.
type Config struct {
	PollInterval time.Duration
	Epsilon      float64
}

func DefaultConfig() Config {
	return Config{PollInterval: DefaultPollInterval, Epsilon: DefaultEpsilon}
}

// Scheduler owns the playback state and playhead.
type Scheduler struct {
	engine Engine
	cfg    Config
	log    logrus.FieldLogger

	// run serialises transport changes: Start, Stop and the stop issued by
	// Poll each hold it for their whole engine sequence.
	run sync.Mutex

	mu         sync.Mutex
	gen        uint64 // bumped by every Start
	state      State
	playhead   float64
	winStart   int
	winEnd     int
	arr        model.Arrangement
	sources    Sources
	onPlayhead func(bar float64)
	stopTick   chan struct{}
}

// New creates a stopped scheduler with the playhead at bar 1.
func New(engine Engine, cfg Config, log logrus.FieldLogger) *Scheduler {
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = DefaultEpsilon
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scheduler{engine: engine, cfg: cfg, log: log, playhead: 1}
}

// OnPlayhead registers the callback that receives playhead changes. It is
// called without the scheduler lock held.
func (s *Scheduler) OnPlayhead(fn func(bar float64)) {
	s.mu.Lock()
	s.onPlayhead = fn
	s.mu.Unlock()
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Playhead returns the fractional bar under the playhead.
func (s *Scheduler) Playhead() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playhead
}

// Window returns the bar range being played.
func (s *Scheduler) Window() (from, to int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.winStart, s.winEnd
}

// Start plays arr from fromBar. Any current playback is stopped first, so
// two Starts, even concurrent ones, never leave more than one schedule
// audible.
func (s *Scheduler) Start(arr model.Arrangement, sources Sources, fromBar int) error {
	s.run.Lock()
	stopped := s.stopLocked()
	from, err := s.startLocked(arr, sources, fromBar)
	cb := s.callback()
	s.run.Unlock()

	if cb != nil {
		if stopped || err != nil {
			cb(1)
		}
		if err == nil {
			cb(float64(from))
		}
	}
	return err
}

func (s *Scheduler) startLocked(arr model.Arrangement, sources Sources, fromBar int) (int, error) {
	from, to := events.Window(arr, fromBar)
	if to < from {
		return 0, ErrNothingToPlay
	}
	plan := events.Plan{
		BPM:       arr.BPM,
		Blocks:    arr.Blocks,
		Durations: make(map[string]float64),
		FromBar:   from,
		ToBar:     to,
	}
	srcs := make(map[string]audio.Source)
	for _, t := range arr.Tracks {
		src, ok := sources.Source(t.ID)
		if !ok {
			continue
		}
		srcs[t.ID] = src
		plan.Durations[t.ID] = src.Seconds()
	}
	evs := events.Generate(plan)
	if len(evs) == 0 {
		return 0, ErrNothingToPlay
	}

	s.engine.SetBPM(arr.BPM)
	scheduled := 0
	for _, ev := range evs {
		if err := s.engine.Schedule(srcs[ev.TrackID], ev.Start, ev.Offset, ev.Duration); err != nil {
			s.log.WithError(err).WithField("track", ev.TrackID).Warn("schedule event")
			continue
		}
		scheduled++
	}
	s.engine.SetSeconds(0)
	s.engine.Start()

	s.mu.Lock()
	s.gen++
	s.state = Playing
	s.playhead = float64(from)
	s.winStart, s.winEnd = from, to
	s.arr = arr
	s.sources = sources
	if s.cfg.PollInterval > 0 {
		s.stopTick = make(chan struct{})
		go s.tick(s.stopTick)
	}
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"from": from, "to": to, "events": scheduled}).Debug("playback started")
	return from, nil
}

func (s *Scheduler) callback() func(float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.onPlayhead
}

func (s *Scheduler) tick(stop chan struct{}) {
	t := time.NewTicker(s.cfg.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			s.Poll()
		}
	}
}

// Poll reads the transport position and updates the playhead. The last bar
// of the window plays to its end: playback stops once the playhead passes
// the window's end bar plus one, not the end bar itself.
func (s *Scheduler) Poll() {
	s.mu.Lock()
	if s.state != Playing {
		s.mu.Unlock()
		return
	}
	bar := s.engine.Position().Bar() + float64(s.winStart-1)
	if bar > float64(s.winEnd+1) {
		gen := s.gen
		s.mu.Unlock()
		s.stopGen(gen)
		return
	}
	var cb func(float64)
	if math.Abs(bar-s.playhead) > s.cfg.Epsilon {
		s.playhead = bar
		cb = s.onPlayhead
	}
	s.mu.Unlock()
	if cb != nil {
		cb(bar)
	}
}

// stopGen stops playback only if it is still the playback started as gen.
// A Start that slipped in after Poll decided to stop keeps playing.
func (s *Scheduler) stopGen(gen uint64) {
	s.run.Lock()
	s.mu.Lock()
	current := s.gen == gen && s.state == Playing
	s.mu.Unlock()
	if !current {
		s.run.Unlock()
		return
	}
	s.stopLocked()
	cb := s.callback()
	s.run.Unlock()
	if cb != nil {
		cb(1)
	}
}

// Stop halts playback and returns the playhead to bar 1. Calling it while
// stopped only republishes the playhead.
func (s *Scheduler) Stop() {
	s.run.Lock()
	s.stopLocked()
	cb := s.callback()
	s.run.Unlock()
	if cb != nil {
		cb(1)
	}
}

// stopLocked silences the engine and resets the state. It reports whether
// playback was running. The caller holds s.run.
func (s *Scheduler) stopLocked() bool {
	s.engine.StopAll()
	s.engine.CancelScheduled()
	s.engine.Stop()
	s.engine.SetSeconds(0)

	s.mu.Lock()
	wasPlaying := s.state == Playing
	s.state = Stopped
	s.playhead = 1
	if s.stopTick != nil {
		close(s.stopTick)
		s.stopTick = nil
	}
	s.mu.Unlock()

	if wasPlaying {
		s.log.Debug("playback stopped")
	}
	return wasPlaying
}

// Seek moves the playhead. While playing, playback restarts from bar with
// the arrangement and sources of the last Start.
func (s *Scheduler) Seek(bar int) error {
	s.mu.Lock()
	if s.state != Playing {
		if bar < 1 {
			bar = 1
		}
		s.playhead = float64(bar)
		cb := s.onPlayhead
		s.mu.Unlock()
		if cb != nil {
			cb(float64(bar))
		}
		return nil
	}
	arr, sources := s.arr, s.sources
	s.mu.Unlock()
	return s.Start(arr, sources, bar)
}

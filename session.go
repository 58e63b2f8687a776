// Package arrange is a timeline arranger for looped audio patterns: it owns
// the arrangement, plays it live with a moving playhead, generates drop and
// breakdown variations and exports it to WAV offline or by live capture.
package arrange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/cbegin/arrange-go/internal/audio"
	"github.com/cbegin/arrange-go/internal/capture"
	"github.com/cbegin/arrange-go/internal/config"
	"github.com/cbegin/arrange-go/internal/generator"
	"github.com/cbegin/arrange-go/internal/layout"
	"github.com/cbegin/arrange-go/internal/model"
	"github.com/cbegin/arrange-go/internal/notify"
	"github.com/cbegin/arrange-go/internal/render"
	"github.com/cbegin/arrange-go/internal/samples"
	"github.com/cbegin/arrange-go/internal/scheduler"
)

type Option func(*sessionConfig)

type sessionConfig struct {
	notifier   notify.Notifier
	onPlayhead func(bar float64)
	engine     *audio.Context
	output     bool
	log        logrus.FieldLogger
	clock      capture.Clock
	seed       *uint64
	arr        *model.Arrangement
}

func defaultSessionConfig() sessionConfig {
	return sessionConfig{output: true}
}

// WithNotifier routes user-facing messages to n. The default logs them.
func WithNotifier(n notify.Notifier) Option {
	return func(cfg *sessionConfig) {
		cfg.notifier = n
	}
}

// WithPlayheadFunc installs the playhead callback. It runs on the poll
// goroutine; keep work brief.
func WithPlayheadFunc(fn func(bar float64)) Option {
	return func(cfg *sessionConfig) {
		cfg.onPlayhead = fn
	}
}

// WithEngine uses a caller-driven audio context instead of a new one. The
// caller is responsible for pulling audio from it.
func WithEngine(engine *audio.Context) Option {
	return func(cfg *sessionConfig) {
		cfg.engine = engine
	}
}

// WithOutput enables or disables the system audio device.
func WithOutput(enabled bool) Option {
	return func(cfg *sessionConfig) {
		cfg.output = enabled
	}
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(cfg *sessionConfig) {
		cfg.log = log
	}
}

// WithClock replaces the timer source of live captures.
func WithClock(clock capture.Clock) Option {
	return func(cfg *sessionConfig) {
		cfg.clock = clock
	}
}

// WithGeneratorSeed makes every GenerateDrop reproducible.
func WithGeneratorSeed(seed uint64) Option {
	return func(cfg *sessionConfig) {
		cfg.seed = &seed
	}
}

// WithArrangement opens the session on arr instead of an empty timeline.
func WithArrangement(arr model.Arrangement) Option {
	return func(cfg *sessionConfig) {
		a := arr.Clone()
		cfg.arr = &a
	}
}

// Session is one open arrangement with its playback and export pipelines.
type Session struct {
	cfg      config.Config
	log      logrus.FieldLogger
	notifier notify.Notifier

	layout   *layout.Engine
	engine   *audio.Context
	output   *audio.Output
	driven   bool // something pulls audio from engine
	sched    *scheduler.Scheduler
	cache    *samples.Cache
	renderer *render.Renderer
	exporter *capture.Exporter

	mu      sync.Mutex
	gen     *generator.Generator
	liveMix render.Mix
}

// NewSession opens a session reading samples from store.
func NewSession(cfg config.Config, store samples.Store, opts ...Option) (*Session, error) {
	sc := defaultSessionConfig()
	for _, opt := range opts {
		opt(&sc)
	}
	log := sc.log
	if log == nil {
		log = logrus.StandardLogger()
	}
	notifier := sc.notifier
	if notifier == nil {
		notifier = notify.LogNotifier{Log: log}
	}

	var arr model.Arrangement
	if sc.arr != nil {
		arr = *sc.arr
	} else {
		arr = model.NewArrangement(cfg.BPM)
		if cfg.TotalBars > 0 {
			arr.TotalBars = cfg.TotalBars
		}
	}
	le, err := layout.New(arr)
	if err != nil {
		return nil, fmt.Errorf("open arrangement: %w", err)
	}

	s := &Session{
		cfg:      cfg,
		log:      log,
		notifier: notifier,
		layout:   le,
		engine:   sc.engine,
		driven:   sc.engine != nil,
	}
	if s.engine == nil {
		rate := cfg.LiveSampleRate
		if rate <= 0 {
			rate = 48000
		}
		s.engine = audio.NewContext(rate)
	}
	if sc.output {
		out, err := audio.NewOutput(s.engine.SampleRate(), s.engine)
		if err != nil {
			return nil, fmt.Errorf("open audio output: %w", err)
		}
		s.output = out
		s.driven = true
	}

	s.cache = samples.NewCache(store, cfg.DecodeWorkers)
	s.renderer = render.New(s.cache, log)
	s.sched = scheduler.New(s.engine, scheduler.Config{
		PollInterval: cfg.PollInterval,
		Epsilon:      cfg.PlayheadEpsilon,
	}, log)
	if sc.onPlayhead != nil {
		s.sched.OnPlayhead(sc.onPlayhead)
	}
	s.exporter = capture.NewExporter(livePlayer{s}, capture.NewTapRecorder(s.engine, s.engine.SampleRate()), sc.clock, log)

	gcfg := generator.DefaultConfig()
	gcfg.CutProbability = cfg.CutProbability
	gcfg.TrackDropProbability = cfg.TrackDropProbability
	s.gen = generator.New(gcfg, sc.seed)
	return s, nil
}

func (s *Session) notify(level notify.Level, format string, args ...any) {
	s.notifier.Notify(notify.Notification{Level: level, Message: fmt.Sprintf(format, args...)})
}

// Arrangement returns a copy of the current arrangement.
func (s *Session) Arrangement() model.Arrangement {
	return s.layout.Snapshot()
}

// Subscribe registers fn to receive the arrangement after every edit.
func (s *Session) Subscribe(fn func(model.Arrangement)) {
	s.layout.Subscribe(fn)
}

// Engine exposes the live audio context, for hosts that meter or drive it.
func (s *Session) Engine() *audio.Context {
	return s.engine
}

// Play starts live playback from fromBar with the current arrangement.
func (s *Session) Play(ctx context.Context, fromBar int) error {
	if err := s.startLive(ctx, s.layout.Snapshot(), fromBar, render.Mix{}); err != nil {
		s.notify(notify.Error, "Playback failed: %v", err)
		return err
	}
	return nil
}

// startLive decodes arr's samples into the live engine and starts the
// scheduler. Tracks that fail to load play silent with a warning.
func (s *Session) startLive(ctx context.Context, arr model.Arrangement, fromBar int, mix render.Mix) error {
	s.sched.Stop()
	mix.SampleRate = s.engine.SampleRate()
	set := render.Prepare(ctx, s.cache, s.engine, arr, mix, s.log)
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(set.Skipped) > 0 {
		s.notify(notify.Warning, "Could not load audio for %s", skippedNames(arr, set.Skipped))
	}
	if err := s.sched.Start(arr, set, fromBar); err != nil {
		return err
	}
	if s.output != nil && !s.output.IsPlaying() {
		s.output.Play()
	}
	return nil
}

// Stop halts playback and rewinds the playhead to bar 1.
func (s *Session) Stop() {
	s.sched.Stop()
}

// Seek moves the playhead. While playing, playback restarts at bar with the
// arrangement as it is now.
func (s *Session) Seek(ctx context.Context, bar int) error {
	if s.sched.State() == scheduler.Playing {
		return s.Play(ctx, bar)
	}
	return s.sched.Seek(bar)
}

// Poll updates the playhead from the transport. Hosts that disable the
// internal ticker call it once per frame.
func (s *Session) Poll() {
	s.sched.Poll()
}

func (s *Session) Playhead() float64 {
	return s.sched.Playhead()
}

func (s *Session) State() scheduler.State {
	return s.sched.State()
}

// GenerateDrop replaces the selected blocks (or, with no selection, fills
// every track) with randomly drawn full/build/drop/breakdown variations.
func (s *Session) GenerateDrop(selection []string) (generator.Result, error) {
	s.mu.Lock()
	res := s.gen.Apply(s.layout.Snapshot(), selection)
	s.mu.Unlock()
	if len(res.Add) == 0 && len(res.Remove) == 0 {
		s.notify(notify.Warning, "Nothing to generate: add a track first")
		return res, nil
	}
	if err := s.layout.ReplaceBlocks(res.Remove, res.Add, res.TotalBars); err != nil {
		s.notify(notify.Warning, "Could not generate drop: %v", err)
		return res, err
	}
	s.log.WithFields(logrus.Fields{
		"added":   len(res.Add),
		"removed": len(res.Remove),
		"cut":     res.Cut,
		"dropped": len(res.Dropped),
	}).Info("drop generated")
	s.notify(notify.Success, "Generated %d patterns", len(res.Add))
	return res, nil
}

// Close stops playback and releases the audio device.
func (s *Session) Close() error {
	s.exporter.Abort()
	s.sched.Stop()
	if s.output != nil {
		return s.output.Close()
	}
	return nil
}

func skippedNames(arr model.Arrangement, skipped map[string]error) string {
	var names []string
	for _, t := range arr.Tracks {
		if _, ok := skipped[t.ID]; ok {
			names = append(names, t.Name)
		}
	}
	return strings.Join(names, ", ")
}

// livePlayer lets the capture exporter drive live playback with the mix of
// the export in progress.
type livePlayer struct {
	s *Session
}

func (p livePlayer) Start(arr model.Arrangement, fromBar int) error {
	p.s.mu.Lock()
	mix := p.s.liveMix
	p.s.mu.Unlock()
	return p.s.startLive(context.Background(), arr, fromBar, mix)
}

func (p livePlayer) Stop() {
	p.s.sched.Stop()
}

var errNotDriven = errors.New("live capture needs an audio output or a host-driven engine")

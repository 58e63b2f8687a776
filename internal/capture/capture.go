// Package capture exports an arrangement by recording the live output in
// real time for exactly the span of the export markers.
package capture

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cbegin/arrange-go/internal/audio"
	"github.com/cbegin/arrange-go/internal/model"
	"github.com/cbegin/arrange-go/internal/timing"
	"github.com/cbegin/arrange-go/internal/wav"
)

var (
	ErrNoMarkers = errors.New("capture: export markers are not active")
	ErrBusy      = errors.New("capture: an export is already running")
)

// Duration is how long the capture of markers runs at bpm.
func Duration(m model.ExportMarkers, bpm float64) time.Duration {
	seconds := timing.BarsToDuration(m.Bars(), bpm)
	return time.Duration(math.Round(seconds * float64(time.Second)))
}

// Timer is a pending callback.
type Timer interface {
	Stop() bool
}

// Clock schedules the capture deadline.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// RealClock uses the runtime timers.
type RealClock struct{}

func (RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Player starts and stops live playback.
type Player interface {
	Start(arr model.Arrangement, fromBar int) error
	Stop()
}

// Exporter runs one capture at a time.
type Exporter struct {
	player   Player
	recorder Recorder
	clock    Clock
	log      logrus.FieldLogger

	mu       sync.Mutex
	teardown func()
}

func NewExporter(player Player, recorder Recorder, clock Clock, log logrus.FieldLogger) *Exporter {
	if clock == nil {
		clock = RealClock{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Exporter{player: player, recorder: recorder, clock: clock, log: log}
}

type result struct {
	data []byte
	err  error
}

// Export plays arr from its start marker and records it until the marker
// span has elapsed, then returns the capture as a float WAV file. Abort ends
// the capture early with what was recorded so far.
func (e *Exporter) Export(ctx context.Context, arr model.Arrangement) ([]byte, error) {
	m := arr.Markers
	if !m.Active || !m.Valid() {
		return nil, ErrNoMarkers
	}
	e.mu.Lock()
	if e.teardown != nil {
		e.mu.Unlock()
		return nil, ErrBusy
	}
	done := make(chan result, 1)
	var (
		once  sync.Once
		timer Timer
		tmu   sync.Mutex
	)
	teardown := func() {
		once.Do(func() {
			tmu.Lock()
			if timer != nil {
				timer.Stop()
			}
			tmu.Unlock()
			e.recorder.Stop()
			e.player.Stop()
		})
	}
	e.teardown = teardown
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.teardown = nil
		e.mu.Unlock()
	}()

	e.recorder.OnStop(func(buf *audio.Buffer, err error) {
		if err != nil {
			done <- result{err: err}
			return
		}
		data, err := wav.EncodeFloat32(buf)
		done <- result{data: data, err: err}
	})
	if err := e.recorder.Start(); err != nil {
		return nil, err
	}
	if err := e.player.Start(arr, m.StartBar); err != nil {
		teardown()
		return nil, err
	}
	d := Duration(m, arr.BPM)
	tmu.Lock()
	timer = e.clock.AfterFunc(d, teardown)
	tmu.Unlock()
	e.log.WithFields(logrus.Fields{"from": m.StartBar, "to": m.EndBar, "duration": d}).Info("live capture started")

	select {
	case res := <-done:
		if res.err == nil {
			e.log.WithField("bytes", len(res.data)).Info("live capture finished")
		}
		return res.data, res.err
	case <-ctx.Done():
		teardown()
		return nil, ctx.Err()
	}
}

// Abort stops a running capture early. It is safe to call at any time and
// any number of times.
func (e *Exporter) Abort() {
	e.mu.Lock()
	teardown := e.teardown
	e.mu.Unlock()
	if teardown != nil {
		teardown()
	}
}

// Running reports whether a capture is in progress.
func (e *Exporter) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.teardown != nil
}

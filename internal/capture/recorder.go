package capture

import (
	"errors"
	"sync"

	"github.com/cbegin/arrange-go/internal/audio"
)

var ErrRecording = errors.New("capture: recorder already running")

// Tapper exposes the live output tap. *audio.Context implements it.
type Tapper interface {
	SetTap(tap func([]float32))
}

// Recorder captures the live output between Start and Stop. The stop
// callback is delivered asynchronously, after Stop returns.
type Recorder interface {
	Start() error
	Stop()
	OnStop(fn func(*audio.Buffer, error))
}

// TapRecorder records interleaved stereo from a Tapper.
type TapRecorder struct {
	tapper     Tapper
	sampleRate int

	mu        sync.Mutex
	recording bool
	samples   []float32
	onStop    func(*audio.Buffer, error)
}

func NewTapRecorder(tapper Tapper, sampleRate int) *TapRecorder {
	return &TapRecorder{tapper: tapper, sampleRate: sampleRate}
}

func (r *TapRecorder) OnStop(fn func(*audio.Buffer, error)) {
	r.mu.Lock()
	r.onStop = fn
	r.mu.Unlock()
}

// Start connects the tap and begins a new capture.
func (r *TapRecorder) Start() error {
	r.mu.Lock()
	if r.recording {
		r.mu.Unlock()
		return ErrRecording
	}
	r.recording = true
	r.samples = r.samples[:0]
	r.mu.Unlock()
	r.tapper.SetTap(r.write)
	return nil
}

func (r *TapRecorder) write(p []float32) {
	r.mu.Lock()
	if r.recording {
		r.samples = append(r.samples, p...)
	}
	r.mu.Unlock()
}

// Stop disconnects the tap and hands the capture to the stop callback.
// Stopping an idle recorder does nothing.
func (r *TapRecorder) Stop() {
	// The tap runs under the engine lock; disconnect before taking ours.
	r.tapper.SetTap(nil)

	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return
	}
	r.recording = false
	buf := audio.Deinterleave(r.samples, 2, r.sampleRate)
	r.samples = nil
	cb := r.onStop
	r.mu.Unlock()

	if cb != nil {
		go cb(buf, nil)
	}
}

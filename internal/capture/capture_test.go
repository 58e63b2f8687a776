package capture

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cbegin/arrange-go/internal/audio"
	"github.com/cbegin/arrange-go/internal/model"
	"github.com/cbegin/arrange-go/internal/wav"
)

type fakeTimer struct{ stopped atomic.Bool }

func (t *fakeTimer) Stop() bool { return !t.stopped.Swap(true) }

// fakeClock records the deadline and fires it on demand.
type fakeClock struct {
	mu    sync.Mutex
	d     time.Duration
	f     func()
	timer *fakeTimer
	armed chan struct{}
}

func newFakeClock() *fakeClock { return &fakeClock{armed: make(chan struct{}, 1)} }

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	c.d, c.f, c.timer = d, f, &fakeTimer{}
	t := c.timer
	c.mu.Unlock()
	c.armed <- struct{}{}
	return t
}

func (c *fakeClock) fire() {
	c.mu.Lock()
	f := c.f
	c.mu.Unlock()
	f()
}

type fakePlayer struct {
	engine *audio.Context
	from   int
	starts atomic.Int32
	stops  atomic.Int32
	err    error
}

func (p *fakePlayer) Start(arr model.Arrangement, fromBar int) error {
	if p.err != nil {
		return p.err
	}
	p.from = fromBar
	p.starts.Add(1)
	p.engine.Start()
	return nil
}

func (p *fakePlayer) Stop() {
	p.stops.Add(1)
	p.engine.Stop()
}

func markedArrangement() model.Arrangement {
	arr := model.NewArrangement(100)
	arr.Markers = model.ExportMarkers{StartBar: 3, EndBar: 6, Active: true}
	return arr
}

type harness struct {
	engine *audio.Context
	player *fakePlayer
	clock  *fakeClock
	exp    *Exporter
}

func newHarness() *harness {
	engine := audio.NewContext(100)
	player := &fakePlayer{engine: engine}
	clock := newFakeClock()
	return &harness{
		engine: engine,
		player: player,
		clock:  clock,
		exp:    NewExporter(player, NewTapRecorder(engine, 100), clock, nil),
	}
}

func (h *harness) export(arr model.Arrangement) chan result {
	out := make(chan result, 1)
	go func() {
		data, err := h.exp.Export(context.Background(), arr)
		out <- result{data, err}
	}()
	return out
}

func wait(t *testing.T, ch chan result) result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("export did not finish")
		return result{}
	}
}

func TestDuration(t *testing.T) {
	cases := []struct {
		start, end int
		bpm        float64
		want       time.Duration
	}{
		{3, 6, 100, 9600 * time.Millisecond},
		{1, 1, 120, 2 * time.Second},
		{1, 4, 60, 16 * time.Second},
	}
	for _, c := range cases {
		got := Duration(model.ExportMarkers{StartBar: c.start, EndBar: c.end}, c.bpm)
		if got != c.want {
			t.Errorf("Duration(%d-%d @ %v) = %v, want %v", c.start, c.end, c.bpm, got, c.want)
		}
	}
}

func TestExportRecordsUntilDeadline(t *testing.T) {
	h := newHarness()
	ch := h.export(markedArrangement())
	<-h.clock.armed
	if h.clock.d != 9600*time.Millisecond {
		t.Fatalf("deadline = %v, want 9.6s", h.clock.d)
	}
	if h.player.from != 3 {
		t.Fatalf("playback started at bar %d", h.player.from)
	}
	h.engine.Process(make([]float32, 2*50))
	h.clock.fire()
	r := wait(t, ch)
	if r.err != nil {
		t.Fatal(r.err)
	}
	hdr, err := wav.ReadHeader(r.data)
	if err != nil {
		t.Fatal(err)
	}
	if hdr.Frames() != 50 || hdr.Channels != 2 || hdr.SampleRate != 100 || hdr.Format != wav.FormatFloat {
		t.Fatalf("header = %+v", hdr)
	}
	if h.player.stops.Load() != 1 {
		t.Fatalf("playback stopped %d times", h.player.stops.Load())
	}
	if h.exp.Running() {
		t.Fatal("exporter still running")
	}
}

func TestAbortIsIdempotent(t *testing.T) {
	h := newHarness()
	ch := h.export(markedArrangement())
	<-h.clock.armed
	h.engine.Process(make([]float32, 2*10))
	h.exp.Abort()
	h.exp.Abort()
	h.clock.fire()
	r := wait(t, ch)
	if r.err != nil {
		t.Fatal(r.err)
	}
	if hdr, _ := wav.ReadHeader(r.data); hdr.Frames() != 10 {
		t.Fatalf("partial capture has %d frames", hdr.Frames())
	}
	if h.player.stops.Load() != 1 {
		t.Fatalf("teardown ran %d times", h.player.stops.Load())
	}
	if !h.clock.timer.stopped.Load() {
		t.Fatal("deadline timer left armed")
	}
	h.exp.Abort()
}

func TestTapDisconnectedAfterCapture(t *testing.T) {
	h := newHarness()
	ch := h.export(markedArrangement())
	<-h.clock.armed
	h.clock.fire()
	wait(t, ch)
	// Nothing may be listening to the tap any more.
	h.engine.Start()
	h.engine.Process(make([]float32, 2*10))
	ch = h.export(markedArrangement())
	<-h.clock.armed
	h.clock.fire()
	if r := wait(t, ch); r.err != nil {
		t.Fatal(r.err)
	} else if hdr, _ := wav.ReadHeader(r.data); hdr.Frames() != 0 {
		t.Fatalf("stale tap data leaked into next capture: %d frames", hdr.Frames())
	}
}

func TestExportRequiresMarkers(t *testing.T) {
	h := newHarness()
	arr := markedArrangement()
	arr.Markers.Active = false
	if _, err := h.exp.Export(context.Background(), arr); !errors.Is(err, ErrNoMarkers) {
		t.Fatalf("err = %v", err)
	}
}

func TestExportPlaybackFailure(t *testing.T) {
	h := newHarness()
	h.player.err = errors.New("no device")
	if _, err := h.exp.Export(context.Background(), markedArrangement()); err == nil || err.Error() != "no device" {
		t.Fatalf("err = %v", err)
	}
	if h.exp.Running() {
		t.Fatal("failed export left running")
	}
}

func TestExportCancelled(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan error, 1)
	go func() {
		_, err := h.exp.Export(ctx, markedArrangement())
		out <- err
	}()
	<-h.clock.armed
	cancel()
	if err := <-out; !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if h.player.stops.Load() != 1 {
		t.Fatalf("stops = %d", h.player.stops.Load())
	}
}

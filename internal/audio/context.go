package audio

import (
	"errors"
	"math"
	"sync"

	"github.com/viterin/vek/vek32"

	"github.com/cbegin/arrange-go/internal/timing"
)

var (
	ErrEmptySource  = errors.New("audio: source has no frames")
	ErrInvalidEvent = errors.New("audio: event duration must be positive")
)

// renderChunk is the block size Render pulls from the context.
const renderChunk = 1024

// Processor transforms a block of stereo audio in place. effects.Chain
// satisfies it.
type Processor interface {
	ProcessBlock(l, r []float32)
	Reset()
}

// Source is a decoded buffer routed to a bus. Rate scales playback speed
// (and pitch); zero means 1.
type Source struct {
	Buffer *Buffer
	Rate   float64
	Bus    string
}

// Seconds is the timeline length of the source at its playback rate.
func (s Source) Seconds() float64 {
	rate := s.Rate
	if rate <= 0 {
		rate = 1
	}
	return s.Buffer.Duration() / rate
}

type voice struct {
	src   Source
	start int64   // first context frame
	end   int64   // context frame after the last one
	pos0  float64 // read position in source frames at start
	step  float64 // source frames per context frame
}

type bus struct {
	chain Processor
	l, r  []float32
}

// Context is a sample-clocked stereo mixer with a transport. Voices are
// scheduled at transport times and rendered through per-bus processors.
// The same Context drives live output and offline rendering, so both hear
// identical timing.
type Context struct {
	mu         sync.Mutex
	sampleRate int
	bpm        float64
	running    bool
	frame      int64
	voices     []*voice
	buses      map[string]*bus
	order      []string
	direct     bus
	mixL, mixR []float32
	tap        func([]float32)
}

// NewContext creates a stopped context at sampleRate.
func NewContext(sampleRate int) *Context {
	return &Context{
		sampleRate: sampleRate,
		bpm:        120,
		buses:      make(map[string]*bus),
	}
}

func (c *Context) SampleRate() int { return c.sampleRate }

// SetBus installs (or replaces) the processor for a named bus. Voices routed
// to an unknown bus go straight to the mix.
func (c *Context) SetBus(name string, chain Processor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.buses[name]; !ok {
		c.order = append(c.order, name)
	}
	c.buses[name] = &bus{chain: chain}
}

// ClearBuses removes every bus processor.
func (c *Context) ClearBuses() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buses = make(map[string]*bus)
	c.order = nil
}

// Schedule plays duration seconds of src, starting offset seconds into it,
// at transport time when. Times are timeline seconds; the source's Rate is
// applied to its read position.
func (c *Context) Schedule(src Source, when, offset, duration float64) error {
	if src.Buffer.Len() == 0 || src.Buffer.SampleRate <= 0 {
		return ErrEmptySource
	}
	if duration <= 0 {
		return ErrInvalidEvent
	}
	rate := src.Rate
	if rate <= 0 {
		rate = 1
	}
	if when < 0 {
		offset -= when
		duration += when
		when = 0
		if duration <= 0 {
			return nil
		}
	}
	sr := float64(c.sampleRate)
	bufRate := float64(src.Buffer.SampleRate)
	start := int64(math.Round(when * sr))
	v := &voice{
		src:   src,
		start: start,
		end:   start + int64(math.Round(duration*sr)),
		pos0:  offset * rate * bufRate,
		step:  rate * bufRate / sr,
	}
	c.mu.Lock()
	c.voices = append(c.voices, v)
	c.mu.Unlock()
	return nil
}

// StopAll silences every voice, playing or pending. Safe to call repeatedly.
func (c *Context) StopAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.voices = nil
}

// CancelScheduled drops voices that have not started yet.
func (c *Context) CancelScheduled() {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.voices[:0]
	for _, v := range c.voices {
		if v.start <= c.frame {
			kept = append(kept, v)
		}
	}
	c.voices = kept
}

// Start runs the transport.
func (c *Context) Start() {
	c.mu.Lock()
	c.running = true
	c.mu.Unlock()
}

// Stop halts the transport; the position is kept.
func (c *Context) Stop() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

func (c *Context) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// SetSeconds moves the transport to s seconds.
func (c *Context) SetSeconds(s float64) {
	if s < 0 {
		s = 0
	}
	c.mu.Lock()
	c.frame = int64(math.Round(s * float64(c.sampleRate)))
	c.mu.Unlock()
}

// Seconds returns the transport time.
func (c *Context) Seconds() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return float64(c.frame) / float64(c.sampleRate)
}

// SetBPM sets the tempo used to report positions.
func (c *Context) SetBPM(bpm float64) {
	if bpm <= 0 {
		return
	}
	c.mu.Lock()
	c.bpm = bpm
	c.mu.Unlock()
}

func (c *Context) BPM() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bpm
}

// Position returns the transport position in bars.beats.sixteenths.
func (c *Context) Position() timing.Position {
	c.mu.Lock()
	defer c.mu.Unlock()
	return timing.PositionAt(float64(c.frame)/float64(c.sampleRate), c.bpm)
}

// SetTap installs a callback that receives every rendered interleaved stereo
// block while the transport runs. It runs on the audio thread and must not
// block. Pass nil to disconnect.
func (c *Context) SetTap(tap func([]float32)) {
	c.mu.Lock()
	c.tap = tap
	c.mu.Unlock()
}

// ActiveSources returns how many voices are playing or pending.
func (c *Context) ActiveSources() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.voices)
}

// Process fills dst with interleaved stereo. It writes silence while the
// transport is stopped.
func (c *Context) Process(dst []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	vek32.Zeros_Into(dst, len(dst))
	if !c.running {
		return
	}
	n := len(dst) / 2
	c.renderLocked(n)
	for i := 0; i < n; i++ {
		dst[2*i] = c.mixL[i]
		dst[2*i+1] = c.mixR[i]
	}
	if c.tap != nil {
		c.tap(dst)
	}
}

// Render pulls seconds of audio from the context as a planar stereo buffer,
// advancing the transport as if it were running.
func (c *Context) Render(seconds float64) *Buffer {
	total := int(math.Round(seconds * float64(c.sampleRate)))
	out := NewBuffer(2, 0, c.sampleRate)
	out.Channels[0] = make([]float32, 0, total)
	out.Channels[1] = make([]float32, 0, total)
	c.mu.Lock()
	defer c.mu.Unlock()
	for done := 0; done < total; {
		n := renderChunk
		if total-done < n {
			n = total - done
		}
		c.renderLocked(n)
		out.Channels[0] = append(out.Channels[0], c.mixL[:n]...)
		out.Channels[1] = append(out.Channels[1], c.mixR[:n]...)
		done += n
	}
	return out
}

func (c *Context) renderLocked(n int) {
	c.mixL = grow(c.mixL, n)
	c.mixR = grow(c.mixR, n)
	for _, name := range c.order {
		c.renderBus(c.buses[name], name, true, n)
	}
	c.renderBus(&c.direct, "", false, n)

	c.frame += int64(n)
	kept := c.voices[:0]
	for _, v := range c.voices {
		if v.end > c.frame && v.sourcePos(c.frame) < float64(v.src.Buffer.Len()) {
			kept = append(kept, v)
		}
	}
	c.voices = kept
}

func (c *Context) renderBus(b *bus, name string, named bool, n int) {
	b.l = grow(b.l, n)
	b.r = grow(b.r, n)
	for _, v := range c.voices {
		_, known := c.buses[v.src.Bus]
		if named && v.src.Bus != name || !named && known {
			continue
		}
		v.mixInto(b.l, b.r, c.frame)
	}
	if b.chain != nil {
		b.chain.ProcessBlock(b.l, b.r)
	}
	vek32.Add_Inplace(c.mixL, b.l)
	vek32.Add_Inplace(c.mixR, b.r)
}

func (v *voice) sourcePos(frame int64) float64 {
	return v.pos0 + float64(frame-v.start)*v.step
}

// mixInto adds the voice's contribution for context frames [frame, frame+len(l)).
func (v *voice) mixInto(l, r []float32, frame int64) {
	left, right := v.src.Buffer.Channel(0), v.src.Buffer.Channel(1)
	size := len(left)
	for i := range l {
		f := frame + int64(i)
		if f < v.start {
			continue
		}
		if f >= v.end {
			return
		}
		p := v.sourcePos(f)
		idx := int(p)
		if idx >= size {
			return
		}
		frac := float32(p - float64(idx))
		next := idx + 1
		if next >= size {
			next = idx
		}
		l[i] += left[idx]*(1-frac) + left[next]*frac
		r[i] += right[idx]*(1-frac) + right[next]*frac
	}
}

func grow(buf []float32, n int) []float32 {
	if cap(buf) < n {
		buf = make([]float32, n)
	}
	return vek32.Zeros_Into(buf, n)
}

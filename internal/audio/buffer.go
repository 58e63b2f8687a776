package audio

import (
	"github.com/viterin/vek/vek32"
)

// Buffer is planar float32 audio: one slice per channel, all the same length.
type Buffer struct {
	SampleRate int
	Channels   [][]float32
}

// NewBuffer allocates a silent buffer.
func NewBuffer(channels, frames, sampleRate int) *Buffer {
	b := &Buffer{SampleRate: sampleRate, Channels: make([][]float32, channels)}
	for i := range b.Channels {
		b.Channels[i] = make([]float32, frames)
	}
	return b
}

// Len returns the number of frames.
func (b *Buffer) Len() int {
	if b == nil || len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

func (b *Buffer) NumChannels() int {
	if b == nil {
		return 0
	}
	return len(b.Channels)
}

// Duration returns the length in seconds.
func (b *Buffer) Duration() float64 {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Len()) / float64(b.SampleRate)
}

// Interleave returns the frames as L R L R ... (or the channel layout of b).
func (b *Buffer) Interleave() []float32 {
	n, ch := b.Len(), b.NumChannels()
	out := make([]float32, n*ch)
	for c, data := range b.Channels {
		for i, s := range data {
			out[i*ch+c] = s
		}
	}
	return out
}

// Deinterleave splits interleaved samples into a planar buffer.
func Deinterleave(samples []float32, channels, sampleRate int) *Buffer {
	if channels < 1 {
		channels = 1
	}
	frames := len(samples) / channels
	b := NewBuffer(channels, frames, sampleRate)
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			b.Channels[c][i] = samples[i*channels+c]
		}
	}
	return b
}

// Channel returns channel c, folding to the last channel for mono sources.
func (b *Buffer) Channel(c int) []float32 {
	if c >= len(b.Channels) {
		c = len(b.Channels) - 1
	}
	return b.Channels[c]
}

// Peak returns the largest absolute sample value across all channels.
func (b *Buffer) Peak() float32 {
	var peak float32
	for _, data := range b.Channels {
		if len(data) == 0 {
			continue
		}
		abs := vek32.Abs(data)
		if p := vek32.Max(abs); p > peak {
			peak = p
		}
	}
	return peak
}

// Scale multiplies every sample by gain.
func (b *Buffer) Scale(gain float32) {
	for _, data := range b.Channels {
		vek32.MulNumber_Inplace(data, gain)
	}
}

// Slice returns frames [from, to) sharing storage with b.
func (b *Buffer) Slice(from, to int) *Buffer {
	n := b.Len()
	if from < 0 {
		from = 0
	}
	if to > n {
		to = n
	}
	if to < from {
		to = from
	}
	out := &Buffer{SampleRate: b.SampleRate, Channels: make([][]float32, len(b.Channels))}
	for c, data := range b.Channels {
		out.Channels[c] = data[from:to]
	}
	return out
}

// Append copies the frames of other onto the end of b. Channel counts must
// match; missing channels in other repeat its last channel.
func (b *Buffer) Append(other *Buffer) {
	if other.Len() == 0 {
		return
	}
	for c := range b.Channels {
		b.Channels[c] = append(b.Channels[c], other.Channel(c)...)
	}
}

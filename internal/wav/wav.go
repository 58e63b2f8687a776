// Package wav writes 32-bit IEEE float RIFF/WAVE files.
package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/cbegin/arrange-go/internal/audio"
)

const (
	headerSize    = 44
	bitsPerSample = 32
)

// FormatFloat is the WAVE format tag for IEEE float samples.
const FormatFloat = 3

var (
	ErrInvalidHeader = errors.New("wav: invalid header")
	ErrTooLarge      = errors.New("wav: data exceeds the 4 GiB RIFF limit")
)

// maxDataSize is the largest data chunk whose RIFF chunk size still fits in
// 32 bits.
const maxDataSize = math.MaxUint32 - 36

func checkSize(channels, frames int) error {
	if size := uint64(frames) * uint64(channels) * 4; size > maxDataSize {
		return fmt.Errorf("%w: %d frames of %d channels", ErrTooLarge, frames, channels)
	}
	return nil
}

// Header is the canonical 44-byte header of a WAVE file.
type Header struct {
	ChunkSize     uint32
	Format        uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	DataSize      uint32
}

// Frames returns the number of sample frames in the data chunk.
func (h Header) Frames() int {
	if h.BlockAlign == 0 {
		return 0
	}
	return int(h.DataSize) / int(h.BlockAlign)
}

func header(channels, sampleRate, frames int) []byte {
	dataSize := frames * channels * 4
	out := make([]byte, headerSize)
	copy(out[0:], "RIFF")
	binary.LittleEndian.PutUint32(out[4:], uint32(36+dataSize))
	copy(out[8:], "WAVE")
	copy(out[12:], "fmt ")
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], FormatFloat)
	binary.LittleEndian.PutUint16(out[22:], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(sampleRate*channels*4))
	binary.LittleEndian.PutUint16(out[32:], uint16(channels*4))
	binary.LittleEndian.PutUint16(out[34:], bitsPerSample)
	copy(out[36:], "data")
	binary.LittleEndian.PutUint32(out[40:], uint32(dataSize))
	return out
}

// EncodeFloat32 encodes buf as a float WAVE file with interleaved channels.
func EncodeFloat32(buf *audio.Buffer) ([]byte, error) {
	channels, frames := buf.NumChannels(), buf.Len()
	if channels < 1 {
		return nil, fmt.Errorf("wav: buffer has no channels")
	}
	if buf.SampleRate <= 0 {
		return nil, fmt.Errorf("wav: invalid sample rate %d", buf.SampleRate)
	}
	if err := checkSize(channels, frames); err != nil {
		return nil, err
	}
	out := make([]byte, headerSize+frames*channels*4)
	copy(out, header(channels, buf.SampleRate, frames))
	p := headerSize
	for i := 0; i < frames; i++ {
		for _, data := range buf.Channels {
			binary.LittleEndian.PutUint32(out[p:], math.Float32bits(data[i]))
			p += 4
		}
	}
	return out, nil
}

// Encode writes buf to w as a float WAVE file.
func Encode(w io.Writer, buf *audio.Buffer) error {
	data, err := EncodeFloat32(buf)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Silence returns a float WAVE file of the given length containing zeros.
func Silence(channels, sampleRate int, seconds float64) []byte {
	frames := int(math.Round(seconds * float64(sampleRate)))
	if frames < 0 {
		frames = 0
	}
	b, _ := EncodeFloat32(audio.NewBuffer(channels, frames, sampleRate))
	return b
}

// ReadHeader parses the canonical header at the start of data.
func ReadHeader(data []byte) (Header, error) {
	if len(data) < headerSize {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrInvalidHeader, len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" ||
		string(data[12:16]) != "fmt " || string(data[36:40]) != "data" {
		return Header{}, fmt.Errorf("%w: missing chunk ids", ErrInvalidHeader)
	}
	le := binary.LittleEndian
	return Header{
		ChunkSize:     le.Uint32(data[4:]),
		Format:        le.Uint16(data[20:]),
		Channels:      le.Uint16(data[22:]),
		SampleRate:    le.Uint32(data[24:]),
		ByteRate:      le.Uint32(data[28:]),
		BlockAlign:    le.Uint16(data[32:]),
		BitsPerSample: le.Uint16(data[34:]),
		DataSize:      le.Uint32(data[40:]),
	}, nil
}

// Decode reads a float WAVE file produced by Encode back into a buffer.
func Decode(data []byte) (*audio.Buffer, error) {
	h, err := ReadHeader(data)
	if err != nil {
		return nil, err
	}
	if h.Format != FormatFloat || h.BitsPerSample != bitsPerSample || h.Channels == 0 {
		return nil, fmt.Errorf("%w: format %d/%d bits", ErrInvalidHeader, h.Format, h.BitsPerSample)
	}
	body := data[headerSize:]
	if int(h.DataSize) < len(body) {
		body = body[:h.DataSize]
	}
	samples := make([]float32, len(body)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[i*4:]))
	}
	return audio.Deinterleave(samples, int(h.Channels), int(h.SampleRate)), nil
}

package samples

import (
	"bytes"
	"io"
	"path"
	"strings"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"
	"github.com/pkg/errors"

	"github.com/cbegin/arrange-go/internal/audio"
)

// resampleQuality is beep's interpolation window; 4 is its usual choice for
// music.
const resampleQuality = 4

var (
	ErrUnknownFormat = errors.New("samples: unrecognised audio format")
	ErrEmpty         = errors.New("samples: decoded audio is empty")
)

// Format is a supported container.
type Format int

const (
	FormatUnknown Format = iota
	FormatWAV
	FormatMP3
)

// Sniff picks the format from the file name, falling back to magic bytes.
func Sniff(data []byte, name string) Format {
	switch strings.ToLower(path.Ext(name)) {
	case ".wav", ".wave":
		return FormatWAV
	case ".mp3":
		return FormatMP3
	}
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return FormatWAV
	case len(data) >= 3 && string(data[0:3]) == "ID3":
		return FormatMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return FormatMP3
	}
	return FormatUnknown
}

// Decode turns encoded audio into a stereo buffer at targetRate.
func Decode(data []byte, name string, targetRate int) (*audio.Buffer, error) {
	var (
		stream beep.StreamSeekCloser
		format beep.Format
		err    error
	)
	switch Sniff(data, name) {
	case FormatWAV:
		stream, format, err = wav.Decode(bytes.NewReader(data))
	case FormatMP3:
		stream, format, err = mp3.Decode(io.NopCloser(bytes.NewReader(data)))
	default:
		return nil, errors.Wrapf(ErrUnknownFormat, "decode %s", name)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", name)
	}
	defer stream.Close()

	var src beep.Streamer = stream
	if targetRate > 0 && int(format.SampleRate) != targetRate {
		src = beep.Resample(resampleQuality, format.SampleRate, beep.SampleRate(targetRate), stream)
	} else {
		targetRate = int(format.SampleRate)
	}

	out := audio.NewBuffer(2, 0, targetRate)
	if n := stream.Len(); n > 0 {
		est := int(float64(n) * float64(targetRate) / float64(format.SampleRate))
		out.Channels[0] = make([]float32, 0, est+1)
		out.Channels[1] = make([]float32, 0, est+1)
	}
	chunk := make([][2]float64, 1024)
	for {
		n, ok := src.Stream(chunk)
		for i := 0; i < n; i++ {
			out.Channels[0] = append(out.Channels[0], float32(chunk[i][0]))
			out.Channels[1] = append(out.Channels[1], float32(chunk[i][1]))
		}
		if !ok {
			break
		}
	}
	if err := src.Err(); err != nil {
		return nil, errors.Wrapf(err, "stream %s", name)
	}
	if out.Len() == 0 {
		return nil, errors.Wrapf(ErrEmpty, "decode %s", name)
	}
	return out, nil
}

// Read decodes everything from r; name is used for format detection.
func Read(r io.Reader, name string, targetRate int) (*audio.Buffer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", name)
	}
	return Decode(data, name, targetRate)
}

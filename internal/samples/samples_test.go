package samples

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"
)

// sliceStreamer streams a fixed slice of stereo frames.
type sliceStreamer struct {
	buf [][2]float64
	pos int
}

func (s *sliceStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	if s.pos >= len(s.buf) {
		return 0, false
	}
	n = copy(samples, s.buf[s.pos:])
	s.pos += n
	return n, true
}

func (s *sliceStreamer) Err() error { return nil }

func sineWAV(t *testing.T, rate, frames int) []byte {
	t.Helper()
	buf := make([][2]float64, frames)
	for i := range buf {
		v := 0.5 * math.Sin(2*math.Pi*440*float64(i)/float64(rate))
		buf[i] = [2]float64{v, -v}
	}
	f, err := os.Create(filepath.Join(t.TempDir(), "fixture.wav"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	format := beep.Format{SampleRate: beep.SampleRate(rate), NumChannels: 2, Precision: 2}
	if err := wav.Encode(f, &sliceStreamer{buf: buf}, format); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	data, err := os.ReadFile(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestDecodeWAVNativeRate(t *testing.T) {
	data := sineWAV(t, 44100, 4410)
	buf, err := Decode(data, "loop.wav", 44100)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if buf.Len() != 4410 || buf.SampleRate != 44100 || buf.NumChannels() != 2 {
		t.Fatalf("decoded %d frames @ %d Hz, %d channels", buf.Len(), buf.SampleRate, buf.NumChannels())
	}
	if p := buf.Peak(); p < 0.45 || p > 0.55 {
		t.Fatalf("peak = %v, want ~0.5", p)
	}
	if buf.Channels[0][100] != -buf.Channels[1][100] {
		t.Fatalf("channels not preserved: %v %v", buf.Channels[0][100], buf.Channels[1][100])
	}
}

func TestDecodeResamples(t *testing.T) {
	data := sineWAV(t, 22050, 22050)
	buf, err := Decode(data, "", 44100)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if buf.SampleRate != 44100 {
		t.Fatalf("rate = %d", buf.SampleRate)
	}
	if d := buf.Duration(); math.Abs(d-1) > 0.01 {
		t.Fatalf("duration = %v, want ~1s", d)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("definitely not audio"), "notes.txt", 44100)
	if !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("err = %v", err)
	}
	_, err = Decode([]byte("RIFF\x00\x00\x00\x00WAVEjunk"), "broken.wav", 44100)
	if err == nil {
		t.Fatal("broken wav decoded")
	}
}

func TestSniff(t *testing.T) {
	cases := []struct {
		data []byte
		name string
		want Format
	}{
		{nil, "a.WAV", FormatWAV},
		{nil, "dir/b.mp3", FormatMP3},
		{[]byte("RIFF....WAVE"), "blob", FormatWAV},
		{[]byte("ID3\x04"), "blob", FormatMP3},
		{[]byte{0xFF, 0xFB, 0x90}, "blob", FormatMP3},
		{[]byte("OggS"), "blob", FormatUnknown},
	}
	for _, c := range cases {
		if got := Sniff(c.data, c.name); got != c.want {
			t.Errorf("Sniff(%q, %q) = %v, want %v", c.data, c.name, got, c.want)
		}
	}
}

type countingStore struct {
	MemStore
	opens atomic.Int32
}

func (s *countingStore) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	s.opens.Add(1)
	return s.MemStore.Open(ctx, ref)
}

func TestCacheDecodesOnce(t *testing.T) {
	store := &countingStore{MemStore: MemStore{"kick.wav": sineWAV(t, 48000, 480)}}
	c := NewCache(store, 2)
	ctx := context.Background()
	a, err := c.Load(ctx, "kick.wav", 48000)
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Load(ctx, "kick.wav", 48000)
	if err != nil {
		t.Fatal(err)
	}
	if a != b || store.opens.Load() != 1 {
		t.Fatalf("expected one shared decode, opens=%d", store.opens.Load())
	}
	if _, err := c.Load(ctx, "kick.wav", 96000); err != nil {
		t.Fatal(err)
	}
	if store.opens.Load() != 2 {
		t.Fatalf("new rate should decode again, opens=%d", store.opens.Load())
	}
	c.Forget("kick.wav")
	if c.Cached("kick.wav", 48000) {
		t.Fatal("forget left buffer cached")
	}
}

func TestPreloadReportsFailuresPerRef(t *testing.T) {
	store := MemStore{
		"a.wav":   sineWAV(t, 48000, 100),
		"b.wav":   sineWAV(t, 48000, 100),
		"bad.wav": []byte("RIFF"),
	}
	c := NewCache(store, 2)
	failed := c.Preload(context.Background(), []string{"a.wav", "", "bad.wav", "missing.wav", "b.wav", "a.wav"}, 48000)
	if len(failed) != 2 || failed["bad.wav"] == nil || !IsMissing(failed["missing.wav"]) {
		t.Fatalf("failed = %v", failed)
	}
	if !c.Cached("a.wav", 48000) || !c.Cached("b.wav", 48000) {
		t.Fatal("good refs not cached")
	}
}

func TestLoadEmptyRef(t *testing.T) {
	c := NewCache(MemStore{}, 1)
	if _, err := c.Load(context.Background(), "", 48000); !errors.Is(err, ErrNoSample) {
		t.Fatalf("err = %v", err)
	}
}

func TestDirStore(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "x.wav"), []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := DirStore{Root: dir}
	rc, err := s.Open(context.Background(), "x.wav")
	if err != nil {
		t.Fatal(err)
	}
	rc.Close()
	if _, err := s.Open(context.Background(), "nope.wav"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestHTTPStoreAndRouting(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/loop.wav" {
			w.Write([]byte("audio"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	s := MultiStore{Local: MemStore{"local.wav": []byte("x")}, Remote: &HTTPStore{Client: srv.Client()}}
	rc, err := s.Open(context.Background(), srv.URL+"/loop.wav")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(rc)
	rc.Close()
	if string(body) != "audio" {
		t.Fatalf("body = %q", body)
	}
	if _, err := s.Open(context.Background(), srv.URL+"/gone.wav"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
	if _, err := s.Open(context.Background(), "local.wav"); err != nil {
		t.Fatalf("local: %v", err)
	}
}

package arrange

import (
	"context"
	"fmt"
	"math"

	"github.com/cbegin/arrange-go/internal/capture"
	"github.com/cbegin/arrange-go/internal/model"
	"github.com/cbegin/arrange-go/internal/notify"
	"github.com/cbegin/arrange-go/internal/render"
	"github.com/cbegin/arrange-go/internal/scheduler"
	"github.com/cbegin/arrange-go/internal/wav"
)

// ExportMode selects the export pipeline.
type ExportMode int

const (
	// ModeOffline renders faster than real time at the render sample rate.
	ModeOffline ExportMode = iota
	// ModeLive records the live output for the span of the export markers.
	ModeLive
)

func (m ExportMode) String() string {
	if m == ModeLive {
		return "live"
	}
	return "offline"
}

// ExportRequest describes one export. Markers override the arrangement's
// export markers; Mixer entries override track channel strips; a zero
// MasterVolume keeps the arrangement's.
type ExportRequest struct {
	Mode         ExportMode
	Markers      *model.ExportMarkers
	Mixer        map[string]model.MixerSettings
	MasterVolume float64
}

// Export renders the arrangement to a 32-bit float WAV file. A failed live
// capture falls back to an offline render. Failures are reported once as an
// error notification and leave the arrangement and playhead as they were.
func (s *Session) Export(ctx context.Context, req ExportRequest) ([]byte, error) {
	arr := s.layout.Snapshot()
	if req.Markers != nil {
		m := *req.Markers
		m.Active = true
		arr.Markers = m
	}
	wasPlaying := s.sched.State() == scheduler.Playing
	playhead := s.sched.Playhead()

	var (
		data []byte
		err  error
	)
	if req.Mode == ModeLive {
		data, err = s.exportLive(ctx, arr, req)
		if err != nil && ctx.Err() == nil {
			s.log.WithError(err).Warn("live capture failed, rendering offline")
			s.notify(notify.Warning, "Live capture failed (%v), rendering offline instead", err)
			data, err = s.exportOffline(ctx, arr, req)
		}
	} else {
		data, err = s.exportOffline(ctx, arr, req)
	}

	if err != nil {
		s.restoreTransport(wasPlaying, playhead)
		s.log.WithError(err).Error("export failed")
		s.notify(notify.Error, "Export failed: %v", err)
		return nil, err
	}
	s.notify(notify.Success, "Exported %.1f seconds", exportSeconds(data))
	return data, nil
}

// restoreTransport puts playback back the way it was before a failed export.
// A live attempt stops playback, which rewinds the playhead to bar 1.
func (s *Session) restoreTransport(wasPlaying bool, playhead float64) {
	if s.sched.State() != scheduler.Stopped {
		return
	}
	if !wasPlaying {
		_ = s.sched.Seek(int(math.Round(playhead)))
		return
	}
	bar := int(math.Floor(playhead))
	if err := s.startLive(context.Background(), s.layout.Snapshot(), bar, render.Mix{}); err != nil {
		s.log.WithError(err).WithField("bar", bar).Warn("resume playback after export")
	}
}

func (s *Session) exportOffline(ctx context.Context, arr model.Arrangement, req ExportRequest) ([]byte, error) {
	buf, rep, err := s.renderer.Render(ctx, arr, render.Options{
		SampleRate:   s.cfg.RenderSampleRate,
		MasterVolume: req.MasterVolume,
		Mixer:        req.Mixer,
		Markers:      req.Markers,
	})
	if err != nil {
		return nil, err
	}
	if len(rep.Skipped) > 0 {
		s.notify(notify.Warning, "Rendered without audio for %s", skippedNames(arr, rep.Skipped))
	}
	return wav.EncodeFloat32(buf)
}

func (s *Session) exportLive(ctx context.Context, arr model.Arrangement, req ExportRequest) ([]byte, error) {
	if !s.driven {
		return nil, errNotDriven
	}
	if len(arr.Blocks) == 0 {
		return nil, render.ErrEmptyArrangement
	}
	s.mu.Lock()
	s.liveMix = render.Mix{MasterVolume: req.MasterVolume, Mixer: req.Mixer}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.liveMix = render.Mix{}
		s.mu.Unlock()
	}()
	data, err := s.exporter.Export(ctx, arr)
	if err != nil {
		return nil, fmt.Errorf("live capture: %w", err)
	}
	if h, herr := wav.ReadHeader(data); herr == nil && h.Frames() == 0 {
		// The host never pulled audio while recording.
		s.notify(notify.Warning, "Live capture recorded no audio, exported silence")
		secs := capture.Duration(arr.Markers, arr.BPM).Seconds()
		return wav.Silence(2, s.engine.SampleRate(), secs), nil
	}
	return data, nil
}

// AbortExport ends a running live capture early; the export completes with
// what was recorded. It does nothing when no capture is running.
func (s *Session) AbortExport() {
	s.exporter.Abort()
}

// Exporting reports whether a live capture is running.
func (s *Session) Exporting() bool {
	return s.exporter.Running()
}

func exportSeconds(data []byte) float64 {
	h, err := wav.ReadHeader(data)
	if err != nil || h.SampleRate == 0 {
		return 0
	}
	return float64(h.Frames()) / float64(h.SampleRate)
}

package model

import (
	"errors"
	"testing"
)

func TestEndBarIsDerived(t *testing.T) {
	b := PatternBlock{StartBar: 5, Duration: 8}
	if b.EndBar() != 12 {
		t.Fatalf("EndBar = %d, want 12", b.EndBar())
	}
	b.Duration = 1
	if b.EndBar() != b.StartBar {
		t.Fatalf("one bar block should end where it starts, got %d", b.EndBar())
	}
	if !b.Contains(5) || b.Contains(6) {
		t.Fatalf("Contains mismatch for %+v", b)
	}
}

func TestBlockValidate(t *testing.T) {
	tests := []struct {
		name  string
		block PatternBlock
		want  error
	}{
		{"ok", PatternBlock{StartBar: 1, Duration: 64}, nil},
		{"zero duration", PatternBlock{StartBar: 1, Duration: 0}, ErrInvalidDuration},
		{"before start", PatternBlock{StartBar: 0, Duration: 2}, ErrBeforeStart},
		{"past ceiling", PatternBlock{StartBar: 60, Duration: 8}, ErrExceedsTimeline},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.block.Validate(64)
			if tt.want == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestArrangementCloneIsDeep(t *testing.T) {
	a := NewArrangement(120)
	a.Tracks = []Track{{ID: "t1", Mixer: &MixerSettings{Volume: 0.5}, Steps: StepGrid{true, false}}}
	a.Blocks = []PatternBlock{{ID: "b1", TrackID: "t1", StartBar: 1, Duration: 4, Steps: StepGrid{true}}}
	c := a.Clone()
	c.Tracks[0].Mixer.Volume = 1
	c.Tracks[0].Steps[0] = false
	c.Blocks[0].Steps[0] = false
	c.Blocks[0].StartBar = 9
	if a.Tracks[0].Mixer.Volume != 0.5 || !a.Tracks[0].Steps[0] || !a.Blocks[0].Steps[0] || a.Blocks[0].StartBar != 1 {
		t.Fatalf("clone shares state with original: %+v", a)
	}
}

func TestSpanMarkers(t *testing.T) {
	if _, ok := SpanMarkers(nil); ok {
		t.Fatal("no blocks should give no markers")
	}
	m, ok := SpanMarkers([]PatternBlock{
		{StartBar: 5, Duration: 4},
		{StartBar: 3, Duration: 2},
		{StartBar: 10, Duration: 6},
	})
	if !ok || m.StartBar != 3 || m.EndBar != 15 || m.Active {
		t.Fatalf("SpanMarkers = %+v, %v", m, ok)
	}
	if m.Bars() != 13 {
		t.Fatalf("Bars() = %d", m.Bars())
	}
}

func TestMixerClamped(t *testing.T) {
	s := MixerSettings{Volume: 3, Pan: -4}.Clamped()
	if s.Volume != 1 || s.Pan != -1 {
		t.Fatalf("Clamped = %+v", s)
	}
	var tr Track
	if tr.Rate() != 1 || tr.MixerOrDefault().Volume != 1 {
		t.Fatalf("zero track should have unity rate and volume")
	}
}

func TestStepGridWaveform(t *testing.T) {
	g := StepGrid{true, false, false, false}
	w := g.Waveform(8)
	if len(w) != 8 {
		t.Fatalf("len = %d", len(w))
	}
	if w[0] != 1 {
		t.Fatalf("first active step should peak at 1, got %v", w[0])
	}
	for i := 2; i < 8; i++ {
		if w[i] != 0 {
			t.Fatalf("inactive step drew %v at %d", w[i], i)
		}
	}
	if got := g.Active(); len(got) != 1 || got[0] != 0 {
		t.Fatalf("Active = %v", got)
	}
	if r := g.Resize(6); len(r) != 6 || !r[0] {
		t.Fatalf("Resize = %v", r)
	}
}

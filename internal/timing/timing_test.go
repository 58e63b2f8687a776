package timing

import (
	"math"
	"testing"
)

func TestSecondsPerBar(t *testing.T) {
	tests := []struct {
		bpm  float64
		want float64
	}{
		{120, 2},
		{100, 2.4},
		{60, 4},
		{240, 1},
	}
	for _, tt := range tests {
		if got := SecondsPerBar(tt.bpm); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("SecondsPerBar(%v) = %v, want %v", tt.bpm, got, tt.want)
		}
	}
	if got := SecondsPerBarIn(120, 3); math.Abs(got-1.5) > 1e-12 {
		t.Errorf("SecondsPerBarIn(120, 3) = %v, want 1.5", got)
	}
}

func TestBarToSeconds(t *testing.T) {
	if got := BarToSeconds(1, 120); got != 0 {
		t.Fatalf("bar 1 should start at 0, got %v", got)
	}
	if got := BarToSeconds(3, 100); math.Abs(got-4.8) > 1e-12 {
		t.Fatalf("bar 3 at 100bpm = %v, want 4.8", got)
	}
}

func TestBarSecondsRoundTrip(t *testing.T) {
	for _, bpm := range []float64{1, 60, 87.5, 120, 174, 999} {
		for bar := 1.0; bar <= 512; bar += 3.25 {
			got := SecondsToBar(BarToSeconds(bar, bpm), bpm)
			if math.Abs(got-bar) > 1e-9 {
				t.Fatalf("round trip bar=%v bpm=%v: got %v", bar, bpm, got)
			}
		}
	}
}

func TestPositionAtAndBar(t *testing.T) {
	// 120 bpm: a beat is 0.5s, a sixteenth 0.125s.
	p := PositionAt(2.625, 120)
	if p.Bars != 1 || p.Beats != 1 || math.Abs(p.Sixteenths-1) > 1e-9 {
		t.Fatalf("PositionAt(2.625) = %+v, want 1:1:1", p)
	}
	if got := p.Bar(); math.Abs(got-(2+0.25+1.0/16)) > 1e-9 {
		t.Fatalf("Bar() = %v", got)
	}
	if got := p.Seconds(120); math.Abs(got-2.625) > 1e-9 {
		t.Fatalf("Seconds() = %v, want 2.625", got)
	}
	if got := PositionAt(0, 120); got != (Position{}) {
		t.Fatalf("zero seconds should map to 0:0:0, got %v", got)
	}
}

func TestParsePosition(t *testing.T) {
	p, err := ParsePosition("3:2:1.5")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Bars != 3 || p.Beats != 2 || p.Sixteenths != 1.5 {
		t.Fatalf("parsed %+v", p)
	}
	if p.String() != "3:2:1.5" {
		t.Fatalf("String() = %q", p.String())
	}
	if p, err := ParsePosition("4"); err != nil || p.Bars != 4 {
		t.Fatalf("ParsePosition(4) = %+v, %v", p, err)
	}
	for _, bad := range []string{"", "a:b", "1:2:3:4", "1:x"} {
		if _, err := ParsePosition(bad); err == nil {
			t.Errorf("ParsePosition(%q) should fail", bad)
		}
	}
}

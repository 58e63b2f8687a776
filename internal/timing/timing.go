package timing

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// BeatsPerBar is the meter assumed throughout the arrangement (4/4).
const BeatsPerBar = 4

// SixteenthsPerBeat is the subdivision used by transport positions.
const SixteenthsPerBeat = 4

// SecondsPerBar returns the length of one 4/4 bar at bpm.
func SecondsPerBar(bpm float64) float64 {
	return SecondsPerBarIn(bpm, BeatsPerBar)
}

// SecondsPerBarIn returns the length of one bar of beatsPerBar beats at bpm.
func SecondsPerBarIn(bpm float64, beatsPerBar int) float64 {
	return (60 / bpm) * float64(beatsPerBar)
}

// BarToSeconds maps a 1-based bar number to its timeline start in seconds.
func BarToSeconds(bar float64, bpm float64) float64 {
	return (bar - 1) * SecondsPerBar(bpm)
}

// SecondsToBar is the inverse of BarToSeconds.
func SecondsToBar(seconds float64, bpm float64) float64 {
	return seconds/SecondsPerBar(bpm) + 1
}

// BarsToDuration returns the length in seconds of n whole bars.
func BarsToDuration(n int, bpm float64) float64 {
	return float64(n) * SecondsPerBar(bpm)
}

// Position is a transport position in bars.beats.sixteenths, zero based.
type Position struct {
	Bars       int
	Beats      int
	Sixteenths float64
}

// PositionAt converts transport seconds into a bars.beats.sixteenths position.
func PositionAt(seconds float64, bpm float64) Position {
	if seconds <= 0 || bpm <= 0 {
		return Position{}
	}
	totalSixteenths := seconds / (60 / bpm) * SixteenthsPerBeat
	perBar := float64(BeatsPerBar * SixteenthsPerBeat)
	bars := math.Floor(totalSixteenths / perBar)
	rem := totalSixteenths - bars*perBar
	beats := math.Floor(rem / SixteenthsPerBeat)
	return Position{
		Bars:       int(bars),
		Beats:      int(beats),
		Sixteenths: rem - beats*SixteenthsPerBeat,
	}
}

// Bar returns the 1-based fractional bar number of the position.
func (p Position) Bar() float64 {
	return float64(p.Bars) + float64(p.Beats)/BeatsPerBar +
		p.Sixteenths/(BeatsPerBar*SixteenthsPerBeat) + 1
}

// Seconds converts the position back to transport seconds.
func (p Position) Seconds(bpm float64) float64 {
	return BarToSeconds(p.Bar(), bpm)
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d:%s", p.Bars, p.Beats, strconv.FormatFloat(p.Sixteenths, 'f', -1, 64))
}

// ParsePosition parses "bars:beats:sixteenths"; missing fields are zero.
func ParsePosition(s string) (Position, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) == 0 || len(parts) > 3 || parts[0] == "" {
		return Position{}, fmt.Errorf("invalid transport position %q", s)
	}
	var p Position
	var err error
	if p.Bars, err = strconv.Atoi(parts[0]); err != nil {
		return Position{}, fmt.Errorf("invalid bars in %q: %w", s, err)
	}
	if len(parts) > 1 {
		if p.Beats, err = strconv.Atoi(parts[1]); err != nil {
			return Position{}, fmt.Errorf("invalid beats in %q: %w", s, err)
		}
	}
	if len(parts) > 2 {
		if p.Sixteenths, err = strconv.ParseFloat(parts[2], 64); err != nil {
			return Position{}, fmt.Errorf("invalid sixteenths in %q: %w", s, err)
		}
	}
	return p, nil
}

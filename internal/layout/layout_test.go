package layout

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/cbegin/arrange-go/internal/model"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	arr := model.NewArrangement(120)
	arr.Tracks = []model.Track{
		{ID: "t1", Name: "Kick", Color: "#f00", Steps: model.StepGrid{true, false, true, false}},
		{ID: "t2", Name: "Bass", Color: "#0f0"},
	}
	e, err := New(arr)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	n := 0
	e.newID = func() string {
		n++
		return fmt.Sprintf("b%d", n)
	}
	return e
}

func checkInvariants(t *testing.T, a model.Arrangement) {
	t.Helper()
	for _, b := range a.Blocks {
		if b.Duration < 1 || b.StartBar < 1 {
			t.Fatalf("block %s has start=%d duration=%d", b.ID, b.StartBar, b.Duration)
		}
		if b.EndBar() != b.StartBar+b.Duration-1 {
			t.Fatalf("block %s endBar not derived", b.ID)
		}
		if b.EndBar() < b.StartBar {
			t.Fatalf("block %s ends before it starts", b.ID)
		}
		if b.EndBar() > a.TotalBars {
			t.Fatalf("block %s ends at %d past ceiling %d", b.ID, b.EndBar(), a.TotalBars)
		}
	}
}

func TestPlaceSnapshotsTrack(t *testing.T) {
	e := newTestEngine(t)
	b, err := e.Place("t1", 3, 4)
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if b.EndBar() != 6 || b.Color != "#f00" || b.BPM != 120 || b.Name != "Kick" {
		t.Fatalf("placed block = %+v", b)
	}
	if len(b.Steps) != 4 || !b.Steps[0] {
		t.Fatalf("step grid not snapshotted: %v", b.Steps)
	}
	checkInvariants(t, e.Snapshot())
}

func TestPlaceRejectsPastCeiling(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.Place("t1", 60, 8); !errors.Is(err, model.ErrExceedsTimeline) {
		t.Fatalf("err = %v, want ErrExceedsTimeline", err)
	}
	if len(e.Snapshot().Blocks) != 0 {
		t.Fatal("failed place mutated the arrangement")
	}
	if _, err := e.Place("t1", 1, 0); !errors.Is(err, model.ErrInvalidDuration) {
		t.Fatalf("zero duration err = %v", err)
	}
	if _, err := e.Place("nope", 1, 1); !errors.Is(err, ErrUnknownTrack) {
		t.Fatalf("unknown track err = %v", err)
	}
}

func TestMoveClamps(t *testing.T) {
	e := newTestEngine(t)
	b, _ := e.Place("t1", 5, 4)
	if err := e.Move(b.ID, -3); err != nil {
		t.Fatalf("move: %v", err)
	}
	got, _ := e.Snapshot().Block(b.ID)
	if got.StartBar != 1 || got.EndBar() != 4 {
		t.Fatalf("moved block = %+v", got)
	}
	if err := e.Move(b.ID, 100); err != nil {
		t.Fatalf("move: %v", err)
	}
	got, _ = e.Snapshot().Block(b.ID)
	if got.EndBar() != 64 {
		t.Fatalf("move past ceiling should clamp to end at 64, got %+v", got)
	}
	checkInvariants(t, e.Snapshot())
}

func TestResize(t *testing.T) {
	e := newTestEngine(t)
	b, _ := e.Place("t1", 5, 4) // 5-8
	tests := []struct {
		edge      Edge
		delta     int
		wantStart int
		wantDur   int
	}{
		{EdgeLeft, -2, 3, 6},  // 3-8
		{EdgeLeft, 10, 8, 1},  // floor of one bar keeps the end
		{EdgeLeft, -20, 1, 8}, // start clamps to bar 1
		{EdgeRight, 3, 1, 11},
		{EdgeRight, -50, 1, 1},
		{EdgeRight, 500, 1, 64},
	}
	for i, tt := range tests {
		if err := e.Resize(b.ID, tt.edge, tt.delta); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		got, _ := e.Snapshot().Block(b.ID)
		if got.StartBar != tt.wantStart || got.Duration != tt.wantDur {
			t.Fatalf("step %d: got start=%d dur=%d, want %d/%d", i, got.StartBar, got.Duration, tt.wantStart, tt.wantDur)
		}
		checkInvariants(t, e.Snapshot())
	}
}

func TestDuplicatePlacesAfterEnd(t *testing.T) {
	e := newTestEngine(t)
	b, _ := e.Place("t1", 5, 4)
	c, err := e.Duplicate(b.ID)
	if err != nil {
		t.Fatalf("duplicate: %v", err)
	}
	if c.StartBar != 9 || c.Duration != 4 || c.ID == b.ID {
		t.Fatalf("clone = %+v", c)
	}
	last, _ := e.Place("t2", 61, 4)
	if _, err := e.Duplicate(last.ID); !errors.Is(err, model.ErrExceedsTimeline) {
		t.Fatalf("duplicate past ceiling err = %v", err)
	}
}

func TestSplit(t *testing.T) {
	for d := 1; d <= 9; d++ {
		e := newTestEngine(t)
		b, _ := e.Place("t1", 3, d)
		halves, err := e.Split(b.ID)
		if d < 2 {
			if !errors.Is(err, ErrCannotSplit) {
				t.Fatalf("d=%d: err = %v", d, err)
			}
			if got, ok := e.Snapshot().Block(b.ID); !ok || got.Duration != 1 {
				t.Fatalf("rejected split changed the block")
			}
			continue
		}
		if err != nil {
			t.Fatalf("d=%d: %v", d, err)
		}
		first, second := halves[0], halves[1]
		if first.Duration != d/2 || first.Duration+second.Duration != d {
			t.Fatalf("d=%d: durations %d+%d", d, first.Duration, second.Duration)
		}
		if first.StartBar != b.StartBar || second.EndBar() != b.EndBar() || second.StartBar != first.EndBar()+1 {
			t.Fatalf("d=%d: halves %+v %+v do not cover %+v", d, first, second, b)
		}
		snap := e.Snapshot()
		if _, ok := snap.Block(b.ID); ok || len(snap.Blocks) != 2 {
			t.Fatalf("d=%d: original not replaced: %+v", d, snap.Blocks)
		}
		checkInvariants(t, snap)
	}
}

func TestBulkRemoveAndDuplicate(t *testing.T) {
	e := newTestEngine(t)
	a, _ := e.Place("t1", 1, 4)
	b, _ := e.Place("t2", 1, 4)
	c, _ := e.Place("t2", 57, 4)
	clones, err := e.BulkDuplicate([]string{a.ID, b.ID, c.ID})
	if !errors.Is(err, model.ErrExceedsTimeline) {
		t.Fatalf("expected skipped clone error, got %v", err)
	}
	if len(clones) != 2 || clones[0].StartBar != 9 || clones[1].StartBar != 9 {
		t.Fatalf("clones = %+v", clones)
	}
	if err := e.BulkRemove([]string{a.ID, "missing"}); !errors.Is(err, ErrUnknownBlock) {
		t.Fatalf("bulk remove with unknown id err = %v", err)
	}
	if len(e.Snapshot().Blocks) != 5 {
		t.Fatal("failed bulk remove mutated the arrangement")
	}
	if err := e.BulkRemove([]string{a.ID, b.ID}); err != nil {
		t.Fatalf("bulk remove: %v", err)
	}
	if n := len(e.Snapshot().Blocks); n != 3 {
		t.Fatalf("blocks left = %d", n)
	}
	if err := e.Remove(c.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
}

func TestClipToCeiling(t *testing.T) {
	e := newTestEngine(t)
	keep, _ := e.Place("t1", 1, 4)   // 1-4
	clip, _ := e.Place("t1", 5, 8)   // 5-12
	drop, _ := e.Place("t2", 9, 8)   // 9-16
	edge, _ := e.Place("t2", 8, 1)   // 8-8
	rep, err := e.SetTotalBars(8)
	if err != nil {
		t.Fatalf("set total bars: %v", err)
	}
	snap := e.Snapshot()
	if snap.TotalBars != 8 {
		t.Fatalf("TotalBars = %d", snap.TotalBars)
	}
	got, ok := snap.Block(clip.ID)
	if !ok || got.StartBar != 5 || got.EndBar() != 8 || got.Duration != 4 {
		t.Fatalf("clipped block = %+v", got)
	}
	if !strings.HasSuffix(got.Name, TruncatedSuffix) {
		t.Fatalf("clipped block not renamed: %q", got.Name)
	}
	if _, ok := snap.Block(drop.ID); ok {
		t.Fatal("block starting past the ceiling was not dropped")
	}
	if k, _ := snap.Block(keep.ID); k.Name != "Kick" {
		t.Fatalf("untouched block renamed: %q", k.Name)
	}
	if _, ok := snap.Block(edge.ID); !ok {
		t.Fatal("block ending exactly at the ceiling was dropped")
	}
	if len(rep.Clipped) != 1 || len(rep.Dropped) != 1 {
		t.Fatalf("report = %+v", rep)
	}
	checkInvariants(t, snap)
	if _, err := e.SetTotalBars(0); !errors.Is(err, model.ErrInvalidBars) {
		t.Fatalf("zero bars err = %v", err)
	}
}

func TestClipNeverLeavesShortBlocks(t *testing.T) {
	var blocks []model.PatternBlock
	for s := 1; s <= 20; s++ {
		for d := 1; d <= 10; d++ {
			blocks = append(blocks, model.PatternBlock{ID: fmt.Sprintf("%d-%d", s, d), StartBar: s, Duration: d})
		}
	}
	for n := 1; n <= 25; n++ {
		out, _ := Clip(blocks, n)
		for _, b := range out {
			if b.EndBar() > n || b.Duration < 1 {
				t.Fatalf("n=%d: block %+v violates ceiling", n, b)
			}
		}
	}
}

func TestMarkers(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.ActivateMarkers(); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("activate with no blocks err = %v", err)
	}
	e.Place("t1", 3, 4)
	e.Place("t2", 10, 2)
	m, err := e.ActivateMarkers()
	if err != nil || m.StartBar != 3 || m.EndBar != 11 || !m.Active {
		t.Fatalf("markers = %+v, %v", m, err)
	}
	// Active markers no longer follow block edits.
	e.Place("t2", 20, 2)
	if got := e.Markers(); got.EndBar != 11 {
		t.Fatalf("active markers moved: %+v", got)
	}
	if err := e.ResetMarkers(); err != nil {
		t.Fatal(err)
	}
	if got := e.Markers(); got.Active || got.EndBar != 21 {
		t.Fatalf("reset markers should follow the span: %+v", got)
	}
	if err := e.SetMarkers(5, 4); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("inverted range err = %v", err)
	}
}

func TestReplaceBlocksRaisesCeiling(t *testing.T) {
	e := newTestEngine(t)
	a, _ := e.Place("t1", 1, 4)
	b, _ := e.Place("t2", 1, 4)
	err := e.ReplaceBlocks([]string{a.ID}, []model.PatternBlock{
		{TrackID: "t1", Name: "x", StartBar: 60, Duration: 10},
	}, 69)
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	snap := e.Snapshot()
	if snap.TotalBars != 69 {
		t.Fatalf("TotalBars = %d, want 69", snap.TotalBars)
	}
	if snap.Blocks[0].Name != "x" || snap.Blocks[0].ID == "" || snap.Blocks[1].ID != b.ID {
		t.Fatalf("blocks = %+v", snap.Blocks)
	}
	// never lowered
	if err := e.ReplaceBlocks(nil, nil, 10); err != nil || e.Snapshot().TotalBars != 69 {
		t.Fatalf("ceiling lowered or err %v", err)
	}
}

func TestSubscribersSeeEveryChange(t *testing.T) {
	e := newTestEngine(t)
	var seen []int
	e.Subscribe(func(a model.Arrangement) { seen = append(seen, len(a.Blocks)) })
	e.Place("t1", 1, 2)
	e.Place("t1", 70, 2) // rejected, no notification
	e.Place("t1", 3, 2)
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Fatalf("notifications = %v", seen)
	}
}

func TestSetBPMValidates(t *testing.T) {
	e := newTestEngine(t)
	if err := e.SetBPM(0); !errors.Is(err, model.ErrInvalidBPM) {
		t.Fatalf("err = %v", err)
	}
	if err := e.SetBPM(90); err != nil || e.Snapshot().BPM != 90 {
		t.Fatalf("SetBPM(90): %v", err)
	}
}

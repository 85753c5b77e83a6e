package thumbnail

import (
	"reflect"
	"testing"
)

func thumbsAt(times ...int) []Thumbnail {
	out := make([]Thumbnail, len(times))
	for i, t := range times {
		out[i] = Thumbnail{TimeMs: t}
	}
	return out
}

func TestNearest(t *testing.T) {
	thumbs := thumbsAt(0, 5000, 10000)

	tests := []struct {
		timeMs   int
		expected int
	}{
		{7400, 5000},
		{7500, 5000}, // tie goes to the earlier thumbnail
		{7501, 10000},
		{-100, 0},
		{99999, 10000},
		{5000, 5000},
	}

	for _, tt := range tests {
		got, ok := Nearest(thumbs, tt.timeMs)
		if !ok || got.TimeMs != tt.expected {
			t.Errorf("Nearest(%d) = %d, %v; want %d", tt.timeMs, got.TimeMs, ok, tt.expected)
		}
	}

	if _, ok := Nearest(nil, 100); ok {
		t.Error("expected no thumbnail in empty strip")
	}
}

func TestStrip_InsertKeepsOrderAndDropsDuplicates(t *testing.T) {
	s := newStrip(Source{FileID: "a", DurationMs: 10000}, Low, DefaultTierSpecs()[Low])

	for _, ts := range []int{4000, 0, 2000, 4000} {
		s.insert(Thumbnail{TimeMs: ts})
	}

	snap := s.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 thumbnails, got %d", len(snap))
	}
	for i, want := range []int{0, 2000, 4000} {
		if snap[i].TimeMs != want {
			t.Errorf("thumbnail %d at %d, want %d", i, snap[i].TimeMs, want)
		}
	}
}

func TestStrip_RemoveRange(t *testing.T) {
	s := newStrip(Source{FileID: "a", DurationMs: 10000}, Low, DefaultTierSpecs()[Low])
	for _, ts := range []int{0, 2000, 4000, 6000, 8000} {
		s.insert(Thumbnail{TimeMs: ts + 13, SlotMs: ts})
	}
	s.setComplete(true)

	if slots := s.removeRange(2005, 4013); !reflect.DeepEqual(slots, []int{2000, 4000}) {
		t.Errorf("expected slots [2000 4000] removed, got %v", slots)
	}
	if s.Complete() {
		t.Error("strip should be incomplete after removal")
	}
	if slots := s.removeRange(2500, 3500); len(slots) != 0 {
		t.Errorf("expected nothing removed, got %v", slots)
	}

	got, _ := s.Nearest(3000)
	if got.TimeMs != 13 {
		t.Errorf("unexpected nearest %d", got.TimeMs)
	}
	if s.Len() != 3 {
		t.Errorf("expected 3 left, got %d", s.Len())
	}
}

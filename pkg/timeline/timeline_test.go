package timeline

import (
	"errors"
	"reflect"
	"testing"
)

func TestApply_TrimInvalidatesUnion(t *testing.T) {
	tl := New()
	tl.SetClips([]Clip{
		{ID: "c1", FileID: "a.mp4", Source: Range{1000, 5000}},
		{ID: "c2", FileID: "b.mp4", Source: Range{1000, 5000}},
	})

	got, err := tl.Apply(Edit{Kind: Trim, ClipID: "c1", To: Range{1500, 4500}})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := []Invalidation{{FileID: "a.mp4", Range: Range{1000, 5000}}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}

	// Extending afterwards covers the new outer edge.
	got, _ = tl.Apply(Edit{Kind: Trim, ClipID: "c1", To: Range{1500, 6000}})
	want = []Invalidation{{FileID: "a.mp4", Range: Range{1500, 6000}}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestApply_MoveInvalidatesBothRanges(t *testing.T) {
	tl := New()
	tl.SetClips([]Clip{{ID: "c1", FileID: "a.mp4", Source: Range{0, 1000}}})

	got, err := tl.Apply(Edit{Kind: Move, ClipID: "c1", To: Range{3000, 4000}})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := []Invalidation{
		{FileID: "a.mp4", Range: Range{0, 1000}},
		{FileID: "a.mp4", Range: Range{3000, 4000}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}

	got, _ = tl.Apply(Edit{Kind: Move, ClipID: "c1", To: Range{3500, 4500}})
	want = []Invalidation{{FileID: "a.mp4", Range: Range{3000, 4500}}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("overlapping move: got %+v, want %+v", got, want)
	}
}

func TestApply_DeleteKeepsRangesStillReferenced(t *testing.T) {
	tl := New()
	tl.SetClips([]Clip{
		{ID: "c1", FileID: "a.mp4", Source: Range{0, 10000}},
		{ID: "c2", FileID: "a.mp4", Source: Range{2000, 3000}},
		{ID: "c3", FileID: "a.mp4", Source: Range{8000, 12000}},
		{ID: "c4", FileID: "b.mp4", Source: Range{0, 10000}},
	})

	got, err := tl.Apply(Edit{Kind: Delete, ClipID: "c1"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := []Invalidation{
		{FileID: "a.mp4", Range: Range{0, 1999}},
		{FileID: "a.mp4", Range: Range{3001, 7999}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if n := len(tl.Clips()); n != 3 {
		t.Errorf("expected 3 clips left, got %d", n)
	}
}

func TestApply_DeleteFullyCovered(t *testing.T) {
	tl := New()
	tl.SetClips([]Clip{
		{ID: "c1", FileID: "a.mp4", Source: Range{1000, 2000}},
		{ID: "c2", FileID: "a.mp4", Source: Range{0, 5000}},
	})

	got, _ := tl.Apply(Edit{Kind: Delete, ClipID: "c1"})
	if len(got) != 0 {
		t.Errorf("expected nothing to invalidate, got %+v", got)
	}
}

func TestApply_UnknownClip(t *testing.T) {
	tl := New()
	if _, err := tl.Apply(Edit{Kind: Trim, ClipID: "nope"}); !errors.Is(err, ErrUnknownClip) {
		t.Errorf("expected ErrUnknownClip, got %v", err)
	}
}

func TestRange_Subtract(t *testing.T) {
	tests := []struct {
		name  string
		r     Range
		cover []Range
		want  []Range
	}{
		{"no cover", Range{0, 10}, nil, []Range{{0, 10}}},
		{"middle hole", Range{0, 10}, []Range{{4, 6}}, []Range{{0, 3}, {7, 10}}},
		{"covers start", Range{0, 10}, []Range{{-5, 3}}, []Range{{4, 10}}},
		{"covers end", Range{0, 10}, []Range{{8, 20}}, []Range{{0, 7}}},
		{"fully covered", Range{0, 10}, []Range{{0, 10}}, []Range{}},
		{"unsorted overlapping cover", Range{0, 20}, []Range{{10, 12}, {2, 4}, {3, 5}}, []Range{{0, 1}, {6, 9}, {13, 20}}},
		{"cover outside", Range{0, 10}, []Range{{20, 30}}, []Range{{0, 10}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.r.Subtract(tt.cover); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Subtract = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	got := Merge([]Range{{10, 20}, {0, 5}, {6, 8}, {15, 25}, {30, 29}})
	want := []Range{{0, 8}, {10, 25}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Merge = %+v, want %+v", got, want)
	}
}

func TestRange_Overlaps(t *testing.T) {
	if !(Range{0, 10}).Overlaps(Range{10, 20}) {
		t.Error("expected touching ranges to overlap")
	}
	if (Range{0, 10}).Overlaps(Range{11, 20}) {
		t.Error("expected disjoint ranges not to overlap")
	}
}

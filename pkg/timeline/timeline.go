// Package timeline turns clip edits into the source ranges whose cached
// frames and thumbnails must be dropped.
package timeline

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownClip is returned when an edit names a clip that was never registered.
var ErrUnknownClip = errors.New("timeline: unknown clip")

// Range is an inclusive source time range in milliseconds.
type Range struct {
	StartMs int
	EndMs   int
}

// Empty reports whether the range contains no time.
func (r Range) Empty() bool { return r.EndMs < r.StartMs }

// Overlaps reports whether r and o share at least one millisecond.
func (r Range) Overlaps(o Range) bool {
	return !r.Empty() && !o.Empty() && r.StartMs <= o.EndMs && o.StartMs <= r.EndMs
}

// Union returns the smallest range covering both.
func (r Range) Union(o Range) Range {
	switch {
	case r.Empty():
		return o
	case o.Empty():
		return r
	}
	return Range{StartMs: min(r.StartMs, o.StartMs), EndMs: max(r.EndMs, o.EndMs)}
}

// Subtract returns the parts of r not covered by any of cover, ascending.
func (r Range) Subtract(cover []Range) []Range {
	if r.Empty() {
		return nil
	}
	sorted := Merge(cover)
	out := []Range{}
	cur := r.StartMs
	for _, c := range sorted {
		if c.EndMs < cur || c.StartMs > r.EndMs {
			continue
		}
		if c.StartMs > cur {
			out = append(out, Range{StartMs: cur, EndMs: c.StartMs - 1})
		}
		cur = c.EndMs + 1
		if cur > r.EndMs {
			return out
		}
	}
	return append(out, Range{StartMs: cur, EndMs: r.EndMs})
}

// Merge sorts ranges and joins overlapping or adjacent ones.
func Merge(ranges []Range) []Range {
	var rs []Range
	for _, r := range ranges {
		if !r.Empty() {
			rs = append(rs, r)
		}
	}
	sort.Slice(rs, func(i, j int) bool { return rs[i].StartMs < rs[j].StartMs })

	var out []Range
	for _, r := range rs {
		if n := len(out); n > 0 && r.StartMs <= out[n-1].EndMs+1 {
			out[n-1].EndMs = max(out[n-1].EndMs, r.EndMs)
			continue
		}
		out = append(out, r)
	}
	return out
}

// Clip places a source range of a media file on the timeline.
type Clip struct {
	ID     string
	FileID string
	Source Range
}

// EditKind is the type of a clip edit.
type EditKind int

const (
	Trim EditKind = iota
	Move
	Delete
)

func (k EditKind) String() string {
	switch k {
	case Trim:
		return "trim"
	case Move:
		return "move"
	case Delete:
		return "delete"
	default:
		return fmt.Sprintf("EditKind(%d)", int(k))
	}
}

// Edit describes one change to a clip's source range.
// Delete ignores To.
type Edit struct {
	Kind   EditKind
	ClipID string
	To     Range
}

// Invalidation is a source range of one file to drop from the caches.
type Invalidation struct {
	FileID string
	Range  Range
}

// Timeline tracks the clips of a project. It is safe for concurrent use.
type Timeline struct {
	mu    sync.Mutex
	clips map[string]Clip
}

// New creates an empty timeline.
func New() *Timeline {
	return &Timeline{clips: make(map[string]Clip)}
}

// SetClips replaces the registered clips.
func (t *Timeline) SetClips(clips []Clip) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clips = make(map[string]Clip, len(clips))
	for _, c := range clips {
		t.clips[c.ID] = c
	}
}

// Clips returns the registered clips ordered by ID.
func (t *Timeline) Clips() []Clip {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Clip, 0, len(t.clips))
	for _, c := range t.clips {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Apply records the edit and returns the ranges to invalidate:
//   - trim: the union of the old and new source range
//   - move: the vacated and the occupied range
//   - delete: the deleted range minus whatever other clips of the same file still use
func (t *Timeline) Apply(e Edit) ([]Invalidation, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	clip, ok := t.clips[e.ClipID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownClip, e.ClipID)
	}

	var ranges []Range
	switch e.Kind {
	case Trim:
		ranges = []Range{clip.Source.Union(e.To)}
		clip.Source = e.To
		t.clips[clip.ID] = clip
	case Move:
		ranges = Merge([]Range{clip.Source, e.To})
		clip.Source = e.To
		t.clips[clip.ID] = clip
	case Delete:
		delete(t.clips, clip.ID)
		var still []Range
		for _, other := range t.clips {
			if other.FileID == clip.FileID {
				still = append(still, other.Source)
			}
		}
		ranges = clip.Source.Subtract(still)
	default:
		return nil, fmt.Errorf("timeline: unsupported edit %s", e.Kind)
	}

	out := make([]Invalidation, 0, len(ranges))
	for _, r := range ranges {
		if !r.Empty() {
			out = append(out, Invalidation{FileID: clip.FileID, Range: r})
		}
	}
	return out, nil
}

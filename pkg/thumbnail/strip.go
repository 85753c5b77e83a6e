package thumbnail

import (
	"container/list"
	"image"
	"sort"
	"sync"
)

// Thumbnail is one generated image of a strip.
type Thumbnail struct {
	TimeMs int // time of the decoded frame
	SlotMs int // scheduled time it was generated for
	Image  image.Image
	Width  int
	Height int
}

// Source describes the media file a strip is generated from.
type Source struct {
	FileID     string
	Path       string
	DurationMs int
	Width      int // coded size, used to keep the aspect ratio
	Height     int
}

// Strip holds the thumbnails of one file at one tier, ascending by time.
// Readers may use it while it is still being generated.
type Strip struct {
	source     Source
	tier       Tier
	spec       TierSpec
	intervalMs int

	mu       sync.RWMutex
	thumbs   []Thumbnail
	complete bool
	err      error

	// guarded by the owning Service
	elem *list.Element
	jobs []*job
}

func newStrip(src Source, tier Tier, spec TierSpec) *Strip {
	return &Strip{
		source:     src,
		tier:       tier,
		spec:       spec,
		intervalMs: spec.IntervalMs(src.DurationMs),
	}
}

func (s *Strip) FileID() string { return s.source.FileID }
func (s *Strip) Tier() Tier { return s.tier }
func (s *Strip) Spec() TierSpec { return s.spec }
func (s *Strip) IntervalMs() int { return s.intervalMs }
func (s *Strip) DurationMs() int { return s.source.DurationMs }
func (s *Strip) Schedule() []int { return s.spec.Schedule(s.source.DurationMs) }

// Snapshot returns a copy of the thumbnails generated so far.
func (s *Strip) Snapshot() []Thumbnail {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Thumbnail(nil), s.thumbs...)
}

// Len returns the number of thumbnails generated so far.
func (s *Strip) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.thumbs)
}

// Complete reports whether every scheduled thumbnail has been attempted.
func (s *Strip) Complete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.complete
}

// Err returns the error that stopped generation, if any.
func (s *Strip) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Nearest returns the thumbnail closest to timeMs.
func (s *Strip) Nearest(timeMs int) (Thumbnail, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Nearest(s.thumbs, timeMs)
}

// insert adds t keeping the order; a thumbnail at an existing time is dropped.
func (s *Strip) insert(t Thumbnail) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := sort.Search(len(s.thumbs), func(i int) bool { return s.thumbs[i].TimeMs >= t.TimeMs })
	if i < len(s.thumbs) && s.thumbs[i].TimeMs == t.TimeMs {
		return false
	}
	s.thumbs = append(s.thumbs, Thumbnail{})
	copy(s.thumbs[i+1:], s.thumbs[i:])
	s.thumbs[i] = t
	return true
}

// removeRange drops thumbnails with startMs <= TimeMs <= endMs and returns
// the slots they were generated for.
func (s *Strip) removeRange(startMs, endMs int) []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	lo := sort.Search(len(s.thumbs), func(i int) bool { return s.thumbs[i].TimeMs >= startMs })
	hi := sort.Search(len(s.thumbs), func(i int) bool { return s.thumbs[i].TimeMs > endMs })
	if hi <= lo {
		return nil
	}
	slots := make([]int, 0, hi-lo)
	for _, t := range s.thumbs[lo:hi] {
		slots = append(slots, t.SlotMs)
	}
	s.thumbs = append(s.thumbs[:lo], s.thumbs[hi:]...)
	s.complete = false
	return slots
}

func (s *Strip) setComplete(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.complete = v
}

func (s *Strip) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Nearest binary-searches ascending thumbs for the minimal |TimeMs - timeMs|.
// Ties go to the earlier thumbnail.
func Nearest(thumbs []Thumbnail, timeMs int) (Thumbnail, bool) {
	if len(thumbs) == 0 {
		return Thumbnail{}, false
	}
	i := sort.Search(len(thumbs), func(i int) bool { return thumbs[i].TimeMs >= timeMs })
	switch {
	case i == 0:
		return thumbs[0], true
	case i == len(thumbs):
		return thumbs[i-1], true
	}
	before, after := thumbs[i-1], thumbs[i]
	if timeMs-before.TimeMs <= after.TimeMs-timeMs {
		return before, true
	}
	return after, true
}

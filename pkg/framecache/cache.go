// Package framecache holds decoded preview frames in an LRU bounded by both
// total bytes and entry count.
package framecache

import (
	"container/list"
	"fmt"
	"image"
	"sync"

	"github.com/user/previewkit/pkg/adapters/logger"
	"github.com/user/previewkit/pkg/metrics"
	"github.com/user/previewkit/pkg/ports"
)

// Key identifies a cached frame.
type Key struct {
	FileID      string
	TimestampMs int
}

// Frame is an immutable cached frame. TimestampMs is the decoded frame's
// own time, which may differ from the key it was requested under.
type Frame struct {
	Image       image.Image
	TimestampMs int
	Width       int
	Height      int
}

// Bytes is the memory charged for the frame (RGBA).
func (f Frame) Bytes() int64 {
	return int64(f.Width) * int64(f.Height) * 4
}

// Budget caps the cache. Both limits are enforced; negative limits count as 0.
type Budget struct {
	Bytes int64
	Count int
}

func (b Budget) clamp() Budget {
	return Budget{Bytes: max(b.Bytes, 0), Count: max(b.Count, 0)}
}

// Stats counts cache activity.
type Stats struct {
	Hits      int
	Misses    int
	Evictions int
	Rejected  int
	Entries   int
	Bytes     int64
}

type entry struct {
	key   Key
	frame Frame
}

// Cache is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	budget  Budget
	ll      *list.List // front is most recently used
	items   map[Key]*list.Element
	byFile  map[string]map[int]*list.Element
	bytes   int64
	stats   Stats
	logger  ports.Logger
	metrics *metrics.Collector
}

// New creates a cache with the given budget.
func New(budget Budget, log ports.Logger, m *metrics.Collector) *Cache {
	if log == nil {
		log = logger.NewNoop()
	}
	return &Cache{
		budget:  budget.clamp(),
		ll:      list.New(),
		items:   make(map[Key]*list.Element),
		byFile:  make(map[string]map[int]*list.Element),
		logger:  log,
		metrics: m,
	}
}

// Get returns the frame for fileID at timestampMs and marks it most recently used.
func (c *Cache) Get(fileID string, timestampMs int) (Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[Key{fileID, timestampMs}]
	if !ok {
		c.stats.Misses++
		c.metrics.CacheMiss(metrics.CacheFrame)
		return Frame{}, false
	}
	c.ll.MoveToFront(el)
	c.stats.Hits++
	c.metrics.CacheHit(metrics.CacheFrame)
	return el.Value.(*entry).frame, true
}

// Put stores a frame. An existing key is left untouched. Least recently used
// entries are evicted until the new frame fits both budgets; a frame larger
// than the whole byte budget is rejected. Put reports whether the frame was stored.
func (c *Cache) Put(fileID string, timestampMs int, f Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := Key{fileID, timestampMs}
	if _, ok := c.items[key]; ok {
		return false
	}

	size := f.Bytes()
	if size > c.budget.Bytes || c.budget.Count <= 0 {
		c.stats.Rejected++
		c.logger.Debug("Frame %s@%d ms (%d bytes) exceeds the cache budget", fileID, timestampMs, size)
		return false
	}

	evicted := 0
	for c.ll.Len() > 0 && (c.bytes+size > c.budget.Bytes || c.ll.Len()+1 > c.budget.Count) {
		c.removeElement(c.ll.Back())
		evicted++
	}
	c.noteEvictions(evicted)

	el := c.ll.PushFront(&entry{key: key, frame: f})
	c.items[key] = el
	files := c.byFile[fileID]
	if files == nil {
		files = make(map[int]*list.Element)
		c.byFile[fileID] = files
	}
	files[timestampMs] = el
	c.bytes += size

	c.checkBudget()
	return true
}

// InvalidateRange removes every frame of fileID with startMs <= timestamp <= endMs
// and returns how many were removed.
func (c *Cache) InvalidateRange(fileID string, startMs, endMs int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for ts, el := range c.byFile[fileID] {
		if ts >= startMs && ts <= endMs {
			c.removeElement(el)
			n++
		}
	}
	if n > 0 {
		c.logger.Debug("Invalidated %d frames of %s in [%d, %d] ms", n, fileID, startMs, endMs)
	}
	c.report()
	return n
}

// RemoveFile removes every frame of fileID.
func (c *Cache) RemoveFile(fileID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, el := range c.byFile[fileID] {
		c.removeElement(el)
		n++
	}
	c.report()
	return n
}

// Clear removes every frame.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ll.Init()
	c.items = make(map[Key]*list.Element)
	c.byFile = make(map[string]map[int]*list.Element)
	c.bytes = 0
	c.report()
}

// SetBudgets replaces the budget and evicts until it holds.
func (c *Cache) SetBudgets(b Budget) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b = b.clamp()
	c.budget = b
	evicted := 0
	for c.ll.Len() > 0 && (c.bytes > b.Bytes || c.ll.Len() > b.Count) {
		c.removeElement(c.ll.Back())
		evicted++
	}
	c.noteEvictions(evicted)
	c.checkBudget()
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = c.ll.Len()
	s.Bytes = c.bytes
	return s
}

// Len returns the number of cached frames.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Bytes returns the bytes currently charged.
func (c *Cache) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}

func (c *Cache) removeElement(el *list.Element) {
	e := el.Value.(*entry)
	c.ll.Remove(el)
	delete(c.items, e.key)
	if files := c.byFile[e.key.FileID]; files != nil {
		delete(files, e.key.TimestampMs)
		if len(files) == 0 {
			delete(c.byFile, e.key.FileID)
		}
	}
	c.bytes -= e.frame.Bytes()
}

func (c *Cache) noteEvictions(n int) {
	if n == 0 {
		c.report()
		return
	}
	c.stats.Evictions += n
	c.metrics.CacheEvicted(metrics.CacheFrame, n)
	c.report()
}

func (c *Cache) report() {
	c.metrics.CacheSize(metrics.CacheFrame, c.bytes, c.ll.Len())
}

// checkBudget panics when the budget invariant is broken, which can only
// happen through a bug in this package.
func (c *Cache) checkBudget() {
	if c.bytes > c.budget.Bytes || c.ll.Len() > c.budget.Count {
		panic(fmt.Sprintf("framecache: budget exceeded: %d/%d bytes, %d/%d entries",
			c.bytes, c.budget.Bytes, c.ll.Len(), c.budget.Count))
	}
}

// Package guard limits how much render work user input can start.
//
// Playback ticks are dropped while a render is in flight. Scrub input goes
// through a single pending slot so only the latest position is rendered.
package guard

import (
	"sync/atomic"

	"github.com/user/previewkit/pkg/metrics"
)

// PlaybackGate admits one render at a time and drops ticks that arrive while busy.
type PlaybackGate struct {
	busy    atomic.Bool
	dropped atomic.Int64
	metrics *metrics.Collector
}

// NewPlaybackGate creates a gate. m may be nil.
func NewPlaybackGate(m *metrics.Collector) *PlaybackGate {
	return &PlaybackGate{metrics: m}
}

// TryRun runs fn on the calling goroutine if no render is in flight.
// It returns false, without running fn, when the tick was dropped.
func (g *PlaybackGate) TryRun(fn func()) bool {
	if !g.claim() {
		return false
	}
	defer g.busy.Store(false)
	fn()
	return true
}

// Go is TryRun on a new goroutine. It never blocks the caller.
func (g *PlaybackGate) Go(fn func()) bool {
	if !g.claim() {
		return false
	}
	go func() {
		defer g.busy.Store(false)
		fn()
	}()
	return true
}

// Busy reports whether a render is in flight.
func (g *PlaybackGate) Busy() bool {
	return g.busy.Load()
}

// Dropped returns the number of ticks dropped so far.
func (g *PlaybackGate) Dropped() int64 {
	return g.dropped.Load()
}

func (g *PlaybackGate) claim() bool {
	if g.busy.CompareAndSwap(false, true) {
		return true
	}
	g.dropped.Add(1)
	g.metrics.PlaybackTickDropped()
	return false
}

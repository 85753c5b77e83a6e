package guard

import (
	"context"
	"sync"

	"github.com/user/previewkit/pkg/metrics"
)

// ScrubStats counts what a ScrubLoop did with its targets.
type ScrubStats struct {
	Requested  int
	Rendered   int
	Superseded int
}

// ScrubLoop renders the most recent scrub target. Targets set while a render
// is running overwrite each other; only the last one is rendered next.
type ScrubLoop struct {
	render  func(ctx context.Context, timeMs int)
	metrics *metrics.Collector

	mu      sync.Mutex
	pending int
	has     bool
	stats   ScrubStats

	signal chan struct{}
}

// NewScrubLoop creates a loop calling render for each target it picks up.
func NewScrubLoop(render func(ctx context.Context, timeMs int), m *metrics.Collector) *ScrubLoop {
	return &ScrubLoop{
		render:  render,
		metrics: m,
		signal:  make(chan struct{}, 1),
	}
}

// Set replaces the pending target. It never blocks.
func (l *ScrubLoop) Set(timeMs int) {
	l.mu.Lock()
	if l.has {
		l.stats.Superseded++
		l.metrics.ScrubSuperseded()
	}
	l.pending = timeMs
	l.has = true
	l.stats.Requested++
	l.mu.Unlock()

	select {
	case l.signal <- struct{}{}:
	default:
	}
}

// Run renders targets until ctx is done.
func (l *ScrubLoop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.signal:
		}

		for {
			ts, ok := l.take()
			if !ok || ctx.Err() != nil {
				break
			}
			l.render(ctx, ts)

			l.mu.Lock()
			l.stats.Rendered++
			l.mu.Unlock()
		}
	}
}

// Stats returns the loop's counters.
func (l *ScrubLoop) Stats() ScrubStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

func (l *ScrubLoop) take() (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.has {
		return 0, false
	}
	l.has = false
	return l.pending, true
}

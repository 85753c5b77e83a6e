// Package metrics exposes preview pipeline counters through Prometheus.
//
// A Collector registers its metrics on the registerer it is built with, so
// several services (or tests) never share state. All methods are safe on a
// nil *Collector, which records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "previewkit"

// Cache names used as the "cache" label.
const (
	CacheFrame     = "frame"
	CacheThumbnail = "thumbnail"
)

// Collector holds every previewkit metric.
type Collector struct {
	cacheHits      *prometheus.CounterVec
	cacheMisses    *prometheus.CounterVec
	cacheEvictions *prometheus.CounterVec
	cacheBytes     *prometheus.GaugeVec
	cacheEntries   *prometheus.GaugeVec

	seeks          prometheus.Counter
	forwardDecodes prometheus.Counter
	recreations    prometheus.Counter
	decodeErrors   *prometheus.CounterVec
	decodeLatency  prometheus.Histogram

	droppedTicks     prometheus.Counter
	supersededScrubs prometheus.Counter

	thumbnailsGenerated *prometheus.CounterVec
	thumbnailJobs       prometheus.Gauge
}

// New creates a Collector registered on reg.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		cacheHits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Cache lookups that found an entry",
		}, []string{"cache"}),
		cacheMisses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Cache lookups that found nothing",
		}, []string{"cache"}),
		cacheEvictions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Entries evicted to stay within budget",
		}, []string{"cache"}),
		cacheBytes: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "bytes",
			Help:      "Bytes currently held",
		}, []string{"cache"}),
		cacheEntries: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Entries currently held",
		}, []string{"cache"}),

		seeks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decode",
			Name:      "seeks_total",
			Help:      "Keyframe seeks issued by decoder sessions",
		}),
		forwardDecodes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decode",
			Name:      "forward_total",
			Help:      "Requests served by decoding forward without a seek",
		}),
		recreations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decode",
			Name:      "session_recreations_total",
			Help:      "Decoder sessions reopened after a fault",
		}),
		decodeErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decode",
			Name:      "errors_total",
			Help:      "Decode faults by kind",
		}, []string{"kind"}),
		decodeLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "decode",
			Name:      "frame_latency_seconds",
			Help:      "Time to produce one requested frame on a cache miss",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
		}),

		droppedTicks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "guard",
			Name:      "playback_ticks_dropped_total",
			Help:      "Playback ticks dropped because a render was in flight",
		}),
		supersededScrubs: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "guard",
			Name:      "scrub_targets_superseded_total",
			Help:      "Scrub targets replaced before they were rendered",
		}),

		thumbnailsGenerated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "thumbnail",
			Name:      "generated_total",
			Help:      "Thumbnails generated by tier",
		}, []string{"tier"}),
		thumbnailJobs: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "thumbnail",
			Name:      "jobs_pending",
			Help:      "Strip generation jobs queued or running",
		}),
	}
}

func (c *Collector) CacheHit(cache string) {
	if c == nil {
		return
	}
	c.cacheHits.WithLabelValues(cache).Inc()
}

func (c *Collector) CacheMiss(cache string) {
	if c == nil {
		return
	}
	c.cacheMisses.WithLabelValues(cache).Inc()
}

func (c *Collector) CacheEvicted(cache string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.cacheEvictions.WithLabelValues(cache).Add(float64(n))
}

// CacheSize records the current occupancy of a cache.
func (c *Collector) CacheSize(cache string, bytes int64, entries int) {
	if c == nil {
		return
	}
	c.cacheBytes.WithLabelValues(cache).Set(float64(bytes))
	c.cacheEntries.WithLabelValues(cache).Set(float64(entries))
}

func (c *Collector) Seek() {
	if c == nil {
		return
	}
	c.seeks.Inc()
}

func (c *Collector) ForwardDecode() {
	if c == nil {
		return
	}
	c.forwardDecodes.Inc()
}

func (c *Collector) SessionRecreated() {
	if c == nil {
		return
	}
	c.recreations.Inc()
}

func (c *Collector) DecodeError(kind string) {
	if c == nil {
		return
	}
	c.decodeErrors.WithLabelValues(kind).Inc()
}

func (c *Collector) ObserveDecode(d time.Duration) {
	if c == nil {
		return
	}
	c.decodeLatency.Observe(d.Seconds())
}

func (c *Collector) PlaybackTickDropped() {
	if c == nil {
		return
	}
	c.droppedTicks.Inc()
}

func (c *Collector) ScrubSuperseded() {
	if c == nil {
		return
	}
	c.supersededScrubs.Inc()
}

func (c *Collector) ThumbnailGenerated(tier string) {
	if c == nil {
		return
	}
	c.thumbnailsGenerated.WithLabelValues(tier).Inc()
}

func (c *Collector) ThumbnailJobs(delta int) {
	if c == nil {
		return
	}
	c.thumbnailJobs.Add(float64(delta))
}

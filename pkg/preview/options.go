package preview

import (
	"github.com/user/previewkit/pkg/decode"
	"github.com/user/previewkit/pkg/metrics"
	"github.com/user/previewkit/pkg/ports"
	"github.com/user/previewkit/pkg/thumbnail"
)

// Budgets caps the frame and thumbnail caches independently.
type Budgets struct {
	FrameBytes     int64
	FrameCount     int
	ThumbnailBytes int64
	ThumbnailCount int
}

// DefaultBudgets returns budgets sized for a few seconds of 1080p preview
// frames and a long project's worth of thumbnails.
func DefaultBudgets() Budgets {
	tb := thumbnail.DefaultBudget()
	return Budgets{
		FrameBytes:     512 << 20,
		FrameCount:     240,
		ThumbnailBytes: tb.Bytes,
		ThumbnailCount: tb.Count,
	}
}

// Options configures a Service.
type Options struct {
	Budgets Budgets

	Thresholds  decode.Thresholds
	ToleranceMs int

	ThumbnailWorkers int
	Tiers            map[thumbnail.Tier]thumbnail.TierSpec

	Logger  ports.Logger
	Metrics *metrics.Collector
	Sink    ports.DebugSink
}

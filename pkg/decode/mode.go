package decode

// Mode selects the forward-decode threshold of a request.
type Mode int

const (
	// ModePlayback serves sequential playback ticks.
	ModePlayback Mode = iota
	// ModeScrub serves interactive scrubbing.
	ModeScrub
	// ModeThumbnail serves strip generation at coarse intervals.
	ModeThumbnail
)

func (m Mode) String() string {
	switch m {
	case ModePlayback:
		return "playback"
	case ModeScrub:
		return "scrub"
	case ModeThumbnail:
		return "thumbnail"
	default:
		return "unknown"
	}
}

// Thresholds holds the forward-decode distance of each mode.
// A target no further than this past the last decoded frame is reached by
// decoding forward; anything else seeks to a keyframe.
type Thresholds struct {
	PlaybackFrameMultiple int
	ScrubForwardMs        int
	ThumbnailForwardMs    int
}

// DefaultThresholds returns the stock thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		PlaybackFrameMultiple: 2,
		ScrubForwardMs:        100,
		ThumbnailForwardMs:    10000,
	}
}

// Forward returns the threshold in milliseconds for mode.
func (t Thresholds) Forward(mode Mode, frameDurMs int) int {
	switch mode {
	case ModePlayback:
		return t.PlaybackFrameMultiple * frameDurMs
	case ModeThumbnail:
		return t.ThumbnailForwardMs
	default:
		return t.ScrubForwardMs
	}
}

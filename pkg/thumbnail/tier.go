package thumbnail

import "fmt"

// Tier is a thumbnail density level.
type Tier int

const (
	Low Tier = iota
	Medium
	High
)

// Tiers lists every tier from coarsest to finest.
var Tiers = []Tier{Low, Medium, High}

func (t Tier) String() string {
	switch t {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// ParseTier parses "low", "medium" or "high".
func ParseTier(s string) (Tier, error) {
	for _, t := range Tiers {
		if t.String() == s {
			return t, nil
		}
	}
	return Low, fmt.Errorf("thumbnail: unknown tier %q", s)
}

// TierSpec sizes a tier and bounds its sampling interval.
type TierSpec struct {
	Width           int
	Height          int
	IntervalDivisor int
	MinIntervalMs   int
	MaxIntervalMs   int
}

// DefaultTierSpecs returns the stock tier table.
func DefaultTierSpecs() map[Tier]TierSpec {
	return map[Tier]TierSpec{
		Low:    {Width: 80, Height: 45, IntervalDivisor: 20, MinIntervalMs: 2000, MaxIntervalMs: 5000},
		Medium: {Width: 128, Height: 72, IntervalDivisor: 60, MinIntervalMs: 1000, MaxIntervalMs: 2500},
		High:   {Width: 192, Height: 108, IntervalDivisor: 200, MinIntervalMs: 250, MaxIntervalMs: 1000},
	}
}

// IntervalMs returns duration/divisor clamped into [MinIntervalMs, MaxIntervalMs].
func (s TierSpec) IntervalMs(durationMs int) int {
	div := s.IntervalDivisor
	if div <= 0 {
		div = 1
	}
	iv := durationMs / div
	if iv < s.MinIntervalMs {
		iv = s.MinIntervalMs
	}
	if s.MaxIntervalMs > 0 && iv > s.MaxIntervalMs {
		iv = s.MaxIntervalMs
	}
	if iv <= 0 {
		iv = 1
	}
	return iv
}

// Schedule returns the sample times 0, i, 2i, ... below durationMs.
func (s TierSpec) Schedule(durationMs int) []int {
	iv := s.IntervalMs(durationMs)
	times := make([]int, 0, durationMs/iv+1)
	for t := 0; t < durationMs; t += iv {
		times = append(times, t)
	}
	return times
}

// Bytes is the memory charged for one thumbnail of this tier (RGBA).
func (s TierSpec) Bytes() int64 {
	return int64(s.Width) * int64(s.Height) * 4
}

// Validate checks that the spec can produce thumbnails.
func (s TierSpec) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("thumbnail: invalid size %dx%d", s.Width, s.Height)
	}
	if s.IntervalDivisor <= 0 {
		return fmt.Errorf("thumbnail: interval divisor must be positive")
	}
	if s.MinIntervalMs <= 0 || s.MaxIntervalMs < s.MinIntervalMs {
		return fmt.Errorf("thumbnail: invalid interval bounds [%d, %d]", s.MinIntervalMs, s.MaxIntervalMs)
	}
	return nil
}

// TierForZoom picks a tier for a timeline zoom level in pixels per millisecond.
// Higher zoom gets denser, larger thumbnails.
func TierForZoom(pxPerMs float64) Tier {
	switch {
	case pxPerMs >= 0.1:
		return High
	case pxPerMs >= 0.02:
		return Medium
	default:
		return Low
	}
}

// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"image/color"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/user/previewkit/pkg/adapters/mediasource"
	"github.com/user/previewkit/pkg/decode"
	"github.com/user/previewkit/pkg/preview"
	"github.com/user/previewkit/pkg/thumbnail"
)

// Config represents the full configuration for previewkit.
type Config struct {
	Cache      CacheConfig     `yaml:"cache"`
	Decode     DecodeConfig    `yaml:"decode"`
	Thumbnails ThumbnailConfig `yaml:"thumbnails"`

	// Filmstrip rendering
	Background string `yaml:"background"`

	LogLevel string `yaml:"log_level"`

	// Debug
	Debug    bool   `yaml:"debug"`
	DebugDir string `yaml:"debug_dir"`
}

// CacheConfig sets the frame and thumbnail cache budgets.
type CacheConfig struct {
	FrameMB        int `yaml:"frame_mb"`
	FrameCount     int `yaml:"frame_count"`
	ThumbnailMB    int `yaml:"thumbnail_mb"`
	ThumbnailCount int `yaml:"thumbnail_count"`
}

// DecodeConfig tunes decoder sessions.
type DecodeConfig struct {
	PlaybackFrameMultiple int    `yaml:"playback_frame_multiple"`
	ScrubForwardMs        int    `yaml:"scrub_forward_ms"`
	ThumbnailForwardMs    int    `yaml:"thumbnail_forward_ms"`
	ToleranceMs           int    `yaml:"tolerance_ms"`
	TimeoutMs             int    `yaml:"timeout_ms"`
	FFmpegPath            string `yaml:"ffmpeg_path"`
}

// ThumbnailConfig sets up thumbnail generation.
type ThumbnailConfig struct {
	// Workers of zero picks a count from the CPUs.
	Workers int                   `yaml:"workers"`
	Tiers   map[string]TierConfig `yaml:"tiers"`
}

// TierConfig overrides one tier's size and interval bounds.
type TierConfig struct {
	Width           int `yaml:"width"`
	Height          int `yaml:"height"`
	IntervalDivisor int `yaml:"interval_divisor"`
	MinIntervalMs   int `yaml:"min_interval_ms"`
	MaxIntervalMs   int `yaml:"max_interval_ms"`
}

// Defaults returns a Config with default values.
func Defaults() Config {
	th := decode.DefaultThresholds()
	tiers := make(map[string]TierConfig)
	for tier, spec := range thumbnail.DefaultTierSpecs() {
		tiers[tier.String()] = TierConfig{
			Width:           spec.Width,
			Height:          spec.Height,
			IntervalDivisor: spec.IntervalDivisor,
			MinIntervalMs:   spec.MinIntervalMs,
			MaxIntervalMs:   spec.MaxIntervalMs,
		}
	}

	return Config{
		Cache: CacheConfig{
			FrameMB:        512,
			FrameCount:     240,
			ThumbnailMB:    128,
			ThumbnailCount: 8192,
		},
		Decode: DecodeConfig{
			PlaybackFrameMultiple: th.PlaybackFrameMultiple,
			ScrubForwardMs:        th.ScrubForwardMs,
			ThumbnailForwardMs:    th.ThumbnailForwardMs,
			TimeoutMs:             5000,
		},
		Thumbnails: ThumbnailConfig{Tiers: tiers},
		Background: "#181818",
		LogLevel:   "info",
		DebugDir:   "./debug",
	}
}

// LoadFromFile loads configuration from a YAML file over the defaults.
func LoadFromFile(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks that the configuration can build a service.
func (c Config) Validate() error {
	if c.Cache.FrameMB <= 0 || c.Cache.FrameCount <= 0 {
		return fmt.Errorf("config: frame cache budget must be positive")
	}
	if c.Cache.ThumbnailMB <= 0 || c.Cache.ThumbnailCount <= 0 {
		return fmt.Errorf("config: thumbnail cache budget must be positive")
	}
	if c.Decode.PlaybackFrameMultiple < 0 || c.Decode.ScrubForwardMs < 0 ||
		c.Decode.ThumbnailForwardMs < 0 || c.Decode.ToleranceMs < 0 || c.Decode.TimeoutMs < 0 {
		return fmt.Errorf("config: decode settings must not be negative")
	}
	if c.Thumbnails.Workers < 0 {
		return fmt.Errorf("config: thumbnail workers must not be negative")
	}
	if _, err := c.TierSpecs(); err != nil {
		return err
	}
	return nil
}

// TierSpecs merges the configured tiers over the defaults.
func (c Config) TierSpecs() (map[thumbnail.Tier]thumbnail.TierSpec, error) {
	specs := thumbnail.DefaultTierSpecs()
	for name, tc := range c.Thumbnails.Tiers {
		tier, err := thumbnail.ParseTier(name)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		spec := thumbnail.TierSpec{
			Width:           tc.Width,
			Height:          tc.Height,
			IntervalDivisor: tc.IntervalDivisor,
			MinIntervalMs:   tc.MinIntervalMs,
			MaxIntervalMs:   tc.MaxIntervalMs,
		}
		if err := spec.Validate(); err != nil {
			return nil, fmt.Errorf("config: tier %s: %w", name, err)
		}
		specs[tier] = spec
	}
	return specs, nil
}

// Thresholds returns the decoder forward thresholds.
func (c Config) Thresholds() decode.Thresholds {
	return decode.Thresholds{
		PlaybackFrameMultiple: c.Decode.PlaybackFrameMultiple,
		ScrubForwardMs:        c.Decode.ScrubForwardMs,
		ThumbnailForwardMs:    c.Decode.ThumbnailForwardMs,
	}
}

// Budgets returns the cache budgets in bytes and entries.
func (c Config) Budgets() preview.Budgets {
	return preview.Budgets{
		FrameBytes:     int64(c.Cache.FrameMB) << 20,
		FrameCount:     c.Cache.FrameCount,
		ThumbnailBytes: int64(c.Cache.ThumbnailMB) << 20,
		ThumbnailCount: c.Cache.ThumbnailCount,
	}
}

// ToServiceOptions converts Config to preview.Options. Logger, metrics and
// debug sink are left for the caller.
func (c Config) ToServiceOptions() preview.Options {
	tiers, err := c.TierSpecs()
	if err != nil {
		tiers = thumbnail.DefaultTierSpecs()
	}
	return preview.Options{
		Budgets:          c.Budgets(),
		Thresholds:       c.Thresholds(),
		ToleranceMs:      c.Decode.ToleranceMs,
		ThumbnailWorkers: c.Thumbnails.Workers,
		Tiers:            tiers,
	}
}

// ToMediaOptions converts Config to the media opener's options.
func (c Config) ToMediaOptions() mediasource.Options {
	return mediasource.Options{
		FFmpegPath:    c.Decode.FFmpegPath,
		DecodeTimeout: time.Duration(c.Decode.TimeoutMs) * time.Millisecond,
	}
}

// ParseColor parses a hex color string to color.Color.
func ParseColor(hex string) color.Color {
	if len(hex) == 0 {
		return color.Black
	}

	if hex[0] == '#' {
		hex = hex[1:]
	}

	if len(hex) != 6 {
		return color.Black
	}

	return color.RGBA{
		R: hexByte(hex[0], hex[1]),
		G: hexByte(hex[2], hex[3]),
		B: hexByte(hex[4], hex[5]),
		A: 255,
	}
}

func hexByte(hi, lo byte) uint8 {
	return hexValue(hi)<<4 | hexValue(lo)
}

func hexValue(c byte) uint8 {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	default:
		return 0
	}
}

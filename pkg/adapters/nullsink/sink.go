// Package nullsink provides a no-op debug sink implementation.
package nullsink

import (
	"image"

	"github.com/user/previewkit/pkg/ports"
)

// Sink discards all debug output.
type Sink struct{}

// New creates a new NullSink.
func New() *Sink {
	return &Sink{}
}

// Enabled returns false as this sink discards all output.
func (s *Sink) Enabled() bool {
	return false
}

// SaveFrame does nothing.
func (s *Sink) SaveFrame(fileID string, timestampMs int, img image.Image) error {
	return nil
}

// SaveThumbnail does nothing.
func (s *Sink) SaveThumbnail(fileID string, tier string, timeMs int, img image.Image) error {
	return nil
}

// SaveFilmstrip does nothing.
func (s *Sink) SaveFilmstrip(name string, img image.Image) error {
	return nil
}

var _ ports.DebugSink = (*Sink)(nil)

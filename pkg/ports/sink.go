package ports

import (
	"image"
)

// DebugSink abstracts debug output for intermediate results.
// It allows saving decoded frames and rendered strips for inspection.
type DebugSink interface {
	// Enabled returns true if debug output is enabled.
	Enabled() bool

	// SaveFrame saves a decoded preview frame of a file.
	SaveFrame(fileID string, timestampMs int, img image.Image) error

	// SaveThumbnail saves one generated strip thumbnail.
	SaveThumbnail(fileID string, tier string, timeMs int, img image.Image) error

	// SaveFilmstrip saves a rendered filmstrip.
	SaveFilmstrip(name string, img image.Image) error
}

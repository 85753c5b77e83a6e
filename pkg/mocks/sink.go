package mocks

import (
	"fmt"
	"image"
	"sync"

	"github.com/user/previewkit/pkg/ports"
)

// DebugSink is a mock implementation of ports.DebugSink.
type DebugSink struct {
	mu sync.RWMutex

	enabled bool

	Frames     map[string]image.Image // "<file>@<ts>"
	Thumbnails map[string]image.Image // "<file>/<tier>@<ts>"
	Filmstrips map[string]image.Image
}

// NewDebugSink creates a new mock DebugSink.
func NewDebugSink(enabled bool) *DebugSink {
	return &DebugSink{
		enabled:    enabled,
		Frames:     make(map[string]image.Image),
		Thumbnails: make(map[string]image.Image),
		Filmstrips: make(map[string]image.Image),
	}
}

func (m *DebugSink) Enabled() bool {
	return m.enabled
}

func (m *DebugSink) SaveFrame(fileID string, timestampMs int, img image.Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Frames[fmt.Sprintf("%s@%d", fileID, timestampMs)] = img
	return nil
}

func (m *DebugSink) SaveThumbnail(fileID string, tier string, timeMs int, img image.Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Thumbnails[fmt.Sprintf("%s/%s@%d", fileID, tier, timeMs)] = img
	return nil
}

func (m *DebugSink) SaveFilmstrip(name string, img image.Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Filmstrips[name] = img
	return nil
}

// Counts returns the number of saved frames, thumbnails and filmstrips.
func (m *DebugSink) Counts() (frames, thumbnails, filmstrips int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.Frames), len(m.Thumbnails), len(m.Filmstrips)
}

var _ ports.DebugSink = (*DebugSink)(nil)

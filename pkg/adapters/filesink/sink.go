// Package filesink provides a file-based debug sink implementation.
package filesink

import (
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/user/previewkit/pkg/ports"
)

// Sink saves debug images as PNG files under baseDir:
//
//	frames/<file>/frame-<ts>.png
//	thumbnails/<file>/<tier>/thumb-<ts>.png
//	filmstrips/<name>.png
type Sink struct {
	baseDir  string
	fs       ports.FileSystem
	renderer ports.Renderer
}

// New creates a new FileSink.
func New(baseDir string, fs ports.FileSystem, renderer ports.Renderer) *Sink {
	return &Sink{
		baseDir:  baseDir,
		fs:       fs,
		renderer: renderer,
	}
}

// Enabled returns true as this sink saves output.
func (s *Sink) Enabled() bool {
	return true
}

// SaveFrame saves a decoded preview frame.
func (s *Sink) SaveFrame(fileID string, timestampMs int, img image.Image) error {
	dir := filepath.Join(s.baseDir, "frames", dirName(fileID))
	return s.savePNG(dir, fmt.Sprintf("frame-%08d.png", timestampMs), img)
}

// SaveThumbnail saves one strip thumbnail.
func (s *Sink) SaveThumbnail(fileID string, tier string, timeMs int, img image.Image) error {
	dir := filepath.Join(s.baseDir, "thumbnails", dirName(fileID), tier)
	return s.savePNG(dir, fmt.Sprintf("thumb-%08d.png", timeMs), img)
}

// SaveFilmstrip saves a rendered filmstrip.
func (s *Sink) SaveFilmstrip(name string, img image.Image) error {
	dir := filepath.Join(s.baseDir, "filmstrips")
	return s.savePNG(dir, dirName(name)+".png", img)
}

func (s *Sink) savePNG(dir, name string, img image.Image) error {
	if err := s.fs.MkdirAll(dir); err != nil {
		return err
	}
	data, err := s.renderer.EncodeImage(img, ports.FormatPNG, 0)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return s.fs.WriteFile(filepath.Join(dir, name), data)
}

// dirName flattens a file identifier (usually a path) into one path element.
func dirName(id string) string {
	r := strings.NewReplacer("/", "_", `\`, "_", ":", "_", " ", "_")
	name := strings.Trim(r.Replace(id), "_.")
	if name == "" {
		return "unnamed"
	}
	return name
}

var _ ports.DebugSink = (*Sink)(nil)

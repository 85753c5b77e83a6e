// Package filmstrip tiles a clip's on-screen width with thumbnails from a strip.
//
// Slots are sized from the display height and the thumbnail aspect ratio, not
// from the strip's sampling interval, so the tiling stays gapless at any zoom
// and with partially generated strips.
package filmstrip

import (
	"image"
	"image/color"
	"math"

	"github.com/user/previewkit/pkg/ports"
	"github.com/user/previewkit/pkg/thumbnail"
)

// Clip is the on-screen extent of a clip and the source range it shows.
type Clip struct {
	WidthPx       int
	HeightPx      int
	SourceStartMs int
	SourceEndMs   int
}

// Slot is one tile of the filmstrip.
type Slot struct {
	X         int
	Width     int // visible width; the last slot is clipped to the clip edge
	DrawWidth int // full slot width the thumbnail is stretched to
	TimeMs    int // source time under the slot's center pixel
	Thumb     thumbnail.Thumbnail
	HasThumb  bool
}

// Options controls rendering.
type Options struct {
	Background color.Color
	// Placeholder fills slots without a thumbnail. Nil leaves them as background.
	Placeholder color.Color
	// Separator draws a 1px line between slots when set.
	Separator color.Color
}

// DefaultOptions returns a dark background without placeholders.
func DefaultOptions() Options {
	return Options{Background: color.RGBA{R: 24, G: 24, B: 24, A: 255}}
}

// SlotWidth returns round(heightPx * aspect), at least 1.
func SlotWidth(heightPx int, aspect float64) int {
	w := int(math.Round(float64(heightPx) * aspect))
	if w < 1 {
		w = 1
	}
	return w
}

// Layout walks slots left to right across the clip and picks, for each, the
// thumbnail nearest to the source time under its center pixel. thumbs must be
// ascending by time; slots with no candidate are left without a thumbnail.
func Layout(clip Clip, aspect float64, thumbs []thumbnail.Thumbnail) []Slot {
	if clip.WidthPx <= 0 || clip.HeightPx <= 0 || aspect <= 0 {
		return nil
	}

	sw := SlotWidth(clip.HeightPx, aspect)
	slots := make([]Slot, 0, (clip.WidthPx+sw-1)/sw)
	for x := 0; x < clip.WidthPx; x += sw {
		width := min(sw, clip.WidthPx-x)
		slot := Slot{
			X:         x,
			Width:     width,
			DrawWidth: sw,
			TimeMs:    TimeAt(clip, float64(x)+float64(width)/2),
		}
		slot.Thumb, slot.HasThumb = thumbnail.Nearest(thumbs, slot.TimeMs)
		slots = append(slots, slot)
	}
	return slots
}

// TimeAt maps a horizontal pixel position within the clip to a source time.
func TimeAt(clip Clip, px float64) int {
	if clip.WidthPx <= 0 {
		return clip.SourceStartMs
	}
	span := float64(clip.SourceEndMs - clip.SourceStartMs)
	return clip.SourceStartMs + int(math.Round(px/float64(clip.WidthPx)*span))
}

// Render draws the slots onto a new canvas of the clip's size.
func Render(r ports.Renderer, clip Clip, slots []Slot, opts Options) image.Image {
	bg := opts.Background
	if bg == nil {
		bg = color.Black
	}
	canvas := r.CreateCanvas(clip.WidthPx, clip.HeightPx, bg)

	for _, s := range slots {
		switch {
		case s.HasThumb && s.Thumb.Image != nil:
			if b := s.Thumb.Image.Bounds(); b.Dx() == s.DrawWidth && b.Dy() == clip.HeightPx {
				canvas.DrawImage(s.Thumb.Image, s.X, 0)
			} else {
				canvas.DrawImageScaled(s.Thumb.Image, s.X, 0, s.DrawWidth, clip.HeightPx)
			}
		case opts.Placeholder != nil:
			canvas.DrawRect(s.X, 0, s.Width, clip.HeightPx, opts.Placeholder)
		}
	}
	if opts.Separator != nil {
		for _, s := range slots[min(1, len(slots)):] {
			canvas.DrawLine(s.X, 0, s.X, clip.HeightPx, opts.Separator, 1)
		}
	}
	return canvas.ToImage()
}

// RenderStrip lays out and renders a clip from a possibly partial strip.
// A nil strip renders an empty filmstrip.
func RenderStrip(r ports.Renderer, clip Clip, strip *thumbnail.Strip, opts Options) image.Image {
	aspect := 16.0 / 9.0
	var thumbs []thumbnail.Thumbnail
	if strip != nil {
		spec := strip.Spec()
		aspect = float64(spec.Width) / float64(spec.Height)
		thumbs = strip.Snapshot()
	}
	return Render(r, clip, Layout(clip, aspect, thumbs), opts)
}

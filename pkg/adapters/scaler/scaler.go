// Package scaler resizes decoded frames.
package scaler

import (
	"image"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"

	"github.com/user/previewkit/pkg/ports"
)

// Scaler implements ports.Scaler.
// Scale uses bilinear interpolation, Thumbnail uses Lanczos.
type Scaler struct{}

// New creates a new scaler.
func New() *Scaler {
	return &Scaler{}
}

// Scale resizes img to exactly width x height.
func (s *Scaler) Scale(img image.Image, width, height int) image.Image {
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// Thumbnail fills width x height, cropping the center to preserve the aspect ratio.
func (s *Scaler) Thumbnail(img image.Image, width, height int) image.Image {
	return imaging.Fill(img, width, height, imaging.Center, imaging.Lanczos)
}

var _ ports.Scaler = (*Scaler)(nil)

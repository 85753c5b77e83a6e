package ggrenderer

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/user/previewkit/pkg/ports"
)

func fill(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestRenderer_CreateCanvas(t *testing.T) {
	r := New()

	img := r.CreateCanvas(100, 40, color.White).ToImage()
	if b := img.Bounds(); b.Dx() != 100 || b.Dy() != 40 {
		t.Errorf("expected 100x40, got %dx%d", b.Dx(), b.Dy())
	}
	rr, g, b, _ := img.At(50, 20).RGBA()
	if rr>>8 != 255 || g>>8 != 255 || b>>8 != 255 {
		t.Error("expected background to be white")
	}
}

func TestRenderer_EncodePNG(t *testing.T) {
	r := New()

	data, err := r.EncodeImage(fill(20, 10, color.Black), ports.FormatPNG, 0)
	if err != nil {
		t.Fatalf("EncodeImage failed: %v", err)
	}

	decoded, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("png.Decode failed: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != 20 || b.Dy() != 10 {
		t.Errorf("expected 20x10, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestRenderer_EncodeJPEG(t *testing.T) {
	r := New()
	data, err := r.EncodeImage(fill(20, 10, color.Black), ports.FormatJPEG, 80)
	if err != nil {
		t.Fatalf("EncodeImage failed: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected non-empty data")
	}
}

func TestRenderer_EncodeUnsupported(t *testing.T) {
	r := New()
	if _, err := r.EncodeImage(fill(1, 1, color.Black), ports.ImageFormat(99), 0); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestCanvas_DrawImageScaledClipsAtEdge(t *testing.T) {
	r := New()
	canvas := r.CreateCanvas(30, 10, color.White)

	// A 20px slot starting at x=20 runs 10px past the right edge.
	canvas.DrawImageScaled(fill(40, 20, color.RGBA{R: 255, A: 255}), 20, 0, 20, 10)

	img := canvas.ToImage()
	if b := img.Bounds(); b.Dx() != 30 {
		t.Fatalf("canvas grew to %d", b.Dx())
	}
	rr, g, _, _ := img.At(25, 5).RGBA()
	if rr>>8 != 255 || g>>8 != 0 {
		t.Error("expected red inside the clipped slot")
	}
	rr, g, _, _ = img.At(10, 5).RGBA()
	if g>>8 != 255 {
		t.Error("expected background left of the slot")
	}
}

func TestCanvas_DrawRect(t *testing.T) {
	r := New()
	canvas := r.CreateCanvas(10, 10, color.White)
	canvas.DrawRect(0, 0, 5, 10, color.Black)
	canvas.DrawLine(0, 9, 9, 9, color.Black, 1)

	rr, _, _, _ := canvas.ToImage().At(2, 5).RGBA()
	if rr != 0 {
		t.Error("expected black inside the rectangle")
	}
}

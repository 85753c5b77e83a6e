package scaler

import (
	"image"
	"image/color"
	"testing"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestScale(t *testing.T) {
	s := New()
	src := solid(320, 180, color.RGBA{R: 200, A: 255})

	out := s.Scale(src, 160, 90)
	if b := out.Bounds(); b.Dx() != 160 || b.Dy() != 90 {
		t.Fatalf("unexpected bounds %v", b)
	}
	r, _, _, a := out.At(80, 45).RGBA()
	if r>>8 != 200 || a>>8 != 255 {
		t.Errorf("unexpected center pixel r=%d a=%d", r>>8, a>>8)
	}
}

func TestScale_SameSizeReturnsInput(t *testing.T) {
	s := New()
	src := solid(4, 4, color.White)
	if out := s.Scale(src, 4, 4); out != image.Image(src) {
		t.Error("expected the input image to be returned unchanged")
	}
}

func TestThumbnail_CropsToAspect(t *testing.T) {
	s := New()
	// 4:3 source into a 16:9 tier.
	src := solid(400, 300, color.RGBA{G: 255, A: 255})

	out := s.Thumbnail(src, 80, 45)
	if b := out.Bounds(); b.Dx() != 80 || b.Dy() != 45 {
		t.Fatalf("unexpected bounds %v", b)
	}
}

package utils

import (
	"image"
	"image/color"
	"testing"
)

func TestDownsample(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 1024, 512))
	for y := 0; y < 512; y++ {
		for x := 0; x < 1024; x++ {
			src.Set(x, y, color.RGBA{uint8(x % 256), uint8(y % 256), 0, 255})
		}
	}

	out := Downsample(src, 512)
	if got := out.Bounds(); got.Dx() != 512 || got.Dy() != 256 {
		t.Errorf("expected 512x256, got %dx%d", got.Dx(), got.Dy())
	}

	// Portrait orientation scales the height side.
	portrait := image.NewRGBA(image.Rect(0, 0, 200, 800))
	out = Downsample(portrait, 400)
	if got := out.Bounds(); got.Dx() != 100 || got.Dy() != 400 {
		t.Errorf("expected 100x400, got %dx%d", got.Dx(), got.Dy())
	}

	small := image.NewRGBA(image.Rect(0, 0, 100, 100))
	if Downsample(small, 512) != small {
		t.Error("image within bounds should be returned unchanged")
	}
	if Downsample(src, 0) != src {
		t.Error("maxDim 0 should disable downsampling")
	}
}

package embedding

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"testing"
)

func fillImage(c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestMockExtractor_Deterministic(t *testing.T) {
	e := NewMockExtractor(16)
	ctx := context.Background()

	red := fillImage(color.RGBA{255, 0, 0, 255})
	v1, err := e.Extract(ctx, red)
	if err != nil {
		t.Fatal(err)
	}
	v2, err := e.Extract(ctx, fillImage(color.RGBA{255, 0, 0, 255}))
	if err != nil {
		t.Fatal(err)
	}
	for i := range v1 {
		if v1[i] != v2[i] {
			t.Fatal("identical images must produce identical vectors")
		}
	}

	blue, _ := e.Extract(ctx, fillImage(color.RGBA{0, 0, 255, 255}))
	same := true
	for i := range v1 {
		if v1[i] != blue[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different images should produce different vectors")
	}

	var norm float64
	for _, v := range v1 {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1.0) > 1e-5 {
		t.Errorf("vector should be unit length, norm²=%g", norm)
	}
}

func TestMockExtractor_Err(t *testing.T) {
	e := NewMockExtractor(8)
	e.Err = errors.New("boom")
	if _, err := e.Extract(context.Background(), fillImage(color.RGBA{})); err == nil {
		t.Error("expected injected error")
	}
}

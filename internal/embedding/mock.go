package embedding

import (
	"context"
	"hash/fnv"
	"image"
	"math"

	"github.com/hyperjump/kasane/pkg/utils"
)

// MockExtractor is a deterministic extractor for tests. The vector is derived
// from a hash of the image pixels so identical images always embed identically
// and different images diverge.
type MockExtractor struct {
	dimensions int
	// Err, when set, is returned by every Extract call. Used to exercise
	// failure paths.
	Err error
}

// NewMockExtractor returns an extractor producing deterministic vectors of the given dimensions.
func NewMockExtractor(dimensions int) *MockExtractor {
	if dimensions <= 0 {
		dimensions = 64
	}
	return &MockExtractor{dimensions: dimensions}
}

// Extract returns a deterministic unit vector based on the image content hash.
func (e *MockExtractor) Extract(ctx context.Context, img image.Image) ([]float32, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	h := hashImage(img)
	vec := make([]float32, e.dimensions)
	for i := 0; i < e.dimensions; i++ {
		vec[i] = float32(math.Sin(float64(h)*float64(i+1))*0.1 + 0.01)
	}
	utils.NormalizeL2(vec)
	return vec, nil
}

// Dimensions returns the embedding dimension.
func (e *MockExtractor) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *MockExtractor) Close() error {
	return nil
}

// hashImage hashes a sparse sample of pixels; enough to distinguish images
// without walking every pixel.
func hashImage(img image.Image) uint64 {
	h := fnv.New64a()
	b := img.Bounds()
	stepX := b.Dx()/16 + 1
	stepY := b.Dy()/16 + 1
	var buf [4]byte
	for y := b.Min.Y; y < b.Max.Y; y += stepY {
		for x := b.Min.X; x < b.Max.X; x += stepX {
			r, g, bl, _ := img.At(x, y).RGBA()
			buf[0] = byte(r >> 8)
			buf[1] = byte(g >> 8)
			buf[2] = byte(bl >> 8)
			buf[3] = byte(x ^ y)
			_, _ = h.Write(buf[:])
		}
	}
	return h.Sum64()
}

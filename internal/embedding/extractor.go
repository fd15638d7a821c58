// Package embedding provides visual feature extraction via ONNX and caching.
package embedding

import (
	"context"
	"image"
)

// Extractor produces a fixed-length feature vector for a decoded image.
// Extraction failures are returned as errors, never panics; the output is
// deterministic for identical input under a fixed extractor version, but
// callers must not assume stability across versions.
type Extractor interface {
	Extract(ctx context.Context, img image.Image) ([]float32, error)
	Dimensions() int
	Close() error
}

// Package library provides access to the photo library consumed by the
// indexing core: enumeration of photo references and image loading.
package library

import (
	"context"
	"image"

	"github.com/hyperjump/kasane/internal/models"
)

// Order controls the sort direction of Enumerate.
type Order int

const (
	// NewestFirst sorts by creation time, newest first. The incremental
	// scanner always enumerates in this order.
	NewestFirst Order = iota
	// OldestFirst sorts by creation time, oldest first. The stack builder
	// consumes this order.
	OldestFirst
)

// Source is the asset source the indexing core consumes. Implementations own
// the PhotoRefs; the core only reads them.
type Source interface {
	// Enumerate returns all photo references sorted by creation time.
	Enumerate(ctx context.Context, order Order) ([]models.PhotoRef, error)
	// Load decodes the photo's image, downsampled so its longest side is at
	// most maxDim (0 = no bound), and returns the content hash of the raw
	// bytes.
	Load(ctx context.Context, photoID string, maxDim int) (image.Image, string, error)
	// Ref returns the current reference for a photo id; ok is false when the
	// photo is not (or no longer) in the library.
	Ref(ctx context.Context, photoID string) (ref models.PhotoRef, ok bool, err error)
	// Filename returns the display filename for a photo id, if known.
	Filename(photoID string) (string, bool)
}

// Package keyword provides filename lookup for photos via Bleve.
package keyword

import (
	"context"
	"time"
)

// Entry is the indexed metadata for one photo.
type Entry struct {
	Filename string    `json:"filename"`
	TakenAt  time.Time `json:"taken_at"`
}

// Result is a single keyword search hit.
type Result struct {
	PhotoID string  `json:"photo_id"`
	Score   float64 `json:"score"`
}

// Index defines filename indexing and search.
type Index interface {
	Index(ctx context.Context, photoID string, entry *Entry) error
	Search(ctx context.Context, query string, limit int) ([]*Result, error)
	Delete(ctx context.Context, photoID string) error
	Count() (uint64, error)
	Close() error
}

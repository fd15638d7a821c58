// Package storage defines the persistence interfaces for embeddings and
// indexing preferences.
package storage

import (
	"context"
	"time"

	"github.com/hyperjump/kasane/internal/models"
)

// EmbeddingStore defines durable embedding persistence. Get returns
// (nil, nil) when no embedding exists for the id; absence is not an error.
type EmbeddingStore interface {
	Get(ctx context.Context, photoID string) (*models.Embedding, error)
	Put(ctx context.Context, emb *models.Embedding) error
	Delete(ctx context.Context, photoID string) error
	List(ctx context.Context) ([]*models.Embedding, error)
	IDs(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int64, error)
}

// PrefStore defines the preference/metadata operations the indexing core
// needs: the scan watermark, per-photo stack assignments, and monotonic
// stack id allocation.
type PrefStore interface {
	// Watermark returns the persisted scan watermark. ok is false when no
	// watermark has been stored yet.
	Watermark(ctx context.Context) (wm time.Time, ok bool, err error)
	SetWatermark(ctx context.Context, wm time.Time) error

	StackID(ctx context.Context, photoID string) (int64, error)
	// SetStackID records an assignment; stackID 0 marks the photo a
	// singleton and clears any persisted assignment.
	SetStackID(ctx context.Context, photoID string, stackID int64) error
	// ClearStackIDs removes every stack assignment. The id counter is not
	// reset, so ids allocated afterwards stay strictly greater than any
	// previously persisted id.
	ClearStackIDs(ctx context.Context) error
	// NextStackID allocates and persists a fresh stack id.
	NextStackID(ctx context.Context) (int64, error)
	// StackAssignments returns all photo id -> stack id assignments.
	StackAssignments(ctx context.Context) (map[string]int64, error)

	Close() error
}

// Store combines embedding and preference persistence backed by one database.
type Store interface {
	EmbeddingStore
	PrefStore
}

// Package models defines core data structures for photos, embeddings, and stacks.
package models

import "time"

// PhotoRef identifies a photo in the library. It is owned by the library
// source; the indexing core only reads it.
type PhotoRef struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Embedding is the cached visual feature vector for one photo.
type Embedding struct {
	PhotoID          string    `json:"photo_id" db:"photo_id"`
	Vector           []float32 `json:"-" db:"-"`
	ContentHash      string    `json:"content_hash" db:"content_hash"`
	ComputedAt       time.Time `json:"computed_at" db:"computed_at"`
	SourceModifiedAt time.Time `json:"source_modified_at" db:"source_modified_at"`
}

// Fresh reports whether the cached embedding is still valid for a photo
// last modified at modifiedAt. Recompute is needed only when the source
// changed after the embedding was computed.
func (e *Embedding) Fresh(modifiedAt time.Time) bool {
	return !e.ComputedAt.Before(modifiedAt)
}

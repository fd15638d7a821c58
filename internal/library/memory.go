package library

import (
	"context"
	"fmt"
	"image"
	"sort"
	"sync"

	"github.com/hyperjump/kasane/internal/models"
)

// MemorySource is an in-memory Source for tests. Photos are added with
// explicit references and images; loads for ids in FailIDs return an error,
// exercising decode-failure paths.
type MemorySource struct {
	mu      sync.RWMutex
	refs    map[string]models.PhotoRef
	images  map[string]image.Image
	names   map[string]string
	FailIDs map[string]bool
	// LoadCount tracks Load calls per id (for cache-hit assertions).
	LoadCount map[string]int
}

// NewMemorySource creates an empty in-memory source.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		refs:      make(map[string]models.PhotoRef),
		images:    make(map[string]image.Image),
		names:     make(map[string]string),
		FailIDs:   make(map[string]bool),
		LoadCount: make(map[string]int),
	}
}

// Add registers a photo with its image. A nil image is allowed for refs that
// are never loaded.
func (m *MemorySource) Add(ref models.PhotoRef, img image.Image) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs[ref.ID] = ref
	if img != nil {
		m.images[ref.ID] = img
	}
	m.names[ref.ID] = ref.ID
}

// Remove deletes a photo from the source.
func (m *MemorySource) Remove(photoID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.refs, photoID)
	delete(m.images, photoID)
	delete(m.names, photoID)
}

// Enumerate returns all refs sorted by creation time with a stable id tie-break.
func (m *MemorySource) Enumerate(ctx context.Context, order Order) ([]models.PhotoRef, error) {
	m.mu.RLock()
	refs := make([]models.PhotoRef, 0, len(m.refs))
	for _, r := range m.refs {
		refs = append(refs, r)
	}
	m.mu.RUnlock()

	sort.Slice(refs, func(i, j int) bool {
		if refs[i].CreatedAt.Equal(refs[j].CreatedAt) {
			return refs[i].ID < refs[j].ID
		}
		if order == NewestFirst {
			return refs[i].CreatedAt.After(refs[j].CreatedAt)
		}
		return refs[i].CreatedAt.Before(refs[j].CreatedAt)
	})
	return refs, nil
}

// Load returns the registered image; the content hash is derived from the id.
func (m *MemorySource) Load(ctx context.Context, photoID string, maxDim int) (image.Image, string, error) {
	m.mu.Lock()
	m.LoadCount[photoID]++
	fail := m.FailIDs[photoID]
	img, ok := m.images[photoID]
	m.mu.Unlock()

	if fail {
		return nil, "", fmt.Errorf("decode photo %s: corrupt data", photoID)
	}
	if !ok {
		return nil, "", fmt.Errorf("unknown photo id: %s", photoID)
	}
	return img, "hash-" + photoID, nil
}

// Ref returns the registered reference for the id.
func (m *MemorySource) Ref(ctx context.Context, photoID string) (models.PhotoRef, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ref, ok := m.refs[photoID]
	return ref, ok, nil
}

// Filename returns the registered name for the id.
func (m *MemorySource) Filename(photoID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	name, ok := m.names[photoID]
	return name, ok
}

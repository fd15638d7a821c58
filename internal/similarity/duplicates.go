package similarity

import (
	"context"
	"fmt"

	"github.com/hyperjump/kasane/internal/models"
)

// FindDuplicates clusters near-duplicate photos in a single pass over all
// stored embeddings. For each not-yet-grouped embedding, every other
// not-yet-grouped embedding scoring above threshold joins its group; all
// members are then marked grouped. Groups with no match are not emitted, so
// no photo ever appears in two groups.
func (e *Engine) FindDuplicates(ctx context.Context, threshold float64) ([]*models.DuplicateGroup, error) {
	if threshold == 0 {
		threshold = e.cfg.DuplicateThreshold
	}
	embs, err := e.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}

	grouped := make([]bool, len(embs))
	var groups []*models.DuplicateGroup
	for i, seed := range embs {
		if grouped[i] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		members := []string{seed.PhotoID}
		for j := i + 1; j < len(embs); j++ {
			if grouped[j] {
				continue
			}
			if Cosine(seed.Vector, embs[j].Vector) > threshold {
				members = append(members, embs[j].PhotoID)
				grouped[j] = true
			}
		}
		grouped[i] = true
		if len(members) > 1 {
			groups = append(groups, &models.DuplicateGroup{SeedID: seed.PhotoID, Members: members})
		}
	}
	return groups, nil
}

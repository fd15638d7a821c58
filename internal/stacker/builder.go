// Package stacker groups temporally adjacent, visually near-identical
// photos into ordered stacks.
package stacker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kasane/internal/config"
	"github.com/hyperjump/kasane/internal/models"
	"github.com/hyperjump/kasane/internal/similarity"
	"github.com/hyperjump/kasane/internal/storage"
)

// Builder assembles stacks from a creation-time-ordered photo sequence and
// persists the resulting assignments.
type Builder struct {
	store  storage.Store
	cfg    *config.StackingConfig
	logger *zap.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets a custom logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// NewBuilder creates a stack builder over the given store.
func NewBuilder(store storage.Store, cfg *config.StackingConfig, opts ...Option) *Builder {
	b := &Builder{
		store:  store,
		cfg:    cfg,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Rebuild recomputes stacks for refs, which must already be sorted by
// creation time. All previous assignments are cleared first; the stack id
// counter is preserved, so ids allocated here stay strictly greater than
// anything persisted before.
//
// Stacking is greedy with no backtracking: the current anchor is compared
// against up to the next Lookahead items, the stack extends while the
// candidate's similarity to the anchor exceeds the threshold, and extension
// stops at the first miss. Anchors past the MaxItems cap become singletons
// without any comparisons. Concatenating the returned stacks' members
// reproduces refs exactly.
func (b *Builder) Rebuild(ctx context.Context, refs []models.PhotoRef) ([]*models.Stack, error) {
	if err := b.store.ClearStackIDs(ctx); err != nil {
		return nil, fmt.Errorf("failed to clear stack assignments: %w", err)
	}

	vectors := make(map[string][]float32, len(refs))
	stacks := make([]*models.Stack, 0, len(refs))

	i := 0
	for i < len(refs) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		stack := &models.Stack{Members: []models.PhotoRef{refs[i]}}
		if i < b.cfg.MaxItems {
			anchor, err := b.vector(ctx, vectors, refs[i].ID)
			if err != nil {
				return nil, err
			}
			end := i + 1 + b.cfg.Lookahead
			if end > len(refs) {
				end = len(refs)
			}
			for j := i + 1; j < end; j++ {
				candidate, err := b.vector(ctx, vectors, refs[j].ID)
				if err != nil {
					return nil, err
				}
				if anchor == nil || candidate == nil {
					break
				}
				if similarity.Cosine(anchor, candidate) <= b.cfg.Threshold {
					break
				}
				stack.Members = append(stack.Members, refs[j])
			}
		}
		i += len(stack.Members)

		if len(stack.Members) >= 2 {
			id, err := b.store.NextStackID(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to allocate stack id: %w", err)
			}
			stack.ID = id
			for _, m := range stack.Members {
				if err := b.store.SetStackID(ctx, m.ID, id); err != nil {
					return nil, fmt.Errorf("failed to persist stack assignment: %w", err)
				}
			}
		}
		stacks = append(stacks, stack)
	}

	multi := 0
	for _, s := range stacks {
		if s.ID != 0 {
			multi++
		}
	}
	b.logger.Info("stacks rebuilt",
		zap.Int("photos", len(refs)),
		zap.Int("stacks", len(stacks)),
		zap.Int("multi_item", multi))
	return stacks, nil
}

// vector fetches a stored embedding vector, memoizing lookups for the
// duration of one rebuild. A photo with no stored embedding yields nil.
func (b *Builder) vector(ctx context.Context, memo map[string][]float32, photoID string) ([]float32, error) {
	if v, ok := memo[photoID]; ok {
		return v, nil
	}
	emb, err := b.store.Get(ctx, photoID)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedding for %s: %w", photoID, err)
	}
	var v []float32
	if emb != nil {
		v = emb.Vector
	}
	memo[photoID] = v
	return v, nil
}

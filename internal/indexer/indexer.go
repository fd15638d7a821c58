// Package indexer owns the embedding pipeline: compute-or-fetch, incremental
// scanning, and orphan cleanup. The Indexer is the single context object
// holding the store, tracker, and extractor; every operation takes it
// explicitly rather than reaching for shared globals.
package indexer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kasane/internal/config"
	"github.com/hyperjump/kasane/internal/embedding"
	"github.com/hyperjump/kasane/internal/failure"
	"github.com/hyperjump/kasane/internal/keyword"
	"github.com/hyperjump/kasane/internal/library"
	"github.com/hyperjump/kasane/internal/models"
	"github.com/hyperjump/kasane/internal/storage"
)

// Indexer drives embedding extraction and caching for a photo library.
type Indexer struct {
	source    library.Source
	store     storage.Store
	extractor embedding.Extractor
	tracker   *failure.Tracker
	cache     *embedding.VectorCache
	keyword   keyword.Index // optional; when set, filenames are indexed alongside embeddings
	cfg       *config.Config
	logger    *zap.Logger // optional; when set, logs debug events
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithLogger sets a logger for debug output (per-item scan events, cleanup, etc.).
func WithLogger(l *zap.Logger) Option {
	return func(idx *Indexer) { idx.logger = l }
}

// WithKeywordIndex sets a filename index updated as photos are embedded.
func WithKeywordIndex(k keyword.Index) Option {
	return func(idx *Indexer) { idx.keyword = k }
}

// New creates an indexer with the given dependencies.
func New(
	source library.Source,
	store storage.Store,
	extractor embedding.Extractor,
	tracker *failure.Tracker,
	cfg *config.Config,
	opts ...Option,
) *Indexer {
	idx := &Indexer{
		source:    source,
		store:     store,
		extractor: extractor,
		tracker:   tracker,
		cache:     embedding.NewVectorCache(cfg.Embedding.CacheSize),
		cfg:       cfg,
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Tracker returns the shared failure tracker.
func (idx *Indexer) Tracker() *failure.Tracker {
	return idx.tracker
}

// Store returns the underlying store.
func (idx *Indexer) Store() storage.Store {
	return idx.store
}

// Source returns the photo library source.
func (idx *Indexer) Source() library.Source {
	return idx.source
}

// EnsureEmbedding returns the embedding for ref, computing and persisting it
// if the cache is stale or missing. cached reports whether the stored
// embedding was fresh. Decode and extraction failures are reported to the
// failure tracker; successes clear the photo's failure record.
func (idx *Indexer) EnsureEmbedding(ctx context.Context, ref models.PhotoRef) (emb *models.Embedding, cached bool, err error) {
	stored, err := idx.store.Get(ctx, ref.ID)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrPersist, err)
	}
	if stored != nil && stored.Fresh(ref.ModifiedAt) {
		return stored, true, nil
	}

	img, hash, err := idx.source.Load(ctx, ref.ID, idx.cfg.Embedding.MaxImageDim)
	if err != nil {
		return nil, false, idx.noteFailure(ref.ID, fmt.Errorf("%w: %v", ErrDecode, err))
	}

	vec, ok := idx.cache.Get(hash)
	if !ok {
		vec, err = idx.extractor.Extract(ctx, img)
		if err != nil {
			return nil, false, idx.noteFailure(ref.ID, fmt.Errorf("%w: %v", ErrExtract, err))
		}
		idx.cache.Set(hash, vec)
	}

	emb = &models.Embedding{
		PhotoID:          ref.ID,
		Vector:           vec,
		ContentHash:      hash,
		ComputedAt:       time.Now(),
		SourceModifiedAt: ref.ModifiedAt,
	}
	if err := idx.store.Put(ctx, emb); err != nil {
		// Persist failures don't count toward the retry cap; they are
		// reported to the caller and retried on the next run naturally.
		return nil, false, fmt.Errorf("%w: %v", ErrPersist, err)
	}
	idx.tracker.RecordSuccess(ref.ID)

	if idx.keyword != nil {
		if name, ok := idx.source.Filename(ref.ID); ok {
			if kerr := idx.keyword.Index(ctx, ref.ID, &keyword.Entry{Filename: name, TakenAt: ref.CreatedAt}); kerr != nil && idx.logger != nil {
				idx.logger.Warn("keyword index failed", zap.String("photo_id", ref.ID), zap.Error(kerr))
			}
		}
	}
	if idx.logger != nil {
		idx.logger.Debug("embedding stored", zap.String("photo_id", ref.ID), zap.String("hash", hash))
	}
	return emb, false, nil
}

// ResolveEmbedding resolves an embedding by photo id using the
// compute-or-fetch contract. When the photo is gone from the library a stale
// stored embedding is still returned; a photo with neither a library entry
// nor a stored embedding yields (nil, nil).
func (idx *Indexer) ResolveEmbedding(ctx context.Context, photoID string) (*models.Embedding, error) {
	ref, ok, err := idx.source.Ref(ctx, photoID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return idx.store.Get(ctx, photoID)
	}
	emb, _, err := idx.EnsureEmbedding(ctx, ref)
	return emb, err
}

// RemovePhoto deletes the photo's embedding, stack assignment, and keyword
// entry. Used when the library reports a photo gone.
func (idx *Indexer) RemovePhoto(ctx context.Context, photoID string) error {
	if err := idx.store.Delete(ctx, photoID); err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	if err := idx.store.SetStackID(ctx, photoID, 0); err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	if idx.keyword != nil {
		_ = idx.keyword.Delete(ctx, photoID)
	}
	idx.tracker.RecordSuccess(photoID) // drop any failure bookkeeping
	if idx.logger != nil {
		idx.logger.Debug("photo removed", zap.String("photo_id", photoID))
	}
	return nil
}

// CleanupOrphans deletes embeddings whose photo no longer exists in the
// library. Returns the number of embeddings removed.
func (idx *Indexer) CleanupOrphans(ctx context.Context) (int, error) {
	refs, err := idx.source.Enumerate(ctx, library.NewestFirst)
	if err != nil {
		return 0, fmt.Errorf("enumerate library: %w", err)
	}
	live := make(map[string]bool, len(refs))
	for _, r := range refs {
		live[r.ID] = true
	}

	ids, err := idx.store.IDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPersist, err)
	}
	removed := 0
	for _, id := range ids {
		if live[id] {
			continue
		}
		if err := idx.RemovePhoto(ctx, id); err != nil {
			return removed, err
		}
		removed++
	}
	if idx.logger != nil && removed > 0 {
		idx.logger.Info("orphan cleanup finished", zap.Int("removed", removed))
	}
	return removed, nil
}

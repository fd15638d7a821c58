// Package similarity provides cosine similarity ranking and duplicate
// detection over stored embeddings.
package similarity

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kasane/internal/config"
	"github.com/hyperjump/kasane/internal/models"
	"github.com/hyperjump/kasane/internal/storage"
)

// Resolver resolves a photo's embedding using the compute-or-fetch contract.
// A nil embedding with a nil error means the photo is unknown.
type Resolver interface {
	ResolveEmbedding(ctx context.Context, photoID string) (*models.Embedding, error)
}

// Engine answers similarity queries with a brute-force scan over all stored
// embeddings. Quadratic work is acceptable at the intended scale of a few
// thousand photos.
type Engine struct {
	store    storage.EmbeddingStore
	resolver Resolver
	cfg      *config.SimilarityConfig
	logger   *zap.Logger // optional
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a logger for query timing diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a similarity engine with the given dependencies.
func NewEngine(store storage.EmbeddingStore, resolver Resolver, cfg *config.SimilarityConfig, opts ...Option) *Engine {
	e := &Engine{store: store, resolver: resolver, cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Cosine returns the cosine similarity of two vectors: dot(a,b)/(|a|*|b|),
// defined as 0 when either norm is 0 or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// FindSimilar returns stored embeddings scoring at least query.Threshold
// against the target, sorted descending by score with a stable id tie-break,
// truncated to query.Limit. The target embedding is resolved via
// compute-or-fetch and timed separately from the scan for diagnostics.
// An unknown target yields an error.
func (e *Engine) FindSimilar(ctx context.Context, query *models.SimilarQuery) (*models.SimilarResponse, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	threshold := query.Threshold
	if threshold == 0 {
		threshold = e.cfg.DefaultThreshold
	}
	limit := query.Limit
	if limit == 0 {
		limit = e.cfg.DefaultLimit
	}
	if limit > e.cfg.MaxLimit {
		limit = e.cfg.MaxLimit
	}

	resolveStart := time.Now()
	target, err := e.resolver.ResolveEmbedding(ctx, query.PhotoID)
	if err != nil {
		return nil, fmt.Errorf("resolve target: %w", err)
	}
	if target == nil {
		return nil, fmt.Errorf("photo not found: %s", query.PhotoID)
	}
	resolveTime := time.Since(resolveStart)

	scanStart := time.Now()
	all, err := e.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}

	var results []*models.SimilarResult
	for _, emb := range all {
		if emb.PhotoID == query.PhotoID {
			continue
		}
		score := Cosine(target.Vector, emb.Vector)
		if score >= threshold {
			results = append(results, &models.SimilarResult{PhotoID: emb.PhotoID, Score: score})
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return results[i].PhotoID < results[j].PhotoID
		}
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	for i, r := range results {
		r.Rank = i + 1
	}
	scanTime := time.Since(scanStart)

	if e.logger != nil {
		e.logger.Debug("similarity query",
			zap.String("target", query.PhotoID),
			zap.Int("candidates", len(all)),
			zap.Int("hits", len(results)),
			zap.Duration("resolve", resolveTime),
			zap.Duration("scan", scanTime),
		)
	}
	return &models.SimilarResponse{
		TargetID:      query.PhotoID,
		Results:       results,
		ResolveTimeMs: resolveTime.Milliseconds(),
		ScanTimeMs:    scanTime.Milliseconds(),
	}, nil
}

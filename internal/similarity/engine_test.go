package similarity

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/kasane/internal/config"
	"github.com/hyperjump/kasane/internal/models"
	"github.com/hyperjump/kasane/internal/storage"
)

// storeResolver resolves straight from the store; good enough for engine
// tests where every embedding is pre-seeded.
type storeResolver struct {
	store storage.EmbeddingStore
}

func (r *storeResolver) ResolveEmbedding(ctx context.Context, photoID string) (*models.Embedding, error) {
	return r.store.Get(ctx, photoID)
}

func newTestEngine(t *testing.T) (*Engine, *storage.SQLiteStore) {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	var cfg config.Config
	config.ApplyDefaults(&cfg)
	return NewEngine(store, &storeResolver{store}, &cfg.Similarity), store
}

func putVector(t *testing.T, store *storage.SQLiteStore, id string, vec []float32) {
	t.Helper()
	now := time.Now()
	err := store.Put(context.Background(), &models.Embedding{
		PhotoID:          id,
		Vector:           vec,
		ContentHash:      "hash-" + id,
		ComputedAt:       now,
		SourceModifiedAt: now,
	})
	if err != nil {
		t.Fatal(err)
	}
}

// vectorWithCosine returns a unit 2-d vector whose cosine against (1, 0) is c.
func vectorWithCosine(c float64) []float32 {
	s := math.Sqrt(1 - c*c)
	return []float32{float32(c), float32(s)}
}

func TestCosine(t *testing.T) {
	v := []float32{0.3, -0.4, 0.5}
	if got := Cosine(v, v); math.Abs(got-1.0) > 1e-6 {
		t.Errorf("similarity(v, v) = %g, want 1", got)
	}
	zero := []float32{0, 0, 0}
	if got := Cosine(v, zero); got != 0 {
		t.Errorf("similarity(v, 0) = %g, want 0", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{-1, 0}); math.Abs(got+1.0) > 1e-6 {
		t.Errorf("opposite vectors: got %g, want -1", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{1}); got != 0 {
		t.Errorf("length mismatch should yield 0, got %g", got)
	}
}

func TestFindSimilar_TopTwo(t *testing.T) {
	// Scenario: five candidates at similarities 0.95, 0.85, 0.81, 0.79, 0.5
	// against the target; threshold 0.8 and limit 2 return exactly the top
	// two, in order.
	engine, store := newTestEngine(t)
	ctx := context.Background()

	putVector(t, store, "photo:target", []float32{1, 0})
	similarities := map[string]float64{
		"photo:c1": 0.95,
		"photo:c2": 0.85,
		"photo:c3": 0.81,
		"photo:c4": 0.79,
		"photo:c5": 0.5,
	}
	for id, c := range similarities {
		putVector(t, store, id, vectorWithCosine(c))
	}

	resp, err := engine.FindSimilar(ctx, &models.SimilarQuery{
		PhotoID:   "photo:target",
		Threshold: 0.8,
		Limit:     2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(resp.Results))
	}
	if resp.Results[0].PhotoID != "photo:c1" || resp.Results[1].PhotoID != "photo:c2" {
		t.Errorf("wrong order: %s, %s", resp.Results[0].PhotoID, resp.Results[1].PhotoID)
	}
	if resp.Results[0].Score <= resp.Results[1].Score {
		t.Error("results must be sorted descending by score")
	}
	for _, r := range resp.Results {
		if r.Score < 0.8 {
			t.Errorf("result below threshold: %+v", r)
		}
	}
	if resp.Results[0].Rank != 1 || resp.Results[1].Rank != 2 {
		t.Error("ranks should be 1-based and sequential")
	}
}

func TestFindSimilar_ExcludesTargetAndHonorsThreshold(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	putVector(t, store, "photo:target", []float32{1, 0})
	putVector(t, store, "photo:far", vectorWithCosine(0.1))

	resp, err := engine.FindSimilar(ctx, &models.SimilarQuery{PhotoID: "photo:target", Threshold: 0.9, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 0 {
		t.Errorf("no candidate reaches 0.9: %+v", resp.Results)
	}

	// The target itself is never a result even at threshold 1.
	putVector(t, store, "photo:twin", []float32{1, 0})
	resp, err = engine.FindSimilar(ctx, &models.SimilarQuery{PhotoID: "photo:target", Threshold: 0.99, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 || resp.Results[0].PhotoID != "photo:twin" {
		t.Errorf("expected only the twin: %+v", resp.Results)
	}
}

func TestFindSimilar_StableTieBreak(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	putVector(t, store, "photo:target", []float32{1, 0})
	// Identical vectors tie exactly; order falls back to id.
	putVector(t, store, "photo:b", []float32{1, 0})
	putVector(t, store, "photo:a", []float32{1, 0})

	resp, err := engine.FindSimilar(ctx, &models.SimilarQuery{PhotoID: "photo:target", Threshold: 0.5, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 2 || resp.Results[0].PhotoID != "photo:a" || resp.Results[1].PhotoID != "photo:b" {
		t.Errorf("tie-break by id violated: %+v", resp.Results)
	}
}

func TestFindSimilar_UnknownTarget(t *testing.T) {
	engine, _ := newTestEngine(t)
	if _, err := engine.FindSimilar(context.Background(), &models.SimilarQuery{PhotoID: "photo:nope"}); err == nil {
		t.Error("unknown target should error")
	}
}

func TestFindDuplicates(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	// Two near-duplicate pairs and one loner.
	putVector(t, store, "photo:a1", vectorWithCosine(1.0))
	putVector(t, store, "photo:a2", vectorWithCosine(0.999))
	putVector(t, store, "photo:b1", []float32{0, 1})
	putVector(t, store, "photo:b2", []float32{0.01, 0.9999})
	putVector(t, store, "photo:lone", []float32{-1, 0})

	groups, err := engine.FindDuplicates(ctx, 0.95)
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d: %+v", len(groups), groups)
	}

	seen := make(map[string]int)
	for _, g := range groups {
		if len(g.Members) < 2 {
			t.Errorf("group with no match should not be emitted: %+v", g)
		}
		for _, id := range g.Members {
			seen[id]++
		}
	}
	for id, n := range seen {
		if n > 1 {
			t.Errorf("photo %s appears in %d groups", id, n)
		}
	}
	if _, ok := seen["photo:lone"]; ok {
		t.Error("loner must not be grouped")
	}
}

func TestFindDuplicates_Empty(t *testing.T) {
	engine, _ := newTestEngine(t)
	groups, err := engine.FindDuplicates(context.Background(), 0.95)
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 0 {
		t.Errorf("empty store yields no groups, got %+v", groups)
	}
}

func TestFindSimilar_ConfiguredDefaultLimit(t *testing.T) {
	// A zero query limit takes similarity.default_limit from the config, not
	// a hardcoded fallback.
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	var cfg config.Config
	config.ApplyDefaults(&cfg)
	cfg.Similarity.DefaultLimit = 2
	engine := NewEngine(store, &storeResolver{store}, &cfg.Similarity)
	ctx := context.Background()

	putVector(t, store, "target", []float32{1, 0})
	for i, c := range []float64{0.99, 0.98, 0.97, 0.96} {
		putVector(t, store, "c"+string(rune('1'+i)), vectorWithCosine(c))
	}

	resp, err := engine.FindSimilar(ctx, &models.SimilarQuery{PhotoID: "target", Threshold: 0.9})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected the configured default of 2 results, got %d", len(resp.Results))
	}

	// An explicit limit still wins over the default.
	resp, err = engine.FindSimilar(ctx, &models.SimilarQuery{PhotoID: "target", Threshold: 0.9, Limit: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 3 {
		t.Fatalf("expected 3 results with explicit limit, got %d", len(resp.Results))
	}

	if _, err := engine.FindSimilar(ctx, &models.SimilarQuery{PhotoID: "target", Limit: -1}); err == nil {
		t.Error("expected negative limit to be rejected")
	}
}

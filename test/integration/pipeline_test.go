// Package integration provides end-to-end tests over real files and storage.
package integration

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/kasane/internal/config"
	"github.com/hyperjump/kasane/internal/embedding"
	"github.com/hyperjump/kasane/internal/failure"
	"github.com/hyperjump/kasane/internal/indexer"
	"github.com/hyperjump/kasane/internal/library"
	"github.com/hyperjump/kasane/internal/models"
	"github.com/hyperjump/kasane/internal/photoid"
	"github.com/hyperjump/kasane/internal/similarity"
	"github.com/hyperjump/kasane/internal/stacker"
	"github.com/hyperjump/kasane/internal/storage"
)

func writePhoto(t *testing.T, dir, name string, c color.RGBA, createdAt time.Time) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, createdAt, createdAt); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIntegration_Pipeline(t *testing.T) {
	photoDir := t.TempDir()
	stateDir := t.TempDir()
	var cfg config.Config
	config.ApplyDefaults(&cfg)
	cfg.Storage.DatabasePath = filepath.Join(stateDir, "db.sqlite")
	cfg.Embedding.Dimensions = 16
	cfg.Library.Roots = []string{photoDir}

	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	burst1 := writePhoto(t, photoDir, "burst_001.png", color.RGBA{200, 40, 40, 255}, base)
	burst2 := writePhoto(t, photoDir, "burst_002.png", color.RGBA{200, 40, 40, 255}, base.Add(time.Second))
	lone := writePhoto(t, photoDir, "landscape.png", color.RGBA{20, 90, 200, 255}, base.Add(10*time.Minute))

	store, err := storage.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	lib := library.NewFSLibrary(cfg.Library.Roots, cfg.Library.Extensions, true)
	extractor := embedding.NewMockExtractor(cfg.Embedding.Dimensions)
	defer extractor.Close()
	tracker := failure.NewTracker(cfg.Scan.MaxRetries)
	idx := indexer.New(lib, store, extractor, tracker, &cfg)
	engine := similarity.NewEngine(store, idx, &cfg.Similarity)
	builder := stacker.NewBuilder(store, &cfg.Stacking)
	ctx := context.Background()

	report, err := idx.Scan(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if report.Embedded != 3 {
		t.Fatalf("embedded = %d, want 3", report.Embedded)
	}

	// The burst pair decodes to identical pixels, so the mock extractor
	// gives them identical vectors.
	burst1ID := photoid.FromPath(burst1)
	resp, err := engine.FindSimilar(ctx, &models.SimilarQuery{PhotoID: burst1ID, Threshold: 0.99, Limit: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 || resp.Results[0].PhotoID != photoid.FromPath(burst2) {
		t.Errorf("expected only the burst twin, got %+v", resp.Results)
	}

	groups, err := engine.FindDuplicates(ctx, cfg.Similarity.DuplicateThreshold)
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 1 || len(groups[0].Members) != 2 {
		t.Errorf("expected one duplicate pair, got %+v", groups)
	}

	refs, err := lib.Enumerate(ctx, library.OldestFirst)
	if err != nil {
		t.Fatal(err)
	}
	stacks, err := builder.Rebuild(ctx, refs)
	if err != nil {
		t.Fatal(err)
	}
	if len(stacks) != 2 {
		t.Fatalf("expected burst stack plus singleton, got %d stacks", len(stacks))
	}
	if len(stacks[0].Members) != 2 || stacks[0].ID == 0 {
		t.Errorf("burst stack malformed: %+v", stacks[0])
	}

	// A second scan finds nothing new past the watermark.
	report, err = idx.Scan(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if report.Embedded != 0 {
		t.Errorf("second scan embedded %d, want 0", report.Embedded)
	}

	// Deleting a photo and sweeping drops its embedding.
	if err := os.Remove(lone); err != nil {
		t.Fatal(err)
	}
	lib.Forget(lone)
	removed, err := idx.CleanupOrphans(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("cleanup removed %d, want 1", removed)
	}
	count, err := store.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("count after cleanup = %d, want 2", count)
	}
}

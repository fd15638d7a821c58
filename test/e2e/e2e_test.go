// Package e2e exercises the full stack through the HTTP API: real photo
// files on disk, real SQLite storage, and the chi router.
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kasane/internal/config"
	"github.com/hyperjump/kasane/internal/embedding"
	"github.com/hyperjump/kasane/internal/failure"
	"github.com/hyperjump/kasane/internal/indexer"
	"github.com/hyperjump/kasane/internal/library"
	"github.com/hyperjump/kasane/internal/models"
	"github.com/hyperjump/kasane/internal/photoid"
	"github.com/hyperjump/kasane/internal/server"
	"github.com/hyperjump/kasane/internal/similarity"
	"github.com/hyperjump/kasane/internal/stacker"
	"github.com/hyperjump/kasane/internal/storage"
)

type env struct {
	photoDir string
	baseURL  string
	client   *http.Client
}

func newEnv(t *testing.T) *env {
	t.Helper()
	photoDir := t.TempDir()
	stateDir := t.TempDir()
	var cfg config.Config
	config.ApplyDefaults(&cfg)
	cfg.Storage.DatabasePath = filepath.Join(stateDir, "db.sqlite")
	cfg.Storage.BleveIndexPath = filepath.Join(stateDir, "keyword.bleve")
	cfg.Embedding.Dimensions = 16
	cfg.Library.Roots = []string{photoDir}

	store, err := storage.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	lib := library.NewFSLibrary(cfg.Library.Roots, cfg.Library.Extensions, true)
	extractor := embedding.NewMockExtractor(cfg.Embedding.Dimensions)
	tracker := failure.NewTracker(cfg.Scan.MaxRetries)
	idx := indexer.New(lib, store, extractor, tracker, &cfg)
	engine := similarity.NewEngine(store, idx, &cfg.Similarity)
	builder := stacker.NewBuilder(store, &cfg.Stacking)

	srv := server.NewServer(engine, idx, builder, nil, &cfg, zap.NewNop())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return &env{photoDir: photoDir, baseURL: ts.URL, client: ts.Client()}
}

func (e *env) writePhoto(t *testing.T, name string, c color.RGBA, createdAt time.Time) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	path := filepath.Join(e.photoDir, name)
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

func (e *env) postJSON(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	resp, err := e.client.Post(e.baseURL+path, "application/json", &buf)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func (e *env) waitForScan(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := e.client.Get(e.baseURL + "/api/v1/scan/status")
		if err != nil {
			t.Fatal(err)
		}
		var state struct {
			Running   bool   `json:"running"`
			LastError string `json:"last_error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
			resp.Body.Close()
			t.Fatal(err)
		}
		resp.Body.Close()
		if !state.Running {
			if state.LastError != "" {
				t.Fatalf("scan failed: %s", state.LastError)
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("scan never finished")
}

func TestE2E_ScanSimilarStacks(t *testing.T) {
	e := newEnv(t)
	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	burst1 := e.writePhoto(t, "burst_001.png", color.RGBA{180, 60, 20, 255}, base)
	burst2 := e.writePhoto(t, "burst_002.png", color.RGBA{180, 60, 20, 255}, base.Add(time.Second))
	e.writePhoto(t, "other.png", color.RGBA{20, 60, 180, 255}, base.Add(time.Hour/2))

	resp := e.postJSON(t, "/api/v1/scan", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("scan start returned %d", resp.StatusCode)
	}
	resp.Body.Close()
	e.waitForScan(t)

	// Similar: the burst twin is the only match at a high threshold.
	resp = e.postJSON(t, "/api/v1/similar", models.SimilarQuery{
		PhotoID:   photoid.FromPath(burst1),
		Threshold: 0.99,
		Limit:     5,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("similar returned %d", resp.StatusCode)
	}
	var similar models.SimilarResponse
	if err := json.NewDecoder(resp.Body).Decode(&similar); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if len(similar.Results) != 1 || similar.Results[0].PhotoID != photoid.FromPath(burst2) {
		t.Fatalf("expected only the burst twin, got %+v", similar.Results)
	}

	// Rebuild stacks and confirm the burst pair persisted as one stack.
	resp = e.postJSON(t, "/api/v1/stacks/rebuild", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rebuild returned %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err := e.client.Get(e.baseURL + "/api/v1/stacks")
	if err != nil {
		t.Fatal(err)
	}
	var stacks struct {
		Stacks []struct {
			ID     int64    `json:"id"`
			Photos []string `json:"photos"`
		} `json:"stacks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&stacks); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if len(stacks.Stacks) != 1 || len(stacks.Stacks[0].Photos) != 2 {
		t.Fatalf("expected one two-photo stack, got %+v", stacks.Stacks)
	}

	// Status reflects the indexed library.
	resp, err = e.client.Get(e.baseURL + "/api/v1/status")
	if err != nil {
		t.Fatal(err)
	}
	var status map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if status["embeddings"].(float64) != 3 {
		t.Errorf("embeddings = %v, want 3", status["embeddings"])
	}
}

func TestE2E_IncrementalScan(t *testing.T) {
	e := newEnv(t)
	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	for i := 0; i < 3; i++ {
		e.writePhoto(t, fmt.Sprintf("old_%d.png", i), color.RGBA{byte(40 * i), 100, 100, 255}, base.Add(time.Duration(i)*time.Minute))
	}

	resp := e.postJSON(t, "/api/v1/scan", nil)
	resp.Body.Close()
	e.waitForScan(t)

	// Add a newer photo and rescan; only it should need embedding.
	e.writePhoto(t, "fresh.png", color.RGBA{250, 250, 10, 255}, base.Add(30*time.Minute))
	resp = e.postJSON(t, "/api/v1/scan", nil)
	resp.Body.Close()
	e.waitForScan(t)

	res, err := e.client.Get(e.baseURL + "/api/v1/scan/status")
	if err != nil {
		t.Fatal(err)
	}
	var state struct {
		LastReport *models.ScanReport `json:"last_report"`
	}
	if err := json.NewDecoder(res.Body).Decode(&state); err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if state.LastReport == nil {
		t.Fatal("missing scan report")
	}
	if state.LastReport.Embedded != 1 {
		t.Errorf("second scan embedded %d, want 1", state.LastReport.Embedded)
	}
}

func TestE2E_DoubleScanConflicts(t *testing.T) {
	e := newEnv(t)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 30; i++ {
		e.writePhoto(t, fmt.Sprintf("p_%02d.png", i), color.RGBA{byte(i * 8), byte(255 - i*8), 50, 255}, base.Add(time.Duration(i)*time.Second))
	}

	first := e.postJSON(t, "/api/v1/scan", nil)
	second := e.postJSON(t, "/api/v1/scan", nil)
	defer first.Body.Close()
	defer second.Body.Close()
	if first.StatusCode != http.StatusAccepted {
		t.Fatalf("first scan returned %d", first.StatusCode)
	}
	// The second request either lost the race and got 409, or the first
	// scan already finished and it started a fresh run.
	if second.StatusCode != http.StatusConflict && second.StatusCode != http.StatusAccepted {
		t.Fatalf("second scan returned %d", second.StatusCode)
	}
	e.waitForScan(t)
}

// Package main is the Kasane CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kasane/internal/cli"
	"github.com/hyperjump/kasane/internal/config"
	"github.com/hyperjump/kasane/internal/embedding"
	"github.com/hyperjump/kasane/internal/failure"
	"github.com/hyperjump/kasane/internal/indexer"
	"github.com/hyperjump/kasane/internal/keyword"
	"github.com/hyperjump/kasane/internal/library"
	"github.com/hyperjump/kasane/internal/models"
	"github.com/hyperjump/kasane/internal/photoid"
	"github.com/hyperjump/kasane/internal/server"
	"github.com/hyperjump/kasane/internal/similarity"
	"github.com/hyperjump/kasane/internal/stacker"
	"github.com/hyperjump/kasane/internal/storage"
	"github.com/hyperjump/kasane/internal/watcher"
	"github.com/hyperjump/kasane/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/kasane/config.yaml"
	defaultServerURL  = "http://localhost:8091"
)

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used, so that "kasane server" from the project dir uses the project's
// config (including debug). Returns the config and the path actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "scan":
		runScan()
	case "similar":
		runSimilar()
	case "compare":
		runCompare()
	case "duplicates":
		runDuplicates()
	case "stacks":
		runStacks()
	case "search":
		runSearch()
	case "status":
		runStatus()
	case "reset-failures":
		runResetFailures()
	case "cleanup":
		runCleanup()
	case "version", "--version", "-v":
		fmt.Printf("kasane version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (watch events, per-item scan events, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	idx := components.Indexer
	lib := components.Library
	watchOpts := []watcher.Option{}
	if debugMode {
		watchOpts = append(watchOpts, watcher.WithLogger(logger))
	}
	watchSvc := watcher.New(
		cfg.Library.Roots,
		cfg.Library.Extensions,
		cfg.Library.RecursiveOrDefault(),
		func(path string) {
			ref, err := lib.RefForPath(path)
			if err != nil {
				logger.Warn("watch register photo failed", zap.String("path", path), zap.Error(err))
				return
			}
			if _, _, err := idx.EnsureEmbedding(context.Background(), ref); err != nil {
				logger.Warn("watch embed photo failed", zap.String("path", path), zap.Error(err))
			}
		},
		func(path string) {
			photoID := lib.Forget(path)
			if err := idx.RemovePhoto(context.Background(), photoID); err != nil {
				logger.Warn("watch remove photo failed", zap.String("path", path), zap.Error(err))
			}
		},
		watchOpts...,
	)
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if err := watchSvc.Start(watchCtx); err != nil {
		logger.Warn("Watcher not started", zap.Error(err))
	}

	srv := server.NewServer(
		components.Engine,
		components.Indexer,
		components.Stacker,
		components.Keyword,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchSvc.Stop()
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runScan() {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	quiet := fs.Bool("quiet", false, "suppress per-item progress")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	components, _ := mustInitialize(*configPath)
	defer components.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var progress models.ProgressFunc
	if !*quiet && format == cli.OutputText {
		progress = func(processed, total int) {
			fmt.Fprintf(os.Stderr, "\rScanning %d/%d", processed, total)
		}
	}
	report, err := components.Indexer.Scan(ctx, progress)
	if progress != nil {
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Scan failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteScanReport(os.Stdout, report, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runSimilar() {
	fs := flag.NewFlagSet("similar", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage when server is not running)")
	threshold := fs.Float64("threshold", 0, "minimum similarity (0 = config default)")
	limit := fs.Int("limit", 0, "number of results (0 = config default)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kasane similar [flags] <photo-id-or-path>")
		os.Exit(1)
	}
	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	query := &models.SimilarQuery{
		PhotoID:   resolvePhotoArg(fs.Arg(0)),
		Threshold: *threshold,
		Limit:     *limit,
	}

	var response *models.SimilarResponse
	if *serverURL != "" {
		// Use the HTTP API when the server is running (avoids an SQLite
		// lock conflict with the server process).
		response, err = similarViaHTTP(*serverURL, query)
	} else {
		components, _ := mustInitialize(*configPath)
		defer components.Close()
		response, err = components.Engine.FindSimilar(context.Background(), query)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Similarity search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSimilarResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// resolvePhotoArg accepts either a photo id or a filesystem path. Paths are
// translated to the id they would be enumerated under.
func resolvePhotoArg(arg string) string {
	if _, err := os.Stat(arg); err != nil {
		return arg
	}
	abs, err := filepath.Abs(arg)
	if err != nil {
		return arg
	}
	return photoid.FromPath(abs)
}

func similarViaHTTP(serverURL string, query *models.SimilarQuery) (*models.SimilarResponse, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/similar", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response models.SimilarResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func runCompare() {
	fs := flag.NewFlagSet("compare", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage when server is not running)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 2 {
		fmt.Println("Usage: kasane compare [flags] <photo-a> <photo-b>")
		os.Exit(1)
	}
	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	query := &models.CompareQuery{
		PhotoA: resolvePhotoArg(fs.Arg(0)),
		PhotoB: resolvePhotoArg(fs.Arg(1)),
	}

	var response *models.CompareResponse
	if *serverURL != "" {
		response, err = compareViaHTTP(*serverURL, query)
	} else {
		components, _ := mustInitialize(*configPath)
		defer components.Close()
		comparator := similarity.NewComparator(components.Indexer, components.Library)
		response, err = comparator.Compare(context.Background(), query)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Compare failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteCompareResult(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func compareViaHTTP(serverURL string, query *models.CompareQuery) (*models.CompareResponse, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/compare", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response models.CompareResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func runDuplicates() {
	fs := flag.NewFlagSet("duplicates", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	threshold := fs.Float64("threshold", 0, "similarity threshold (0 = config default)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	components, cfg := mustInitialize(*configPath)
	defer components.Close()

	t := *threshold
	if t == 0 {
		t = cfg.Similarity.DuplicateThreshold
	}
	groups, err := components.Engine.FindDuplicates(context.Background(), t)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Duplicate detection failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteDuplicateGroups(os.Stdout, groups, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runStacks() {
	fs := flag.NewFlagSet("stacks", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	rebuild := fs.Bool("rebuild", false, "recompute stacks before listing")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	components, _ := mustInitialize(*configPath)
	defer components.Close()
	ctx := context.Background()

	if *rebuild {
		refs, err := components.Library.Enumerate(ctx, library.OldestFirst)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Enumeration failed: %v\n", err)
			os.Exit(1)
		}
		stacks, err := components.Stacker.Rebuild(ctx, refs)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Stack rebuild failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteStacks(os.Stdout, stacks, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	assignments, err := components.Store.StackAssignments(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Stack listing failed: %v\n", err)
		os.Exit(1)
	}
	if format == cli.OutputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(assignments); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}
	byStack := make(map[int64][]string)
	for photoID, stackID := range assignments {
		byStack[stackID] = append(byStack[stackID], photoID)
	}
	fmt.Printf("%d persisted stack(s)\n", len(byStack))
	for id, photos := range byStack {
		fmt.Printf("  stack %d: %d photo(s)\n", id, len(photos))
	}
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	limit := fs.Int("limit", 10, "number of results")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kasane search [flags] <filename fragment>")
		os.Exit(1)
	}

	components, _ := mustInitialize(*configPath)
	defer components.Close()
	if components.Keyword == nil {
		fmt.Fprintln(os.Stderr, "Filename search not enabled; set storage.bleve_index_path")
		os.Exit(1)
	}
	results, err := components.Keyword.Search(context.Background(), fs.Arg(0), *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	for _, r := range results {
		fmt.Printf("%.4f  %s\n", r.Score, r.PhotoID)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage)")
	_ = fs.Parse(os.Args[2:])

	if *serverURL != "" {
		resp, err := http.Get(*serverURL + "/api/v1/status")
		if err == nil && resp.StatusCode == http.StatusOK {
			defer resp.Body.Close()
			_, _ = io.Copy(os.Stdout, resp.Body)
			return
		}
		if resp != nil {
			resp.Body.Close()
		}
	}

	components, cfg := mustInitialize(*configPath)
	defer components.Close()
	ctx := context.Background()

	embedded, err := components.Store.Count(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Count failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("embeddings:         %d\n", embedded)
	fmt.Printf("permanent_failures: %d\n", components.Tracker.PermanentCount())
	if wm, ok, err := components.Store.Watermark(ctx); err == nil && ok {
		fmt.Printf("watermark:          %s\n", wm.Format(time.RFC3339))
	}
	if diskBytes, err := storage.DiskUsageBytes(cfg.Storage.DatabasePath, cfg.Storage.BleveIndexPath); err == nil {
		fmt.Printf("disk_usage_bytes:   %d\n", diskBytes)
	}
}

func runResetFailures() {
	fs := flag.NewFlagSet("reset-failures", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage)")
	_ = fs.Parse(os.Args[2:])

	if *serverURL != "" {
		resp, err := http.Post(*serverURL+"/api/v1/failures/reset", "application/json", nil)
		if err == nil && resp.StatusCode == http.StatusOK {
			resp.Body.Close()
			fmt.Println("Failure records cleared.")
			return
		}
		if resp != nil {
			resp.Body.Close()
		}
	}

	components, _ := mustInitialize(*configPath)
	defer components.Close()
	components.Tracker.ClearAll()
	fmt.Println("Failure records cleared.")
}

func runCleanup() {
	fs := flag.NewFlagSet("cleanup", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	components, _ := mustInitialize(*configPath)
	defer components.Close()

	removed, err := components.Indexer.CleanupOrphans(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cleanup failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Removed %d orphaned embedding(s)\n", removed)
}

func mustInitialize(configPath string) (*Components, *config.Config) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	components, err := initializeComponents(cfg, logger, cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	return components, cfg
}

// Components holds initialized services.
type Components struct {
	Store     *storage.SQLiteStore
	Library   *library.FSLibrary
	Extractor embedding.Extractor
	Keyword   keyword.Index
	Tracker   *failure.Tracker
	Indexer   *indexer.Indexer
	Engine    *similarity.Engine
	Stacker   *stacker.Builder
}

func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Extractor != nil {
		_ = c.Extractor.Close()
	}
	if c.Keyword != nil {
		_ = c.Keyword.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	store, err := storage.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	lib := library.NewFSLibrary(
		cfg.Library.Roots,
		cfg.Library.Extensions,
		cfg.Library.RecursiveOrDefault(),
	)

	var extractor embedding.Extractor
	onnxExtractor, err := embedding.NewONNXExtractor(
		cfg.Embedding.ModelPath,
		cfg.Embedding.Dimensions,
		cfg.Embedding.MaxImageDim,
	)
	if err != nil {
		if logger != nil {
			logger.Warn("ONNX extractor unavailable, using mock", zap.Error(err))
		}
		extractor = embedding.NewMockExtractor(cfg.Embedding.Dimensions)
	} else {
		extractor = onnxExtractor
	}

	var keywordIndex keyword.Index
	if cfg.Storage.BleveIndexPath != "" {
		keywordIndex, err = keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
		}
	}

	tracker := failure.NewTracker(cfg.Scan.MaxRetries)

	idxOpts := []indexer.Option{}
	if debug && logger != nil {
		idxOpts = append(idxOpts, indexer.WithLogger(logger))
	}
	if keywordIndex != nil {
		idxOpts = append(idxOpts, indexer.WithKeywordIndex(keywordIndex))
	}
	idx := indexer.New(lib, store, extractor, tracker, cfg, idxOpts...)

	engineOpts := []similarity.Option{}
	if debug && logger != nil {
		engineOpts = append(engineOpts, similarity.WithLogger(logger))
	}
	engine := similarity.NewEngine(store, idx, &cfg.Similarity, engineOpts...)

	stackerOpts := []stacker.Option{}
	if logger != nil {
		stackerOpts = append(stackerOpts, stacker.WithLogger(logger))
	}
	builder := stacker.NewBuilder(store, &cfg.Stacking, stackerOpts...)

	return &Components{
		Store:     store,
		Library:   lib,
		Extractor: extractor,
		Keyword:   keywordIndex,
		Tracker:   tracker,
		Indexer:   idx,
		Engine:    engine,
		Stacker:   builder,
	}, nil
}

func printUsage() {
	fmt.Println(`kasane - On-device photo similarity indexer

Usage:
  kasane server [flags]              Start the HTTP server
  kasane scan [flags]                Run one incremental indexing pass
  kasane similar [flags] <id|path>   Find visually similar photos
  kasane compare [flags] <a> <b>     Compare two photos pairwise
  kasane duplicates [flags]          Group near-duplicate photos
  kasane stacks [flags]              List (or --rebuild) burst stacks
  kasane search [flags] <fragment>   Search photos by filename
  kasane status [flags]              Show index/storage status
  kasane reset-failures [flags]      Clear failure records so photos retry
  kasane cleanup [flags]             Remove embeddings for deleted photos
  kasane version                     Show version
  kasane help                        Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kasane/config.yaml)
  --debug            Enable debug logging (watch events, per-item scan events, etc.)

Similar Flags:
  --server string      Server URL (default: http://localhost:8091). Use empty (--server "") for direct storage.
  --threshold float    Minimum similarity; 0 uses the config default
  --limit int          Number of results; 0 uses the config default
  --output string      Output format: text or json (default: text)

Scan Flags:
  --config string    Config file path
  --output string    Output format: text or json (default: text)
  --quiet            Suppress per-item progress

Examples:
  kasane server
  kasane scan
  kasane similar ~/Pictures/IMG_4512.jpg
  kasane similar --threshold 0.9 --limit 5 photo:3f2a...
  kasane compare ~/Pictures/IMG_4512.jpg ~/Pictures/IMG_4513.jpg
  kasane duplicates --threshold 0.97
  kasane stacks --rebuild
  kasane search sunset
  kasane status`)
}

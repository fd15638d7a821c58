// Package server provides the HTTP API for Kasane.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kasane/internal/config"
	"github.com/hyperjump/kasane/internal/indexer"
	"github.com/hyperjump/kasane/internal/keyword"
	"github.com/hyperjump/kasane/internal/models"
	"github.com/hyperjump/kasane/internal/similarity"
	"github.com/hyperjump/kasane/internal/stacker"
)

// Server is the HTTP server for the Kasane API.
type Server struct {
	engine     *similarity.Engine
	comparator *similarity.Comparator
	indexer    *indexer.Indexer
	stacker    *stacker.Builder
	keyword    keyword.Index
	config     *config.Config
	logger     *zap.Logger
	server     *http.Server

	// At most one background scan runs at a time.
	scanMu     sync.Mutex
	scanCancel context.CancelFunc
	scanState  scanState
}

type scanState struct {
	Running    bool               `json:"running"`
	Processed  int                `json:"processed"`
	Total      int                `json:"total"`
	LastReport *models.ScanReport `json:"last_report,omitempty"`
	LastError  string             `json:"last_error,omitempty"`
}

// NewServer creates a server with the given dependencies. keyword may be
// nil when filename search is disabled.
func NewServer(
	engine *similarity.Engine,
	idx *indexer.Indexer,
	builder *stacker.Builder,
	kw keyword.Index,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		engine:     engine,
		comparator: similarity.NewComparator(idx, idx.Source()),
		indexer:    idx,
		stacker:    builder,
		keyword:    kw,
		config:     cfg,
		logger:     logger,
	}
}

// Router builds the chi router with all API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/similar", s.handleSimilar)
	r.Post("/api/v1/compare", s.handleCompare)
	r.Get("/api/v1/duplicates", s.handleDuplicates)
	r.Get("/api/v1/stacks", s.handleStacks)
	r.Post("/api/v1/stacks/rebuild", s.handleStacksRebuild)
	r.Post("/api/v1/scan", s.handleScanStart)
	r.Delete("/api/v1/scan", s.handleScanCancel)
	r.Get("/api/v1/scan/status", s.handleScanStatus)
	r.Post("/api/v1/failures/reset", s.handleFailuresReset)
	r.Get("/api/v1/search", s.handleSearch)
	r.Get("/api/v1/photos/{id}", s.handleGetPhoto)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server and cancels any running scan.
func (s *Server) Stop(ctx context.Context) error {
	s.scanMu.Lock()
	if s.scanCancel != nil {
		s.scanCancel()
	}
	s.scanMu.Unlock()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

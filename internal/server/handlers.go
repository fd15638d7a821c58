package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kasane/internal/library"
	"github.com/hyperjump/kasane/internal/models"
	"github.com/hyperjump/kasane/internal/storage"
)

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	var query models.SimilarQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("similar request",
		zap.String("photo_id", query.PhotoID),
		zap.Float64("threshold", query.Threshold),
		zap.Int("limit", query.Limit))
	response, err := s.engine.FindSimilar(r.Context(), &query)
	if err != nil {
		s.logger.Error("similarity search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var query models.CompareQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := query.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	response, err := s.comparator.Compare(r.Context(), &query)
	if err != nil {
		s.logger.Error("compare failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleDuplicates(w http.ResponseWriter, r *http.Request) {
	threshold := s.config.Similarity.DuplicateThreshold
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < -1 || v > 1 {
			s.respondError(w, http.StatusBadRequest, "threshold must be a number in [-1, 1]")
			return
		}
		threshold = v
	}
	groups, err := s.engine.FindDuplicates(r.Context(), threshold)
	if err != nil {
		s.logger.Error("duplicate detection failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"threshold": threshold,
		"groups":    groups,
	})
}

type stackView struct {
	ID     int64    `json:"id"`
	Photos []string `json:"photos"`
}

func (s *Server) handleStacks(w http.ResponseWriter, r *http.Request) {
	assignments, err := s.indexer.Store().StackAssignments(r.Context())
	if err != nil {
		s.logger.Error("stack listing failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	byStack := make(map[int64][]string)
	for photoID, stackID := range assignments {
		byStack[stackID] = append(byStack[stackID], photoID)
	}
	stacks := make([]stackView, 0, len(byStack))
	for id, photos := range byStack {
		sort.Strings(photos)
		stacks = append(stacks, stackView{ID: id, Photos: photos})
	}
	sort.Slice(stacks, func(i, j int) bool { return stacks[i].ID < stacks[j].ID })
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"stacks": stacks})
}

func (s *Server) handleStacksRebuild(w http.ResponseWriter, r *http.Request) {
	refs, err := s.indexer.Source().Enumerate(r.Context(), library.OldestFirst)
	if err != nil {
		s.logger.Error("enumeration failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	stacks, err := s.stacker.Rebuild(r.Context(), refs)
	if err != nil {
		s.logger.Error("stack rebuild failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	multi := 0
	for _, st := range stacks {
		if st.ID != 0 {
			multi++
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"photos":     len(refs),
		"stacks":     len(stacks),
		"multi_item": multi,
		"status":     "rebuilt",
	})
}

func (s *Server) handleScanStart(w http.ResponseWriter, r *http.Request) {
	s.scanMu.Lock()
	if s.scanState.Running {
		s.scanMu.Unlock()
		s.respondError(w, http.StatusConflict, "a scan is already running")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.scanCancel = cancel
	s.scanState.Running = true
	s.scanState.Processed = 0
	s.scanState.Total = 0
	s.scanState.LastError = ""
	s.scanMu.Unlock()

	go func() {
		report, err := s.indexer.Scan(ctx, func(processed, total int) {
			s.scanMu.Lock()
			s.scanState.Processed = processed
			s.scanState.Total = total
			s.scanMu.Unlock()
		})
		s.scanMu.Lock()
		s.scanState.Running = false
		s.scanState.LastReport = report
		if err != nil {
			s.scanState.LastError = err.Error()
		}
		s.scanCancel = nil
		s.scanMu.Unlock()
		cancel()
	}()

	s.respondJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleScanCancel(w http.ResponseWriter, r *http.Request) {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()
	if !s.scanState.Running || s.scanCancel == nil {
		s.respondError(w, http.StatusConflict, "no scan is running")
		return
	}
	s.scanCancel()
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

func (s *Server) handleScanStatus(w http.ResponseWriter, r *http.Request) {
	s.scanMu.Lock()
	state := s.scanState
	s.scanMu.Unlock()
	s.respondJSON(w, http.StatusOK, state)
}

func (s *Server) handleFailuresReset(w http.ResponseWriter, r *http.Request) {
	s.indexer.Tracker().ClearAll()
	s.logger.Info("failure records cleared")
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.keyword == nil {
		s.respondError(w, http.StatusNotImplemented, "filename search not enabled")
		return
	}
	q := r.URL.Query().Get("q")
	if q == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit := s.config.Similarity.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = v
	}
	results, err := s.keyword.Search(r.Context(), q, limit)
	if err != nil {
		s.logger.Error("filename search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"query": q, "results": results})
}

func (s *Server) handleGetPhoto(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	ref, known, err := s.indexer.Source().Ref(ctx, id)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	emb, err := s.indexer.Store().Get(ctx, id)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !known && emb == nil {
		s.respondError(w, http.StatusNotFound, "photo not found")
		return
	}
	stackID, err := s.indexer.Store().StackID(ctx, id)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := map[string]interface{}{
		"id":       id,
		"stack_id": stackID,
		"embedded": emb != nil,
	}
	if known {
		resp["created_at"] = ref.CreatedAt
		resp["modified_at"] = ref.ModifiedAt
	}
	if filename, ok := s.indexer.Source().Filename(id); ok {
		resp["filename"] = filename
	}
	if emb != nil {
		resp["content_hash"] = emb.ContentHash
		resp["computed_at"] = emb.ComputedAt
		resp["dimensions"] = len(emb.Vector)
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	embedded, err := s.indexer.Store().Count(ctx)
	if err != nil {
		s.logger.Error("status: count embeddings failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	watermark, hasWatermark, err := s.indexer.Store().Watermark(ctx)
	if err != nil {
		s.logger.Error("status: load watermark failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := map[string]interface{}{
		"embeddings":         embedded,
		"permanent_failures": s.indexer.Tracker().PermanentCount(),
	}
	if hasWatermark {
		resp["watermark"] = watermark
	}
	if diskBytes, err := storage.DiskUsageBytes(
		s.config.Storage.DatabasePath,
		s.config.Storage.BleveIndexPath,
	); err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	resp["config"] = map[string]interface{}{
		"embedding_dimensions": s.config.Embedding.Dimensions,
		"max_image_dim":        s.config.Embedding.MaxImageDim,
		"stacking_threshold":   s.config.Stacking.Threshold,
		"duplicate_threshold":  s.config.Similarity.DuplicateThreshold,
		"database_path":        s.config.Storage.DatabasePath,
		"bleve_index_path":     s.config.Storage.BleveIndexPath,
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jeranaias/vpexport/internal/commands"
	"github.com/jeranaias/vpexport/internal/model"
	"github.com/jeranaias/vpexport/internal/viewport"
)

// DefaultHistory is the number of export records kept.
const DefaultHistory = 50

// Grid is the part of the viewport grid the server exposes.
type Grid interface {
	viewport.Registry
	Viewports() []model.ViewportID
	SetActive(id model.ViewportID) error
	ClearActive()
}

// Config configures a Server.
type Config struct {
	Addr string
	// Token, when set, is required as a bearer token.
	Token             string
	AllowedIPs        []string
	RequestsPerMinute int
	// History bounds the export records kept; 0 means DefaultHistory.
	History int
	Version string
}

// ============================================================================
// SERVER
// ============================================================================

// Server triggers exports over HTTP and serves the delivered archives.
type Server struct {
	cfg      Config
	exporter commands.ViewportExporter
	grid     Grid
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	history  *history
	mux      *http.ServeMux
	started  time.Time

	mu     sync.Mutex
	server *http.Server
}

// New creates a Server. A nil gatherer disables /metrics.
func New(cfg Config, exporter commands.ViewportExporter, grid Grid, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.History <= 0 {
		cfg.History = DefaultHistory
	}
	s := &Server{
		cfg:      cfg,
		exporter: exporter,
		grid:     grid,
		gatherer: gatherer,
		logger:   logger,
		history:  newHistory(cfg.History),
		mux:      http.NewServeMux(),
		started:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// ============================================================================
// ROUTES
// ============================================================================

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("POST /v1/exports", s.handleExport)
	s.mux.HandleFunc("GET /v1/exports", s.handleListExports)
	s.mux.HandleFunc("GET /v1/exports/{id}", s.handleGetExport)
	s.mux.HandleFunc("GET /v1/exports/{id}/archive", s.handleArchive)

	s.mux.HandleFunc("GET /v1/viewports", s.handleViewports)
	s.mux.HandleFunc("PUT /v1/viewports/active", s.handleSetActive)

	s.mux.HandleFunc("GET /health", s.handleHealth)
	if s.gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

// Handler returns the routes wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	handler := Chain(
		RecoveryMiddleware(s.logger),
		SecurityHeadersMiddleware(),
		LoggingMiddleware(s.logger),
		AuthMiddleware(NewAuthConfig(s.cfg.Token, s.cfg.AllowedIPs, s.logger), s.logger),
	)(s.mux)
	if s.cfg.RequestsPerMinute > 0 {
		handler = RateLimitMiddleware(NewRateLimiter(s.cfg.RequestsPerMinute), s.logger)(handler)
	}
	return handler
}

// ============================================================================
// EXPORT HANDLERS
// ============================================================================

// ExportRecord is the JSON form of one export run.
type ExportRecord struct {
	RunID     string    `json:"run_id"`
	Success   bool      `json:"success"`
	Filename  string    `json:"filename,omitempty"`
	Size      int       `json:"size,omitempty"`
	Digest    string    `json:"digest,omitempty"`
	Error     string    `json:"error,omitempty"`
	Kind      string    `json:"kind,omitempty"`
	Archive   string    `json:"archive,omitempty"`
	Started   time.Time `json:"started"`
	Completed time.Time `json:"completed"`

	location string
}

func newRecord(out model.ExportOutcome, started time.Time) *ExportRecord {
	rec := &ExportRecord{
		RunID:     out.RunID,
		Success:   out.Succeeded(),
		Started:   started,
		Completed: time.Now(),
	}
	if out.Err != nil {
		rec.Error = out.Reason()
		rec.Kind = model.KindOf(out.Err).String()
		return rec
	}
	rec.Filename = out.Filename
	rec.Size = out.Size
	rec.Digest = out.Digest
	rec.Archive = "/v1/exports/" + out.RunID + "/archive"
	rec.location = out.Location
	return rec
}

// handleExport handles POST /v1/exports. The run completes before the
// response is written.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	out := s.exporter.ExportViewport(r.Context())
	rec := newRecord(out, started)
	s.history.add(rec)

	if out.Err != nil {
		s.writeJSON(w, statusForKind(model.KindOf(out.Err)), rec)
		return
	}
	w.Header().Set("Location", "/v1/exports/"+rec.RunID)
	s.writeJSON(w, http.StatusCreated, rec)
}

// statusForKind maps a failure onto an HTTP status.
func statusForKind(kind model.ErrorKind) int {
	switch kind {
	case model.KindNoActiveViewport:
		return http.StatusConflict
	case model.KindSurfaceNotFound, model.KindElementNotFound:
		return http.StatusNotFound
	case model.KindNoDatasetBound, model.KindDatasetNotFound:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// handleListExports handles GET /v1/exports, newest first.
func (s *Server) handleListExports(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"exports": s.history.list()})
}

func (s *Server) handleGetExport(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.history.get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "export not found")
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

// handleArchive streams a delivered archive as an attachment.
func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.history.get(r.PathValue("id"))
	if !ok || !rec.Success {
		writeError(w, http.StatusNotFound, "archive not found")
		return
	}

	f, err := os.Open(rec.location)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusGone, "archive no longer available")
			return
		}
		s.logger.Error("open archive", "path", rec.location, "error", err)
		writeError(w, http.StatusInternalServerError, "cannot read archive")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "cannot read archive")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(rec.Filename)))
	http.ServeContent(w, r, rec.Filename, info.ModTime(), f)
}

// ============================================================================
// VIEWPORT HANDLERS
// ============================================================================

// ViewportInfo is the JSON form of a grid slot.
type ViewportInfo struct {
	ID          string   `json:"id"`
	Mounted     bool     `json:"mounted"`
	Active      bool     `json:"active"`
	DisplaySets []string `json:"display_sets"`
}

func (s *Server) viewports() []ViewportInfo {
	active, _ := s.grid.ActiveViewportID()
	ids := s.grid.Viewports()
	infos := make([]ViewportInfo, 0, len(ids))
	for _, id := range ids {
		_, mounted := s.grid.Element(id)
		sets := s.grid.DisplaySetUIDs(id)
		if sets == nil {
			sets = []string{}
		}
		infos = append(infos, ViewportInfo{
			ID:          string(id),
			Mounted:     mounted,
			Active:      id == active,
			DisplaySets: sets,
		})
	}
	return infos
}

func (s *Server) handleViewports(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"viewports": s.viewports()})
}

// handleSetActive handles PUT /v1/viewports/active. An empty id leaves no
// viewport active.
func (s *Server) handleSetActive(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if body.ID == "" {
		s.grid.ClearActive()
	} else if err := s.grid.SetActive(model.ViewportID(body.ID)); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.logger.Info("active viewport changed", "viewport", body.ID)
	s.writeJSON(w, http.StatusOK, map[string]any{"viewports": s.viewports()})
}

// ============================================================================
// HEALTH HANDLER
// ============================================================================

// HealthResponse is the health check body.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Uptime    string `json:"uptime"`
	Viewports int    `json:"viewports"`
	Active    string `json:"active,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	active, _ := s.grid.ActiveViewportID()
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Version:   s.cfg.Version,
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Viewports: len(s.grid.Viewports()),
		Active:    string(active),
	})
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Serve accepts connections on l until ctx is done, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(l) }()
	s.logger.Info("server started", "addr", l.Addr().String(), "version", s.cfg.Version)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	l, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, l)
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("write response", "error", err)
	}
}

// writeError writes {"error": {"message": ..., "code": ...}}.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": message, "code": status},
	})
}

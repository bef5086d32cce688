// Package server exposes the snapshot store as a read-only JSON API for
// lineage visualization and tooling.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/souptikmandal/lineagekit/internal/diff"
	"github.com/souptikmandal/lineagekit/internal/impact"
	"github.com/souptikmandal/lineagekit/internal/state"
	"github.com/souptikmandal/lineagekit/pkg/core"
)

// Server serves run snapshots, changes and impact queries.
type Server struct {
	store      core.Store
	thresholds diff.Thresholds
	logger     *slog.Logger
}

// Options configures a Server.
type Options struct {
	// Thresholds are used by the diff endpoint.
	Thresholds diff.Thresholds
	Logger     *slog.Logger
}

// New creates a server over store.
func New(store core.Store, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	th := opts.Thresholds
	if th == (diff.Thresholds{}) {
		th = diff.DefaultThresholds()
	}
	return &Server{store: store, thresholds: th, logger: logger}
}

// Handler returns the HTTP handler with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/runs", s.listRuns)
		r.Get("/runs/latest", s.latestRun)
		r.Get("/runs/{runID}", s.getRun)
		r.Get("/runs/{runID}/changes", s.listChanges)
		r.Get("/runs/{runID}/impact", s.impact)
		r.Get("/diff", s.diff)
	})
	return r
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return egctx },
	}

	eg.Go(func() error {
		s.logger.Info("serving lineage API", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down lineage API")
		return srv.Shutdown(shutdownCtx) //nolint:contextcheck // parent is already cancelled
	})

	return eg.Wait()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", chimw.GetReqID(r.Context()),
		)
	})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := -1
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}

	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		s.serverError(w, err)
		return
	}
	if runs == nil {
		runs = []core.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) latestRun(w http.ResponseWriter, r *http.Request) {
	id, err := s.store.LatestRunID(r.Context())
	if err != nil {
		s.serverError(w, err)
		return
	}
	if id == "" {
		writeError(w, http.StatusNotFound, errors.New("no runs recorded"))
		return
	}
	s.writeExport(w, r, id)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	s.writeExport(w, r, chi.URLParam(r, "runID"))
}

func (s *Server) writeExport(w http.ResponseWriter, r *http.Request, runID string) {
	exp, err := state.LoadExport(r.Context(), s.store, runID)
	if err != nil {
		s.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

func (s *Server) listChanges(w http.ResponseWriter, r *http.Request) {
	changes, err := s.store.ListChanges(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.serverError(w, err)
		return
	}
	if changes == nil {
		changes = []core.Change{}
	}
	writeJSON(w, http.StatusOK, changes)
}

type impactResponse struct {
	RunID       string           `json:"run_id"`
	Column      string           `json:"column"`
	ChangeType  core.ChangeType  `json:"change_type"`
	MaxSeverity core.Severity    `json:"max_severity"`
	Hits        []core.ImpactHit `json:"hits"`
}

func (s *Server) impact(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	q := r.URL.Query()
	column := q.Get("column")
	if column == "" {
		writeError(w, http.StatusBadRequest, errors.New("column is required"))
		return
	}
	ct, err := core.ParseChangeType(q.Get("change"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	hits, err := impact.Propagate(r.Context(), s.store, runID, column, ct)
	if err != nil {
		s.serverError(w, err)
		return
	}
	hits = impact.Collapse(hits)
	if hits == nil {
		hits = []core.ImpactHit{}
	}
	writeJSON(w, http.StatusOK, impactResponse{
		RunID:       runID,
		Column:      column,
		ChangeType:  ct,
		MaxSeverity: impact.MaxSeverity(hits),
		Hits:        hits,
	})
}

func (s *Server) diff(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	base, current := q.Get("base"), q.Get("current")
	if base == "" {
		writeError(w, http.StatusBadRequest, errors.New("base is required"))
		return
	}
	if current == "" {
		id, err := s.store.LatestRunID(r.Context())
		if err != nil {
			s.serverError(w, err)
			return
		}
		current = id
	}

	changes, err := diff.Detect(r.Context(), s.store, base, current, s.thresholds)
	if err != nil {
		s.serverError(w, err)
		return
	}
	if changes == nil {
		changes = []core.Change{}
	}
	writeJSON(w, http.StatusOK, changes)
}

func (s *Server) serverError(w http.ResponseWriter, err error) {
	s.logger.Error("request failed", "error", err)
	writeError(w, http.StatusInternalServerError, err)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

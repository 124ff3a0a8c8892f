// Package observe serves run progress and crawler metrics over HTTP.
package observe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	crawlerrors "github.com/PentesterFlow/SiteCrawler/internal/errors"
	"github.com/PentesterFlow/SiteCrawler/internal/logger"
	"github.com/PentesterFlow/SiteCrawler/internal/metadata"
	"github.com/PentesterFlow/SiteCrawler/internal/metrics"
	"github.com/PentesterFlow/SiteCrawler/internal/websocket"
)

// Config wires the server to its data sources. Broadcaster and Metrics may
// be nil.
type Config struct {
	Backend     metadata.Backend
	Broadcaster *metadata.Broadcaster
	Metrics     *metrics.Collector
	Stream      websocket.Config
	Log         *logger.Logger
}

// Server is the observation HTTP handler.
type Server struct {
	backend     metadata.Backend
	broadcaster *metadata.Broadcaster
	streamer    *websocket.Streamer
	log         *logger.Logger
	handler     http.Handler
}

var errRunNotFound = errors.New("run not found")

type errorResponse struct {
	Error string `json:"error"`
}

type runsResponse struct {
	Runs []string `json:"runs"`
}

// New builds the handler.
func New(cfg Config) *Server {
	log := cfg.Log
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{
		backend:     cfg.Backend,
		broadcaster: cfg.Broadcaster,
		streamer:    websocket.NewStreamer(cfg.Stream, log),
		log:         log.WithComponent("observe"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /runs", s.handleRuns)
	mux.HandleFunc("GET /runs/{id}/progress", s.handleProgress)
	mux.HandleFunc("GET /runs/{id}/progress/ws", s.handleProgressStream)

	registry := prometheus.NewRegistry()
	if cfg.Metrics != nil {
		registry.MustRegister(metrics.NewExporter(cfg.Metrics))
	}
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	s.handler = s.logging(mux)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.backend.Runs(r.Context())
	if err != nil {
		s.log.WithError(err).Warn("Failed to list runs")
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []string{}
	}
	s.writeJSON(w, http.StatusOK, runsResponse{Runs: runs})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	state, status, err := s.read(r.Context(), id)
	if err != nil {
		s.writeError(w, status, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleProgressStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	// a missing or corrupt run is reported before upgrading
	if _, status, err := s.read(r.Context(), id); err != nil {
		s.writeError(w, status, err.Error())
		return
	}

	var updates <-chan metadata.ProgressState
	if s.broadcaster != nil {
		ch, cancel := s.broadcaster.Subscribe(id)
		defer cancel()
		updates = ch
	}

	s.streamer.Serve(w, r, func(ctx context.Context) (metadata.ProgressState, error) {
		state, _, err := s.read(ctx, id)
		return state, err
	}, updates)
}

// read loads a run's progress and the HTTP status for a failure.
func (s *Server) read(ctx context.Context, id string) (metadata.ProgressState, int, error) {
	store := s.backend.Scope(id)
	current, err := store.Current(ctx)
	if err != nil {
		s.log.WithRun(id).WithError(err).Warn("Failed to read progress")
		return metadata.ProgressState{}, http.StatusInternalServerError, err
	}
	if len(current) == 0 {
		return metadata.ProgressState{}, http.StatusNotFound, errRunNotFound
	}

	state, err := metadata.ReadProgress(ctx, store, s.log.WithRun(id))
	if err != nil {
		if crawlerrors.IsValidationError(err) {
			return metadata.ProgressState{}, http.StatusUnprocessableEntity, err
		}
		return metadata.ProgressState{}, http.StatusInternalServerError, err
	}
	return state, http.StatusOK, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Debug("Failed to write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Event(logger.DebugLevel).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Str("remote_addr", r.RemoteAddr).
			Msg("HTTP request")
	})
}

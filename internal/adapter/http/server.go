package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/storm-ambiance/internal/state"
)

// maxBurst bounds burst requests.
const maxBurst = 10 * time.Minute

// maxBodyBytes caps control request bodies.
const maxBodyBytes = 4 << 10

// Surface is the part of the surface controller exposed over HTTP.
type Surface interface {
	Snapshot() state.Snapshot
	Show()
	Hide()
	Burst(d time.Duration)
	SetAmbianceEnabled(enabled bool)
}

// Refresher accepts out-of-band weather refresh requests.
type Refresher interface {
	Trigger()
}

// Server exposes health, readiness, metrics and the ambiance control routes.
type Server struct {
	httpServer *http.Server
	surface    Surface
	refresher  Refresher
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and the
// /v1/ambiance routes. Refresher may be nil.
func NewServer(addr string, ready sharedobs.ReadinessChecker, surface Surface, refresher Refresher, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		surface:   surface,
		refresher: refresher,
		logger:    logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /v1/ambiance", s.handleSnapshot)
	mux.HandleFunc("POST /v1/ambiance/visibility", s.handleVisibility)
	mux.HandleFunc("POST /v1/ambiance/enabled", s.handleEnabled)
	mux.HandleFunc("POST /v1/ambiance/burst", s.handleBurst)
	mux.HandleFunc("POST /v1/ambiance/refresh", s.handleRefresh)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, s.surface.Snapshot())
}

type visibilityRequest struct {
	Visible *bool `json:"visible"`
}

func (s *Server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	var req visibilityRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Visible == nil {
		writeError(w, http.StatusBadRequest, errors.New("visible is required"))
		return
	}

	if *req.Visible {
		s.surface.Show()
	} else {
		s.surface.Hide()
	}
	sharedobs.WriteJSON(w, http.StatusOK, s.surface.Snapshot())
}

type enabledRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) handleEnabled(w http.ResponseWriter, r *http.Request) {
	var req enabledRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, errors.New("enabled is required"))
		return
	}

	s.surface.SetAmbianceEnabled(*req.Enabled)
	sharedobs.WriteJSON(w, http.StatusOK, s.surface.Snapshot())
}

type burstRequest struct {
	Duration string `json:"duration"`
}

func (s *Server) handleBurst(w http.ResponseWriter, r *http.Request) {
	var req burstRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	d, err := time.ParseDuration(req.Duration)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid duration %q", req.Duration))
		return
	}
	if d <= 0 || d > maxBurst {
		writeError(w, http.StatusBadRequest, fmt.Errorf("duration must be in (0, %s]", maxBurst))
		return
	}

	s.surface.Burst(d)
	sharedobs.WriteJSON(w, http.StatusOK, s.surface.Snapshot())
}

func (s *Server) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	if s.refresher == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("weather refresh disabled"))
		return
	}
	s.refresher.Trigger()
	sharedobs.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, err error) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": err.Error()})
}

// Package api provides the control surface for the gpuhold daemon: a small
// JSON request/response protocol served over a filesystem-scoped unix socket,
// plus the matching client used by the CLI.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gpuhold-net/gpuhold/internal/domain"
	"github.com/gpuhold-net/gpuhold/internal/health"
	"github.com/gpuhold-net/gpuhold/internal/hold"
)

// Server handles control commands against the manager.
type Server struct {
	mgr            *hold.Manager
	health         *health.Checker
	metricsEnabled bool
}

// NewServer creates a control server.
func NewServer(mgr *hold.Manager) *Server {
	return &Server{mgr: mgr}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetHealth mounts the health checker at /health.
func (s *Server) SetHealth(h *health.Checker) { s.health = h }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Minute))

	r.Route("/control", func(r chi.Router) {
		r.Post("/start", s.handleStart)
		r.Post("/stop", s.handleStop)
		r.Post("/restart", s.handleRestart)
		r.Post("/shutdown", s.handleShutdown)
		r.Get("/status", s.handleStatus)
	})

	if s.health != nil {
		r.Get("/health", s.handleHealth)
	}
	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req domain.StartRequest
	if !decode(w, r, &req) {
		return
	}
	applied, gen, err := s.mgr.Start(req.Patch)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.CommandResponse{OK: true, Generation: gen, Applied: &applied})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.mgr.Stop(); err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.CommandResponse{OK: true, Generation: s.mgr.Generation()})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	var req domain.RestartRequest
	if !decode(w, r, &req) {
		return
	}
	applied, gen, err := s.mgr.Restart(req.Patch)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.CommandResponse{OK: true, Generation: gen, Applied: &applied})
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if err := s.mgr.Shutdown(); err != nil {
		writeCommandError(w, err)
		return
	}
	// The daemon observes mgr.Done() and exits after this response is sent.
	writeJSON(w, http.StatusOK, domain.CommandResponse{OK: true})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.mgr.Status())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	statuses := s.health.Statuses()
	healthy := true
	for _, st := range statuses {
		if !st.Healthy {
			healthy = false
		}
	}
	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"healthy": healthy,
		"checks":  statuses,
	})
}

// decode parses a JSON body with unknown fields rejected. A malformed request
// is a protocol error: the connection gets a tagged failure and no state
// changes.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeCommandError(w, domain.ErrProtocol)
		return false
	}
	return true
}

func writeCommandError(w http.ResponseWriter, err error) {
	writeJSON(w, httpStatus(err), domain.CommandResponse{
		OK:    false,
		Error: &domain.ErrorBody{Code: domain.ErrorCode(err), Message: err.Error()},
	})
}

// httpStatus maps the error taxonomy onto HTTP codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidConfig), errors.Is(err, domain.ErrProtocol):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrShuttingDown):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

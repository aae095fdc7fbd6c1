// Package handlers serves the local status endpoints: current scan state,
// a health check and Prometheus metrics.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bdougie/handscan/internal/capture"
	"github.com/bdougie/handscan/internal/session"
)

// SessionSource reads the shared session state
type SessionSource interface {
	Snapshot() session.State
}

// Status is the /status response body
type Status struct {
	Session session.State     `json:"session"`
	Capture *capture.Snapshot `json:"capture,omitempty"`
}

type Handler struct {
	sessions SessionSource
	logger   *slog.Logger

	mu      sync.RWMutex
	capture *capture.Snapshot
}

func New(sessions SessionSource, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{sessions: sessions, logger: logger}
}

// Observe records the latest capture snapshot; it matches capture.Deps.Observer
func (h *Handler) Observe(snap capture.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.capture = &snap
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/status", h.HandleStatus)
	r.Get("/healthcheck", h.HandleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
}

// Router builds the full status router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	h.Register(r)
	return r
}

func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	var snap *capture.Snapshot
	if h.capture != nil {
		c := *h.capture
		snap = &c
	}
	h.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(Status{Session: h.sessions.Snapshot(), Capture: snap}); err != nil {
		h.logger.Error("Unable to write status", "err", err)
	}
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := w.Write([]byte("OK")); err != nil {
		h.logger.Error("Unable to write healthcheck", "err", err)
	}
}

// NewServer builds the status server with the project's timeouts
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Package api provides the HTTP surface for Quarry: the job ledger's
// operation set, read-only job/agent queries, the worker scheduler's
// control endpoints, and a live lifecycle event feed.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quarry-network/quarry/internal/app/ledger"
	"github.com/quarry-network/quarry/internal/app/worker"
	"github.com/quarry-network/quarry/internal/domain"
	"github.com/quarry-network/quarry/internal/infra/events"
)

// Server is the Quarry HTTP API server.
type Server struct {
	ledger         *ledger.Ledger
	scheduler      *worker.Scheduler
	bus            *events.Bus
	metricsEnabled bool
}

// NewServer creates an API server over the ledger.
func NewServer(l *ledger.Ledger) *Server {
	return &Server{ledger: l}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetScheduler mounts the worker control surface.
func (s *Server) SetScheduler(sched *worker.Scheduler) { s.scheduler = sched }

// SetBus mounts the live event feed.
func (s *Server) SetBus(bus *events.Bus) { s.bus = bus }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Minute))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.handleListJobs)
			r.Post("/", s.handlePostJob)
			r.Get("/{id}", s.handleGetJob)
			r.Post("/{id}/claim", s.handleClaim)
			r.Post("/{id}/submit", s.handleSubmit)
			r.Post("/{id}/approve", s.handleApprove)
			r.Post("/{id}/auto-approve", s.handleAutoApprove)
			r.Post("/{id}/dispute", s.handleDispute)
			r.Post("/{id}/cancel", s.handleCancel)
			r.Post("/{id}/expire", s.handleExpire)
			r.Post("/{id}/resolve", s.handleResolve)
		})

		r.Route("/agents/{address}", func(r chi.Router) {
			r.Get("/", s.handleGetAgent)
			r.Get("/balance", s.handleGetBalance)
			r.Post("/deposit", s.handleDeposit)
		})

		r.Route("/worker", func(r chi.Router) {
			r.Get("/status", s.handleWorkerStatus)
			r.Post("/start", s.handleWorkerStart)
			r.Post("/stop", s.handleWorkerStop)
		})

		if s.bus != nil {
			r.Get("/events/live", s.handleEventsSSE)
		}
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps a domain error to an HTTP status and writes it.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]any{
		"error": map[string]any{"message": err.Error()},
	})
}

// statusFor maps the ledger's error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	var (
		validation   *domain.ValidationError
		state        *domain.StateError
		auth         *domain.AuthorizationError
		insufficient *domain.InsufficientFundsError
		deadline     *domain.DeadlineError
	)
	switch {
	case errors.Is(err, domain.ErrJobNotFound), errors.Is(err, domain.ErrAgentNotFound):
		return http.StatusNotFound
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &auth):
		return http.StatusForbidden
	case errors.As(err, &insufficient):
		return http.StatusPaymentRequired
	case errors.As(err, &state), errors.As(err, &deadline):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// corsMiddleware adds CORS headers for local dashboards.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

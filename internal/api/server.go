package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/dialout/dialout/internal/api/middleware"
	"github.com/dialout/dialout/internal/call"
	"github.com/dialout/dialout/internal/metrics"
	"github.com/dialout/dialout/internal/platform"
	"github.com/dialout/dialout/internal/prompts"
)

// BatchProcessor handles one parsed notification batch.
// *call.Controller is the production implementation.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, tenant string, batch []platform.Notification) error
}

// CallStarter places an outbound call. *call.Dialer is the production
// implementation.
type CallStarter interface {
	StartCall(ctx context.Context, phoneNumber, tenant string) (*platform.Call, error)
}

// ActiveCalls lists the currently registered call handlers.
type ActiveCalls interface {
	Active() []call.Snapshot
}

// Server holds HTTP handler dependencies and the chi router.
type Server struct {
	router    *chi.Mux
	processor BatchProcessor
	dialer    CallStarter
	active    ActiveCalls
	validator middleware.WebhookValidator
	limiter   *middleware.RateLimiter
	counters  *metrics.Counters
	metricsH  http.Handler
}

// NewServer creates the HTTP handler with all routes mounted. metricsH is
// the /metrics endpoint handler and may be nil; counters may be nil.
func NewServer(
	processor BatchProcessor,
	dialer CallStarter,
	active ActiveCalls,
	validator middleware.WebhookValidator,
	limiter *middleware.RateLimiter,
	counters *metrics.Counters,
	metricsH http.Handler,
) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		processor: processor,
		dialer:    dialer,
		active:    active,
		validator: validator,
		limiter:   limiter,
		counters:  counters,
		metricsH:  metricsH,
	}

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes configures all middleware and mounts all route groups.
func (s *Server) routes() {
	r := s.router

	// Global middleware stack.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.StructuredLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	if s.metricsH != nil {
		r.Method(http.MethodGet, "/metrics", s.metricsH)
	}

	// Prompt audio the platform prefetches when a call is placed.
	r.Handle("/audio/*", http.StripPrefix("/audio/", prompts.Handler()))

	r.Route("/api/v1", func(r chi.Router) {
		// Callback deliveries from the platform, bearer-token authenticated.
		r.Route("/callbacks", func(r chi.Router) {
			r.Use(middleware.RequireWebhookAuth(s.validator, s.counters))
			if s.limiter != nil {
				r.Use(s.limiter.Middleware)
			}
			r.Post("/", s.handleCallback)
		})

		// Operator endpoints.
		r.Route("/calls", func(r chi.Router) {
			r.Post("/", s.handleStartCall)
			r.Get("/active", s.handleActiveCalls)
		})
	})
}

// handleHealth returns basic health status. Unauthenticated.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleActiveCalls lists the registered call handlers.
func (s *Server) handleActiveCalls(w http.ResponseWriter, r *http.Request) {
	snapshots := s.active.Active()
	if snapshots == nil {
		snapshots = []call.Snapshot{}
	}
	writeJSON(w, http.StatusOK, snapshots)
}

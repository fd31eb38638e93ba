// Package httpserver provides the HTTP REST API for keyword research runs.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/keyword-hunter/internal/database"
	"github.com/helixir/keyword-hunter/internal/domain"
)

// RunService creates and dispatches runs. *runner.Service satisfies it.
type RunService interface {
	Submit(ctx context.Context, spec domain.RunSpec) (*domain.Run, error)
}

// RunReader reads persisted runs and their keywords.
// *repository.PgRunRepository satisfies it.
type RunReader interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	List(ctx context.Context, filter domain.RunFilter) ([]*domain.Run, int64, error)
	ListKeywords(ctx context.Context, runID uuid.UUID, limit, offset int) ([]domain.Candidate, int64, error)
}

// HealthChecker reports database health. *database.DB satisfies it.
type HealthChecker interface {
	Health(ctx context.Context) database.HealthStatus
}

// SuggestionInvalidator drops cached suggestions for a region.
// *cache.SuggestionCache satisfies it.
type SuggestionInvalidator interface {
	Invalidate(ctx context.Context, region int) (int64, error)
}

// RunCanceller stops a run executing as a workflow.
// *temporal.RunWorkflowClient satisfies it.
type RunCanceller interface {
	CancelRun(ctx context.Context, runID uuid.UUID) error
}

// Server is the HTTP REST API server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	runs       RunService
	reader     RunReader
	health     HealthChecker
	cache      SuggestionInvalidator
	workflows  RunCanceller
	defaults   domain.RunSpec
	throttle   *ClientThrottle
	validate   *validator.Validate
	logger     zerolog.Logger
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Defaults fills the parts of a run request the caller leaves out.
	Defaults domain.RunSpec

	// Cache enables the suggestion cache admin route when set.
	Cache SuggestionInvalidator

	// Workflows enables run cancellation when runs execute as workflows.
	Workflows RunCanceller
}

// NewServer creates a new HTTP server with all dependencies. throttle may be
// nil to disable per-client limits.
func NewServer(
	cfg Config,
	runs RunService,
	reader RunReader,
	health HealthChecker,
	throttle *ClientThrottle,
	logger zerolog.Logger,
) *Server {
	s := &Server{
		runs:      runs,
		reader:    reader,
		health:    health,
		cache:     cfg.Cache,
		workflows: cfg.Workflows,
		defaults:  cfg.Defaults,
		throttle:  throttle,
		validate:  newValidator(),
		logger:    logger.With().Str("component", "http-server").Logger(),
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlationIDMiddleware)
	r.Use(requestLogger(s.logger))
	r.Use(jsonContentTypeMiddleware)

	// Health endpoints are never throttled.
	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	r.Route("/api/v1", func(r chi.Router) {
		if s.throttle != nil {
			r.Use(s.throttle.Middleware)
		}

		r.Post("/runs", s.createRun)
		r.Get("/runs", s.listRuns)
		r.Get("/runs/{runID}", s.getRun)
		r.Get("/runs/{runID}/keywords", s.getRunKeywords)
		r.Get("/runs/{runID}/export", s.exportRun)
		if s.workflows != nil {
			r.Post("/runs/{runID}/cancel", s.cancelRun)
		}

		r.Post("/seeds", s.generateSeeds)
		r.Get("/regions", s.listRegions)

		if s.cache != nil {
			r.Delete("/cache/suggestions/{region}", s.invalidateSuggestions)
		}
	})

	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler returns basic liveness status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readinessHandler reports ready once the database answers.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	health := s.health.Health(r.Context())
	if !health.Healthy() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"database": health.Status,
			"error":    health.Error,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ready",
		"database": health.Status,
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers already sent.
		_ = err
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

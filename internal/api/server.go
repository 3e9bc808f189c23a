package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/kestrel/internal/detect"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/engine"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, analyzer *engine.Analyzer, exclusions *detect.ExclusionEngine, version string) *Server {
	handler := NewHandler(repo, cache, bus, analyzer, exclusions, version, cfg.MaxBatchSize)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware(cfg.AllowedOrigins)) // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (tenant required)
	router.Route("/", func(r chi.Router) {
		r.Use(TenantMiddleware)
		r.Use(RateLimitMiddleware(cache, cfg.RateLimitPerMinute))

		// Batch analysis
		r.Post("/analyses", handler.SubmitBatch)

		// Analysis retrieval
		r.Get("/analyses", handler.ListAnalyses)
		r.Get("/analyses/{id}", handler.GetAnalysis)
		r.Get("/analyses/{id}/rings", handler.ListRings)
		r.Get("/analyses/{id}/report", handler.GetReport)

		// Exclusion rule management
		r.Get("/exclusions", handler.ListExclusionRules)
		r.Get("/exclusions/{id}", handler.GetExclusionRule)
		r.Post("/exclusions", handler.CreateExclusionRule)
		r.Delete("/exclusions/{id}", handler.DeleteExclusionRule)
		r.Post("/exclusions/reload", handler.ReloadExclusionRules)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}

// Package server exposes the simulation and treemap services over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/indexlab/internal/domain"
	"github.com/alanyoungcy/indexlab/internal/observability"
	"github.com/alanyoungcy/indexlab/internal/server/handler"
	"github.com/alanyoungcy/indexlab/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// RateLimit is the number of requests a client may make per RateWindow.
	// Zero, or a nil limiter, disables rate limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health   *handler.HealthHandler
	Returns  *handler.ReturnsHandler
	Treemaps *handler.TreemapHandler
}

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered. metrics and limiter
// may be nil.
func NewServer(cfg Config, handlers Handlers, metrics *observability.Metrics, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      Routes(cfg, handlers, metrics, limiter, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return &Server{httpServer: srv, logger: logger}
}

// Routes builds the mux and middleware chain. It is separate from NewServer
// so tests can drive it with httptest.
func Routes(cfg Config, handlers Handlers, metrics *observability.Metrics, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("POST /api/returns", handlers.Returns.Returns)

	mux.HandleFunc("GET /api/treemaps", handlers.Treemaps.ListPages)
	mux.HandleFunc("GET /api/treemaps/metadata", handlers.Treemaps.ListMetadata)
	mux.HandleFunc("GET /treemaps/{file}", handlers.Treemaps.Page)

	// Innermost first: rate limit sits inside logging so rejected requests
	// are still logged.
	var h http.Handler = mux
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	}
	h = middleware.Logging(logger, metrics)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	h = middleware.RequestID(h)
	return h
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// Package server hosts the operator HTTP and WebSocket API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/arbiterhq/arbiter/internal/server/handler"
	"github.com/arbiterhq/arbiter/internal/server/middleware"
	"github.com/arbiterhq/arbiter/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimiter enables per-client rate limiting when non-nil.
	RateLimiter middleware.RateLimiter
	RateLimit   int
	RateWindow  time.Duration
}

// Handlers aggregates the HTTP handlers that the server registers.
type Handlers struct {
	Health        *handler.HealthHandler
	Risk          *handler.RiskHandler
	Cycle         *handler.CycleHandler
	Opportunities *handler.OpportunityHandler
	Executions    *handler.ExecutionHandler
}

// Server is the operator-facing HTTP + WebSocket API.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a Server with all routes registered and the middleware chain
// (rate limiting, logging, CORS, auth) applied.
func New(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Read-only state.
	mux.HandleFunc("GET /api/risk", handlers.Risk.GetState)
	mux.HandleFunc("GET /api/cycle", handlers.Cycle.GetCurrent)
	mux.HandleFunc("GET /api/cycle/history", handlers.Cycle.ListHistory)
	mux.HandleFunc("GET /api/opportunities", handlers.Opportunities.ListRecent)
	mux.HandleFunc("GET /api/executions", handlers.Executions.ListRecent)
	mux.HandleFunc("GET /api/executions/{id}", handlers.Executions.Get)

	// Manual breaker controls.
	mux.HandleFunc("POST /api/control/halt", handlers.Risk.Halt)
	mux.HandleFunc("POST /api/control/reset", handlers.Risk.Reset)

	// Live event stream.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	if cfg.RateLimiter != nil {
		limit, window := cfg.RateLimit, cfg.RateWindow
		if limit <= 0 {
			limit = 60
		}
		if window <= 0 {
			window = time.Minute
		}
		h = middleware.RateLimit(cfg.RateLimiter, limit, window)(h)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "server")),
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

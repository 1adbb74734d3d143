// Package server is the operator HTTP surface of the settler: health,
// the discovery index read model, leaderboard standings and the audit log.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/castora-xyz/castora-sub001/internal/domain"
	"github.com/castora-xyz/castora-sub001/internal/server/handler"
	"github.com/castora-xyz/castora-sub001/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	// RateLimit is requests per client per minute. Limiting needs Limiter.
	RateLimit int
	Limiter   domain.RateLimiter
}

// Handlers aggregates the HTTP handlers the server registers. Nil handlers
// leave their routes unregistered.
type Handlers struct {
	Health      *handler.HealthHandler
	Status      *handler.StatusHandler
	Pools       *handler.PoolHandler
	Leaderboard *handler.LeaderboardHandler
	Audit       *handler.AuditHandler
}

// Server is the operator HTTP API.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes and middleware registered.
func NewServer(cfg Config, handlers Handlers, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewHandler(cfg, handlers, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return &Server{httpServer: srv, logger: logger}
}

// NewHandler builds the routed, middleware-wrapped handler. Health is served
// without authentication.
func NewHandler(cfg Config, handlers Handlers, logger *slog.Logger) http.Handler {
	api := http.NewServeMux()
	if handlers.Status != nil {
		api.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	}
	if handlers.Pools != nil {
		api.HandleFunc("GET /api/pools/live", handlers.Pools.ListLive)
	}
	if handlers.Leaderboard != nil {
		api.HandleFunc("GET /api/leaderboard", handlers.Leaderboard.Top)
		api.HandleFunc("GET /api/leaderboard/updated", handlers.Leaderboard.Updated)
		api.HandleFunc("GET /api/leaderboard/{address}", handlers.Leaderboard.Get)
	}
	if handlers.Audit != nil {
		api.HandleFunc("GET /api/audit", handlers.Audit.List)
	}

	var authed http.Handler = api
	authed = middleware.Auth(cfg.APIKey)(authed)
	if cfg.Limiter != nil && cfg.RateLimit > 0 {
		authed = middleware.RateLimit(cfg.Limiter, cfg.RateLimit, time.Minute)(authed)
	}

	root := http.NewServeMux()
	if handlers.Health != nil {
		root.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	}
	root.Handle("/", authed)

	var h http.Handler = root
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
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

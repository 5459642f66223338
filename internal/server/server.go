// Package server exposes the bot's read-only JSON status API over net/http.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/server/handler"
	"github.com/alanyoungcy/updownbot/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // empty disables auth
	// Limiter and RequestsPerMinute enable per-IP rate limiting.
	Limiter           domain.RateLimiter
	RequestsPerMinute int
}

// Handlers aggregates the route handlers.
type Handlers struct {
	Health    *handler.HealthHandler
	Positions *handler.PositionHandler
	Risk      *handler.RiskHandler
	Signals   *handler.SignalHandler
}

// Server is the status API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers routes and wraps them in middleware.
func NewServer(cfg Config, h Handlers, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      newHandler(cfg, h, logger),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

func newHandler(cfg Config, h Handlers, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.Health.HealthCheck)
	mux.HandleFunc("GET /api/positions", h.Positions.ListPositions)
	mux.HandleFunc("GET /api/trades", h.Positions.ListTrades)
	mux.HandleFunc("GET /api/risk", h.Risk.GetRisk)
	mux.HandleFunc("GET /api/signals", h.Signals.ListSignals)
	mux.HandleFunc("GET /api/decisions", h.Signals.ReadDecisionStream)

	var out http.Handler = mux
	out = middleware.Auth(cfg.APIKey, "/health")(out)
	if cfg.Limiter != nil && cfg.RequestsPerMinute > 0 {
		out = middleware.RateLimit(cfg.Limiter, cfg.RequestsPerMinute, time.Minute)(out)
	}
	out = middleware.Logging(logger)(out)
	out = middleware.CORS(cfg.CORSOrigins)(out)
	return out
}

// Start listens until Shutdown. It returns nil on a clean shutdown.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// Package server exposes the market engine over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/predictionamm/internal/domain"
	"github.com/alanyoungcy/predictionamm/internal/server/handler"
	"github.com/alanyoungcy/predictionamm/internal/server/middleware"
	"github.com/alanyoungcy/predictionamm/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // empty disables the API key check

	// RateLimit requests per RateWindow per client. Zero disables it.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health   *handler.HealthHandler
	Admin    *handler.AdminHandler
	Markets  *handler.MarketHandler
	Bets     *handler.BetHandler
	Treasury *handler.TreasuryHandler
	Events   *handler.EventHandler
	Pipeline *handler.PipelineHandler
}

// Deps are optional collaborators; nil fields disable their feature.
type Deps struct {
	Hub         *ws.Hub
	Metrics     http.Handler
	RateLimiter domain.RateLimiter
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// Routes builds the routed and wrapped handler.
func Routes(cfg Config, h Handlers, deps Deps, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)

	mux.HandleFunc("POST /api/init", h.Admin.Initialize)
	mux.HandleFunc("POST /api/admins", h.Admin.AddAdmin)
	mux.HandleFunc("GET /api/admins/{address}", h.Admin.IsAdmin)
	mux.HandleFunc("DELETE /api/admins/{address}", h.Admin.RemoveAdmin)

	mux.HandleFunc("GET /api/markets", h.Markets.ListMarkets)
	mux.HandleFunc("POST /api/markets", h.Markets.CreateMarket)
	mux.HandleFunc("GET /api/markets/{id}", h.Markets.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/odds", h.Markets.GetOdds)
	mux.HandleFunc("POST /api/markets/{id}/resolve", h.Markets.ResolveMarket)

	mux.HandleFunc("POST /api/markets/{id}/bets", h.Bets.PlaceBet)
	mux.HandleFunc("GET /api/markets/{id}/bets/{user}", h.Bets.GetUserBet)
	mux.HandleFunc("POST /api/markets/{id}/claim", h.Bets.ClaimWinnings)

	mux.HandleFunc("GET /api/house", h.Treasury.GetStatus)
	mux.HandleFunc("POST /api/house/deposit", h.Treasury.Deposit)
	mux.HandleFunc("POST /api/house/withdraw", h.Treasury.Withdraw)

	mux.HandleFunc("GET /api/events", h.Events.ListEvents)
	mux.HandleFunc("GET /api/audit", h.Events.ListAudit)

	if h.Pipeline != nil {
		mux.HandleFunc("POST /api/archive/trigger", h.Pipeline.TriggerArchive)
	}
	if deps.Hub != nil {
		mux.HandleFunc("GET /ws", deps.Hub.HandleWS)
	}
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics)
	}

	// Innermost first: the caller identity is resolved after the API key
	// check and rate limiting, and logging wraps everything.
	var out http.Handler = middleware.Caller(mux)
	if deps.RateLimiter != nil && cfg.RateLimit > 0 {
		out = middleware.RateLimit(deps.RateLimiter, cfg.RateLimit, cfg.RateWindow, logger)(out)
	}
	out = middleware.Auth(cfg.APIKey, "/api/health", "/metrics")(out)
	out = middleware.CORS(cfg.CORSOrigins)(out)
	out = middleware.Logging(logger)(out)
	return out
}

// NewServer creates a Server listening on cfg.Port.
func NewServer(cfg Config, h Handlers, deps Deps, logger *slog.Logger) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      Routes(cfg, h, deps, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return &Server{httpServer: srv, logger: logger}
}

// Start listens until the server fails or is shut down.
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

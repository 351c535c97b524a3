// Package server assembles the HTTP + WebSocket API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/quantfell/perpcaster/internal/broadcast"
	"github.com/quantfell/perpcaster/internal/server/handler"
	"github.com/quantfell/perpcaster/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // empty disables auth
}

// Handlers aggregates everything the server registers.
type Handlers struct {
	Health  *handler.HealthHandler
	Account *handler.AccountHandler
	Orders  *handler.OrderHandler
	Bot     *handler.BotHandler
	Prices  *handler.PriceHandler
}

// Server is the headless HTTP + WebSocket front of the broadcaster.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes and wires the middleware chain
// (CORS -> logging -> auth -> mux).
func NewServer(cfg Config, handlers Handlers, hub *broadcast.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	mux.HandleFunc("GET /api/cached-account", handlers.Account.CachedAccount)
	mux.HandleFunc("GET /api/positions", handlers.Account.Positions)
	mux.HandleFunc("GET /api/balance", handlers.Account.Balance)
	mux.HandleFunc("GET /api/trades", handlers.Account.Trades)
	mux.HandleFunc("GET /api/broadcaster/stats", handlers.Account.BroadcasterStats)

	mux.HandleFunc("GET /api/orders", handlers.Orders.ListOrders)
	mux.HandleFunc("POST /api/orders", handlers.Orders.PlaceOrder)
	mux.HandleFunc("DELETE /api/orders/{id}", handlers.Orders.CancelOrder)

	if handlers.Bot != nil {
		mux.HandleFunc("POST /api/bot/start", handlers.Bot.Start)
		mux.HandleFunc("POST /api/bot/stop", handlers.Bot.Stop)
		mux.HandleFunc("GET /api/bot/status", handlers.Bot.Status)
		mux.HandleFunc("GET /api/bot/config", handlers.Bot.GetConfig)
		mux.HandleFunc("POST /api/bot/config", handlers.Bot.UpdateConfig)
		mux.HandleFunc("PUT /api/bot/config", handlers.Bot.UpdateConfig)
		mux.HandleFunc("GET /api/bot/logs", handlers.Bot.Logs)
		mux.HandleFunc("DELETE /api/bot/logs", handlers.Bot.ClearLogs)
	}

	if handlers.Prices != nil {
		mux.HandleFunc("GET /api/prices", handlers.Prices.AllPrices)
	}

	if hub != nil {
		mux.HandleFunc("GET /ws/broadcast", hub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{httpServer: srv, logger: logger}
}

// Start blocks serving requests until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info("server starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

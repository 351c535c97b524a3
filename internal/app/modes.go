package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quantfell/perpcaster/internal/domain"
	"github.com/quantfell/perpcaster/internal/feed"
	"github.com/quantfell/perpcaster/internal/server"
	"github.com/quantfell/perpcaster/internal/server/handler"
)

// BroadcastMode runs the poller, the WebSocket hub, and the account API.
// No signing key is loaded, so order placement fails before reaching the
// network; the engine control surface is not registered.
func (a *App) BroadcastMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting broadcast mode")

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(deps.Snapshots, deps.Hub),
		Account: handler.NewAccountHandler(deps.Account, deps.Exchange, deps.Hub),
		Orders:  handler.NewOrderHandler(deps.Account, deps.Exchange),
		Prices:  handler.NewPriceHandler(deps.Prices),
	}
	return a.serve(ctx, deps, handlers)
}

// FullMode runs everything: poller, hub, API with order mutations, the
// market-making engine's control surface, and the optional price feed.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(deps.Snapshots, deps.Hub),
		Account: handler.NewAccountHandler(deps.Account, deps.Exchange, deps.Hub),
		Orders:  handler.NewOrderHandler(deps.Account, deps.Exchange),
		Bot:     handler.NewBotHandler(deps.Engine, deps.BotLog),
		Prices:  handler.NewPriceHandler(deps.Prices),
	}
	return a.serve(ctx, deps, handlers)
}

// serve starts the shared goroutines and blocks until the first fatal error
// or context cancellation.
func (a *App) serve(ctx context.Context, deps *Dependencies, handlers server.Handlers) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return deps.Hub.Run(ctx) })
	g.Go(func() error { return deps.Poller.Run(ctx) })

	if a.cfg.Feed.Enabled {
		priceFeed := feed.NewPriceFeed(feed.Config{
			URL:            a.cfg.Feed.URL,
			ExchangeFilter: a.cfg.Feed.ExchangeFilter,
			ReconnectMin:   a.cfg.Feed.ReconnectMin.Duration,
			ReconnectMax:   a.cfg.Feed.ReconnectMax.Duration,
			MaxAttempts:    a.cfg.Feed.MaxAttempts,
		}, deps.Prices, a.logger)
		g.Go(func() error { return priceFeed.Run(ctx) })
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, deps.Hub, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()

		// Stop the engine before the listener so resting quotes get
		// cancelled while the process can still reach the exchange.
		if deps.Engine != nil {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := deps.Engine.Stop(stopCtx); err != nil && !errors.Is(err, domain.ErrBotNotRunning) {
				a.logger.Warn("engine stop during shutdown", slog.Any("error", err))
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

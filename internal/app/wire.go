package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/quantfell/perpcaster/internal/bot"
	"github.com/quantfell/perpcaster/internal/broadcast"
	"github.com/quantfell/perpcaster/internal/cache"
	rediscache "github.com/quantfell/perpcaster/internal/cache/redis"
	"github.com/quantfell/perpcaster/internal/config"
	"github.com/quantfell/perpcaster/internal/crypto"
	"github.com/quantfell/perpcaster/internal/domain"
	"github.com/quantfell/perpcaster/internal/exchange"
	"github.com/quantfell/perpcaster/internal/mirror/postgres"
	"github.com/quantfell/perpcaster/internal/poller"
	"github.com/quantfell/perpcaster/internal/service"
)

// Dependencies bundles everything the application modes operate on.
type Dependencies struct {
	Snapshots *cache.SnapshotCache
	Hub       *broadcast.Hub
	Exchange  *exchange.Client
	Poller    *poller.Poller
	Account   *service.AccountService
	Prices    domain.MarkPriceCache
	Mirror    domain.SnapshotMirror // nil when postgres is disabled
	Engine    *bot.Engine           // nil in broadcast mode
	BotLog    *service.BotLog
}

// Wire constructs the concrete dependency graph from configuration and
// returns it with a cleanup function for shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Snapshots: cache.NewSnapshotCache(),
		BotLog:    service.NewBotLog(),
	}
	deps.Account = service.NewAccountService(deps.Snapshots)
	deps.Hub = broadcast.NewHub(deps.Snapshots, broadcast.Config{
		PingInterval:   cfg.Broadcast.PingInterval.Duration,
		SendBufferSize: cfg.Broadcast.SendBufferSize,
	}, logger)

	fullMode := strings.ToLower(cfg.Mode) == "full"

	// Order signing is only wired when mutations are possible.
	var signer exchange.OrderSigner
	if fullMode {
		privateKey, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Stark.PrivateKey,
			EncryptedKeyPath: cfg.Stark.EncryptedKeyPath,
			KeyPassword:      cfg.Stark.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: load signing key: %w", err)
		}
		s, err := crypto.NewSigner(privateKey, cfg.Stark.PublicKey)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: signer: %w", err)
		}
		signer = s
	}

	deps.Exchange = exchange.New(exchange.Config{
		BaseURL:  cfg.Exchange.BaseURL,
		APIKey:   cfg.Exchange.APIKey,
		Signer:   signer,
		VaultID:  cfg.Stark.VaultID,
		ClientID: cfg.Stark.ClientID,
	}, logger)

	// --- Mark-price cache: Redis when configured, in-process otherwise ---
	if cfg.Redis.Enabled {
		redisClient, err := rediscache.New(ctx, rediscache.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.Prices = rediscache.NewMarkPriceCache(redisClient)
	} else {
		deps.Prices = cache.NewMemoryMarkPriceCache()
	}

	// --- Optional snapshot mirror ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)
		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		deps.Mirror = postgres.NewSnapshotStore(pgClient.Pool())
	}

	deps.Poller = poller.New(deps.Exchange, deps.Snapshots, deps.Hub, deps.Mirror, poller.Config{
		FastInterval:   cfg.Poller.FastInterval.Duration,
		TradesInterval: cfg.Poller.TradesInterval.Duration,
		OrdersInterval: cfg.Poller.OrdersInterval.Duration,
		FastTimeout:    cfg.Poller.FastTimeout.Duration,
		SlowTimeout:    cfg.Poller.SlowTimeout.Duration,
	}, logger)

	if fullMode {
		botLogger := slog.New(deps.BotLog.Handler(logger.Handler()))
		deps.Engine = bot.NewEngine(deps.Exchange, deps.Snapshots, bot.Config{
			Market:             cfg.Bot.Market,
			SpreadPercentage:   cfg.Bot.SpreadPercentage,
			OrderSize:          cfg.Bot.OrderSize,
			RefreshInterval:    cfg.Bot.RefreshInterval.Duration,
			PriceMoveThreshold: cfg.Bot.PriceMoveThreshold,
			PriceStalenessMax:  cfg.Bot.PriceStalenessMax.Duration,
		}, botLogger)
	}

	return deps, cleanup, nil
}

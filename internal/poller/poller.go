// Package poller drives the background fetch loops that keep the snapshot
// cache current. Positions and balance refresh on a fast cadence, open
// orders on a medium one, and the trade history on a slow one. A failed
// fetch is absorbed: the cache keeps its last good value and the next tick
// retries.
package poller

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quantfell/perpcaster/internal/cache"
	"github.com/quantfell/perpcaster/internal/domain"
)

// AccountSource is the read side of the exchange client.
type AccountSource interface {
	Positions(ctx context.Context) ([]domain.Position, error)
	Balance(ctx context.Context) (*domain.Balance, error)
	Trades(ctx context.Context) ([]domain.Trade, error)
	OpenOrders(ctx context.Context) ([]domain.OpenOrder, error)
}

// Publisher receives category payloads that actually changed.
type Publisher interface {
	Publish(category domain.Category, data any)
}

// Config holds the polling cadences and per-call timeouts.
type Config struct {
	FastInterval   time.Duration
	TradesInterval time.Duration
	OrdersInterval time.Duration
	FastTimeout    time.Duration
	SlowTimeout    time.Duration
}

// Poller owns the fetch loops. Construct with New and call Run once.
type Poller struct {
	source    AccountSource
	cache     *cache.SnapshotCache
	publisher Publisher
	mirror    domain.SnapshotMirror // optional
	cfg       Config
	logger    *slog.Logger
}

func New(source AccountSource, snap *cache.SnapshotCache, publisher Publisher, mirror domain.SnapshotMirror, cfg Config, logger *slog.Logger) *Poller {
	return &Poller{
		source:    source,
		cache:     snap,
		publisher: publisher,
		mirror:    mirror,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "poller")),
	}
}

// Run fetches every category once, then runs the three loops until ctx is
// cancelled. It only returns the context's error: fetch failures are
// logged, never fatal.
func (p *Poller) Run(ctx context.Context) error {
	p.fastTick(ctx)
	p.pollOrders(ctx)
	p.pollTrades(ctx)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.loop(ctx, p.cfg.FastInterval, p.fastTick) })
	g.Go(func() error { return p.loop(ctx, p.cfg.OrdersInterval, p.pollOrders) })
	g.Go(func() error { return p.loop(ctx, p.cfg.TradesInterval, p.pollTrades) })
	return g.Wait()
}

func (p *Poller) loop(ctx context.Context, interval time.Duration, tick func(context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			tick(ctx)
		}
	}
}

// fastTick fetches positions and balance concurrently. The two fetches
// share one tick but fail independently.
func (p *Poller) fastTick(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		p.pollPositions(ctx)
	}()
	go func() {
		defer wg.Done()
		p.pollBalance(ctx)
	}()
	wg.Wait()
}

func (p *Poller) pollPositions(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.FastTimeout)
	defer cancel()
	positions, err := p.source.Positions(fetchCtx)
	if err != nil {
		p.absorb(domain.CategoryPositions, err)
		return
	}
	if p.cache.ApplyPositions(positions) {
		p.changed(ctx, domain.CategoryPositions, positions)
	}
}

func (p *Poller) pollBalance(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.FastTimeout)
	defer cancel()
	balance, err := p.source.Balance(fetchCtx)
	if err != nil {
		p.absorb(domain.CategoryBalance, err)
		return
	}
	if p.cache.ApplyBalance(balance) {
		p.changed(ctx, domain.CategoryBalance, balance)
	}
}

func (p *Poller) pollOrders(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.FastTimeout)
	defer cancel()
	orders, err := p.source.OpenOrders(fetchCtx)
	if err != nil {
		p.absorb(domain.CategoryOrders, err)
		return
	}
	if p.cache.ApplyOrders(orders) {
		p.changed(ctx, domain.CategoryOrders, orders)
	}
}

func (p *Poller) pollTrades(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.SlowTimeout)
	defer cancel()
	trades, err := p.source.Trades(fetchCtx)
	if err != nil {
		p.absorb(domain.CategoryTrades, err)
		return
	}
	if p.cache.ApplyTrades(trades) {
		p.changed(ctx, domain.CategoryTrades, trades)
	}
}

// changed fans a committed change out to subscribers and, when configured,
// to the external mirror.
func (p *Poller) changed(ctx context.Context, category domain.Category, data any) {
	p.publisher.Publish(category, data)
	if p.mirror == nil {
		return
	}
	payload, err := json.Marshal(data)
	if err != nil {
		p.logger.Warn("mirror payload encode failed",
			slog.String("category", string(category)), slog.Any("error", err))
		return
	}
	// Mirror writes ride out a shutdown in progress but never block a tick.
	go func() {
		mirrorCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.SlowTimeout)
		defer cancel()
		if err := p.mirror.SaveCategory(mirrorCtx, category, payload, time.Now()); err != nil {
			p.logger.Warn("mirror write failed",
				slog.String("category", string(category)), slog.Any("error", err))
		}
	}()
}

func (p *Poller) absorb(category domain.Category, err error) {
	p.logger.Warn("fetch failed",
		slog.String("category", string(category)),
		slog.Any("error", err))
}

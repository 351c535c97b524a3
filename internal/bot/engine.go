// Package bot implements the market-making engine: a two-sided quoting
// loop that reads its reference price from the snapshot cache and keeps a
// bid and an ask resting around it.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/quantfell/perpcaster/internal/domain"
)

// State is the engine's lifecycle state.
type State string

const (
	StateStopped State = "STOPPED"
	StateRunning State = "RUNNING"
)

// OrderClient is the mutation side of the exchange client.
type OrderClient interface {
	CreateOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderAck, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// SnapshotReader supplies the account state the price resolution reads.
type SnapshotReader interface {
	Read() domain.Snapshot
}

// Config is the engine's quoting parameters. Immutable while running.
type Config struct {
	Market             string
	SpreadPercentage   float64
	OrderSize          float64
	RefreshInterval    time.Duration
	PriceMoveThreshold float64
	PriceStalenessMax  time.Duration
}

func (c Config) validate() error {
	if c.Market == "" {
		return fmt.Errorf("market is required")
	}
	if c.SpreadPercentage <= 0 || c.SpreadPercentage >= 1 {
		return fmt.Errorf("spread_percentage must be in (0, 1), got %v", c.SpreadPercentage)
	}
	if c.OrderSize <= 0 {
		return fmt.Errorf("order_size must be positive, got %v", c.OrderSize)
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("refresh_interval must be positive")
	}
	if c.PriceMoveThreshold < 0 {
		return fmt.Errorf("price_move_threshold must be non-negative")
	}
	return nil
}

// Status is the engine's externally visible state.
type Status struct {
	State          State             `json:"state"`
	Market         string            `json:"market"`
	LastQuotePrice float64           `json:"lastQuotePrice"`
	OpenOrders     []domain.BotOrder `json:"openOrders"`
	Cycles         uint64            `json:"cycles"`
	StartedAt      *time.Time        `json:"startedAt,omitempty"`
}

// Engine runs the quoting loop. All exported methods are safe for
// concurrent use; the loop itself is a single goroutine.
type Engine struct {
	client    OrderClient
	snapshots SnapshotReader
	logger    *slog.Logger
	now       func() time.Time

	mu        sync.Mutex
	cfg       Config
	state     State
	cancelRun context.CancelFunc
	done      chan struct{}
	startedAt time.Time
	lastQuote float64
	orders    map[string]domain.BotOrder
	cycles    uint64
}

func NewEngine(client OrderClient, snapshots SnapshotReader, cfg Config, logger *slog.Logger) *Engine {
	return &Engine{
		client:    client,
		snapshots: snapshots,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "bot")),
		now:       time.Now,
		state:     StateStopped,
		orders:    make(map[string]domain.BotOrder),
	}
}

// Start launches the quoting loop. The loop is detached from the caller's
// request context: it runs until Stop or until the engine's base context
// (the process lifetime) ends.
func (e *Engine) Start(base context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateRunning {
		return domain.ErrBotAlreadyRunning
	}
	if err := e.cfg.validate(); err != nil {
		return fmt.Errorf("invalid bot config: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(base))
	e.cancelRun = cancel
	e.done = make(chan struct{})
	e.state = StateRunning
	e.startedAt = e.now()
	e.lastQuote = 0
	e.cycles = 0

	e.logger.Info("bot started",
		slog.String("market", e.cfg.Market),
		slog.Float64("spread", e.cfg.SpreadPercentage),
		slog.Float64("order_size", e.cfg.OrderSize))

	go e.run(runCtx, e.done)
	return nil
}

// Stop halts the loop and cancels every tracked order best-effort: a cancel
// failure is logged, and the order is dropped from tracking either way
// because the engine no longer owns it.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateRunning {
		e.mu.Unlock()
		return domain.ErrBotNotRunning
	}
	cancel, done := e.cancelRun, e.done
	e.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelTrackedLocked(ctx)
	e.state = StateStopped
	e.cancelRun = nil
	e.done = nil
	e.logger.Info("bot stopped", slog.String("market", e.cfg.Market))
	return nil
}

// UpdateConfig replaces the quoting parameters. Rejected while the engine
// is running: a live loop never observes a config change mid-cycle.
func (e *Engine) UpdateConfig(cfg Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateRunning {
		return domain.ErrConfigLocked
	}
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("invalid bot config: %w", err)
	}
	e.cfg = cfg
	return nil
}

// Status reports the engine's current state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Status{
		State:          e.state,
		Market:         e.cfg.Market,
		LastQuotePrice: e.lastQuote,
		OpenOrders:     make([]domain.BotOrder, 0, len(e.orders)),
		Cycles:         e.cycles,
	}
	for _, o := range e.orders {
		s.OpenOrders = append(s.OpenOrders, o)
	}
	if e.state == StateRunning {
		started := e.startedAt
		s.StartedAt = &started
	}
	return s
}

// Config returns the current quoting parameters.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

func (e *Engine) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	timer := time.NewTimer(0) // first cycle immediately
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		e.cycle(ctx)
		timer.Reset(e.refreshInterval())
	}
}

func (e *Engine) refreshInterval() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.RefreshInterval
}

// cycle runs one quoting pass: resolve the reference price, decide whether
// the move since the last quote warrants a requote, and if so replace both
// sides.
func (e *Engine) cycle(ctx context.Context) {
	e.mu.Lock()
	cfg := e.cfg
	last := e.lastQuote
	e.cycles++
	e.mu.Unlock()

	price, err := e.resolvePrice(cfg)
	if err != nil {
		e.logger.Warn("skipping cycle", slog.String("market", cfg.Market), slog.Any("error", err))
		return
	}

	// Requote only on a move strictly beyond the threshold; equality skips.
	if last != 0 && math.Abs(price-last)/last <= cfg.PriceMoveThreshold {
		return
	}

	e.requote(ctx, cfg, price)
}

// resolvePrice picks the reference price for the market: the balance's
// mark-price map first, one of our open positions in that market second.
// A price older than PriceStalenessMax is unusable.
func (e *Engine) resolvePrice(cfg Config) (float64, error) {
	snap := e.snapshots.Read()
	now := e.now()

	fresh := func(cat domain.Category) bool {
		age, ok := snap.Age(cat, now)
		if !ok {
			return false
		}
		return cfg.PriceStalenessMax <= 0 || age <= cfg.PriceStalenessMax
	}

	if snap.Balance != nil && fresh(domain.CategoryBalance) {
		if p, ok := snap.Balance.MarkPrices[cfg.Market]; ok && p > 0 {
			return p, nil
		}
	}
	if fresh(domain.CategoryPositions) {
		for _, pos := range snap.Positions {
			if pos.Market == cfg.Market && pos.MarkPrice > 0 {
				return pos.MarkPrice, nil
			}
		}
	}
	return 0, fmt.Errorf("%w: %s", domain.ErrNoPrice, cfg.Market)
}

// requote cancels the previous quotes best-effort, then places a POST_ONLY
// bid and ask around price. A side that fails to place (including a local
// signing failure) is simply not tracked; the next cycle retries. The
// reference price is recorded only when at least one side placed, so a
// fully failed requote does not suppress the retry behind the move
// threshold.
func (e *Engine) requote(ctx context.Context, cfg Config, price float64) {
	e.mu.Lock()
	e.cancelTrackedLocked(ctx)
	e.mu.Unlock()

	bid := price * (1 - cfg.SpreadPercentage)
	ask := price * (1 + cfg.SpreadPercentage)

	placedBid := e.place(ctx, cfg, domain.OrderSideBuy, bid)
	placedAsk := e.place(ctx, cfg, domain.OrderSideSell, ask)
	if !placedBid && !placedAsk {
		return
	}

	e.mu.Lock()
	e.lastQuote = price
	e.mu.Unlock()

	e.logger.Info("requoted",
		slog.String("market", cfg.Market),
		slog.Float64("reference", price),
		slog.Float64("bid", bid),
		slog.Float64("ask", ask))
}

func (e *Engine) place(ctx context.Context, cfg Config, side domain.OrderSide, price float64) bool {
	ack, err := e.client.CreateOrder(ctx, domain.OrderRequest{
		Market:      cfg.Market,
		Side:        side,
		Price:       price,
		Size:        cfg.OrderSize,
		TimeInForce: domain.TimeInForcePostOnly,
	})
	if err != nil {
		e.logger.Error("order placement failed",
			slog.String("market", cfg.Market),
			slog.String("side", string(side)),
			slog.Float64("price", price),
			slog.Any("error", err))
		return false
	}
	e.mu.Lock()
	e.orders[ack.OrderID] = domain.BotOrder{
		ID:       ack.OrderID,
		Market:   cfg.Market,
		Side:     side,
		Price:    price,
		Size:     cfg.OrderSize,
		PlacedAt: e.now(),
	}
	e.mu.Unlock()
	return true
}

// cancelTrackedLocked cancels everything in the tracking map. Caller holds
// e.mu. Orders leave tracking regardless of the cancel outcome.
func (e *Engine) cancelTrackedLocked(ctx context.Context) {
	for id := range e.orders {
		if err := e.client.CancelOrder(ctx, id); err != nil {
			e.logger.Warn("order cancel failed",
				slog.String("order_id", id), slog.Any("error", err))
		}
		delete(e.orders, id)
	}
}

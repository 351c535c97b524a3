// Package feed consumes an external market-data WebSocket stream and
// mirrors mark prices into the configured price cache. The feed is an
// independent enrichment: the quoting loop and the broadcaster keep working
// from polled snapshots when it is down.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quantfell/perpcaster/internal/domain"
)

// Config holds the feed's connection parameters. ExchangeFilter drops
// ticks published for other venues on a shared stream; empty keeps all.
type Config struct {
	URL            string
	ExchangeFilter string
	ReconnectMin   time.Duration
	ReconnectMax   time.Duration
	MaxAttempts    int // 0 means retry forever
}

// tick is one inbound price message. Price arrives as a decimal string.
type tick struct {
	Type      string `json:"type"`
	Exchange  string `json:"exchange"`
	Market    string `json:"market"`
	Price     string `json:"price"`
	Timestamp int64  `json:"timestamp"`
}

// PriceFeed maintains the WebSocket connection and writes every accepted
// tick to the mark-price cache.
type PriceFeed struct {
	cfg    Config
	prices domain.MarkPriceCache
	logger *slog.Logger
}

func NewPriceFeed(cfg Config, prices domain.MarkPriceCache, logger *slog.Logger) *PriceFeed {
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = time.Second
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = 30 * time.Second
	}
	return &PriceFeed{
		cfg:    cfg,
		prices: prices,
		logger: logger.With(slog.String("component", "price_feed")),
	}
}

// Run connects and consumes until ctx is cancelled, reconnecting with
// capped exponential backoff.
func (f *PriceFeed) Run(ctx context.Context) error {
	backoff := f.cfg.ReconnectMin
	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := time.Now()
		err := f.consume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// A connection that outlived the backoff cap counts as healthy:
		// start the retry schedule over instead of reconnecting at the
		// accumulated maximum delay.
		if time.Since(start) >= f.cfg.ReconnectMax {
			backoff = f.cfg.ReconnectMin
			attempts = 0
		}

		attempts++
		if f.cfg.MaxAttempts > 0 && attempts >= f.cfg.MaxAttempts {
			return fmt.Errorf("price feed: giving up after %d attempts: %w", attempts, err)
		}

		f.logger.Warn("feed disconnected, reconnecting",
			slog.Duration("backoff", backoff),
			slog.Int("attempt", attempts),
			slog.Any("error", err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, f.cfg.ReconnectMax)
	}
}

// consume holds one connection open and processes ticks until it breaks.
func (f *PriceFeed) consume(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, f.cfg.URL, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("dial %s: %w", f.cfg.URL, err)
	}
	defer conn.Close()
	f.logger.Info("feed connected", slog.String("url", f.cfg.URL))

	// Unblock ReadMessage when ctx ends.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		f.handle(ctx, raw)
	}
}

func (f *PriceFeed) handle(ctx context.Context, raw []byte) {
	var t tick
	if err := json.Unmarshal(raw, &t); err != nil {
		f.logger.Warn("unparseable feed message", slog.Any("error", err))
		return
	}
	if t.Market == "" || t.Price == "" {
		return
	}
	if f.cfg.ExchangeFilter != "" && t.Exchange != f.cfg.ExchangeFilter {
		return
	}
	price, err := strconv.ParseFloat(t.Price, 64)
	if err != nil || price <= 0 {
		f.logger.Warn("bad feed price",
			slog.String("market", t.Market), slog.String("price", t.Price))
		return
	}

	ts := time.UnixMilli(t.Timestamp)
	if t.Timestamp == 0 {
		ts = time.Now()
	}
	if err := f.prices.SetPrice(ctx, t.Market, price, ts); err != nil {
		f.logger.Warn("price cache write failed",
			slog.String("market", t.Market), slog.Any("error", err))
	}
}

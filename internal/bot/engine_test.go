package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/quantfell/perpcaster/internal/domain"
)

type fakeOrderClient struct {
	mu        sync.Mutex
	createErr error
	created   []domain.OrderRequest
	cancelled []string
	nextID    int
}

func (f *fakeOrderClient) CreateOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return domain.OrderAck{}, f.createErr
	}
	f.nextID++
	f.created = append(f.created, req)
	return domain.OrderAck{OrderID: fmt.Sprintf("ord-%d", f.nextID), Status: "NEW"}, nil
}

func (f *fakeOrderClient) CancelOrder(ctx context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

func (f *fakeOrderClient) snapshot() (created []domain.OrderRequest, cancelled []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.OrderRequest(nil), f.created...), append([]string(nil), f.cancelled...)
}

type fixedSnapshots struct {
	mu   sync.Mutex
	snap domain.Snapshot
}

func (s *fixedSnapshots) Read() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func snapshotWithMarkPrice(market string, price float64, at time.Time) domain.Snapshot {
	return domain.Snapshot{
		Balance: &domain.Balance{Equity: 1000, MarkPrices: map[string]float64{market: price}},
		LastUpdate: map[domain.Category]time.Time{
			domain.CategoryBalance:   at,
			domain.CategoryPositions: at,
		},
	}
}

func testConfig() Config {
	return Config{
		Market:             "BTC-USD",
		SpreadPercentage:   0.001,
		OrderSize:          0.01,
		RefreshInterval:    5 * time.Second,
		PriceMoveThreshold: 0.002,
		PriceStalenessMax:  10 * time.Second,
	}
}

func newTestEngine(client OrderClient, snap SnapshotReader, cfg Config) *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(client, snap, cfg, logger)
}

func TestCycle_QuotesExactSpreadPrices(t *testing.T) {
	now := time.Now()
	client := &fakeOrderClient{}
	snaps := &fixedSnapshots{snap: snapshotWithMarkPrice("BTC-USD", 60000, now)}
	e := newTestEngine(client, snaps, testConfig())

	e.cycle(context.Background())

	created, _ := client.snapshot()
	if len(created) != 2 {
		t.Fatalf("placed %d orders, want 2", len(created))
	}
	bid, ask := created[0], created[1]
	if bid.Side != domain.OrderSideBuy || bid.Price != 59940 {
		t.Errorf("bid = %s @ %v, want BUY @ 59940", bid.Side, bid.Price)
	}
	if ask.Side != domain.OrderSideSell || ask.Price != 60060 {
		t.Errorf("ask = %s @ %v, want SELL @ 60060", ask.Side, ask.Price)
	}
	for _, o := range created {
		if o.TimeInForce != domain.TimeInForcePostOnly {
			t.Errorf("order tif = %s, want POST_ONLY", o.TimeInForce)
		}
		if o.Size != 0.01 {
			t.Errorf("order size = %v, want 0.01", o.Size)
		}
	}
}

// With threshold 0.002: a 0.19% move stays put, a move of exactly 0.2%
// stays put too (the comparison is strict), and 0.21% requotes. 1000→1002
// divides to the same float64 as the 0.002 literal, so the middle case
// hits equality exactly.
func TestCycle_RequoteThreshold(t *testing.T) {
	tests := []struct {
		name        string
		last        float64
		price       float64
		wantRequote bool
	}{
		{"below threshold", 100, 100.19, false},
		{"exactly at threshold", 1000, 1002, false},
		{"above threshold", 100, 100.21, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := time.Now()
			client := &fakeOrderClient{}
			snaps := &fixedSnapshots{snap: snapshotWithMarkPrice("BTC-USD", tt.price, now)}
			e := newTestEngine(client, snaps, testConfig())
			e.lastQuote = tt.last

			e.cycle(context.Background())

			created, _ := client.snapshot()
			if tt.wantRequote && len(created) != 2 {
				t.Errorf("placed %d orders, want requote with 2", len(created))
			}
			if !tt.wantRequote && len(created) != 0 {
				t.Errorf("placed %d orders, want none below threshold", len(created))
			}
		})
	}
}

// A requote where both placements fail must not record the reference
// price, otherwise the engine sits quoteless until the price moves a full
// threshold again.
func TestCycle_RetriesAfterFullyFailedRequote(t *testing.T) {
	now := time.Now()
	client := &fakeOrderClient{createErr: errors.New("exchange down")}
	snaps := &fixedSnapshots{snap: snapshotWithMarkPrice("BTC-USD", 60000, now)}
	e := newTestEngine(client, snaps, testConfig())

	e.cycle(context.Background())
	if created, _ := client.snapshot(); len(created) != 0 {
		t.Fatalf("placed %d orders while the exchange was down", len(created))
	}

	client.mu.Lock()
	client.createErr = nil
	client.mu.Unlock()

	// Same price as the failed cycle: it must still requote.
	e.cycle(context.Background())
	created, _ := client.snapshot()
	if len(created) != 2 {
		t.Fatalf("placed %d orders after recovery at unchanged price, want 2", len(created))
	}
}

func TestCycle_FallsBackToPositionMarkPrice(t *testing.T) {
	now := time.Now()
	client := &fakeOrderClient{}
	snaps := &fixedSnapshots{snap: domain.Snapshot{
		Balance: &domain.Balance{Equity: 1000}, // no mark price map entry
		Positions: []domain.Position{
			{Market: "ETH-USD", Side: "LONG", MarkPrice: 3000},
			{Market: "BTC-USD", Side: "LONG", MarkPrice: 50000},
		},
		LastUpdate: map[domain.Category]time.Time{
			domain.CategoryBalance:   now,
			domain.CategoryPositions: now,
		},
	}}
	e := newTestEngine(client, snaps, testConfig())

	e.cycle(context.Background())

	created, _ := client.snapshot()
	if len(created) != 2 {
		t.Fatalf("placed %d orders, want 2 from position fallback", len(created))
	}
	if created[0].Price != 50000*(1-0.001) {
		t.Errorf("bid = %v, want derived from position mark price 50000", created[0].Price)
	}
}

func TestCycle_SkipsWithoutUsablePrice(t *testing.T) {
	client := &fakeOrderClient{}
	snaps := &fixedSnapshots{snap: domain.Snapshot{LastUpdate: map[domain.Category]time.Time{}}}
	e := newTestEngine(client, snaps, testConfig())

	e.cycle(context.Background())

	created, cancelled := client.snapshot()
	if len(created) != 0 || len(cancelled) != 0 {
		t.Errorf("cycle without price touched the exchange: %d created, %d cancelled", len(created), len(cancelled))
	}
}

func TestCycle_SkipsStalePrice(t *testing.T) {
	stale := time.Now().Add(-time.Minute)
	client := &fakeOrderClient{}
	snaps := &fixedSnapshots{snap: snapshotWithMarkPrice("BTC-USD", 60000, stale)}
	e := newTestEngine(client, snaps, testConfig())

	e.cycle(context.Background())

	if created, _ := client.snapshot(); len(created) != 0 {
		t.Errorf("quoted off a stale price: %d orders", len(created))
	}
}

func TestCycle_SigningFailureLeavesNothingTracked(t *testing.T) {
	now := time.Now()
	client := &fakeOrderClient{createErr: fmt.Errorf("%w: bad key", domain.ErrSigningFailed)}
	snaps := &fixedSnapshots{snap: snapshotWithMarkPrice("BTC-USD", 60000, now)}
	e := newTestEngine(client, snaps, testConfig())

	e.cycle(context.Background())

	if n := len(e.Status().OpenOrders); n != 0 {
		t.Errorf("tracking %d orders after signing failure, want 0", n)
	}
}

func TestRequote_CancelsPreviousQuotes(t *testing.T) {
	now := time.Now()
	client := &fakeOrderClient{}
	snaps := &fixedSnapshots{snap: snapshotWithMarkPrice("BTC-USD", 60000, now)}
	e := newTestEngine(client, snaps, testConfig())

	e.cycle(context.Background())
	snaps.mu.Lock()
	snaps.snap = snapshotWithMarkPrice("BTC-USD", 61000, time.Now())
	snaps.mu.Unlock()
	e.cycle(context.Background())

	created, cancelled := client.snapshot()
	if len(created) != 4 {
		t.Errorf("placed %d orders across two requotes, want 4", len(created))
	}
	if len(cancelled) != 2 {
		t.Errorf("cancelled %d orders before second requote, want 2", len(cancelled))
	}
	if n := len(e.Status().OpenOrders); n != 2 {
		t.Errorf("tracking %d orders, want the 2 live quotes", n)
	}
}

func TestStartStop_Lifecycle(t *testing.T) {
	now := time.Now()
	client := &fakeOrderClient{}
	snaps := &fixedSnapshots{snap: snapshotWithMarkPrice("BTC-USD", 60000, now)}
	cfg := testConfig()
	cfg.RefreshInterval = time.Hour // one cycle only
	e := newTestEngine(client, snaps, cfg)

	if err := e.Stop(context.Background()); !errors.Is(err, domain.ErrBotNotRunning) {
		t.Fatalf("Stop on stopped engine: %v, want ErrBotNotRunning", err)
	}
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := e.Start(context.Background()); !errors.Is(err, domain.ErrBotAlreadyRunning) {
		t.Fatalf("second Start: %v, want ErrBotAlreadyRunning", err)
	}

	// Wait for the immediate first cycle to place both quotes.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if created, _ := client.snapshot(); len(created) == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first cycle never placed quotes")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := e.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	_, cancelled := client.snapshot()
	if len(cancelled) != 2 {
		t.Errorf("stop cancelled %d orders, want 2", len(cancelled))
	}
	status := e.Status()
	if status.State != StateStopped {
		t.Errorf("state = %s, want STOPPED", status.State)
	}
	if len(status.OpenOrders) != 0 {
		t.Errorf("tracking %d orders after stop, want 0", len(status.OpenOrders))
	}
}

func TestUpdateConfig_LockedWhileRunning(t *testing.T) {
	now := time.Now()
	client := &fakeOrderClient{}
	snaps := &fixedSnapshots{snap: snapshotWithMarkPrice("BTC-USD", 60000, now)}
	cfg := testConfig()
	cfg.RefreshInterval = time.Hour
	e := newTestEngine(client, snaps, cfg)

	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer e.Stop(context.Background())

	next := cfg
	next.SpreadPercentage = 0.002
	if err := e.UpdateConfig(next); !errors.Is(err, domain.ErrConfigLocked) {
		t.Fatalf("UpdateConfig while running: %v, want ErrConfigLocked", err)
	}

	if err := e.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := e.UpdateConfig(next); err != nil {
		t.Fatalf("UpdateConfig while stopped: %v", err)
	}
	if got := e.Config().SpreadPercentage; got != 0.002 {
		t.Errorf("spread = %v, want 0.002", got)
	}
}

func TestUpdateConfig_Validation(t *testing.T) {
	e := newTestEngine(&fakeOrderClient{}, &fixedSnapshots{}, testConfig())
	bad := testConfig()
	bad.SpreadPercentage = 0
	if err := e.UpdateConfig(bad); err == nil {
		t.Error("zero spread accepted")
	}
	bad = testConfig()
	bad.OrderSize = -1
	if err := e.UpdateConfig(bad); err == nil {
		t.Error("negative order size accepted")
	}
}

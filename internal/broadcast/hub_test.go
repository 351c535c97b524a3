package broadcast

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quantfell/perpcaster/internal/domain"
)

type staticSnapshots struct {
	snap domain.Snapshot
}

func (s staticSnapshots) Read() domain.Snapshot { return s.snap }

func testSnapshot() domain.Snapshot {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return domain.Snapshot{
		Positions: []domain.Position{{Market: "BTC-USD", Side: "LONG", Size: 0.5, MarkPrice: 60000}},
		Balance:   &domain.Balance{Equity: 1000, AvailableForTrade: 900},
		Trades:    []domain.Trade{},
		Orders:    []domain.OpenOrder{},
		LastUpdate: map[domain.Category]time.Time{
			domain.CategoryPositions: now,
			domain.CategoryBalance:   now,
			domain.CategoryTrades:    now,
			domain.CategoryOrders:    now,
		},
	}
}

// startHub runs a hub and serves it over httptest, returning the ws:// URL.
func startHub(t *testing.T, snap domain.Snapshot) (*Hub, string) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(staticSnapshots{snap: snap}, Config{PingInterval: time.Second, SendBufferSize: 8}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

func TestSubscribe_FirstMessageIsFullSnapshot(t *testing.T) {
	_, url := startHub(t, testSnapshot())
	conn := dial(t, url)

	env := readEnvelope(t, conn)
	if env.Type != TypeSnapshot {
		t.Fatalf("first message type = %q, want %q", env.Type, TypeSnapshot)
	}
	if env.Timestamp == 0 {
		t.Error("snapshot envelope missing timestamp")
	}

	var payload snapshotPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("decode snapshot payload: %v", err)
	}
	if len(payload.Positions) != 1 || payload.Positions[0].Market != "BTC-USD" {
		t.Errorf("snapshot positions = %+v", payload.Positions)
	}
	if payload.Balance == nil || payload.Balance.Equity != 1000 {
		t.Errorf("snapshot balance = %+v", payload.Balance)
	}
	if payload.LastUpdate["positions"] == 0 {
		t.Error("snapshot lastUpdate missing positions entry")
	}
}

func TestPublish_DeliversDiffAfterSnapshot(t *testing.T) {
	hub, url := startHub(t, testSnapshot())
	conn := dial(t, url)
	readEnvelope(t, conn) // snapshot

	hub.Publish(domain.CategoryBalance, &domain.Balance{Equity: 1001})

	env := readEnvelope(t, conn)
	if env.Type != string(domain.CategoryBalance) {
		t.Fatalf("diff type = %q, want balance", env.Type)
	}
	var b domain.Balance
	if err := json.Unmarshal(env.Data, &b); err != nil {
		t.Fatal(err)
	}
	if b.Equity != 1001 {
		t.Errorf("diff equity = %v, want 1001", b.Equity)
	}
}

// A subscriber that joins after some diffs were broadcast gets the current
// snapshot and only diffs published after it joined.
func TestSubscribe_NoDiffReplay(t *testing.T) {
	hub, url := startHub(t, testSnapshot())

	first := dial(t, url)
	readEnvelope(t, first)
	hub.Publish(domain.CategoryBalance, &domain.Balance{Equity: 1001})
	readEnvelope(t, first) // diff consumed by the early subscriber

	late := dial(t, url)
	env := readEnvelope(t, late)
	if env.Type != TypeSnapshot {
		t.Fatalf("late subscriber's first message = %q, want snapshot", env.Type)
	}

	hub.Publish(domain.CategoryOrders, []domain.OpenOrder{{ID: "o1", Market: "BTC-USD"}})
	env = readEnvelope(t, late)
	if env.Type != string(domain.CategoryOrders) {
		t.Fatalf("late subscriber got %q, want orders (not a replayed balance diff)", env.Type)
	}
}

func TestPublish_FansOutToAllSubscribers(t *testing.T) {
	hub, url := startHub(t, testSnapshot())
	a := dial(t, url)
	b := dial(t, url)
	readEnvelope(t, a)
	readEnvelope(t, b)

	hub.Publish(domain.CategoryPositions, []domain.Position{{Market: "ETH-USD", Side: "SHORT", Size: 2}})

	for _, conn := range []*websocket.Conn{a, b} {
		env := readEnvelope(t, conn)
		if env.Type != string(domain.CategoryPositions) {
			t.Errorf("type = %q, want positions", env.Type)
		}
	}
}

func TestStats_TracksClients(t *testing.T) {
	hub, url := startHub(t, testSnapshot())
	conn := dial(t, url)
	readEnvelope(t, conn)

	stats := hub.Stats()
	if stats.ActiveClients != 1 {
		t.Errorf("active clients = %d, want 1", stats.ActiveClients)
	}

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Stats().ActiveClients == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("client count never dropped after disconnect")
}

// runHub starts a hub with the given config and cleans it up with the test.
func runHub(t *testing.T, cfg Config) *Hub {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(staticSnapshots{snap: testSnapshot()}, cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub
}

// The keep-alive must be visible to browser clients, which cannot observe
// protocol-level ping frames: every interval also carries a JSON
// {"type":"ping"} text message.
func TestKeepAlive_SendsJSONPing(t *testing.T) {
	hub := runHub(t, Config{PingInterval: 50 * time.Millisecond, SendBufferSize: 8})
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)
	conn := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))

	env := readEnvelope(t, conn)
	if env.Type != TypeSnapshot {
		t.Fatalf("first message type = %q, want %q", env.Type, TypeSnapshot)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		env = readEnvelope(t, conn)
		if env.Type != TypePing {
			continue
		}
		if env.Timestamp == 0 {
			t.Error("ping envelope missing timestamp")
		}
		if len(env.Data) != 0 {
			t.Errorf("ping envelope carries data: %s", env.Data)
		}
		return
	}
	t.Fatal("no JSON ping message received")
}

// After Run returns, nothing receives on the unregister channel anymore; a
// pump noticing its closed connection must still be able to exit.
func TestReadPump_ExitsAfterHubStops(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(staticSnapshots{snap: testSnapshot()}, Config{PingInterval: time.Second, SendBufferSize: 1}, logger)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	hub.Run(ctx) // returns immediately, releasing the pumps

	serverConns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverConns <- conn
	}))
	t.Cleanup(srv.Close)

	clientConn := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	serverConn := <-serverConns

	c := &client{id: "test", hub: hub, conn: serverConn, send: make(chan []byte, 1)}
	exited := make(chan struct{})
	go func() {
		c.readPump()
		close(exited)
	}()

	clientConn.Close()
	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatal("readPump still blocked after the hub stopped")
	}
}

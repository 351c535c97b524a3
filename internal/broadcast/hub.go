// Package broadcast fans account-state changes out to WebSocket
// subscribers. Every new subscriber receives one full snapshot message
// first, then only the categories that change afterwards. Missed diffs are
// never replayed: the snapshot already contains their effect.
package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/quantfell/perpcaster/internal/domain"
)

const (
	// writeWait bounds a single frame write to a client.
	writeWait = 10 * time.Second

	// maxMessageSize limits inbound frames; subscribers are not expected
	// to send anything beyond control frames.
	maxMessageSize = 1024

	// TypeSnapshot is the envelope type of the initial full-state message.
	// Diff envelopes carry the category name instead.
	TypeSnapshot = "snapshot"

	// TypePing is the envelope type of the periodic keep-alive text
	// message. Browser clients cannot see protocol-level ping frames, so
	// the keep-alive travels as a regular JSON message too.
	TypePing = "ping"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Browser clients connect from dashboard origins we don't control;
		// auth happens at the HTTP layer.
		return true
	},
}

// SnapshotReader supplies the full state sent to new subscribers.
type SnapshotReader interface {
	Read() domain.Snapshot
}

// Config holds the hub's tunables.
type Config struct {
	PingInterval   time.Duration
	SendBufferSize int
}

// envelope is the wire format of every broadcast message. Ping envelopes
// carry no data.
type envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

func pingMessage() []byte {
	msg, _ := json.Marshal(envelope{
		Type:      TypePing,
		Timestamp: time.Now().UnixMilli(),
	})
	return msg
}

// snapshotPayload is the data field of a snapshot envelope. LastUpdate
// carries Unix milliseconds per category.
type snapshotPayload struct {
	Positions  []domain.Position  `json:"positions"`
	Balance    *domain.Balance    `json:"balance"`
	Trades     []domain.Trade     `json:"trades"`
	Orders     []domain.OpenOrder `json:"orders"`
	LastUpdate map[string]int64   `json:"lastUpdate"`
}

// client is one WebSocket subscriber.
type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub manages the subscriber set. Registration, unregistration, and
// broadcasting all flow through one goroutine, which is what guarantees
// the snapshot is queued before any diff for that subscriber.
type Hub struct {
	snapshots SnapshotReader
	cfg       Config
	logger    *slog.Logger

	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{} // closed when Run exits
	mu         sync.RWMutex

	startedAt time.Time
	sent      atomic.Uint64
	dropped   atomic.Uint64
}

func NewHub(snapshots SnapshotReader, cfg Config, logger *slog.Logger) *Hub {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = 256
	}
	return &Hub{
		snapshots:  snapshots,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "broadcast")),
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		startedAt:  time.Now().UTC(),
	}
}

// Publish serializes a changed category once and fans it out to every
// subscriber. It implements the poller's Publisher.
func (h *Hub) Publish(category domain.Category, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("encode category payload failed",
			slog.String("category", string(category)), slog.Any("error", err))
		return
	}
	msg, err := json.Marshal(envelope{
		Type:      string(category),
		Data:      raw,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return
	}
	h.broadcast <- msg
}

// Run is the hub's event loop. It returns when ctx is cancelled, closing
// every subscriber.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			// Closing done first unblocks any pump stuck on register or
			// unregister once this loop stops receiving.
			close(h.done)
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			// Queue the snapshot before the subscriber becomes eligible
			// for diffs: its first received message is always full state.
			if msg, err := h.snapshotMessage(); err == nil {
				c.send <- msg
			} else {
				h.logger.Error("encode snapshot failed", slog.Any("error", err))
			}
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("subscriber connected",
				slog.String("client_id", c.id),
				slog.Int("total_clients", h.clientCount()))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("subscriber disconnected",
				slog.String("client_id", c.id),
				slog.Int("total_clients", h.clientCount()))

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- msg:
					h.sent.Add(1)
				default:
					// Slow subscriber: drop rather than stall the fan-out.
					h.dropped.Add(1)
					h.logger.Warn("dropping message for slow subscriber",
						slog.String("client_id", c.id))
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) snapshotMessage() ([]byte, error) {
	snap := h.snapshots.Read()
	lastUpdate := make(map[string]int64, len(snap.LastUpdate))
	for cat, ts := range snap.LastUpdate {
		lastUpdate[string(cat)] = ts.UnixMilli()
	}
	raw, err := json.Marshal(snapshotPayload{
		Positions:  snap.Positions,
		Balance:    snap.Balance,
		Trades:     snap.Trades,
		Orders:     snap.Orders,
		LastUpdate: lastUpdate,
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{
		Type:      TypeSnapshot,
		Data:      raw,
		Timestamp: time.Now().UnixMilli(),
	})
}

// HandleWS upgrades the request and registers the subscriber.
// GET /ws/broadcast
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.Any("error", err))
		return
	}

	c := &client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, h.cfg.SendBufferSize),
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// Stats is the hub's operational summary exposed over HTTP.
type Stats struct {
	ActiveClients   int    `json:"activeClients"`
	MessagesSent    uint64 `json:"messagesSent"`
	MessagesDropped uint64 `json:"messagesDropped"`
	UptimeSeconds   int64  `json:"uptimeSeconds"`
}

func (h *Hub) Stats() Stats {
	return Stats{
		ActiveClients:   h.clientCount(),
		MessagesSent:    h.sent.Load(),
		MessagesDropped: h.dropped.Load(),
		UptimeSeconds:   int64(time.Since(h.startedAt).Seconds()),
	}
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// readPump drains inbound frames so control frames get processed and a
// closing client is noticed promptly. Subscribers have nothing to say;
// data frames are discarded.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	pongWait := 2 * c.hub.cfg.PingInterval
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close",
					slog.String("client_id", c.id), slog.Any("error", err))
			}
			return
		}
	}
}

// writePump sends queued messages and periodic pings to the subscriber.
func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			// Keep-alive goes out both as a JSON message, which browser
			// clients observe, and as a protocol ping frame, which drives
			// the pong-based read deadline.
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, pingMessage()); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

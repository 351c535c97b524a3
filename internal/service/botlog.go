package service

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// botLogCapacity bounds the in-memory log; older entries fall off.
const botLogCapacity = 500

// BotLogEntry is one captured log record.
type BotLogEntry struct {
	Time    time.Time         `json:"time"`
	Level   string            `json:"level"`
	Message string            `json:"message"`
	Attrs   map[string]string `json:"attrs,omitempty"`
}

// BotLog is a fixed-size ring of the engine's recent log records, served
// over the bot API so operators see activity without shell access. It
// doubles as a slog.Handler: wrap the engine's logger with Handler().
type BotLog struct {
	mu      sync.RWMutex
	entries []BotLogEntry
	next    int
	full    bool
}

func NewBotLog() *BotLog {
	return &BotLog{entries: make([]BotLogEntry, botLogCapacity)}
}

// Append records one entry, evicting the oldest when full.
func (l *BotLog) Append(entry BotLogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[l.next] = entry
	l.next = (l.next + 1) % len(l.entries)
	if l.next == 0 {
		l.full = true
	}
}

// Clear discards all retained entries.
func (l *BotLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next = 0
	l.full = false
}

// Recent returns up to limit entries, newest first. limit <= 0 returns
// everything retained.
func (l *BotLog) Recent(limit int) []BotLogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	size := l.next
	if l.full {
		size = len(l.entries)
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	out := make([]BotLogEntry, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (l.next - i + len(l.entries)) % len(l.entries)
		out = append(out, l.entries[idx])
	}
	return out
}

// Handler returns a slog.Handler that tees records into the ring while
// delegating to next for normal output.
func (l *BotLog) Handler(next slog.Handler) slog.Handler {
	return &botLogHandler{log: l, next: next}
}

type botLogHandler struct {
	log   *BotLog
	next  slog.Handler
	attrs []slog.Attr
}

func (h *botLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *botLogHandler) Handle(ctx context.Context, record slog.Record) error {
	attrs := make(map[string]string, record.NumAttrs()+len(h.attrs))
	for _, a := range h.attrs {
		attrs[a.Key] = a.Value.String()
	}
	record.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.String()
		return true
	})
	h.log.Append(BotLogEntry{
		Time:    record.Time,
		Level:   record.Level.String(),
		Message: record.Message,
		Attrs:   attrs,
	})
	return h.next.Handle(ctx, record)
}

func (h *botLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &botLogHandler{log: h.log, next: h.next.WithAttrs(attrs), attrs: merged}
}

func (h *botLogHandler) WithGroup(name string) slog.Handler {
	return &botLogHandler{log: h.log, next: h.next.WithGroup(name), attrs: h.attrs}
}

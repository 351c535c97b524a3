package service

import (
	"errors"
	"testing"
	"time"

	"github.com/quantfell/perpcaster/internal/cache"
	"github.com/quantfell/perpcaster/internal/domain"
)

func populatedCache(t *testing.T) *cache.SnapshotCache {
	t.Helper()
	c := cache.NewSnapshotCache()
	c.ApplyPositions([]domain.Position{{Market: "BTC-USD", Side: "LONG", Size: 1, MarkPrice: 60000}})
	c.ApplyBalance(&domain.Balance{Equity: 1000})
	c.ApplyTrades([]domain.Trade{})
	c.ApplyOrders([]domain.OpenOrder{})
	return c
}

func TestCachedAccount_NotInitialized(t *testing.T) {
	c := cache.NewSnapshotCache()
	c.ApplyBalance(&domain.Balance{Equity: 1}) // partial: three categories missing
	svc := NewAccountService(c)

	if _, err := svc.CachedAccount(); !errors.Is(err, domain.ErrNotInitialized) {
		t.Fatalf("err = %v, want ErrNotInitialized", err)
	}
	if _, err := svc.Positions(); !errors.Is(err, domain.ErrNotInitialized) {
		t.Fatalf("Positions err = %v, want ErrNotInitialized", err)
	}
}

func TestCachedAccount_ReportsAges(t *testing.T) {
	c := populatedCache(t)
	svc := NewAccountService(c)

	got, err := svc.CachedAccount()
	if err != nil {
		t.Fatalf("CachedAccount: %v", err)
	}
	if len(got.Positions) != 1 || got.Balance == nil {
		t.Errorf("incomplete account view: %+v", got)
	}
	for _, cat := range domain.Categories {
		if _, ok := got.CacheAgeMs[string(cat)]; !ok {
			t.Errorf("missing cache age for %s", cat)
		}
	}
}

// Repeated reads with no poll in between return identical data.
func TestReads_Idempotent(t *testing.T) {
	svc := NewAccountService(populatedCache(t))

	a, err := svc.CachedAccount()
	if err != nil {
		t.Fatal(err)
	}
	b, err := svc.CachedAccount()
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Positions) != len(b.Positions) || a.Balance.Equity != b.Balance.Equity {
		t.Errorf("consecutive reads differ: %+v vs %+v", a, b)
	}
}

func TestBotLog_NewestFirst(t *testing.T) {
	l := NewBotLog()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		l.Append(BotLogEntry{Time: base.Add(time.Duration(i) * time.Second), Message: string(rune('a' + i))})
	}

	got := l.Recent(0)
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3", len(got))
	}
	if got[0].Message != "c" || got[2].Message != "a" {
		t.Errorf("entries not newest-first: %+v", got)
	}

	if got := l.Recent(2); len(got) != 2 || got[0].Message != "c" {
		t.Errorf("limited read = %+v", got)
	}
}

func TestBotLog_EvictsOldest(t *testing.T) {
	l := NewBotLog()
	for i := 0; i < botLogCapacity+10; i++ {
		l.Append(BotLogEntry{Message: "entry", Level: "INFO"})
	}
	if got := l.Recent(0); len(got) != botLogCapacity {
		t.Errorf("retained %d entries, want %d", len(got), botLogCapacity)
	}
}

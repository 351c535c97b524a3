// Package service exposes read models over the snapshot cache and collects
// the bot's operational log.
package service

import (
	"time"

	"github.com/quantfell/perpcaster/internal/cache"
	"github.com/quantfell/perpcaster/internal/domain"
)

// CachedAccount is the full account view served from memory, with per
// category staleness in milliseconds.
type CachedAccount struct {
	Positions  []domain.Position  `json:"positions"`
	Balance    *domain.Balance    `json:"balance"`
	Trades     []domain.Trade     `json:"trades"`
	Orders     []domain.OpenOrder `json:"orders"`
	CacheAgeMs map[string]int64   `json:"cacheAgeMs"`
}

// AccountService serves account reads without touching the exchange.
type AccountService struct {
	cache *cache.SnapshotCache
	now   func() time.Time
}

func NewAccountService(snap *cache.SnapshotCache) *AccountService {
	return &AccountService{cache: snap, now: time.Now}
}

// CachedAccount returns the full snapshot. Before the poller has committed
// every category once it returns domain.ErrNotInitialized: serving a
// partial snapshot as if it were the account state would be misleading.
func (s *AccountService) CachedAccount() (CachedAccount, error) {
	if !s.cache.Initialized() {
		return CachedAccount{}, domain.ErrNotInitialized
	}
	snap := s.cache.Read()
	now := s.now()
	ages := make(map[string]int64, len(domain.Categories))
	for _, cat := range domain.Categories {
		if age, ok := snap.Age(cat, now); ok {
			ages[string(cat)] = age.Milliseconds()
		}
	}
	return CachedAccount{
		Positions:  snap.Positions,
		Balance:    snap.Balance,
		Trades:     snap.Trades,
		Orders:     snap.Orders,
		CacheAgeMs: ages,
	}, nil
}

// Positions returns the cached positions.
func (s *AccountService) Positions() ([]domain.Position, error) {
	if !s.cache.Initialized() {
		return nil, domain.ErrNotInitialized
	}
	return s.cache.Read().Positions, nil
}

// Balance returns the cached balance.
func (s *AccountService) Balance() (*domain.Balance, error) {
	if !s.cache.Initialized() {
		return nil, domain.ErrNotInitialized
	}
	return s.cache.Read().Balance, nil
}

// Trades returns the cached trade history.
func (s *AccountService) Trades() ([]domain.Trade, error) {
	if !s.cache.Initialized() {
		return nil, domain.ErrNotInitialized
	}
	return s.cache.Read().Trades, nil
}

// OpenOrders returns the cached open orders.
func (s *AccountService) OpenOrders() ([]domain.OpenOrder, error) {
	if !s.cache.Initialized() {
		return nil, domain.ErrNotInitialized
	}
	return s.cache.Read().Orders, nil
}

package domain

import "time"

// Category names one slice of the account snapshot. Each category is
// polled, change-detected, cached, and broadcast independently.
type Category string

const (
	CategoryPositions Category = "positions"
	CategoryBalance   Category = "balance"
	CategoryTrades    Category = "trades"
	CategoryOrders    Category = "orders"
)

// Categories lists every category in a stable order.
var Categories = []Category{CategoryPositions, CategoryBalance, CategoryTrades, CategoryOrders}

// Snapshot is a read-only copy of the latest known account state. A nil
// Balance means the category has not been fetched successfully yet, which
// is distinct from an empty value.
type Snapshot struct {
	Positions []Position
	Balance   *Balance
	Trades    []Trade
	Orders    []OpenOrder

	// Fetched records, per category, whether at least one poll succeeded
	// since startup, independent of whether any poll changed the value.
	// A first fetch can decode to nil (exchange sends "data": null) and
	// still counts.
	Fetched map[Category]bool

	// LastUpdate holds, per category, the time of the last poll that
	// actually changed the category's value. Zero until the first change.
	LastUpdate map[Category]time.Time
}

// Initialized reports whether every category has been fetched at least
// once since startup.
func (s Snapshot) Initialized() bool {
	for _, c := range Categories {
		if !s.Fetched[c] {
			return false
		}
	}
	return true
}

// Age returns how long ago the category last changed, or ok=false when the
// category has never been populated.
func (s Snapshot) Age(c Category, now time.Time) (time.Duration, bool) {
	ts := s.LastUpdate[c]
	if ts.IsZero() {
		return 0, false
	}
	return now.Sub(ts), true
}

package cache

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/quantfell/perpcaster/internal/domain"
)

// Change detection compares canonical serializations of the decoded values,
// so the key order of the exchange's JSON never registers as a change. A
// nil value becoming non-nil always counts as a change, including the first
// fetch of an empty category: nil and empty serialize differently.

func positionsChanged(old, new []domain.Position) bool {
	return canonicalChanged(sortedPositions(old), sortedPositions(new))
}

func balanceChanged(old, new *domain.Balance) bool {
	if (old == nil) != (new == nil) {
		return true
	}
	return canonicalChanged(old, new)
}

// Trades and orders are compared in exchange order: the exchange returns
// them newest-first and a reordering is itself a visible change.

func tradesChanged(old, new []domain.Trade) bool {
	return canonicalChanged(old, new)
}

func ordersChanged(old, new []domain.OpenOrder) bool {
	return canonicalChanged(old, new)
}

// sortedPositions returns a copy keyed by market so that the exchange
// reordering its positions list does not register as a change.
func sortedPositions(in []domain.Position) []domain.Position {
	if in == nil {
		return nil
	}
	out := make([]domain.Position, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool { return out[i].Market < out[j].Market })
	return out
}

func canonicalChanged(old, new any) bool {
	a, errA := json.Marshal(old)
	b, errB := json.Marshal(new)
	if errA != nil || errB != nil {
		// Domain values always marshal; treat the impossible as a change
		// so the cache never silently drops an update.
		return true
	}
	return !bytes.Equal(a, b)
}

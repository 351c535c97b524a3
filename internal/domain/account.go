package domain

// PositionSide is the direction of an open perpetual position.
type PositionSide string

const (
	PositionSideLong  PositionSide = "LONG"
	PositionSideShort PositionSide = "SHORT"
)

// PositionStatus tracks whether a position is open or closed.
type PositionStatus string

const (
	PositionStatusOpened PositionStatus = "OPENED"
	PositionStatusClosed PositionStatus = "CLOSED"
)

// Position mirrors an exchange-reported perpetual position. Timestamps are
// Unix milliseconds as reported on the wire. A position absent from the
// latest poll response is considered closed and dropped from the snapshot.
type Position struct {
	Market           string         `json:"market"`
	Side             PositionSide   `json:"side"`
	Size             float64        `json:"size"`
	OpenPrice        float64        `json:"openPrice"`
	MarkPrice        float64        `json:"markPrice"`
	LiquidationPrice float64        `json:"liquidationPrice"`
	UnrealisedPnl    float64        `json:"unrealisedPnl"`
	RealisedPnl      float64        `json:"realisedPnl"`
	Margin           float64        `json:"margin"`
	Leverage         float64        `json:"leverage"`
	Status           PositionStatus `json:"status"`
	CreatedAt        int64          `json:"createdAt"`
	UpdatedAt        int64          `json:"updatedAt"`
}

// Balance mirrors the exchange-reported account balance. It is replaced
// wholesale on every balance poll, never merged field-by-field. MarkPrices
// is refreshed on every poll cycle and is the preferred mark-price source.
type Balance struct {
	Equity                 float64            `json:"equity"`
	Collateral             float64            `json:"collateral"`
	UnrealisedPnl          float64            `json:"unrealisedPnl"`
	AvailableForTrade      float64            `json:"availableForTrade"`
	AvailableForWithdrawal float64            `json:"availableForWithdrawal"`
	MarginRatio            float64            `json:"marginRatio"`
	Leverage               float64            `json:"leverage"`
	Exposure               float64            `json:"exposure"`
	MarkPrices             map[string]float64 `json:"markPrices"`
}

// Trade is an immutable historical fill reported by the exchange,
// most-recent-first in the snapshot's trade list.
type Trade struct {
	ID          int64     `json:"id"`
	Market      string    `json:"market"`
	Side        OrderSide `json:"side"`
	Price       float64   `json:"price"`
	Qty         float64   `json:"qty"`
	Value       float64   `json:"value"`
	Fee         float64   `json:"fee"`
	CreatedTime int64     `json:"createdTime"`
	IsTaker     bool      `json:"isTaker"`
}

// OpenOrder is a resting order as listed by the exchange's open-orders
// endpoint. Distinct from BotOrder, which is the engine's own bookkeeping.
type OpenOrder struct {
	ID          string      `json:"id"`
	Market      string      `json:"market"`
	Side        OrderSide   `json:"side"`
	Price       float64     `json:"price"`
	Qty         float64     `json:"qty"`
	Status      string      `json:"status"`
	TimeInForce TimeInForce `json:"timeInForce"`
	ReduceOnly  bool        `json:"reduceOnly"`
	CreatedTime int64       `json:"createdTime"`
}

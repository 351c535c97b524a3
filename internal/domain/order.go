package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// TimeInForce is the order's time-in-force policy. POST_ONLY guarantees
// maker-only execution: the exchange cancels the order instead of letting
// it take liquidity.
type TimeInForce string

const (
	TimeInForceGTC      TimeInForce = "GTC"
	TimeInForceIOC      TimeInForce = "IOC"
	TimeInForceFOK      TimeInForce = "FOK"
	TimeInForcePostOnly TimeInForce = "POST_ONLY"
)

// ValidTimeInForce reports whether tif is one of the supported policies.
func ValidTimeInForce(tif TimeInForce) bool {
	switch tif {
	case TimeInForceGTC, TimeInForceIOC, TimeInForceFOK, TimeInForcePostOnly:
		return true
	}
	return false
}

// OrderRequest is a new limit order to be signed and submitted. ReduceOnly
// orders are rejected by the exchange if they would increase position
// magnitude.
type OrderRequest struct {
	Market      string      `json:"market"`
	Side        OrderSide   `json:"side"`
	Price       float64     `json:"price"`
	Size        float64     `json:"size"`
	TimeInForce TimeInForce `json:"timeInForce"`
	ReduceOnly  bool        `json:"reduceOnly"`
}

// OrderAck is the exchange's acknowledgement of an accepted order.
type OrderAck struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

// BotOrder is the market-making engine's own record of a resting quote.
// Created on successful placement, removed on confirmed cancellation or on
// engine stop.
type BotOrder struct {
	ID       string
	Market   string
	Side     OrderSide
	Price    float64
	Size     float64
	PlacedAt time.Time
}

package exchange

import (
	"encoding/json"

	"github.com/quantfell/perpcaster/internal/crypto"
	"github.com/quantfell/perpcaster/internal/domain"
)

// envelope is the exchange's standard response wrapper.
type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *apiError       `json:"error,omitempty"`
}

// apiError carries a structured rejection reason from the exchange.
type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// createOrderRequest is the wire form of a signed order submission. Price
// and size travel as decimal strings to preserve precision.
type createOrderRequest struct {
	Market      string             `json:"market"`
	Side        domain.OrderSide   `json:"side"`
	Type        string             `json:"type"`
	Price       string             `json:"price"`
	Size        string             `json:"size"`
	TimeInForce domain.TimeInForce `json:"timeInForce"`
	ReduceOnly  bool               `json:"reduceOnly"`
	Nonce       int64              `json:"nonce"`
	ClientID    string             `json:"clientId"`
	PublicKey   string             `json:"publicKey"`
	Signature   crypto.Signature   `json:"signature"`
}

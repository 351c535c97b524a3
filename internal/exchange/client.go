// Package exchange implements the REST client for the perpetual futures
// exchange: account reads used by the poller and signed order mutations
// used by the market-making engine.
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/quantfell/perpcaster/internal/crypto"
	"github.com/quantfell/perpcaster/internal/domain"
)

// OrderSigner produces a verified signature for an order payload. A failure
// here must abort the submission before any network I/O happens.
type OrderSigner interface {
	SignOrder(o crypto.OrderPayload) (crypto.Signature, error)
	PublicKeyHex() string
}

// Config holds the client's connection and signing parameters.
type Config struct {
	BaseURL  string
	APIKey   string
	Signer   OrderSigner
	VaultID  int64
	ClientID string
}

// Client talks to the exchange REST API. All methods honour context
// cancellation; callers bound each call with their own deadline.
type Client struct {
	baseURL  string
	apiKey   string
	signer   OrderSigner
	vaultID  int64
	clientID string
	http     *http.Client
	logger   *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		signer:   cfg.Signer,
		vaultID:  cfg.VaultID,
		clientID: cfg.ClientID,
		http:     &http.Client{Timeout: 30 * time.Second},
		logger:   logger.With(slog.String("component", "exchange")),
	}
}

// Positions returns all open positions on the account.
func (c *Client) Positions(ctx context.Context) ([]domain.Position, error) {
	var out []domain.Position
	if err := c.get(ctx, "/api/v1/user/positions", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Balance returns the account balance, including per-market mark prices.
func (c *Client) Balance(ctx context.Context) (*domain.Balance, error) {
	var out domain.Balance
	if err := c.get(ctx, "/api/v1/user/balance", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Trades returns the account's recent fills.
func (c *Client) Trades(ctx context.Context) ([]domain.Trade, error) {
	var out []domain.Trade
	if err := c.get(ctx, "/api/v1/user/trades", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// OpenOrders returns the account's resting orders.
func (c *Client) OpenOrders(ctx context.Context) ([]domain.OpenOrder, error) {
	var out []domain.OpenOrder
	if err := c.get(ctx, "/api/v1/user/orders", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateOrder signs and submits an order. Signing happens first and any
// signing failure returns domain.ErrSigningFailed without touching the
// network: an unverifiable order must never reach the exchange.
func (c *Client) CreateOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderAck, error) {
	if req.Side != domain.OrderSideBuy && req.Side != domain.OrderSideSell {
		return domain.OrderAck{}, fmt.Errorf("invalid order side %q", req.Side)
	}
	if !domain.ValidTimeInForce(req.TimeInForce) {
		return domain.OrderAck{}, fmt.Errorf("invalid time in force %q", req.TimeInForce)
	}
	if c.signer == nil {
		return domain.OrderAck{}, fmt.Errorf("%w: no signing key configured", domain.ErrSigningFailed)
	}

	nonce := time.Now().UnixMilli()
	sig, err := c.signer.SignOrder(crypto.OrderPayload{
		Market:      req.Market,
		Side:        string(req.Side),
		Price:       req.Price,
		Size:        req.Size,
		Nonce:       nonce,
		TimeInForce: string(req.TimeInForce),
		ReduceOnly:  req.ReduceOnly,
		VaultID:     c.vaultID,
	})
	if err != nil {
		return domain.OrderAck{}, fmt.Errorf("%w: %v", domain.ErrSigningFailed, err)
	}

	body := createOrderRequest{
		Market:      req.Market,
		Side:        req.Side,
		Type:        "LIMIT",
		Price:       formatDecimal(req.Price),
		Size:        formatDecimal(req.Size),
		TimeInForce: req.TimeInForce,
		ReduceOnly:  req.ReduceOnly,
		Nonce:       nonce,
		ClientID:    c.clientID,
		PublicKey:   c.signer.PublicKeyHex(),
		Signature:   sig,
	}

	var ack domain.OrderAck
	if err := c.do(ctx, http.MethodPost, "/api/v1/user/order", body, &ack); err != nil {
		return domain.OrderAck{}, err
	}
	c.logger.Info("order placed",
		slog.String("order_id", ack.OrderID),
		slog.String("market", req.Market),
		slog.String("side", string(req.Side)),
		slog.Float64("price", req.Price),
		slog.Float64("size", req.Size))
	return ack, nil
}

// CancelOrder cancels a resting order by exchange ID. Cancelling an order
// the exchange no longer knows returns domain.ErrNotFound.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	err := c.do(ctx, http.MethodDelete, "/api/v1/user/order/"+orderID, nil, nil)
	var rej *domain.RejectedError
	if errors.As(err, &rej) && rej.Status == http.StatusNotFound {
		return fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}
	return err
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", domain.ErrExchangeUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", domain.ErrExchangeUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &domain.RejectedError{Status: resp.StatusCode, Body: rejectionBody(raw)}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &domain.RejectedError{Status: resp.StatusCode, Body: "malformed response body"}
	}
	if env.Error != nil {
		return &domain.RejectedError{Status: resp.StatusCode, Body: env.Error.Message}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &domain.RejectedError{Status: resp.StatusCode, Body: "malformed response data"}
	}
	return nil
}

// rejectionBody extracts the exchange's error message when the body parses,
// falling back to the raw text truncated to a loggable size.
func rejectionBody(raw []byte) string {
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Error != nil {
		return env.Error.Message
	}
	const max = 512
	if len(raw) > max {
		raw = raw[:max]
	}
	return string(raw)
}

func formatDecimal(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

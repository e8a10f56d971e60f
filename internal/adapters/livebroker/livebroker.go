// Package livebroker implements the live.Broker port against a real
// exchange's REST order-entry API, signing every request with a
// short-lived HMAC JWT so the API secret never crosses the wire.
package livebroker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/autovant/tradingcore/internal/coreerrors"
	"github.com/autovant/tradingcore/internal/domain"
	"github.com/autovant/tradingcore/internal/live"
)

// Config carries exchange REST endpoint and signing credentials.
type Config struct {
	BaseURL   string
	APIKey    string
	APISecret string
	TokenTTL  time.Duration
}

// requestClaims is the short-lived signed claim set attached to every
// order-entry request, proving the caller holds APISecret without
// transmitting it on the wire.
type requestClaims struct {
	jwt.RegisteredClaims
	APIKey string `json:"api_key"`
	Nonce  string `json:"nonce"`
}

// Broker is a live.Broker implementation that submits real orders over
// HTTP. It holds no local order book; GetOrderStatus/GetOpenOrders always
// round-trip to the exchange.
type Broker struct {
	cfg    Config
	client *http.Client
	logger zerolog.Logger

	fillCB  live.FillCallback
	orderCB live.OrderUpdateCallback
}

// New constructs a Broker bound to one exchange account.
func New(cfg Config, logger zerolog.Logger) *Broker {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 30 * time.Second
	}
	return &Broker{cfg: cfg, client: &http.Client{Timeout: 10 * time.Second}, logger: logger}
}

func (b *Broker) OnFill(cb live.FillCallback)               { b.fillCB = cb }
func (b *Broker) OnOrderUpdate(cb live.OrderUpdateCallback) { b.orderCB = cb }

// Connect verifies the signed-request path works by probing the account
// balance endpoint.
func (b *Broker) Connect(ctx context.Context) error {
	_, err := b.GetAccountBalance(ctx)
	return err
}

func (b *Broker) Disconnect(ctx context.Context) error { return nil }

func (b *Broker) signedToken() (string, error) {
	now := time.Now().UTC()
	claims := requestClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(b.cfg.TokenTTL)),
		},
		APIKey: b.cfg.APIKey,
		Nonce:  uuid.NewString(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(b.cfg.APISecret))
}

func (b *Broker) do(ctx context.Context, method, path string, body any, out any) error {
	token, err := b.signedToken()
	if err != nil {
		return coreerrors.Order("sign broker request", err)
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return coreerrors.Order("marshal broker request body", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.cfg.BaseURL+path, reader)
	if err != nil {
		return coreerrors.Order("build broker request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return coreerrors.Order(fmt.Sprintf("broker request %s %s", method, path), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(resp.Body)
		return coreerrors.Order(fmt.Sprintf("broker request %s %s returned %d: %s", method, path, resp.StatusCode, payload), nil)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type orderRequest struct {
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`
	Type      string `json:"type"`
	Quantity  string `json:"quantity"`
	Price     string `json:"price,omitempty"`
	StopPrice string `json:"stop_price,omitempty"`
}

type orderResponse struct {
	ExternalID     string `json:"order_id"`
	Status         string `json:"status"`
	FilledQuantity string `json:"filled_quantity"`
	AvgFillPrice   string `json:"avg_fill_price"`
}

func (b *Broker) SubmitOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	if err := order.Validate(); err != nil {
		return order, coreerrors.Order("invalid order submitted to live broker", err)
	}

	req := orderRequest{
		Symbol:   order.Symbol,
		Side:     string(order.Side),
		Type:     string(order.Type),
		Quantity: order.Quantity.String(),
	}
	if order.Price != nil {
		req.Price = order.Price.String()
	}
	if order.StopPrice != nil {
		req.StopPrice = order.StopPrice.String()
	}

	var resp orderResponse
	if err := b.do(ctx, http.MethodPost, "/v1/orders", req, &resp); err != nil {
		order.Status = domain.OrderRejected
		order.ErrorMessage = err.Error()
		return order, err
	}

	order.ExternalID = resp.ExternalID
	order.Status = parseOrderStatus(resp.Status)
	now := time.Now().UTC()
	order.SubmittedAt = &now
	if filled, err := decimal.NewFromString(resp.FilledQuantity); err == nil {
		order.FilledQuantity = filled
	}
	return order, nil
}

func (b *Broker) CancelOrder(ctx context.Context, orderID string) error {
	return b.do(ctx, http.MethodDelete, "/v1/orders/"+orderID, nil, nil)
}

func (b *Broker) GetOrderStatus(ctx context.Context, orderID string) (domain.Order, error) {
	var resp orderResponse
	if err := b.do(ctx, http.MethodGet, "/v1/orders/"+orderID, nil, &resp); err != nil {
		return domain.Order{}, err
	}
	order := domain.Order{ExternalID: resp.ExternalID, Status: parseOrderStatus(resp.Status)}
	if filled, err := decimal.NewFromString(resp.FilledQuantity); err == nil {
		order.FilledQuantity = filled
	}
	return order, nil
}

func (b *Broker) GetOpenOrders(ctx context.Context, symbol string) ([]domain.Order, error) {
	path := "/v1/orders/open"
	if symbol != "" {
		path += "?symbol=" + symbol
	}
	var resp []orderResponse
	if err := b.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(resp))
	for _, r := range resp {
		order := domain.Order{ExternalID: r.ExternalID, Status: parseOrderStatus(r.Status)}
		if filled, err := decimal.NewFromString(r.FilledQuantity); err == nil {
			order.FilledQuantity = filled
		}
		orders = append(orders, order)
	}
	return orders, nil
}

type balanceResponse struct {
	Balance       string `json:"balance"`
	Equity        string `json:"equity"`
	UnrealizedPnL string `json:"unrealized_pnl"`
}

func (b *Broker) GetAccountBalance(ctx context.Context) (domain.AccountSnapshot, error) {
	var resp balanceResponse
	if err := b.do(ctx, http.MethodGet, "/v1/account", nil, &resp); err != nil {
		return domain.AccountSnapshot{}, err
	}
	snapshot := domain.AccountSnapshot{Timestamp: time.Now().UTC()}
	if v, err := decimal.NewFromString(resp.Balance); err == nil {
		snapshot.Balance = v
	}
	if v, err := decimal.NewFromString(resp.Equity); err == nil {
		snapshot.Equity = v
	}
	if v, err := decimal.NewFromString(resp.UnrealizedPnL); err == nil {
		snapshot.UnrealizedPnL = v
	}
	return snapshot, nil
}

func parseOrderStatus(raw string) domain.OrderStatus {
	switch raw {
	case "filled":
		return domain.OrderFilled
	case "partially_filled":
		return domain.OrderPartial
	case "cancelled", "canceled":
		return domain.OrderCancelled
	case "rejected":
		return domain.OrderRejected
	case "open", "new", "accepted":
		return domain.OrderSubmitted
	default:
		return domain.OrderPending
	}
}

var _ live.Broker = (*Broker)(nil)

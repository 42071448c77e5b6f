// Package exchange provides the HTTP client for the upstream trading backend.
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/tradedesk/internal/clientdata"
	"github.com/aristath/tradedesk/internal/domain"
)

// Client talks to the exchange backend REST API.
// cacheRepo is optional - if nil, response caching is disabled.
type Client struct {
	baseURL   string
	client    *http.Client
	log       zerolog.Logger
	cacheRepo *clientdata.Repository
}

// NewClient creates a new exchange API client
func NewClient(baseURL string, cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	return &Client{
		baseURL:   baseURL,
		client:    &http.Client{Timeout: 10 * time.Second},
		log:       log.With().Str("client", "exchange").Logger(),
		cacheRepo: cacheRepo,
	}
}

// apiEnvelope is the response wrapper the backend puts around every payload
type apiEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// priceResponse matches the backend's price payload
type priceResponse struct {
	Symbol    string          `json:"symbol"`
	BidPrice  decimal.Decimal `json:"bidPrice"`
	AskPrice  decimal.Decimal `json:"askPrice"`
	Timestamp string          `json:"timestamp"`
}

// walletResponse matches the backend's wallet payload
type walletResponse struct {
	Currency         string          `json:"currency"`
	Balance          decimal.Decimal `json:"balance"`
	AvailableBalance decimal.Decimal `json:"availableBalance"`
}

// tradeResponse matches the backend's trade payload
type tradeResponse struct {
	ID          int64           `json:"id"`
	Symbol      string          `json:"symbol"`
	Type        string          `json:"type"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Timestamp   string          `json:"timestamp"`
	Status      string          `json:"status"`
}

// loginRequest is the authentication payload
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// identityResponse matches the backend's login payload
type identityResponse struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
}

// tradeRequest is the order submission payload
type tradeRequest struct {
	Symbol   string          `json:"symbol"`
	Type     string          `json:"type"`
	Quantity decimal.Decimal `json:"quantity"`
}

// Authenticate verifies credentials against the backend login endpoint
func (c *Client) Authenticate(ctx context.Context, username, password string) (*domain.Identity, error) {
	var payload identityResponse
	err := c.post(ctx, "/login", loginRequest{Username: username, Password: password}, &payload)
	if err != nil {
		return nil, err
	}

	identity := &domain.Identity{
		UserID:   payload.UserID,
		Username: payload.Username,
	}
	if identity.Username == "" {
		identity.Username = username
	}

	c.log.Debug().Str("username", identity.Username).Msg("Authenticated against backend")
	return identity, nil
}

// GetQuote fetches the latest price for one symbol.
// Fresh cached responses are served without touching the network.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	if c.cacheRepo != nil {
		data, err := c.cacheRepo.GetIfFresh("quotes", symbol)
		if err == nil && data != nil {
			var cached priceResponse
			if err := json.Unmarshal(data, &cached); err == nil {
				c.log.Debug().Str("symbol", symbol).Msg("Quote cache hit")
				return cached.toQuote(), nil
			}
		}
	}

	var payload priceResponse
	if err := c.get(ctx, "/price/"+symbol, &payload); err != nil {
		return nil, err
	}

	if c.cacheRepo != nil {
		if err := c.cacheRepo.Store("quotes", symbol, payload, clientdata.TTLQuote); err != nil {
			c.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to cache quote response")
		}
	}

	return payload.toQuote(), nil
}

// GetWalletHoldings fetches the full wallet snapshot
func (c *Client) GetWalletHoldings(ctx context.Context) ([]domain.Holding, error) {
	var payload []walletResponse
	if err := c.get(ctx, "/wallet", &payload); err != nil {
		return nil, err
	}

	holdings := make([]domain.Holding, 0, len(payload))
	for _, w := range payload {
		holdings = append(holdings, domain.Holding{
			Symbol:           w.Currency,
			TotalBalance:     w.Balance,
			AvailableBalance: w.AvailableBalance,
		})
	}
	return holdings, nil
}

// SubmitTrade sends an order for execution
func (c *Client) SubmitTrade(ctx context.Context, order domain.DraftOrder) (*domain.TradeRecord, error) {
	if order.Quantity == nil {
		return nil, fmt.Errorf("order quantity is required")
	}

	req := tradeRequest{
		Symbol:   order.Symbol,
		Type:     string(order.Side),
		Quantity: *order.Quantity,
	}

	var payload tradeResponse
	if err := c.post(ctx, "/trade", req, &payload); err != nil {
		return nil, err
	}

	return payload.toRecord(), nil
}

// GetTradeHistory fetches all executed trades, newest first
func (c *Client) GetTradeHistory(ctx context.Context) ([]domain.TradeRecord, error) {
	var payload []tradeResponse
	if err := c.get(ctx, "/trades", &payload); err != nil {
		return nil, err
	}

	trades := make([]domain.TradeRecord, 0, len(payload))
	for _, t := range payload {
		trades = append(trades, *t.toRecord())
	}
	return trades, nil
}

// get performs a GET request and decodes the enveloped payload into out
func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	return c.do(req, out)
}

// post performs a POST request with a JSON body and decodes the enveloped
// payload into out
func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// do executes the request and unwraps the response envelope.
// A 401 maps to domain.ErrUnauthenticated so callers can route it through
// the same path as an explicit logout.
func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return domain.ErrUnauthenticated
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend returned status %d", resp.StatusCode)
	}

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if !envelope.Success {
		if envelope.Message != "" {
			return fmt.Errorf("backend error: %s", envelope.Message)
		}
		return fmt.Errorf("backend reported failure")
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to parse response data: %w", err)
		}
	}

	return nil
}

// toQuote converts the wire payload to the domain model
func (p priceResponse) toQuote() *domain.Quote {
	return &domain.Quote{
		Symbol:     p.Symbol,
		Bid:        p.BidPrice,
		Ask:        p.AskPrice,
		ObservedAt: parseBackendTime(p.Timestamp),
	}
}

// toRecord converts the wire payload to the domain model
func (t tradeResponse) toRecord() *domain.TradeRecord {
	return &domain.TradeRecord{
		ID:          t.ID,
		Symbol:      t.Symbol,
		Side:        domain.Side(t.Type),
		Quantity:    t.Quantity,
		Price:       t.Price,
		TotalAmount: t.TotalAmount,
		Status:      t.Status,
		ExecutedAt:  parseBackendTime(t.Timestamp),
	}
}

// parseBackendTime handles the backend's timestamp formats. An unparseable
// or empty value yields the receive time, which is close enough for
// staleness display.
func parseBackendTime(value string) time.Time {
	formats := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	}
	for _, format := range formats {
		if ts, err := time.Parse(format, value); err == nil {
			return ts
		}
	}
	return time.Now()
}

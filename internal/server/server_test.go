package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tradedesk/internal/config"
	"github.com/aristath/tradedesk/internal/database"
	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/events"
	"github.com/aristath/tradedesk/internal/market"
	"github.com/aristath/tradedesk/internal/refresh"
	"github.com/aristath/tradedesk/internal/session"
	"github.com/aristath/tradedesk/internal/trading"
)

// scriptedClient fakes the upstream backend for handler tests
type scriptedClient struct {
	authErr   error
	quoteErr  error
	walletErr error
	tradesErr error
}

func (c *scriptedClient) Authenticate(ctx context.Context, username, password string) (*domain.Identity, error) {
	if c.authErr != nil {
		return nil, c.authErr
	}
	return &domain.Identity{UserID: 1, Username: username}, nil
}

func (c *scriptedClient) GetQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	if c.quoteErr != nil {
		return nil, c.quoteErr
	}
	return &domain.Quote{
		Symbol:     symbol,
		Bid:        decimal.RequireFromString("2999"),
		Ask:        decimal.RequireFromString("3000"),
		ObservedAt: time.Now(),
	}, nil
}

func (c *scriptedClient) GetWalletHoldings(ctx context.Context) ([]domain.Holding, error) {
	if c.walletErr != nil {
		return nil, c.walletErr
	}
	return []domain.Holding{
		{Symbol: "USDT", TotalBalance: decimal.NewFromInt(1000), AvailableBalance: decimal.NewFromInt(950)},
		{Symbol: "ETH", TotalBalance: decimal.NewFromInt(2), AvailableBalance: decimal.NewFromInt(2)},
	}, nil
}

func (c *scriptedClient) SubmitTrade(ctx context.Context, order domain.DraftOrder) (*domain.TradeRecord, error) {
	return &domain.TradeRecord{
		ID:          1,
		Symbol:      order.Symbol,
		Side:        order.Side,
		Quantity:    *order.Quantity,
		Price:       decimal.RequireFromString("3000"),
		TotalAmount: order.Quantity.Mul(decimal.RequireFromString("3000")),
		Status:      "EXECUTED",
		ExecutedAt:  time.Now(),
	}, nil
}

func (c *scriptedClient) GetTradeHistory(ctx context.Context) ([]domain.TradeRecord, error) {
	if c.tradesErr != nil {
		return nil, c.tradesErr
	}
	return []domain.TradeRecord{}, nil
}

type testServer struct {
	*Server
	client *scriptedClient
	bus    *events.Bus
	ts     *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	log := zerolog.Nop()
	bus := events.NewBus(log)
	client := &scriptedClient{}

	sessionDB, err := database.New(database.Config{Path: "file::memory:", Profile: database.ProfileSession, Name: "session"})
	require.NoError(t, err)
	t.Cleanup(func() { sessionDB.Close() })

	// The session profile keeps a single connection, which an in-memory
	// database needs to stay alive.
	cacheDB, err := database.New(database.Config{Path: "file::memory:", Profile: database.ProfileSession, Name: "cache"})
	require.NoError(t, err)
	t.Cleanup(func() { cacheDB.Close() })

	store := session.NewStore(sessionDB.Conn(), log)
	require.NoError(t, store.InitSchema())

	navigator := NewBusNavigator(bus, log)
	guard := session.NewGuard(store, navigator, bus, log)

	quotes := market.NewQuoteCache(client, "USDT", bus, log)
	wallet := market.NewWalletCache(client, bus, log)
	validator := trading.NewValidator(quotes, wallet, "USDT")
	tradingService := trading.NewService(client, validator, wallet, bus, log)
	scheduler := refresh.NewScheduler(log)
	t.Cleanup(scheduler.StopAll)

	cfg := &config.Config{
		DataDir:        t.TempDir(),
		ExchangeAPIURL: "http://localhost:0",
		QuoteSymbols:   []string{"ETHUSDT"},
		StableSymbol:   "USDT",
		PollInterval:   time.Second,
		Port:           0,
		DevMode:        true,
	}

	s := New(Config{
		Log:       log,
		Cfg:       cfg,
		Guard:     guard,
		Client:    client,
		Quotes:    quotes,
		Wallet:    wallet,
		Trading:   tradingService,
		Scheduler: scheduler,
		Bus:       bus,
		SessionDB: sessionDB,
		CacheDB:   cacheDB,
	})

	ts := httptest.NewServer(s.router)
	t.Cleanup(ts.Close)

	return &testServer{Server: s, client: client, bus: bus, ts: ts}
}

func (ts *testServer) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.ts.URL + path)
	require.NoError(t, err)
	return resp
}

func (ts *testServer) post(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	encoded, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(ts.ts.URL+path, "application/json", bytes.NewReader(encoded))
	require.NoError(t, err)
	return resp
}

func (ts *testServer) login(t *testing.T) {
	t.Helper()
	resp := ts.post(t, "/api/auth/login", map[string]string{"username": "testuser", "password": "secret"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestProtectedRoutesRequireLogin(t *testing.T) {
	ts := newTestServer(t)

	redirects := 0
	ts.bus.Subscribe(events.NavigateLogin, func(e *events.Event) { redirects++ })

	resp := ts.get(t, "/api/dashboard")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
	assert.Equal(t, 1, redirects, "exactly one redirect per rejected navigation")
}

func TestLoginThenDashboard(t *testing.T) {
	ts := newTestServer(t)
	ts.login(t)

	resp := ts.get(t, "/api/auth/session")
	body := decodeBody(t, resp)
	assert.Equal(t, true, body["authenticated"])
	assert.Equal(t, "testuser", body["username"])

	resp = ts.get(t, "/api/dashboard")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeBody(t, resp)
	assert.Contains(t, body, "portfolio")
	assert.Contains(t, body, "wallet")
}

func TestLoginRejectedUpstream(t *testing.T) {
	ts := newTestServer(t)
	ts.client.authErr = domain.ErrUnauthenticated

	resp := ts.post(t, "/api/auth/login", map[string]string{"username": "testuser", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	assert.False(t, ts.guard.IsLoggedIn())
}

func TestLogout(t *testing.T) {
	ts := newTestServer(t)
	ts.login(t)
	require.True(t, ts.guard.IsLoggedIn())

	resp := ts.post(t, "/api/auth/logout", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	assert.False(t, ts.guard.IsLoggedIn())

	resp = ts.get(t, "/api/dashboard")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestUpstream401InvalidatesSession(t *testing.T) {
	ts := newTestServer(t)
	ts.login(t)

	ts.client.tradesErr = domain.ErrUnauthenticated
	resp := ts.get(t, "/api/trades")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	assert.False(t, ts.guard.IsLoggedIn(), "upstream 401 clears the local session like a logout")
}

func TestSubmitTradeValidationError(t *testing.T) {
	ts := newTestServer(t)
	ts.login(t)

	// No wallet snapshot has been loaded, so a BUY must fail the balance
	// check before it ever reaches the upstream.
	resp := ts.post(t, "/api/trade", map[string]interface{}{
		"symbol": "ETHUSDT", "side": "BUY", "quantity": "1",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestSubmitTrade(t *testing.T) {
	ts := newTestServer(t)
	ts.login(t)

	// Prime the caches the way an active dashboard view would.
	require.NoError(t, ts.quotes.Refresh(context.Background(), []string{"ETHUSDT"}))
	require.NoError(t, ts.wallet.Refresh(context.Background()))

	executed := 0
	ts.bus.Subscribe(events.TradeExecuted, func(e *events.Event) { executed++ })

	resp := ts.post(t, "/api/trade", map[string]interface{}{
		"symbol": "ETHUSDT", "side": "BUY", "quantity": "0.1",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Contains(t, body, "trade")
	assert.Equal(t, 1, executed)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "healthy", body["status"])
}

package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/events"
)

// mockExchangeClient lets each test script the upstream behavior per call
type mockExchangeClient struct {
	getQuoteFunc    func(ctx context.Context, symbol string) (*domain.Quote, error)
	getWalletFunc   func(ctx context.Context) ([]domain.Holding, error)
	submitTradeFunc func(ctx context.Context, order domain.DraftOrder) (*domain.TradeRecord, error)
	getTradesFunc   func(ctx context.Context) ([]domain.TradeRecord, error)
}

func (m *mockExchangeClient) Authenticate(ctx context.Context, username, password string) (*domain.Identity, error) {
	return &domain.Identity{UserID: 1, Username: username}, nil
}

func (m *mockExchangeClient) GetQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	return m.getQuoteFunc(ctx, symbol)
}

func (m *mockExchangeClient) GetWalletHoldings(ctx context.Context) ([]domain.Holding, error) {
	return m.getWalletFunc(ctx)
}

func (m *mockExchangeClient) SubmitTrade(ctx context.Context, order domain.DraftOrder) (*domain.TradeRecord, error) {
	return m.submitTradeFunc(ctx, order)
}

func (m *mockExchangeClient) GetTradeHistory(ctx context.Context) ([]domain.TradeRecord, error) {
	return m.getTradesFunc(ctx)
}

func quoteFor(symbol string, bid, ask string) *domain.Quote {
	return &domain.Quote{
		Symbol:     symbol,
		Bid:        decimal.RequireFromString(bid),
		Ask:        decimal.RequireFromString(ask),
		ObservedAt: time.Now(),
	}
}

func TestQuoteRefreshPartialFailure(t *testing.T) {
	client := &mockExchangeClient{
		getQuoteFunc: func(ctx context.Context, symbol string) (*domain.Quote, error) {
			if symbol == "ETHUSDT" {
				return nil, errors.New("upstream down")
			}
			return quoteFor(symbol, "59990", "60000"), nil
		},
	}
	cache := NewQuoteCache(client, "USDT", events.NewBus(zerolog.Nop()), zerolog.Nop())

	err := cache.Refresh(context.Background(), []string{"ETHUSDT", "BTCUSDT"})
	require.NoError(t, err, "one symbol succeeding means the refresh as a whole did not fail")

	_, err = cache.GetQuote("ETHUSDT")
	assert.ErrorIs(t, err, domain.ErrQuoteUnavailable)

	quote, err := cache.GetQuote("BTCUSDT")
	require.NoError(t, err)
	assert.True(t, quote.Ask.Equal(decimal.NewFromInt(60000)))

	assert.Error(t, cache.LastError())
}

func TestQuoteRefreshRetainsPreviousOnFailure(t *testing.T) {
	healthy := true
	client := &mockExchangeClient{
		getQuoteFunc: func(ctx context.Context, symbol string) (*domain.Quote, error) {
			if !healthy {
				return nil, errors.New("upstream down")
			}
			return quoteFor(symbol, "2999", "3000"), nil
		},
	}
	cache := NewQuoteCache(client, "USDT", events.NewBus(zerolog.Nop()), zerolog.Nop())

	require.NoError(t, cache.Refresh(context.Background(), []string{"ETHUSDT"}))

	healthy = false
	err := cache.Refresh(context.Background(), []string{"ETHUSDT"})
	assert.Error(t, err, "every symbol failing surfaces as an error")

	quote, err := cache.GetQuote("ETHUSDT")
	require.NoError(t, err, "previous quote survives a failed refresh")
	assert.True(t, quote.Ask.Equal(decimal.NewFromInt(3000)))
	assert.Error(t, cache.LastError())

	healthy = true
	require.NoError(t, cache.Refresh(context.Background(), []string{"ETHUSDT"}))
	assert.NoError(t, cache.LastError(), "a clean refresh clears the recorded error")
}

func TestQuoteRefreshDiscardsOutOfOrderResponse(t *testing.T) {
	// The outer refresh's request is answered only after a second refresh
	// has already applied a newer quote. The late answer must lose.
	var cache *QuoteCache
	depth := 0
	client := &mockExchangeClient{}
	client.getQuoteFunc = func(ctx context.Context, symbol string) (*domain.Quote, error) {
		depth++
		if depth == 1 {
			require.NoError(t, cache.Refresh(ctx, []string{symbol}))
			return quoteFor(symbol, "100", "101"), nil
		}
		return quoteFor(symbol, "200", "201"), nil
	}
	cache = NewQuoteCache(client, "USDT", events.NewBus(zerolog.Nop()), zerolog.Nop())

	require.NoError(t, cache.Refresh(context.Background(), []string{"ETHUSDT"}))

	quote, err := cache.GetQuote("ETHUSDT")
	require.NoError(t, err)
	assert.True(t, quote.Ask.Equal(decimal.NewFromInt(201)), "the newer response stays, the stale one is dropped")
}

func TestQuoteRefreshDiscardsAfterCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &mockExchangeClient{
		getQuoteFunc: func(ctx context.Context, symbol string) (*domain.Quote, error) {
			cancel() // the view was left while the request was in flight
			return quoteFor(symbol, "2999", "3000"), nil
		},
	}
	cache := NewQuoteCache(client, "USDT", events.NewBus(zerolog.Nop()), zerolog.Nop())

	cache.Refresh(ctx, []string{"ETHUSDT"})

	_, err := cache.GetQuote("ETHUSDT")
	assert.ErrorIs(t, err, domain.ErrQuoteUnavailable, "a cancelled refresh must not mutate the cache")
}

func TestGetPricePairMapping(t *testing.T) {
	client := &mockExchangeClient{
		getQuoteFunc: func(ctx context.Context, symbol string) (*domain.Quote, error) {
			return quoteFor(symbol, "2999", "3000"), nil
		},
	}
	cache := NewQuoteCache(client, "USDT", events.NewBus(zerolog.Nop()), zerolog.Nop())
	require.NoError(t, cache.Refresh(context.Background(), []string{"ETHUSDT"}))

	assert.True(t, cache.GetPrice("ETH", domain.SideBuy).Equal(decimal.NewFromInt(3000)),
		"asset symbol resolves through its stable pair")
	assert.True(t, cache.GetPrice("ETHUSDT", domain.SideSell).Equal(decimal.NewFromInt(2999)),
		"pair symbol resolves directly")
	assert.True(t, cache.GetPrice("XRP", domain.SideBuy).IsZero(),
		"unknown symbol yields the zero sentinel")
}

func TestQuotesUpdatedPublishedOnlyOnSuccess(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	updated := 0
	failed := 0
	bus.Subscribe(events.QuotesUpdated, func(e *events.Event) { updated++ })
	bus.Subscribe(events.RefreshFailed, func(e *events.Event) { failed++ })

	client := &mockExchangeClient{
		getQuoteFunc: func(ctx context.Context, symbol string) (*domain.Quote, error) {
			return nil, errors.New("upstream down")
		},
	}
	cache := NewQuoteCache(client, "USDT", bus, zerolog.Nop())

	cache.Refresh(context.Background(), []string{"ETHUSDT"})
	assert.Equal(t, 0, updated)
	assert.Equal(t, 1, failed)

	client.getQuoteFunc = func(ctx context.Context, symbol string) (*domain.Quote, error) {
		return quoteFor(symbol, "2999", "3000"), nil
	}
	require.NoError(t, cache.Refresh(context.Background(), []string{"ETHUSDT"}))
	assert.Equal(t, 1, updated)
	assert.Equal(t, 1, failed)
}

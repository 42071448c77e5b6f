package market

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/events"
)

func sampleHoldings() []domain.Holding {
	return []domain.Holding{
		{Symbol: "USDT", TotalBalance: decimal.NewFromInt(1000), AvailableBalance: decimal.NewFromInt(950)},
		{Symbol: "ETH", TotalBalance: decimal.RequireFromString("1.7"), AvailableBalance: decimal.RequireFromString("1.7")},
	}
}

func TestWalletRefreshReplacesSnapshot(t *testing.T) {
	client := &mockExchangeClient{
		getWalletFunc: func(ctx context.Context) ([]domain.Holding, error) {
			return sampleHoldings(), nil
		},
	}
	cache := NewWalletCache(client, events.NewBus(zerolog.Nop()), zerolog.Nop())

	assert.False(t, cache.Loaded())
	require.NoError(t, cache.Refresh(context.Background()))
	assert.True(t, cache.Loaded())

	holdings := cache.Holdings()
	require.Len(t, holdings, 2)

	usdt := cache.GetHolding("USDT")
	require.NotNil(t, usdt)
	assert.True(t, usdt.AvailableBalance.Equal(decimal.NewFromInt(950)))

	// A later refresh with fewer entries drops the missing ones too.
	client.getWalletFunc = func(ctx context.Context) ([]domain.Holding, error) {
		return sampleHoldings()[:1], nil
	}
	require.NoError(t, cache.Refresh(context.Background()))
	assert.Len(t, cache.Holdings(), 1)
	assert.Nil(t, cache.GetHolding("ETH"))
}

func TestWalletRefreshRetainsOnFailure(t *testing.T) {
	healthy := true
	client := &mockExchangeClient{
		getWalletFunc: func(ctx context.Context) ([]domain.Holding, error) {
			if !healthy {
				return nil, errors.New("upstream down")
			}
			return sampleHoldings(), nil
		},
	}
	cache := NewWalletCache(client, events.NewBus(zerolog.Nop()), zerolog.Nop())

	require.NoError(t, cache.Refresh(context.Background()))

	healthy = false
	err := cache.Refresh(context.Background())
	assert.Error(t, err)
	assert.Error(t, cache.LastError())

	holdings := cache.Holdings()
	assert.Len(t, holdings, 2, "previous snapshot survives a failed refresh")

	healthy = true
	require.NoError(t, cache.Refresh(context.Background()))
	assert.NoError(t, cache.LastError())
}

func TestWalletRefreshDiscardsAfterCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &mockExchangeClient{
		getWalletFunc: func(ctx context.Context) ([]domain.Holding, error) {
			cancel()
			return sampleHoldings(), nil
		},
	}
	cache := NewWalletCache(client, events.NewBus(zerolog.Nop()), zerolog.Nop())

	err := cache.Refresh(ctx)
	assert.Error(t, err)
	assert.False(t, cache.Loaded())
	assert.Empty(t, cache.Holdings())
}

func TestWalletUpdatedEvent(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	published := 0
	bus.Subscribe(events.WalletUpdated, func(e *events.Event) { published++ })

	client := &mockExchangeClient{
		getWalletFunc: func(ctx context.Context) ([]domain.Holding, error) {
			return sampleHoldings(), nil
		},
	}
	cache := NewWalletCache(client, bus, zerolog.Nop())

	require.NoError(t, cache.Refresh(context.Background()))
	assert.Equal(t, 1, published)
}

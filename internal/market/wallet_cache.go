package market

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/events"
)

// WalletCache holds the latest wallet snapshot. The snapshot is replaced
// wholesale on every successful refresh and retained untouched on failure,
// so readers either see a complete consistent wallet or the previous one.
type WalletCache struct {
	client domain.ExchangeClient
	bus    *events.Bus
	log    zerolog.Logger

	mu       sync.RWMutex
	holdings []domain.Holding
	loaded   bool
	lastErr  error
}

// NewWalletCache creates an empty wallet cache
func NewWalletCache(client domain.ExchangeClient, bus *events.Bus, log zerolog.Logger) *WalletCache {
	return &WalletCache{
		client: client,
		bus:    bus,
		log:    log.With().Str("service", "wallet_cache").Logger(),
	}
}

// Refresh replaces the cached snapshot with fresh holdings from the
// upstream. On failure the previous snapshot stays in place and the error
// is recorded for display.
func (c *WalletCache) Refresh(ctx context.Context) error {
	holdings, err := c.client.GetWalletHoldings(ctx)
	if err != nil {
		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()

		c.log.Warn().Err(err).Msg("Wallet refresh failed, keeping previous snapshot")
		c.bus.Emit(events.RefreshFailed, "market", map[string]interface{}{
			"what": "wallet",
		})
		return fmt.Errorf("wallet refresh failed: %w", err)
	}

	if ctx.Err() != nil {
		c.log.Debug().Msg("Discarding wallet snapshot resolved after cancellation")
		return ctx.Err()
	}

	c.mu.Lock()
	c.holdings = holdings
	c.loaded = true
	c.lastErr = nil
	c.mu.Unlock()

	c.log.Debug().Int("holdings", len(holdings)).Msg("Wallet snapshot replaced")
	c.bus.Emit(events.WalletUpdated, "market", map[string]interface{}{
		"holdings": len(holdings),
	})
	return nil
}

// Holdings returns a copy of the cached snapshot
func (c *WalletCache) Holdings() []domain.Holding {
	c.mu.RLock()
	defer c.mu.RUnlock()

	holdings := make([]domain.Holding, len(c.holdings))
	copy(holdings, c.holdings)
	return holdings
}

// GetHolding returns the cached balance for one currency, or nil when the
// wallet has no entry for it
func (c *WalletCache) GetHolding(symbol string) *domain.Holding {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := range c.holdings {
		if c.holdings[i].Symbol == symbol {
			h := c.holdings[i]
			return &h
		}
	}
	return nil
}

// Loaded reports whether at least one refresh has succeeded
func (c *WalletCache) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// LastError returns the error recorded by the most recent refresh, or nil
// when it succeeded
func (c *WalletCache) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

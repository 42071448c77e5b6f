// Package market holds the in-memory caches for upstream market and wallet
// state. Reads never block on the network; refreshes mutate the caches and
// announce changes on the event bus.
package market

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/events"
)

// QuoteCache holds the latest bid/ask per symbol. Responses racing each
// other are resolved by per-symbol sequence numbers: a refresh that resolves
// after a newer one has already applied is discarded, so the cache can never
// move backwards in time.
type QuoteCache struct {
	client       domain.ExchangeClient
	bus          *events.Bus
	log          zerolog.Logger
	stableSymbol string

	mu      sync.RWMutex
	quotes  map[string]domain.Quote
	issued  map[string]uint64 // last sequence handed to an outbound request
	applied map[string]uint64 // sequence of the response currently in the cache
	lastErr error
}

// NewQuoteCache creates an empty quote cache
func NewQuoteCache(client domain.ExchangeClient, stableSymbol string, bus *events.Bus, log zerolog.Logger) *QuoteCache {
	return &QuoteCache{
		client:       client,
		bus:          bus,
		log:          log.With().Str("service", "quote_cache").Logger(),
		stableSymbol: stableSymbol,
		quotes:       make(map[string]domain.Quote),
		issued:       make(map[string]uint64),
		applied:      make(map[string]uint64),
	}
}

// Refresh fetches fresh quotes for the given symbols. One symbol failing
// does not block the others: successes are applied and announced, failures
// are recorded as the cache's last error. The returned error is non-nil only
// when every symbol failed.
func (c *QuoteCache) Refresh(ctx context.Context, symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}

	seqs := make(map[string]uint64, len(symbols))
	c.mu.Lock()
	for _, symbol := range symbols {
		c.issued[symbol]++
		seqs[symbol] = c.issued[symbol]
	}
	c.mu.Unlock()

	successCount := 0
	errorCount := 0
	var firstErr error

	for _, symbol := range symbols {
		quote, err := c.client.GetQuote(ctx, symbol)
		if err != nil {
			errorCount++
			if firstErr == nil {
				firstErr = err
			}
			c.log.Warn().Err(err).Str("symbol", symbol).Msg("Quote refresh failed, keeping previous value")
			continue
		}

		if c.apply(ctx, symbol, seqs[symbol], *quote) {
			successCount++
		}
	}

	c.mu.Lock()
	c.lastErr = firstErr
	c.mu.Unlock()

	if successCount > 0 {
		c.bus.Emit(events.QuotesUpdated, "market", map[string]interface{}{
			"updated": successCount,
			"failed":  errorCount,
		})
	}
	if errorCount > 0 {
		c.bus.Emit(events.RefreshFailed, "market", map[string]interface{}{
			"what":   "quotes",
			"failed": errorCount,
		})
	}

	c.log.Debug().Int("updated", successCount).Int("failed", errorCount).Msg("Quote refresh complete")

	if successCount == 0 && errorCount > 0 {
		return fmt.Errorf("all %d quote refreshes failed: %w", errorCount, firstErr)
	}
	return nil
}

// apply writes a fetched quote into the cache unless it lost the race: a
// newer response already landed for this symbol, or the refresh run was
// cancelled while the request was in flight.
func (c *QuoteCache) apply(ctx context.Context, symbol string, seq uint64, quote domain.Quote) bool {
	if ctx.Err() != nil {
		c.log.Debug().Str("symbol", symbol).Msg("Discarding quote resolved after cancellation")
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if seq <= c.applied[symbol] {
		c.log.Debug().Str("symbol", symbol).Uint64("seq", seq).Msg("Discarding out-of-order quote response")
		return false
	}

	c.quotes[symbol] = quote
	c.applied[symbol] = seq
	return true
}

// GetQuote returns the cached quote for one symbol.
// Returns domain.ErrQuoteUnavailable when nothing has been cached yet.
func (c *QuoteCache) GetQuote(symbol string) (domain.Quote, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	quote, ok := c.quotes[symbol]
	if !ok {
		return domain.Quote{}, domain.ErrQuoteUnavailable
	}
	return quote, nil
}

// GetPrice returns the side-appropriate price for a symbol, resolving asset
// symbols to their stable pair first (ETH looks up ETHUSDT, then ETH). A
// missing quote yields zero; callers treat zero as "not priced", never as a
// free asset.
func (c *QuoteCache) GetPrice(symbol string, side domain.Side) decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if quote, ok := c.quotes[symbol+c.stableSymbol]; ok {
		return quote.Price(side)
	}
	if quote, ok := c.quotes[symbol]; ok {
		return quote.Price(side)
	}
	return decimal.Zero
}

// Snapshot returns a copy of every cached quote
func (c *QuoteCache) Snapshot() []domain.Quote {
	c.mu.RLock()
	defer c.mu.RUnlock()

	quotes := make([]domain.Quote, 0, len(c.quotes))
	for _, q := range c.quotes {
		quotes = append(quotes, q)
	}
	return quotes
}

// LastError returns the error recorded by the most recent refresh, or nil
// when the last refresh fully succeeded
func (c *QuoteCache) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

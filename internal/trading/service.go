package trading

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/events"
)

// WalletRefresher re-pulls the wallet snapshot after a trade settles
type WalletRefresher interface {
	Refresh(ctx context.Context) error
}

// HistoryStats aggregates a trade list the way the history view displays it
type HistoryStats struct {
	TotalTrades int             `json:"total_trades"`
	BuyTrades   int             `json:"buy_trades"`
	SellTrades  int             `json:"sell_trades"`
	TotalVolume decimal.Decimal `json:"total_volume"`
	BuyVolume   decimal.Decimal `json:"buy_volume"`
	SellVolume  decimal.Decimal `json:"sell_volume"`
}

// Service submits validated orders upstream and serves trade history.
type Service struct {
	client    domain.ExchangeClient
	validator *Validator
	wallet    WalletRefresher
	bus       *events.Bus
	log       zerolog.Logger
}

// NewService creates a new trading service
func NewService(client domain.ExchangeClient, validator *Validator, wallet WalletRefresher, bus *events.Bus, log zerolog.Logger) *Service {
	return &Service{
		client:    client,
		validator: validator,
		wallet:    wallet,
		bus:       bus,
		log:       log.With().Str("service", "trading").Logger(),
	}
}

// EstimateTotal exposes the draft cost estimate for the order form
func (s *Service) EstimateTotal(order domain.DraftOrder) decimal.Decimal {
	return s.validator.EstimateTotal(order)
}

// Submit validates the order and sends it upstream. On success the wallet
// snapshot is refreshed immediately so balances reflect the trade before the
// next scheduled poll, and TradeExecuted is announced on the bus.
func (s *Service) Submit(ctx context.Context, order domain.DraftOrder) (*domain.TradeRecord, error) {
	if err := s.validator.Validate(order); err != nil {
		return nil, err
	}

	record, err := s.client.SubmitTrade(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("trade submission failed: %w", err)
	}

	s.log.Info().
		Str("symbol", record.Symbol).
		Str("side", string(record.Side)).
		Str("quantity", record.Quantity.String()).
		Str("total", record.TotalAmount.String()).
		Msg("Trade executed")

	s.bus.Emit(events.TradeExecuted, "trading", map[string]interface{}{
		"symbol": record.Symbol,
		"side":   string(record.Side),
		"total":  record.TotalAmount.String(),
	})

	if err := s.wallet.Refresh(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Wallet refresh after trade failed, next poll will catch up")
	}

	return record, nil
}

// History returns executed trades plus aggregate stats, optionally filtered
// to one symbol. An empty filter or "All" returns everything.
func (s *Service) History(ctx context.Context, symbol string) ([]domain.TradeRecord, HistoryStats, error) {
	trades, err := s.client.GetTradeHistory(ctx)
	if err != nil {
		return nil, HistoryStats{}, fmt.Errorf("failed to load trade history: %w", err)
	}

	filtered := trades
	if symbol != "" && !strings.EqualFold(symbol, "All") {
		filtered = make([]domain.TradeRecord, 0, len(trades))
		for _, trade := range trades {
			if trade.Symbol == symbol {
				filtered = append(filtered, trade)
			}
		}
	}

	return filtered, computeStats(filtered), nil
}

// computeStats tallies counts and traded volume per side
func computeStats(trades []domain.TradeRecord) HistoryStats {
	stats := HistoryStats{
		TotalVolume: decimal.Zero,
		BuyVolume:   decimal.Zero,
		SellVolume:  decimal.Zero,
	}

	for _, trade := range trades {
		stats.TotalTrades++
		stats.TotalVolume = stats.TotalVolume.Add(trade.TotalAmount)
		switch trade.Side {
		case domain.SideBuy:
			stats.BuyTrades++
			stats.BuyVolume = stats.BuyVolume.Add(trade.TotalAmount)
		case domain.SideSell:
			stats.SellTrades++
			stats.SellVolume = stats.SellVolume.Add(trade.TotalAmount)
		}
	}

	return stats
}

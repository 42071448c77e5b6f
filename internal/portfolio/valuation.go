// Package portfolio derives display figures from the wallet and quote
// caches. Everything here is a pure computation over snapshots; nothing
// touches the network or mutates state.
package portfolio

import (
	"github.com/shopspring/decimal"

	"github.com/aristath/tradedesk/internal/domain"
)

// PriceSource resolves a holding's symbol to a current price.
// The quote cache satisfies this; a zero result means "not priced yet".
type PriceSource interface {
	GetPrice(symbol string, side domain.Side) decimal.Decimal
}

// Position is one holding with its current valuation attached
type Position struct {
	Symbol  string          `json:"symbol"`
	Balance decimal.Decimal `json:"balance"`
	Value   decimal.Decimal `json:"value"`
}

// LargestPosition is the single biggest position by value, with its share
// of the portfolio total
type LargestPosition struct {
	Position
	Percentage decimal.Decimal `json:"percentage"`
}

// Summary is the full portfolio valuation at one point in time
type Summary struct {
	Positions  []Position       `json:"positions"`
	TotalValue decimal.Decimal  `json:"total_value"`
	Largest    *LargestPosition `json:"largest,omitempty"`
}

// Compute values every holding and aggregates the total. The stable symbol
// is worth exactly 1 per unit of its available balance; every other holding
// is valued at the current ask on its total balance. A holding without a
// price contributes zero rather than being dropped, so the positions list
// always mirrors the wallet.
func Compute(holdings []domain.Holding, prices PriceSource, stableSymbol string) Summary {
	summary := Summary{
		Positions:  make([]Position, 0, len(holdings)),
		TotalValue: decimal.Zero,
	}

	for _, holding := range holdings {
		position := Position{Symbol: holding.Symbol}

		if holding.Symbol == stableSymbol {
			position.Balance = holding.AvailableBalance
			position.Value = holding.AvailableBalance
		} else {
			position.Balance = holding.TotalBalance
			position.Value = holding.TotalBalance.Mul(prices.GetPrice(holding.Symbol, domain.SideBuy))
		}

		summary.Positions = append(summary.Positions, position)
		summary.TotalValue = summary.TotalValue.Add(position.Value)
	}

	summary.Largest = largest(summary.Positions, summary.TotalValue)
	return summary
}

// largest picks the biggest position by value. Absent when the portfolio
// has no value at all, since a share of zero is meaningless.
func largest(positions []Position, total decimal.Decimal) *LargestPosition {
	if total.IsZero() {
		return nil
	}

	var best *Position
	for i := range positions {
		if best == nil || positions[i].Value.GreaterThan(best.Value) {
			best = &positions[i]
		}
	}
	if best == nil || best.Value.IsZero() {
		return nil
	}

	return &LargestPosition{
		Position:   *best,
		Percentage: best.Value.Div(total).Mul(decimal.NewFromInt(100)),
	}
}

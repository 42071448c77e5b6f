// Package trading validates draft orders and handles trade submission and
// history against the upstream backend.
package trading

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/portfolio"
)

// Validation errors, in the order the rules are checked. ErrNoQuantity
// blocks submission silently; the others carry a message for display.
var (
	ErrNoQuantity          = errors.New("quantity not entered")
	ErrInvalidSymbol       = errors.New("symbol is required")
	ErrInvalidSide         = errors.New("order side must be BUY or SELL")
	ErrInvalidQuantity     = errors.New("quantity must be greater than zero")
	ErrInsufficientBalance = errors.New("insufficient balance for this trade")
)

// BalanceSource resolves a currency to its cached wallet holding.
// The wallet cache satisfies this.
type BalanceSource interface {
	GetHolding(symbol string) *domain.Holding
}

// Validator checks draft orders against current prices and balances before
// they are allowed upstream. Checks run in a fixed order so the first
// violated rule determines the message the user sees.
type Validator struct {
	prices       portfolio.PriceSource
	wallet       BalanceSource
	stableSymbol string
}

// NewValidator creates a validator bound to the live caches
func NewValidator(prices portfolio.PriceSource, wallet BalanceSource, stableSymbol string) *Validator {
	return &Validator{
		prices:       prices,
		wallet:       wallet,
		stableSymbol: stableSymbol,
	}
}

// EstimateTotal computes the cost (BUY at ask) or proceeds (SELL at bid) of
// a draft order. An order with no quantity yet, or a symbol with no cached
// quote, estimates to zero.
func (v *Validator) EstimateTotal(order domain.DraftOrder) decimal.Decimal {
	if order.Quantity == nil {
		return decimal.Zero
	}
	price := v.prices.GetPrice(order.Symbol, order.Side)
	return order.Quantity.Mul(price)
}

// Validate applies the submission rules to a draft order. A nil error means
// the order may be sent upstream.
//
// SELL orders are deliberately not checked against the asset balance here;
// the upstream backend enforces that and reports the failure.
func (v *Validator) Validate(order domain.DraftOrder) error {
	if order.Symbol == "" {
		return ErrInvalidSymbol
	}
	if !order.Side.Valid() {
		return ErrInvalidSide
	}
	if order.Quantity == nil {
		return ErrNoQuantity
	}
	if !order.Quantity.IsPositive() {
		return ErrInvalidQuantity
	}

	price := v.prices.GetPrice(order.Symbol, order.Side)
	if price.IsZero() {
		return domain.ErrQuoteUnavailable
	}

	if order.Side == domain.SideBuy {
		total := order.Quantity.Mul(price)
		stable := v.wallet.GetHolding(v.stableSymbol)
		if stable == nil || total.GreaterThan(stable.AvailableBalance) {
			return ErrInsufficientBalance
		}
	}

	return nil
}

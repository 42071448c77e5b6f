// Package domain provides core domain models and types.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side represents the direction of an order
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Valid reports whether the side is one of the two known values.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Session is the persisted authentication record. It is written and read as a
// single atomic unit: the Authenticated flag is never stored separately from
// the identity it belongs to.
type Session struct {
	UserID        int64     `json:"user_id"`
	Username      string    `json:"username"`
	Authenticated bool      `json:"authenticated"`
	IssuedAt      time.Time `json:"issued_at"`
}

// Valid reports whether the record represents an authenticated user with a
// present identity. The flag alone is never enough.
func (s *Session) Valid() bool {
	return s != nil && s.Authenticated && s.UserID > 0 && s.Username != ""
}

// Quote is the latest known bid/ask pair for a trading symbol.
type Quote struct {
	Symbol     string          `json:"symbol"`
	Bid        decimal.Decimal `json:"bid"`
	Ask        decimal.Decimal `json:"ask"`
	ObservedAt time.Time       `json:"observed_at"`
}

// Price returns the side-appropriate price: ask for BUY (cost to acquire),
// bid for SELL (proceeds of disposal).
func (q Quote) Price(side Side) decimal.Decimal {
	if side == SideSell {
		return q.Bid
	}
	return q.Ask
}

// Holding is a user's balance in one currency, split into total and
// available (available = not reserved by pending activity).
type Holding struct {
	Symbol           string          `json:"symbol"`
	TotalBalance     decimal.Decimal `json:"total_balance"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
}

// DraftOrder is an in-progress, unsubmitted trade request being edited by
// the user. Quantity is nil while the field is still empty.
type DraftOrder struct {
	Symbol   string           `json:"symbol"`
	Side     Side             `json:"side"`
	Quantity *decimal.Decimal `json:"quantity"`
}

// TradeRecord is an executed trade as returned by the upstream backend.
// Immutable once returned; the client only ever reads lists of these.
type TradeRecord struct {
	ID          int64           `json:"id"`
	Symbol      string          `json:"symbol"`
	Side        Side            `json:"side"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Status      string          `json:"status"`
	ExecutedAt  time.Time       `json:"executed_at"`
}

// Identity is the user identity returned by a successful authentication.
type Identity struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

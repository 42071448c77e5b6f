// Package events provides the in-process event bus that connects cache
// mutations to the components that recompute or re-render from them.
package events

import "time"

// EventType identifies a kind of event on the bus
type EventType string

const (
	// QuotesUpdated fires after the quote cache applies fresh prices.
	QuotesUpdated EventType = "quotes_updated"
	// WalletUpdated fires after the wallet cache replaces its snapshot.
	WalletUpdated EventType = "wallet_updated"
	// SessionChanged fires on login and logout.
	SessionChanged EventType = "session_changed"
	// TradeExecuted fires after the upstream confirms a trade.
	TradeExecuted EventType = "trade_executed"
	// NavigateLogin instructs the view layer to switch to the login view.
	NavigateLogin EventType = "navigate_login"
	// RefreshFailed fires when a cache refresh failed and stale data is
	// being retained. Non-fatal, surfaced for display only.
	RefreshFailed EventType = "refresh_failed"
)

// Event is a single occurrence published on the bus
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Module    string                 `json:"module"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

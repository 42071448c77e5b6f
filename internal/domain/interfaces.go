package domain

import "context"

// ExchangeClient is the upstream trading backend as seen by the core.
// Every call can fail or stall arbitrarily; a 401 response surfaces as
// ErrUnauthenticated from any method.
type ExchangeClient interface {
	Authenticate(ctx context.Context, username, password string) (*Identity, error)
	GetQuote(ctx context.Context, symbol string) (*Quote, error)
	GetWalletHoldings(ctx context.Context) ([]Holding, error)
	SubmitTrade(ctx context.Context, order DraftOrder) (*TradeRecord, error)
	GetTradeHistory(ctx context.Context) ([]TradeRecord, error)
}

// Navigator performs view transitions on behalf of the auth guard. The
// concrete implementation lives with the view layer; the guard only promises
// to call NavigateToLogin exactly once per failed RequireLogin check.
type Navigator interface {
	NavigateToLogin()
}

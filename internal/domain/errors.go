package domain

import "errors"

// Sentinel errors shared across components. Cache refresh failures are
// recorded at the cache boundary and never propagate past it; only
// ErrNotAuthenticated is allowed to trigger a navigation side effect.
var (
	// ErrNotAuthenticated means no valid session is present. Blocks
	// navigation to protected views and redirects to login.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrUnauthenticated is returned by the exchange client when the
	// upstream answers 401. Callers must treat it exactly like an explicit
	// logout: clear the session and redirect to login.
	ErrUnauthenticated = errors.New("session no longer valid upstream")

	// ErrQuoteUnavailable means no quote is cached yet for a symbol.
	// Derived computations treat this as "not ready", never as a zero price.
	ErrQuoteUnavailable = errors.New("no quote available")
)

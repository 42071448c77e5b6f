package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/portfolio"
	"github.com/aristath/tradedesk/internal/refresh"
)

// viewRefresher builds the refresh action for one view. The SSE stream
// handler runs it on the view's schedule while a client is connected.
// Refreshes only run while logged in, and an upstream 401 during a refresh
// tears the session down the same way an explicit logout would.
func (s *Server) viewRefresher(view string) refresh.Func {
	return func(ctx context.Context) {
		if !s.guard.IsLoggedIn() {
			return
		}

		switch view {
		case "account":
			s.refreshWallet(ctx)
		case "trade":
			s.refreshQuotes(ctx)
		default: // dashboard and anything unnamed gets the full picture
			s.refreshQuotes(ctx)
			s.refreshWallet(ctx)
		}
	}
}

func (s *Server) refreshQuotes(ctx context.Context) {
	if err := s.quotes.Refresh(ctx, s.cfg.QuoteSymbols); err != nil && errors.Is(err, domain.ErrUnauthenticated) {
		s.guard.InvalidateUpstream()
	}
}

func (s *Server) refreshWallet(ctx context.Context) {
	if err := s.wallet.Refresh(ctx); err != nil && errors.Is(err, domain.ErrUnauthenticated) {
		s.guard.InvalidateUpstream()
	}
}

// handleDashboard returns the composed dashboard state: quotes, wallet,
// portfolio valuation and any stale-data warnings
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	holdings := s.wallet.Holdings()
	summary := portfolio.Compute(holdings, s.quotes, s.cfg.StableSymbol)

	response := map[string]interface{}{
		"quotes":    s.quotes.Snapshot(),
		"wallet":    holdings,
		"portfolio": summary,
	}

	// Stale-data indicators for the UI. Data is still served; the banner
	// is the UI's problem.
	warnings := map[string]string{}
	if err := s.quotes.LastError(); err != nil {
		warnings["quotes"] = err.Error()
	}
	if err := s.wallet.LastError(); err != nil {
		warnings["wallet"] = err.Error()
	}
	if len(warnings) > 0 {
		response["warnings"] = warnings
	}

	respondJSON(w, http.StatusOK, response)
}

// handleQuotes returns the cached quotes
func (s *Server) handleQuotes(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"quotes": s.quotes.Snapshot(),
	})
}

// handleWallet returns the cached wallet snapshot
func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"holdings": s.wallet.Holdings(),
		"loaded":   s.wallet.Loaded(),
	}
	if err := s.wallet.LastError(); err != nil {
		response["warning"] = err.Error()
	}
	respondJSON(w, http.StatusOK, response)
}

package server

import (
	"errors"
	"net/http"

	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/trading"
)

// validationErrors are order problems the user can fix; they answer 400
// instead of being treated as upstream failures
var validationErrors = []error{
	trading.ErrNoQuantity,
	trading.ErrInvalidSymbol,
	trading.ErrInvalidSide,
	trading.ErrInvalidQuantity,
	trading.ErrInsufficientBalance,
	domain.ErrQuoteUnavailable,
}

func isValidationError(err error) bool {
	for _, v := range validationErrors {
		if errors.Is(err, v) {
			return true
		}
	}
	return false
}

// handleSubmitTrade validates and submits an order
func (s *Server) handleSubmitTrade(w http.ResponseWriter, r *http.Request) {
	var order domain.DraftOrder
	if err := decodeJSON(r, &order); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	record, err := s.trading.Submit(r.Context(), order)
	if err != nil {
		if isValidationError(err) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.handleUpstreamError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"trade": record,
	})
}

// handleEstimateTrade returns the cost or proceeds estimate for a draft
// order without submitting anything
func (s *Server) handleEstimateTrade(w http.ResponseWriter, r *http.Request) {
	var order domain.DraftOrder
	if err := decodeJSON(r, &order); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"total": s.trading.EstimateTotal(order),
	})
}

// handleTradeHistory returns executed trades with aggregate stats,
// optionally filtered by the symbol query parameter
func (s *Server) handleTradeHistory(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")

	trades, stats, err := s.trading.History(r.Context(), symbol)
	if err != nil {
		s.handleUpstreamError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"trades": trades,
		"stats":  stats,
	})
}

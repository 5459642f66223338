package handler

import (
	"context"
	"net/http"

	"github.com/alanyoungcy/updownbot/internal/service"
)

// RiskSource reports the risk gate state.
type RiskSource interface {
	Snapshot(ctx context.Context, bankroll float64) service.RiskSnapshot
}

// BankrollSource reports the capital used for sizing.
type BankrollSource interface {
	Bankroll(ctx context.Context) float64
}

// RiskHandler serves the risk gate state.
type RiskHandler struct {
	gate     RiskSource
	bankroll BankrollSource
	book     PositionBook
}

func NewRiskHandler(gate RiskSource, bankroll BankrollSource, book PositionBook) *RiskHandler {
	return &RiskHandler{gate: gate, bankroll: bankroll, book: book}
}

type riskResponse struct {
	service.RiskSnapshot
	Bankroll float64 `json:"bankroll"`
	Exposure float64 `json:"exposure_usd"`
}

// GetRisk returns the gate snapshot for the current bankroll.
// GET /api/risk
func (h *RiskHandler) GetRisk(w http.ResponseWriter, r *http.Request) {
	bankroll := h.bankroll.Bankroll(r.Context())
	writeJSON(w, http.StatusOK, riskResponse{
		RiskSnapshot: h.gate.Snapshot(r.Context(), bankroll),
		Bankroll:     bankroll,
		Exposure:     h.book.TotalOpenExposure(),
	})
}

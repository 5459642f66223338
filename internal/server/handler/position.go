package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// PositionBook is the in-memory position state.
type PositionBook interface {
	Snapshot() []domain.Position
	Stats() domain.SessionStats
	TotalOpenExposure() float64
}

// LedgerLister reads closed trades.
type LedgerLister interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.LedgerEntry, error)
}

// PositionHandler serves open positions and trade history.
type PositionHandler struct {
	book   PositionBook
	ledger LedgerLister
	logger *slog.Logger
	now    func() time.Time
}

// NewPositionHandler creates a PositionHandler. ledger may be nil, in which
// case history is served from this session's closed positions.
func NewPositionHandler(book PositionBook, ledger LedgerLister, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{book: book, ledger: ledger, logger: logger, now: time.Now}
}

type positionView struct {
	ConditionID      string    `json:"condition_id"`
	Question         string    `json:"question"`
	Side             string    `json:"side"`
	Strategy         string    `json:"strategy"`
	State            string    `json:"state"`
	EntryPrice       float64   `json:"entry_price"`
	CurrentPrice     float64   `json:"current_price"`
	SizeUSD          float64   `json:"size_usd"`
	Shares           float64   `json:"shares"`
	UnrealizedPnL    float64   `json:"unrealized_pnl"`
	EntryTime        time.Time `json:"entry_time"`
	EndTime          time.Time `json:"end_time"`
	SecondsRemaining float64   `json:"seconds_remaining"`
}

type positionsResponse struct {
	Positions []positionView      `json:"positions"`
	Exposure  float64             `json:"exposure_usd"`
	Session   domain.SessionStats `json:"session"`
}

// ListPositions returns the open positions and session stats.
// GET /api/positions
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	open := h.book.Snapshot()
	views := make([]positionView, 0, len(open))
	for _, p := range open {
		views = append(views, positionView{
			ConditionID:      p.ConditionID,
			Question:         p.Question,
			Side:             string(p.Side),
			Strategy:         p.Strategy,
			State:            string(p.State),
			EntryPrice:       p.EntryPrice,
			CurrentPrice:     p.CurrentPrice,
			SizeUSD:          p.SizeUSD,
			Shares:           p.Shares,
			UnrealizedPnL:    p.UnrealizedPnL(),
			EntryTime:        p.EntryTime,
			EndTime:          p.EndTime,
			SecondsRemaining: p.SecondsRemaining(now),
		})
	}
	writeJSON(w, http.StatusOK, positionsResponse{
		Positions: views,
		Exposure:  h.book.TotalOpenExposure(),
		Session:   h.book.Stats(),
	})
}

type tradeView struct {
	ConditionID     string    `json:"condition_id"`
	Question        string    `json:"question"`
	Side            string    `json:"side"`
	EntryPrice      string    `json:"entry_price"`
	ExitPrice       string    `json:"exit_price"`
	SizeUSD         string    `json:"size_usd"`
	PnL             string    `json:"pnl"`
	EntryTime       time.Time `json:"entry_time"`
	ExitTime        time.Time `json:"exit_time"`
	DurationSeconds int64     `json:"duration_seconds"`
	Reason          string    `json:"reason"`
	Strategy        string    `json:"strategy"`
}

// ListTrades returns closed trades from the ledger, newest first.
// GET /api/trades?limit=&offset=&since=&until=
func (h *PositionHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	if h.ledger == nil {
		writeError(w, http.StatusNotFound, "trade ledger not configured")
		return
	}
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "since/until must be RFC3339")
		return
	}
	entries, err := h.ledger.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list trades failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}
	views := make([]tradeView, 0, len(entries))
	for _, e := range entries {
		views = append(views, tradeView{
			ConditionID:     e.ConditionID,
			Question:        e.Question,
			Side:            string(e.Side),
			EntryPrice:      e.EntryPrice.String(),
			ExitPrice:       e.ExitPrice.String(),
			SizeUSD:         e.SizeUSD.StringFixed(2),
			PnL:             e.PnL.StringFixed(2),
			EntryTime:       e.EntryTime,
			ExitTime:        e.ExitTime,
			DurationSeconds: e.DurationSeconds,
			Reason:          string(e.Reason),
			Strategy:        e.Strategy,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": views})
}

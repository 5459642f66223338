package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerEntry is one closed trade in the append-only trade ledger.
type LedgerEntry struct {
	ID              int64
	ConditionID     string
	Question        string
	Side            Side
	EntryPrice      decimal.Decimal
	ExitPrice       decimal.Decimal
	SizeUSD         decimal.Decimal
	Shares          decimal.Decimal
	PnL             decimal.Decimal
	EntryTime       time.Time
	ExitTime        time.Time
	DurationSeconds int64
	Reason          ExitReason
	Strategy        string
}

// NewLedgerEntry builds the ledger row for a closed position. It returns
// false when the position has not been closed.
func NewLedgerEntry(p Position) (LedgerEntry, bool) {
	if p.ExitPrice == nil || p.ExitTime == nil || p.PnL == nil {
		return LedgerEntry{}, false
	}
	q := p.Question
	if len(q) > 100 {
		q = q[:100]
	}
	return LedgerEntry{
		ConditionID:     p.ConditionID,
		Question:        q,
		Side:            p.Side,
		EntryPrice:      decimal.NewFromFloat(p.EntryPrice).Round(4),
		ExitPrice:       decimal.NewFromFloat(*p.ExitPrice).Round(4),
		SizeUSD:         decimal.NewFromFloat(p.SizeUSD).Round(2),
		Shares:          decimal.NewFromFloat(p.Shares).Round(4),
		PnL:             decimal.NewFromFloat(*p.PnL).Round(2),
		EntryTime:       p.EntryTime,
		ExitTime:        *p.ExitTime,
		DurationSeconds: int64(p.ExitTime.Sub(p.EntryTime).Seconds()),
		Reason:          p.ExitReason,
		Strategy:        p.Strategy,
	}, true
}

// SessionStats summarises closed trades.
type SessionStats struct {
	Trades   int     `json:"trades"`
	Wins     int     `json:"wins"`
	Losses   int     `json:"losses"`
	WinRate  float64 `json:"win_rate"`
	TotalPnL float64 `json:"total_pnl"`
}

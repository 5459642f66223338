package domain

import "time"

// PositionState is the lifecycle stage of a position.
type PositionState string

const (
	PositionOpen       PositionState = "open"
	PositionMonitoring PositionState = "monitoring"
	PositionClosed     PositionState = "closed"
)

// ExitReason names the trigger that closed a position.
type ExitReason string

const (
	ExitNone       ExitReason = ""
	ExitTimeStop   ExitReason = "TIME_STOP"
	ExitTakeProfit ExitReason = "TAKE_PROFIT"
	ExitStopLoss   ExitReason = "STOP_LOSS"
	ExitShutdown   ExitReason = "SHUTDOWN"
)

// Position is a holding in one market. At most one open position exists per
// ConditionID; closed positions are kept for audit.
type Position struct {
	ConditionID  string
	Question     string
	Side         Side
	TokenID      string
	EntryPrice   float64
	SizeUSD      float64
	Shares       float64
	Strategy     string
	OrderID      string
	EntryTime    time.Time
	EndTime      time.Time
	CurrentPrice float64
	State        PositionState
	ExitPrice    *float64
	ExitTime     *time.Time
	PnL          *float64
	ExitReason   ExitReason
}

// IsOpen reports whether the position has not been closed yet.
func (p *Position) IsOpen() bool {
	return p.State != PositionClosed
}

// SecondsRemaining returns the time left until the market resolves.
func (p *Position) SecondsRemaining(now time.Time) float64 {
	return p.EndTime.Sub(now).Seconds()
}

// UnrealizedPnL values the position at its last observed price.
func (p *Position) UnrealizedPnL() float64 {
	if p.CurrentPrice <= 0 {
		return 0
	}
	return (p.CurrentPrice - p.EntryPrice) * p.Shares
}

// Close marks the position closed. Exit price, exit time, and realized P&L
// are always set together.
func (p *Position) Close(exitPrice float64, at time.Time, reason ExitReason) float64 {
	pnl := RealizedPnL(p.EntryPrice, exitPrice, p.Shares)
	p.ExitPrice = &exitPrice
	p.ExitTime = &at
	p.PnL = &pnl
	p.ExitReason = reason
	p.State = PositionClosed
	return pnl
}

// RealizedPnL is (exit - entry) * shares.
func RealizedPnL(entry, exit, shares float64) float64 {
	return (exit - entry) * shares
}

// Holding is a token balance reported by the venue.
type Holding struct {
	TokenID     string
	Size        float64
	ConditionID string
	AvgPrice    *float64
}

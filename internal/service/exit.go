package service

import (
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// ExitRules are the thresholds EvaluateExit applies.
type ExitRules struct {
	TakeProfitMultiplier float64
	StopLossThreshold    float64
	TimeStopBuffer       time.Duration
}

// EvaluateExit returns the first exit trigger that applies to pos at the
// observed token price, or ExitNone to keep holding. The time stop wins over
// take profit, which wins over the stop loss.
func EvaluateExit(pos domain.Position, price float64, now time.Time, rules ExitRules) domain.ExitReason {
	switch {
	case pos.SecondsRemaining(now) <= rules.TimeStopBuffer.Seconds():
		return domain.ExitTimeStop
	case price >= pos.EntryPrice*rules.TakeProfitMultiplier:
		return domain.ExitTakeProfit
	case price <= rules.StopLossThreshold:
		return domain.ExitStopLoss
	default:
		return domain.ExitNone
	}
}

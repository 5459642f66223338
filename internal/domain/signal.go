package domain

import (
	"strings"
	"time"
)

// SignalMemo is the cross-asset record one asset's evaluation leaves for
// another: the BTC momentum fire that the ETH lag-carry signal trades on.
type SignalMemo struct {
	Fired           bool      `json:"fired"`
	Side            Side      `json:"side"`
	PctMove         float64   `json:"pct_move"`
	WindowOpenPrice float64   `json:"window_open_price"`
	At              time.Time `json:"at"`
}

// Live reports whether the memo is fired and younger than expiry.
func (m SignalMemo) Live(now time.Time, expiry time.Duration) bool {
	if !m.Fired || m.At.IsZero() || m.Side == SideNone {
		return false
	}
	return now.Sub(m.At) <= expiry
}

// CatalystFlag is an externally set directional flag for XRP markets.
type CatalystFlag struct {
	Active    bool      `json:"active"`
	Direction string    `json:"direction"` // "UP" or "DOWN"
	Reason    string    `json:"reason,omitempty"`
	SetAt     time.Time `json:"set_at"`
}

// Expired reports whether the flag is older than expiry. A flag without a
// set time never expires.
func (c CatalystFlag) Expired(now time.Time, expiry time.Duration) bool {
	if c.SetAt.IsZero() {
		return false
	}
	return now.Sub(c.SetAt) > expiry
}

// Side maps the catalyst direction to an outcome: UP buys YES, anything
// else buys NO.
func (c CatalystFlag) Side() Side {
	if strings.EqualFold(strings.TrimSpace(c.Direction), "UP") {
		return SideYes
	}
	return SideNo
}

// DecisionRecord is a recent evaluation kept for the status API.
type DecisionRecord struct {
	ConditionID string    `json:"condition_id"`
	Question    string    `json:"question"`
	Decision    Decision  `json:"decision"`
	Entered     bool      `json:"entered"`
	At          time.Time `json:"at"`
}

package domain

// Strategy attribution labels.
const (
	StrategyBTCMomentum = "BTC_MOMENTUM"
	StrategyETHLag      = "ETH_LAG"
	StrategySOLSqueeze  = "SOL_SQUEEZE"
	StrategyXRPCatalyst = "XRP_CATALYST"
	StrategyMaker       = "MAKER"
	StrategyOrphan      = "ORPHAN"
)

// Signals records which individual signals fired during an evaluation.
type Signals struct {
	OBImbalance   bool `json:"ob_imbalance"`
	Momentum      bool `json:"momentum"`
	VolumeSpike   bool `json:"volume_spike"`
	Kelly         bool `json:"kelly"`
	MomentumCarry bool `json:"momentum_carry"`
	LagCarry      bool `json:"lag_carry"`
	Squeeze       bool `json:"squeeze"`
	Catalyst      bool `json:"catalyst"`
}

// BaseCount is the number of base (non strategy-specific) signals that fired.
func (s Signals) BaseCount() int {
	n := 0
	for _, fired := range []bool{s.OBImbalance, s.Momentum, s.VolumeSpike, s.Kelly} {
		if fired {
			n++
		}
	}
	return n
}

// Decision is the outcome of evaluating one market. It is a value; callers
// that adjust the size work on a copy.
type Decision struct {
	HasEdge         bool    `json:"has_edge"`
	Side            Side    `json:"side"`
	SignalCount     int     `json:"signal_count"`
	MinSignals      int     `json:"min_signals"`
	Signals         Signals `json:"signals"`
	DirectionsAgree bool    `json:"directions_agree"`
	Strategy        string  `json:"strategy"`
	Asset           Asset   `json:"asset"`
	SpotPrice       float64 `json:"spot_price"`
	PctMoveFromOpen float64 `json:"pct_move_from_open"`
	FundingRate     float64 `json:"funding_rate"`
	RSI             float64 `json:"rsi"`
	EstimatedProb   float64 `json:"estimated_prob"`
	ImpliedProb     float64 `json:"implied_prob"`
	KellyEdge       float64 `json:"kelly_edge"`
	KellySize       float64 `json:"kelly_size"`
	EntryPrice      float64 `json:"entry_price"` // yes-book mid at evaluation
	Reason          string  `json:"reason"`
}

// NoTrade builds a rejected decision carrying only a reason.
func NoTrade(asset Asset, reason string) Decision {
	return Decision{Asset: asset, DirectionsAgree: true, Reason: reason}
}

// WithSize returns a copy with the recommended size replaced.
func (d Decision) WithSize(size float64) Decision {
	d.KellySize = size
	return d
}

// OutcomePrice is the price of the chosen side's token at evaluation: the
// yes mid for YES, one minus the yes mid for NO.
func (d Decision) OutcomePrice() float64 {
	if d.Side == SideNo {
		return 1 - d.EntryPrice
	}
	return d.EntryPrice
}

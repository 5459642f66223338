package strategy

import (
	"time"
)

// SizingMode selects how the Kelly fraction becomes a dollar size.
type SizingMode string

const (
	SizingKelly           SizingMode = "kelly"
	SizingFractionalKelly SizingMode = "fractional_kelly"
	SizingBankrollPct     SizingMode = "bankroll_pct"
)

// Params holds every threshold the evaluator reads. It is a plain value so
// tests can tweak single fields from DefaultParams.
type Params struct {
	// Sizing
	Bankroll       float64
	SizingMode     SizingMode
	KellyFraction  float64
	MinBet         float64
	MaxBet         float64
	BaseKellyBoost float64
	MinKellyEdge   float64
	MinEdgePct     float64

	// Funding alignment boost: funding below FundingBoostBelow with a YES
	// consensus adds FundingBoostExtra to the base boost.
	FundingBoostBelow float64
	FundingBoostExtra float64

	// Base signals
	MinEdgeSignals        int
	OBImbalanceThreshold  float64
	OBDepthLevels         int
	OBFallbackLow         float64
	OBFallbackHigh        float64
	MomentumWindow        int
	MomentumMinMove       float64
	MomentumConsistency   float64
	VolumeSpikeMultiplier float64
	VolumeWindow          int
	RSIPeriod             int

	// BTC momentum carry and the active-hours gate
	BTCMomentumThreshold float64
	BTCMaxEntryMove      float64
	BTCConsistencyWindow int
	BTCConsistencyMin    float64
	BTCNeutralFloor      float64
	ActiveHoursEnabled   bool
	ActiveHoursStart     int
	ActiveHoursEnd       int
	ActiveHoursLocation  *time.Location

	// ETH lag carry
	ETHLagExpiry    time.Duration
	ETHMaxRepricing float64
	ETHMinBTCMove   float64
	ETHBoost        float64

	// SOL squeeze
	SOLFundingThreshold float64
	SOLRSIOversold      float64
	SOLBoost            float64
	SOLMinSignals       int
	SOLMaxEntryMinutes  float64
	SOLMinTicks         int
	SOLMinBounce        float64

	// XRP catalyst
	XRPRequireCatalyst      bool
	XRPCatalystExpiry       time.Duration
	XRPBoost                float64
	XRPNoCatalystMinSignals int
}

// DefaultParams returns the tuned defaults.
func DefaultParams() Params {
	return Params{
		Bankroll:          1000,
		SizingMode:        SizingFractionalKelly,
		KellyFraction:     0.25,
		MinBet:            5,
		MaxBet:            100,
		BaseKellyBoost:    0.08,
		MinKellyEdge:      0.02,
		MinEdgePct:        0.02,
		FundingBoostBelow: -0.0005,
		FundingBoostExtra: 0.02,

		MinEdgeSignals:        2,
		OBImbalanceThreshold:  0.52,
		OBDepthLevels:         5,
		OBFallbackLow:         0.42,
		OBFallbackHigh:        0.58,
		MomentumWindow:        5,
		MomentumMinMove:       0.01,
		MomentumConsistency:   0.60,
		VolumeSpikeMultiplier: 1.5,
		VolumeWindow:          10,
		RSIPeriod:             14,

		BTCMomentumThreshold: 0.003,
		BTCMaxEntryMove:      0.015,
		BTCConsistencyWindow: 5,
		BTCConsistencyMin:    0.60,
		BTCNeutralFloor:      -0.002,
		ActiveHoursStart:     9,
		ActiveHoursEnd:       16,
		ActiveHoursLocation:  easternTime(),

		ETHLagExpiry:    90 * time.Second,
		ETHMaxRepricing: 0.08,
		ETHMinBTCMove:   0.004,
		ETHBoost:        0.12,

		SOLFundingThreshold: -0.001,
		SOLRSIOversold:      38,
		SOLBoost:            0.15,
		SOLMinSignals:       2,
		SOLMaxEntryMinutes:  3,
		SOLMinTicks:         15,
		SOLMinBounce:        0.002,

		XRPCatalystExpiry:       60 * time.Minute,
		XRPBoost:                0.18,
		XRPNoCatalystMinSignals: 2,
	}
}

// MinEdge is the larger of the Kelly and percentage edge floors.
func (p Params) MinEdge() float64 {
	return max(p.MinKellyEdge, p.MinEdgePct)
}

// withinHours reports whether hour falls in [start, end), wrapping past
// midnight when start > end.
func withinHours(hour, start, end int) bool {
	if start <= end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

// InActiveHours reports whether t falls inside the directional trading hours.
// It always returns true when the gate is disabled.
func (p Params) InActiveHours(t time.Time) bool {
	if !p.ActiveHoursEnabled {
		return true
	}
	loc := p.ActiveHoursLocation
	if loc == nil {
		loc = time.UTC
	}
	return withinHours(t.In(loc).Hour(), p.ActiveHoursStart, p.ActiveHoursEnd)
}

// easternTime loads America/New_York, falling back to UTC when the tz
// database is unavailable.
func easternTime() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.UTC
	}
	return loc
}

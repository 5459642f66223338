package strategy

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// Context is the per-asset information the router gathers for one
// evaluation. Nil pointers mean the value is unavailable.
type Context struct {
	Asset           domain.Asset
	SpotPrice       *float64
	WindowOpenPrice *float64
	PctMove         *float64
	FundingRate     *float64
	BTCNeutralOrUp  bool
	SpotHistory     []float64
	Bankroll        float64
	Memo            domain.SignalMemo
	Catalyst        domain.CatalystFlag
	Now             time.Time
}

// Evaluator combines the base and asset-specific signals into a Decision.
// It holds no mutable state and is safe for concurrent use.
type Evaluator struct {
	params Params
	logger *slog.Logger
}

// NewEvaluator creates an Evaluator with the given thresholds.
func NewEvaluator(params Params, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		params: params,
		logger: logger.With(slog.String("component", "evaluator")),
	}
}

// Params returns the thresholds the evaluator was built with.
func (e *Evaluator) Params() Params { return e.params }

// Evaluate decides whether market carries a tradeable edge. It never
// fails: missing inputs disable the signals that need them.
func (e *Evaluator) Evaluate(m domain.Market, sc Context) domain.Decision {
	p := e.params
	now := sc.Now
	if now.IsZero() {
		now = time.Now()
	}
	asset := sc.Asset
	if asset == "" {
		asset = ClassifyAsset(m.Question)
	}

	if m.YesBook == nil {
		return domain.NoTrade(asset, "Missing order book")
	}
	mid, ok := m.YesBook.Mid()
	if !ok || mid <= 0 || mid >= 1 {
		return domain.NoTrade(asset, "No mid price available")
	}

	if directional(asset) && !p.InActiveHours(now) {
		return domain.NoTrade(asset, fmt.Sprintf("Outside active hours (%d:00-%d:00): directional strategies disabled",
			p.ActiveHoursStart, p.ActiveHoursEnd))
	}

	var carrySig, lagSig, squeezeSig, catalystSig signal
	switch asset {
	case domain.AssetBTC:
		if sc.SpotPrice != nil && sc.WindowOpenPrice != nil && sc.PctMove != nil {
			if abs(*sc.PctMove) > p.BTCMaxEntryMove {
				e.logger.Info("strategy: btc move already priced in",
					slog.Float64("pct_move", *sc.PctMove))
				d := domain.NoTrade(asset, "BTC_MOMENTUM_MAX_ENTRY kill switch")
				d.PctMoveFromOpen = *sc.PctMove
				return d
			}
			carrySig = momentumCarry(p, *sc.SpotPrice, *sc.WindowOpenPrice, sc.SpotHistory)
		}
	case domain.AssetETH:
		lagSig = lagCarry(p, sc.Memo, mid, now)
	case domain.AssetSOL:
		if sc.FundingRate != nil {
			squeezeSig = squeeze(p, m, *sc.FundingRate, sc.BTCNeutralOrUp, now)
		}
	case domain.AssetXRP:
		catalystSig = catalyst(p, sc.Catalyst, now)
		if p.XRPRequireCatalyst && !catalystSig.fired {
			return domain.NoTrade(asset, "XRP: no catalyst active, no trade")
		}
	}

	obSig := orderBookImbalance(p, m.YesBook, m.NoBook)
	momSig := momentum(p, m.Ticks)
	volFired, volRatio := volumeSpike(p, m.Ticks)

	side, agree := consensus(obSig.side, momSig.side,
		carrySig.side, lagSig.side, squeezeSig.side, catalystSig.side)

	boost := p.BaseKellyBoost
	switch {
	case lagSig.fired:
		boost = p.ETHBoost
	case squeezeSig.fired:
		boost = p.SOLBoost
	case catalystSig.fired:
		boost = p.XRPBoost
	case sc.FundingRate != nil && *sc.FundingRate < p.FundingBoostBelow && side == domain.SideYes:
		boost = p.BaseKellyBoost + p.FundingBoostExtra
	}
	bankroll := sc.Bankroll
	if bankroll <= 0 {
		bankroll = p.Bankroll
	}
	k := kelly(p, mid, side, boost, bankroll)

	signals := domain.Signals{
		OBImbalance:   obSig.fired,
		Momentum:      momSig.fired,
		VolumeSpike:   volFired,
		Kelly:         k.fired,
		MomentumCarry: carrySig.fired,
		LagCarry:      lagSig.fired,
		Squeeze:       squeezeSig.fired,
		Catalyst:      catalystSig.fired,
	}
	count := signals.BaseCount() + strategyCredit(signals)
	need := p.minSignals(asset, signals)
	minEdge := p.MinEdge()

	hasEdge := count >= need &&
		k.edge >= minEdge &&
		agree &&
		side != domain.SideNone &&
		k.size >= p.MinBet

	d := domain.Decision{
		HasEdge:         hasEdge,
		Side:            side,
		SignalCount:     count,
		MinSignals:      need,
		Signals:         signals,
		DirectionsAgree: agree,
		Strategy:        strategyLabel(signals),
		Asset:           asset,
		EstimatedProb:   k.estimated,
		ImpliedProb:     k.implied,
		KellyEdge:       k.edge,
		KellySize:       k.size,
		EntryPrice:      mid,
		Reason:          buildReason(signals, agree, k.edge),
	}
	if sc.SpotPrice != nil {
		d.SpotPrice = *sc.SpotPrice
	}
	if sc.PctMove != nil {
		d.PctMoveFromOpen = *sc.PctMove
	}
	if sc.FundingRate != nil {
		d.FundingRate = *sc.FundingRate
	}
	if asset == domain.AssetSOL && len(m.Ticks) > 0 {
		d.RSI = RSI(m.TickPrices(), p.RSIPeriod)
	}

	e.logger.Debug("strategy: signals",
		slog.String("asset", string(asset)),
		slog.String("condition_id", m.ConditionID),
		slog.Bool("ob", obSig.fired),
		slog.Bool("momentum", momSig.fired),
		slog.Float64("volume_ratio", volRatio),
		slog.Float64("kelly_edge", k.edge),
		slog.String("side", string(side)),
		slog.Bool("agree", agree),
		slog.Int("count", count),
		slog.Int("need", need),
		slog.Bool("has_edge", hasEdge),
	)
	return d
}

// directional reports whether the asset's strategy is subject to the
// active-hours gate.
func directional(a domain.Asset) bool {
	return a == domain.AssetBTC || a == domain.AssetETH || a == domain.AssetSOL
}

// strategyCredit is the extra signal count an asset-specific signal is
// worth. Only the strongest applies.
func strategyCredit(s domain.Signals) int {
	switch {
	case s.LagCarry:
		return 2
	case s.Catalyst:
		return 3
	case s.MomentumCarry, s.Squeeze:
		return 1
	default:
		return 0
	}
}

// minSignals returns the effective signal count an asset needs.
func (p Params) minSignals(asset domain.Asset, s domain.Signals) int {
	need := p.MinEdgeSignals
	switch asset {
	case domain.AssetSOL:
		need = p.SOLMinSignals
	case domain.AssetXRP:
		need = p.XRPNoCatalystMinSignals
	}
	if s.LagCarry || s.Catalyst {
		need = 1
	}
	if s.Squeeze {
		need = p.SOLMinSignals
	}
	return need
}

func strategyLabel(s domain.Signals) string {
	switch {
	case s.MomentumCarry:
		return domain.StrategyBTCMomentum
	case s.LagCarry:
		return domain.StrategyETHLag
	case s.Squeeze:
		return domain.StrategySOLSqueeze
	case s.Catalyst:
		return domain.StrategyXRPCatalyst
	default:
		return ""
	}
}

func buildReason(s domain.Signals, agree bool, edge float64) string {
	var fired []string
	for _, f := range []struct {
		on   bool
		name string
	}{
		{s.OBImbalance, "OB_IMBALANCE"},
		{s.Momentum, "MOMENTUM"},
		{s.VolumeSpike, "VOLUME_SPIKE"},
		{s.Kelly, "KELLY"},
		{s.MomentumCarry, domain.StrategyBTCMomentum},
		{s.LagCarry, domain.StrategyETHLag},
		{s.Squeeze, domain.StrategySOLSqueeze},
		{s.Catalyst, domain.StrategyXRPCatalyst},
	} {
		if f.on {
			fired = append(fired, f.name)
		}
	}
	if !agree {
		fired = append(fired, "DIRECTION_CONFLICT")
	}
	return fmt.Sprintf("Signals: %s | Kelly edge: %.2f%%", strings.Join(fired, ", "), edge*100)
}

package strategy

import (
	"github.com/alanyoungcy/updownbot/internal/domain"
)

// signal is the outcome of one directional check.
type signal struct {
	fired bool
	side  domain.Side
}

var noSignal = signal{}

func fire(side domain.Side) signal {
	return signal{fired: true, side: side}
}

// bookDirection classifies a book by the share of top-of-book notional on
// the bid side. ok is false when the book has no notional at all.
func bookDirection(b *domain.OrderBook, levels int, threshold float64, bidHeavy, askHeavy domain.Side) (side domain.Side, ok bool) {
	bid, ask := b.DepthUSD(levels)
	total := bid + ask
	if total == 0 {
		return domain.SideNone, false
	}
	switch {
	case bid/total >= threshold:
		return bidHeavy, true
	case ask/total >= threshold:
		return askHeavy, true
	default:
		return domain.SideNone, true
	}
}

// orderBookImbalance compares top-of-book bid and ask notional on the yes
// book. When the no book is present and has its own imbalance, it must point
// the same way (a bid-heavy no book is bearish). A balanced yes book falls
// back to an extreme mid.
func orderBookImbalance(p Params, yes, no *domain.OrderBook) signal {
	side, ok := bookDirection(yes, p.OBDepthLevels, p.OBImbalanceThreshold, domain.SideYes, domain.SideNo)
	if !ok {
		return noSignal
	}

	if side != domain.SideNone && no != nil {
		noSide, noOK := bookDirection(no, p.OBDepthLevels, p.OBImbalanceThreshold, domain.SideNo, domain.SideYes)
		if noOK && noSide != domain.SideNone && noSide != side {
			return noSignal
		}
	}
	if side != domain.SideNone {
		return fire(side)
	}

	if mid, ok := yes.Mid(); ok {
		switch {
		case mid < p.OBFallbackLow:
			return fire(domain.SideYes)
		case mid > p.OBFallbackHigh:
			return fire(domain.SideNo)
		}
	}
	return noSignal
}

// momentum looks at the last MomentumWindow tick prices and fires when the
// net move is large enough and most deltas point the same way.
func momentum(p Params, ticks []domain.PriceTick) signal {
	w := p.MomentumWindow
	if w < 2 || len(ticks) < w+1 {
		return noSignal
	}
	window := ticks[len(ticks)-w:]
	start, end := window[0].Price, window[len(window)-1].Price

	var move float64
	if start > 0 {
		move = (end - start) / start
	}

	var up, down int
	for i := 1; i < len(window); i++ {
		switch d := window[i].Price - window[i-1].Price; {
		case d > 0:
			up++
		case d < 0:
			down++
		}
	}
	consistency := float64(max(up, down)) / float64(len(window)-1)

	if abs(move) < p.MomentumMinMove || consistency < p.MomentumConsistency {
		return noSignal
	}
	if move > 0 {
		return fire(domain.SideYes)
	}
	return fire(domain.SideNo)
}

// volumeSpike compares the latest tick volume against the mean of the
// preceding VolumeWindow ticks. It returns whether it fired and the ratio.
func volumeSpike(p Params, ticks []domain.PriceTick) (bool, float64) {
	w := p.VolumeWindow
	if w < 1 || len(ticks) < w+1 {
		return false, 0
	}
	baseline := ticks[len(ticks)-w-1 : len(ticks)-1]
	var sum float64
	for _, t := range baseline {
		sum += t.Volume
	}
	if sum == 0 {
		return false, 0
	}
	ratio := ticks[len(ticks)-1].Volume / (sum / float64(w))
	return ratio >= p.VolumeSpikeMultiplier, ratio
}

// kellyResult is the probability and sizing estimate for a side.
type kellyResult struct {
	estimated float64
	implied   float64
	edge      float64
	size      float64
	fired     bool
}

// kelly estimates the edge of buying side at the yes mid and sizes the bet.
// The estimated probability is the implied one plus boost, capped at 0.95.
func kelly(p Params, mid float64, side domain.Side, boost, bankroll float64) kellyResult {
	if side == domain.SideNone || mid <= 0 || mid >= 1 {
		return kellyResult{}
	}
	price := mid
	if side == domain.SideNo {
		price = 1 - mid
	}
	est := min(price+boost, 0.95)
	b := (1 - price) / price
	f := (est*(b+1) - 1) / b
	if f <= 0 {
		return kellyResult{estimated: est, implied: price}
	}
	edge := est - price

	var frac float64
	switch p.SizingMode {
	case SizingKelly:
		frac = f
	case SizingBankrollPct:
		frac = min(0.08, max(0.02, edge+0.02))
	default:
		frac = f * p.KellyFraction
	}
	size := max(p.MinBet, min(frac*bankroll, p.MaxBet))

	return kellyResult{
		estimated: est,
		implied:   price,
		edge:      edge,
		size:      size,
		fired:     edge >= p.MinKellyEdge,
	}
}

// consensus returns the common side of every directional signal. agree is
// false when two sides conflict; with no directional signal the result is
// SideNone with agree true.
func consensus(sides ...domain.Side) (side domain.Side, agree bool) {
	for _, s := range sides {
		if s == domain.SideNone {
			continue
		}
		if side == domain.SideNone {
			side = s
			continue
		}
		if s != side {
			return domain.SideNone, false
		}
	}
	return side, true
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

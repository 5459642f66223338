package strategy

import (
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// momentumCarry fires when BTC spot has moved at least BTCMomentumThreshold
// from the window open. With enough recent spot history the last
// BTCConsistencyWindow prices must also mostly step in that direction.
func momentumCarry(p Params, spot, open float64, history []float64) signal {
	if open <= 0 {
		return noSignal
	}
	pct := (spot - open) / open

	var side domain.Side
	switch {
	case pct >= p.BTCMomentumThreshold:
		side = domain.SideYes
	case pct <= -p.BTCMomentumThreshold:
		side = domain.SideNo
	default:
		return noSignal
	}

	n := p.BTCConsistencyWindow
	if n >= 2 && len(history) >= n {
		recent := history[len(history)-n:]
		aligned := 0
		for i := 1; i < len(recent); i++ {
			d := recent[i] - recent[i-1]
			if (side == domain.SideYes && d > 0) || (side == domain.SideNo && d < 0) {
				aligned++
			}
		}
		if float64(aligned)/float64(n-1) < p.BTCConsistencyMin {
			return noSignal
		}
	}
	return fire(side)
}

// lagCarry fires on ETH when a fresh BTC memo exists and ETH odds have not
// yet repriced away from even.
func lagCarry(p Params, memo domain.SignalMemo, mid float64, now time.Time) signal {
	if !memo.Live(now, p.ETHLagExpiry) {
		return noSignal
	}
	// Repricing is measured toward the memo side. A market leaning the other
	// way has not repriced and still fires while inside the band.
	moved := mid - 0.5
	if memo.Side == domain.SideNo {
		moved = -moved
	}
	if moved > p.ETHMaxRepricing || moved < -p.ETHMaxRepricing {
		return noSignal
	}
	return fire(memo.Side)
}

// squeeze fires YES on SOL when shorts are paying, BTC is not falling, the
// window has just opened, and an oversold market shows a bounce off its
// local low.
func squeeze(p Params, m domain.Market, funding float64, btcNeutralOrUp bool, now time.Time) signal {
	if funding > p.SOLFundingThreshold || !btcNeutralOrUp {
		return noSignal
	}
	if now.Sub(m.WindowStart()).Minutes() > p.SOLMaxEntryMinutes {
		return noSignal
	}
	prices := m.TickPrices()
	if len(prices) < max(p.SOLMinTicks, 3) {
		return noSignal
	}
	if RSI(prices, p.RSIPeriod) >= p.SOLRSIOversold {
		return noSignal
	}
	recent := prices[len(prices)-3:]
	low := min(recent[0], recent[1], recent[2])
	if low <= 0 {
		return noSignal
	}
	if (recent[2]-low)/low < p.SOLMinBounce {
		return noSignal
	}
	return fire(domain.SideYes)
}

// catalyst fires on XRP while an externally set catalyst flag is active and
// unexpired.
func catalyst(p Params, flag domain.CatalystFlag, now time.Time) signal {
	if !flag.Active || flag.Expired(now, p.XRPCatalystExpiry) {
		return noSignal
	}
	return fire(flag.Side())
}

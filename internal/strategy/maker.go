package strategy

import (
	"math"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// MakerParams configures the off-hours maker pair quoting.
type MakerParams struct {
	Spread        float64
	HoursStart    int
	HoursEnd      int
	Location      *time.Location
	MaxSize       float64
	MaxPerTrade   float64
	MaxVolatility float64
	VolWindow     int
}

// MakerQuote is one resting buy order of a maker pair.
type MakerQuote struct {
	Side    domain.Side
	TokenID string
	Price   float64
	Shares  float64
}

// InMakerHours reports whether t falls in the maker window, which usually
// wraps past midnight.
func (mp MakerParams) InMakerHours(t time.Time) bool {
	loc := mp.Location
	if loc == nil {
		loc = time.UTC
	}
	return withinHours(t.In(loc).Hour(), mp.HoursStart, mp.HoursEnd)
}

// LowVolatility reports whether the sample standard deviation of the last
// VolWindow tick prices is below MaxVolatility. Too few ticks is not low.
func (mp MakerParams) LowVolatility(ticks []domain.PriceTick) bool {
	n := mp.VolWindow
	if n < 2 || len(ticks) < n {
		return false
	}
	window := ticks[len(ticks)-n:]
	var sum float64
	for _, t := range window {
		sum += t.Price
	}
	mean := sum / float64(n)
	var ss float64
	for _, t := range window {
		ss += (t.Price - mean) * (t.Price - mean)
	}
	return math.Sqrt(ss/float64(n-1)) < mp.MaxVolatility
}

// MakerEligible reports whether the maker strategy may quote this asset.
func MakerEligible(a domain.Asset) bool {
	return a == domain.AssetBTC || a == domain.AssetETH
}

// Quotes prices a buy on each side half the target spread below its fair
// value. ok is false when the market has no usable mid.
func (mp MakerParams) Quotes(m domain.Market) (yes, no MakerQuote, ok bool) {
	mid, has := m.YesBook.Mid()
	if !has || mid <= 0 || mid >= 1 {
		return MakerQuote{}, MakerQuote{}, false
	}
	half := mp.Spread / 2
	size := min(mp.MaxSize, mp.MaxPerTrade)

	yesPrice := round4(max(0.01, mid-half))
	noPrice := round4(max(0.01, (1-mid)-half))
	yes = MakerQuote{Side: domain.SideYes, TokenID: m.YesTokenID, Price: yesPrice, Shares: round4(size / yesPrice)}
	no = MakerQuote{Side: domain.SideNo, TokenID: m.NoTokenID, Price: noPrice, Shares: round4(size / noPrice)}
	return yes, no, true
}

func round4(x float64) float64 {
	return math.Round(x*1e4) / 1e4
}

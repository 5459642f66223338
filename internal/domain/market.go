package domain

import "time"

// WindowLength is the lifetime of one Up/Down market window.
const WindowLength = 15 * time.Minute

// Asset is the underlying crypto asset a market resolves on.
type Asset string

const (
	AssetBTC     Asset = "BTC"
	AssetETH     Asset = "ETH"
	AssetSOL     Asset = "SOL"
	AssetXRP     Asset = "XRP"
	AssetUnknown Asset = "UNKNOWN"
)

// Side is one of the two mutually exclusive outcomes of a binary market.
type Side string

const (
	SideNone Side = ""
	SideYes  Side = "YES"
	SideNo   Side = "NO"
)

// Opposite returns the other outcome. SideNone maps to itself.
func (s Side) Opposite() Side {
	switch s {
	case SideYes:
		return SideNo
	case SideNo:
		return SideYes
	default:
		return SideNone
	}
}

// PriceLevel is a single price+size entry in an orderbook.
type PriceLevel struct {
	Price float64
	Size  float64
}

// OrderBook holds one outcome token's book. Bids are sorted best (highest)
// first and asks best (lowest) first.
type OrderBook struct {
	Bids      []PriceLevel
	Asks      []PriceLevel
	Timestamp time.Time
}

// BestBid returns the highest bid.
func (b *OrderBook) BestBid() (float64, bool) {
	if b == nil || len(b.Bids) == 0 {
		return 0, false
	}
	return b.Bids[0].Price, true
}

// BestAsk returns the lowest ask.
func (b *OrderBook) BestAsk() (float64, bool) {
	if b == nil || len(b.Asks) == 0 {
		return 0, false
	}
	return b.Asks[0].Price, true
}

// Mid returns the average of best bid and best ask, or whichever side is
// present when the book is one-sided.
func (b *OrderBook) Mid() (float64, bool) {
	bid, hasBid := b.BestBid()
	ask, hasAsk := b.BestAsk()
	switch {
	case hasBid && hasAsk:
		return (bid + ask) / 2, true
	case hasBid:
		return bid, true
	case hasAsk:
		return ask, true
	default:
		return 0, false
	}
}

// Spread returns best ask minus best bid, or 0 when either side is missing
// or the book is crossed.
func (b *OrderBook) Spread() float64 {
	bid, hasBid := b.BestBid()
	ask, hasAsk := b.BestAsk()
	if !hasBid || !hasAsk || ask <= bid {
		return 0
	}
	return ask - bid
}

// DepthUSD sums price*size over the top n levels of each side. n <= 0 means
// all levels.
func (b *OrderBook) DepthUSD(n int) (bidUSD, askUSD float64) {
	if b == nil {
		return 0, 0
	}
	return notional(b.Bids, n), notional(b.Asks, n)
}

func notional(levels []PriceLevel, n int) float64 {
	if n <= 0 || n > len(levels) {
		n = len(levels)
	}
	var total float64
	for _, l := range levels[:n] {
		total += l.Price * l.Size
	}
	return total
}

// PriceTick is one point of a market's trade price history.
type PriceTick struct {
	Price  float64
	Volume float64
	Time   time.Time
}

// Market is a discovered and enriched 15-minute Up/Down market. It is a
// read-only snapshot for the duration of one evaluation.
type Market struct {
	ConditionID string
	Question    string
	Slug        string
	YesTokenID  string
	NoTokenID   string
	EndTime     time.Time
	YesBook     *OrderBook
	NoBook      *OrderBook
	Ticks       []PriceTick
}

// SecondsRemaining returns the time left until the market resolves.
func (m Market) SecondsRemaining(now time.Time) float64 {
	return m.EndTime.Sub(now).Seconds()
}

// WindowStart returns when the market's 15-minute window opened.
func (m Market) WindowStart() time.Time {
	return m.EndTime.Add(-WindowLength)
}

// TotalDepthUSD is the full yes-book notional on both sides.
func (m Market) TotalDepthUSD() float64 {
	bid, ask := m.YesBook.DepthUSD(0)
	return bid + ask
}

// TokenFor returns the outcome token bought to take the given side.
func (m Market) TokenFor(side Side) string {
	if side == SideNo {
		return m.NoTokenID
	}
	return m.YesTokenID
}

// SideOfToken maps an outcome token back to its side.
func (m Market) SideOfToken(tokenID string) (Side, bool) {
	switch tokenID {
	case m.YesTokenID:
		return SideYes, true
	case m.NoTokenID:
		return SideNo, true
	default:
		return SideNone, false
	}
}

// TickPrices returns the price series of the market's tick history.
func (m Market) TickPrices() []float64 {
	out := make([]float64, len(m.Ticks))
	for i, t := range m.Ticks {
		out[i] = t.Price
	}
	return out
}

// Listing is a market as the venue lists it, with the trading flags
// discovery filters on.
type Listing struct {
	Market          Market
	Active          bool
	Closed          bool
	AcceptingOrders bool
}

// Tradeable reports whether the venue is taking orders on the listing.
func (l Listing) Tradeable() bool {
	return l.Active && !l.Closed && l.AcceptingOrders
}

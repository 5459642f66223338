package strategy

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testParams() Params {
	p := DefaultParams()
	p.ActiveHoursLocation = time.UTC
	return p
}

// book builds an order book from {price, size} pairs.
func book(bids, asks [][2]float64) *domain.OrderBook {
	b := &domain.OrderBook{}
	for _, l := range bids {
		b.Bids = append(b.Bids, domain.PriceLevel{Price: l[0], Size: l[1]})
	}
	for _, l := range asks {
		b.Asks = append(b.Asks, domain.PriceLevel{Price: l[0], Size: l[1]})
	}
	return b
}

// bidHeavy has a 0.51 mid with most notional on the bid.
func bidHeavy() *domain.OrderBook {
	return book([][2]float64{{0.50, 1000}}, [][2]float64{{0.52, 100}})
}

// balanced has a 0.50 mid and no imbalance.
func balanced() *domain.OrderBook {
	return book([][2]float64{{0.49, 100}}, [][2]float64{{0.51, 100}})
}

func ticks(prices ...float64) []domain.PriceTick {
	out := make([]domain.PriceTick, len(prices))
	base := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	for i, p := range prices {
		out[i] = domain.PriceTick{Price: p, Time: base.Add(time.Duration(i) * time.Minute)}
	}
	return out
}

func fptr(v float64) *float64 { return &v }

type memBoard struct {
	mu       sync.Mutex
	memo     domain.SignalMemo
	catalyst domain.CatalystFlag
	records  int
}

func (b *memBoard) Memo() domain.SignalMemo {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.memo
}

func (b *memBoard) Catalyst() domain.CatalystFlag {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.catalyst
}

func (b *memBoard) RecordMemo(_ context.Context, memo domain.SignalMemo) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.memo = memo
	b.records++
}

func (b *memBoard) ExpireMemo(_ context.Context, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.memo.Fired && now.Sub(b.memo.At) > 90*time.Second {
		b.memo = domain.SignalMemo{}
		return true
	}
	return false
}

type fakePrices struct {
	spot    map[domain.Asset]float64
	open    map[domain.Asset]float64
	history map[domain.Asset][]float64
	funding float64
	fundErr error
}

func (f *fakePrices) Price(a domain.Asset) (float64, bool) {
	v, ok := f.spot[a]
	return v, ok
}

func (f *fakePrices) WindowOpenPrice(a domain.Asset) (float64, bool) {
	v, ok := f.open[a]
	return v, ok
}

func (f *fakePrices) PctMoveFromWindowOpen(a domain.Asset) (float64, bool) {
	s, ok1 := f.spot[a]
	o, ok2 := f.open[a]
	if !ok1 || !ok2 || o == 0 {
		return 0, false
	}
	return (s - o) / o, true
}

func (f *fakePrices) History(a domain.Asset) []float64 {
	return f.history[a]
}

func (f *fakePrices) FundingRate(_ context.Context, _ domain.Asset) (float64, error) {
	return f.funding, f.fundErr
}

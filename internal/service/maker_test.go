package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/strategy"
)

type heldBook map[string]bool

func (h heldBook) HasPosition(id string) bool { return h[id] }
func (h heldBook) AtCapacity() bool           { return false }

func testMakerParams() strategy.MakerParams {
	return strategy.MakerParams{
		Spread:        0.04,
		HoursStart:    23,
		HoursEnd:      5,
		Location:      time.UTC,
		MaxSize:       50,
		MaxPerTrade:   25,
		MaxVolatility: 0.005,
		VolWindow:     5,
	}
}

func makerMarket(id, question string, prices ...float64) domain.Market {
	m := domain.Market{
		ConditionID: id,
		Question:    question,
		YesTokenID:  id + "-yes",
		NoTokenID:   id + "-no",
		YesBook: &domain.OrderBook{
			Bids: []domain.PriceLevel{{Price: 0.54, Size: 100}},
			Asks: []domain.PriceLevel{{Price: 0.56, Size: 100}},
		},
	}
	for i, p := range prices {
		m.Ticks = append(m.Ticks, domain.PriceTick{Price: p, Time: pmNow.Add(time.Duration(i) * time.Minute)})
	}
	return m
}

func calmTicks() []float64 { return []float64{0.55, 0.551, 0.549, 0.55, 0.55} }

func TestMakerLoop_QuotesEligibleCalmMarkets(t *testing.T) {
	source := &fixedMarkets{markets: []domain.Market{
		makerMarket("btc", "Bitcoin Up or Down", calmTicks()...),
		makerMarket("eth", "Ethereum Up or Down", calmTicks()...),
		makerMarket("sol", "Solana Up or Down", calmTicks()...),
		makerMarket("wild", "Bitcoin Up or Down later", 0.40, 0.60, 0.45, 0.65, 0.50),
	}}
	orders := &recordingOrders{}
	l := NewMakerLoop(testMakerParams(), source, heldBook{"eth": true}, orders, time.Minute, 10*time.Minute, discardLogger())

	placed, err := l.Quote(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, placed)

	reqs := orders.requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "btc-yes", reqs[0].TokenID)
	assert.InDelta(t, 0.53, reqs[0].Price, 1e-9)
	assert.InDelta(t, 47.1698, reqs[0].Size, 1e-9)
	assert.Equal(t, "btc-no", reqs[1].TokenID)
	assert.InDelta(t, 0.43, reqs[1].Price, 1e-9)
	for _, r := range reqs {
		assert.Equal(t, domain.OrderSideBuy, r.Side)
		assert.Equal(t, domain.OrderTypeGTC, r.Type)
		assert.Equal(t, domain.StrategyMaker, r.Label)
	}
}

func TestMakerLoop_CooldownThenCancelsStalePair(t *testing.T) {
	ctx := context.Background()
	source := &fixedMarkets{markets: []domain.Market{makerMarket("btc", "Bitcoin Up or Down", calmTicks()...)}}
	orders := &recordingOrders{}
	l := NewMakerLoop(testMakerParams(), source, heldBook{}, orders, time.Minute, 10*time.Minute, discardLogger())
	now := pmNow
	l.now = func() time.Time { return now }

	placed, err := l.Quote(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, placed)

	now = now.Add(5 * time.Minute)
	placed, err = l.Quote(ctx)
	require.NoError(t, err)
	assert.Zero(t, placed)
	assert.Empty(t, orders.cancelled)

	now = now.Add(6 * time.Minute)
	placed, err = l.Quote(ctx)
	require.NoError(t, err)
	assert.Zero(t, placed)
	assert.Equal(t, []string{"order-1", "order-2"}, orders.cancelled)

	placed, err = l.Quote(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, placed)
}

func TestMakerLoop_NoLegFailureCancelsYesLeg(t *testing.T) {
	source := &fixedMarkets{markets: []domain.Market{makerMarket("btc", "Bitcoin Up or Down", calmTicks()...)}}
	orders := &recordingOrders{failOn: func(r domain.OrderRequest) error {
		if strings.HasSuffix(r.TokenID, "-no") {
			return errors.New("rejected")
		}
		return nil
	}}
	l := NewMakerLoop(testMakerParams(), source, heldBook{}, orders, time.Minute, 10*time.Minute, discardLogger())

	placed, err := l.Quote(context.Background())
	require.NoError(t, err)
	assert.Zero(t, placed)
	assert.Equal(t, []string{"order-1"}, orders.cancelled)
}

package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

type fixedHoldings struct {
	holdings []domain.Holding
	err      error
}

func (f fixedHoldings) Holdings(context.Context) ([]domain.Holding, error) {
	return f.holdings, f.err
}

type fixedMarkets struct {
	markets []domain.Market
	calls   int
}

func (f *fixedMarkets) Discover(context.Context) ([]domain.Market, error) {
	f.calls++
	return f.markets, nil
}

func price(v float64) *float64 { return &v }

func TestReconciler_AdoptsUntrackedHoldings(t *testing.T) {
	ctx := context.Background()
	pm := newTestPM(&fakePricer{}, &recordingOrders{}, PositionDeps{})
	_, err := pm.Open(ctx, testMarket("tracked", pmNow), yesDecision(0.5, 10), "o")
	require.NoError(t, err)

	markets := []domain.Market{testMarket("c1", pmNow), testMarket("c2", pmNow), testMarket("tracked", pmNow)}
	holdings := fixedHoldings{holdings: []domain.Holding{
		{TokenID: "c1-no", Size: 10, AvgPrice: price(0.42)},
		{TokenID: "c2-yes", Size: 0.005},
		{TokenID: "tracked-yes", Size: 20},
		{TokenID: "elsewhere", Size: 30},
	}}
	alerts := &memAlerts{}
	r := NewReconciler(holdings, pm, &fixedMarkets{}, nil, alerts, 0, discardLogger())
	r.now = fixedClock(pmNow)

	adopted, err := r.Reconcile(ctx, markets)
	require.NoError(t, err)
	require.Len(t, adopted, 1)

	got := adopted[0]
	assert.Equal(t, "c1", got.ConditionID)
	assert.Equal(t, domain.SideNo, got.Side)
	assert.Equal(t, domain.StrategyOrphan, got.Strategy)
	assert.InDelta(t, 0.42, got.EntryPrice, 1e-9)
	assert.InDelta(t, 4.2, got.SizeUSD, 1e-9)
	assert.True(t, pm.HasPosition("c1"))
	assert.False(t, pm.HasPosition("c2"))
	assert.Equal(t, []string{EventOrphanRecovered}, alerts.events)
}

func TestReconciler_DefaultsEntryToEven(t *testing.T) {
	ctx := context.Background()
	pm := newTestPM(&fakePricer{}, &recordingOrders{}, PositionDeps{})
	holdings := fixedHoldings{holdings: []domain.Holding{{TokenID: "c1-yes", Size: 8, ConditionID: "c1"}}}
	r := NewReconciler(holdings, pm, &fixedMarkets{}, nil, nil, 0, discardLogger())

	adopted, err := r.Reconcile(ctx, []domain.Market{testMarket("c1", pmNow)})
	require.NoError(t, err)
	require.Len(t, adopted, 1)
	assert.InDelta(t, 0.5, adopted[0].EntryPrice, 1e-9)

	again, err := r.Reconcile(ctx, []domain.Market{testMarket("c1", pmNow)})
	require.NoError(t, err)
	assert.Empty(t, again, "a second pass adopts nothing new")
}

func TestReconciler_HoldingsErrorChangesNothing(t *testing.T) {
	pm := newTestPM(&fakePricer{}, &recordingOrders{}, PositionDeps{})
	r := NewReconciler(fixedHoldings{err: errors.New("503")}, pm, &fixedMarkets{}, nil, nil, 0, discardLogger())

	adopted, err := r.Reconcile(context.Background(), []domain.Market{testMarket("c1", pmNow)})
	assert.Error(t, err)
	assert.Empty(t, adopted)
	assert.Empty(t, pm.Snapshot())
}

func TestReconciler_TickSkipsWhenLockHeld(t *testing.T) {
	source := &fixedMarkets{markets: []domain.Market{testMarket("c1", pmNow)}}
	pm := newTestPM(&fakePricer{}, &recordingOrders{}, PositionDeps{})
	holdings := fixedHoldings{holdings: []domain.Holding{{TokenID: "c1-yes", Size: 5}}}

	held := NewReconciler(holdings, pm, source, &fakeLocks{held: true}, nil, 0, discardLogger())
	require.NoError(t, held.tick(context.Background()))
	assert.Zero(t, source.calls)

	locks := &fakeLocks{}
	free := NewReconciler(holdings, pm, source, locks, nil, 0, discardLogger())
	require.NoError(t, free.tick(context.Background()))
	assert.Equal(t, 1, source.calls)
	assert.Equal(t, 1, locks.n)
	assert.True(t, pm.HasPosition("c1"))
}

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

func newTestGate(ledger *memLedger, audit *memAudit, alerts *memAlerts, now *time.Time) *RiskGate {
	// Interfaces stay nil when no fake is given.
	var (
		ls domain.LedgerStore
		as domain.AuditStore
		al Alerter
	)
	if ledger != nil {
		ls = ledger
	}
	if audit != nil {
		as = audit
	}
	if alerts != nil {
		al = alerts
	}
	g := NewRiskGate(RiskConfig{
		DailyLossLimitPct:  0.20,
		PerTradeMaxLossPct: 0.05,
		MaxTradesPerHour:   2,
		MaxBet:             25,
	}, ls, as, al, discardLogger())
	g.now = func() time.Time { return *now }
	return g
}

func TestRiskGate_DailyLossLimitBoundary(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)

	t.Run("loss of exactly twenty percent pauses", func(t *testing.T) {
		audit, alerts := &memAudit{}, &memAlerts{}
		g := newTestGate(&memLedger{sum: -200}, audit, alerts, &now)

		auth := g.Authorize(ctx, 1000, 10)
		assert.False(t, auth.Allowed)
		assert.Contains(t, auth.Reason, "Daily loss limit reached")
		assert.True(t, g.Paused())
		assert.Equal(t, 1, audit.count(EventRiskPaused))
		assert.Equal(t, []string{EventRiskPaused}, alerts.events)

		again := g.Authorize(ctx, 1000, 10)
		assert.False(t, again.Allowed)
		assert.Contains(t, again.Reason, "Trading paused")
		assert.Equal(t, 1, audit.count(EventRiskPaused), "pause is only reported once")
	})

	t.Run("loss of 19.9 percent trades on", func(t *testing.T) {
		g := newTestGate(&memLedger{sum: -199}, nil, nil, &now)
		auth := g.Authorize(ctx, 1000, 10)
		assert.True(t, auth.Allowed)
		assert.False(t, g.Paused())
	})
}

func TestRiskGate_ClosesCountTowardDailyLoss(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	g := newTestGate(&memLedger{sum: -150}, nil, nil, &now)

	require.True(t, g.Authorize(ctx, 1000, 10).Allowed)
	g.RecordClose(ctx, -50)

	auth := g.Authorize(ctx, 1000, 10)
	assert.False(t, auth.Allowed)
	assert.True(t, g.Paused())
}

func TestRiskGate_HourlyCap(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	g := newTestGate(nil, nil, nil, &now)

	require.True(t, g.Authorize(ctx, 1000, 10).Allowed)
	g.RecordOpen()
	g.RecordOpen()

	auth := g.Authorize(ctx, 1000, 10)
	assert.False(t, auth.Allowed)
	assert.Equal(t, "Max trades per hour (2) reached", auth.Reason)

	now = now.Add(time.Hour)
	assert.True(t, g.Authorize(ctx, 1000, 10).Allowed)
}

func TestRiskGate_PerTradeLimitReportsCappedSize(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	g := newTestGate(nil, nil, nil, &now)

	auth := g.Authorize(ctx, 1000, 80)
	assert.False(t, auth.Allowed)
	assert.InDelta(t, 50, auth.CappedSize, 1e-9)
	assert.Contains(t, auth.Reason, "exceeds per-trade limit")

	ok := g.Authorize(ctx, 1000, 50)
	assert.True(t, ok.Allowed)
	assert.InDelta(t, 50, ok.CappedSize, 1e-9)
}

func TestRiskGate_MaxPositionSize(t *testing.T) {
	now := time.Now()
	g := newTestGate(nil, nil, nil, &now)
	assert.InDelta(t, 10, g.MaxPositionSize(200), 1e-9)
	assert.InDelta(t, 25, g.MaxPositionSize(5000), 1e-9, "MaxBet caps large bankrolls")
}

func TestRiskGate_LossStreak(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	g := newTestGate(nil, nil, nil, &now)

	g.RecordClose(ctx, -5)
	g.RecordClose(ctx, 0)
	assert.Equal(t, 2, g.ConsecutiveLosses())

	g.RecordClose(ctx, 3)
	assert.Equal(t, 0, g.ConsecutiveLosses())
}

func TestRiskGate_RollDayClearsPause(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 23, 50, 0, 0, time.UTC)
	ledger := &memLedger{sum: -250}
	g := newTestGate(ledger, nil, nil, &now)

	require.False(t, g.Authorize(ctx, 1000, 10).Allowed)
	g.RecordClose(ctx, -1)
	require.True(t, g.Paused())

	g.RollDay(now.Add(5 * time.Minute))
	assert.True(t, g.Paused(), "same UTC day keeps the pause")

	now = now.Add(20 * time.Minute)
	ledger.sum = 0
	g.RollDay(now)
	assert.False(t, g.Paused())
	assert.Equal(t, 0, g.ConsecutiveLosses())
	assert.True(t, g.Authorize(ctx, 1000, 10).Allowed)
}

func TestRiskGate_LedgerErrorRetries(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	ledger := &memLedger{sumErr: errors.New("db down")}
	g := newTestGate(ledger, nil, nil, &now)

	assert.True(t, g.Authorize(ctx, 1000, 10).Allowed)
	assert.True(t, g.Authorize(ctx, 1000, 10).Allowed)
	assert.Equal(t, 2, ledger.sumCall)

	ledger.sumErr = nil
	ledger.sum = -300
	assert.False(t, g.Authorize(ctx, 1000, 10).Allowed)
	assert.Equal(t, 3, ledger.sumCall)
}

func TestRiskGate_Snapshot(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	g := newTestGate(&memLedger{sum: -12.346}, nil, nil, &now)
	g.RecordOpen()

	snap := g.Snapshot(ctx, 400)
	assert.InDelta(t, -12.35, snap.DailyPnL, 1e-9)
	assert.InDelta(t, 80, snap.DailyLossLimit, 1e-9)
	assert.Equal(t, 1, snap.TradesThisHour)
	assert.False(t, snap.Paused)
	assert.InDelta(t, 20, snap.MaxPositionSize, 1e-9)
}

func TestRiskGate_CloseAfterMidnightStillUnpauses(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 23, 50, 0, 0, time.UTC)
	ledger := &memLedger{sum: -250}
	g := newTestGate(ledger, nil, nil, &now)

	require.False(t, g.Authorize(ctx, 1000, 10).Allowed)
	require.True(t, g.Paused())

	// A monitor exit lands after midnight before the next trade.
	now = now.Add(20 * time.Minute)
	ledger.sum = 0
	g.RecordClose(ctx, -1)
	g.RollDay(now)

	assert.False(t, g.Paused())
	assert.Equal(t, 1, g.ConsecutiveLosses(), "only the new day's close counts")
	auth := g.Authorize(ctx, 1000, 10)
	assert.True(t, auth.Allowed, auth.Reason)
}

func TestRiskGate_SnapshotAfterMidnightStillUnpauses(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 23, 50, 0, 0, time.UTC)
	ledger := &memLedger{sum: -250}
	g := newTestGate(ledger, nil, nil, &now)

	require.False(t, g.Authorize(ctx, 1000, 10).Allowed)
	g.RecordClose(ctx, -1)

	now = now.Add(20 * time.Minute)
	ledger.sum = 0
	snap := g.Snapshot(ctx, 1000)
	assert.False(t, snap.Paused)
	assert.Empty(t, snap.PauseReason)
	assert.Zero(t, snap.ConsecutiveLosses)

	g.RollDay(now)
	auth := g.Authorize(ctx, 1000, 10)
	assert.True(t, auth.Allowed, auth.Reason)
}

func TestRiskGate_EmptyBankrollDoesNotPause(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	audit := &memAudit{}
	g := newTestGate(&memLedger{sum: 0}, audit, nil, &now)

	auth := g.Authorize(ctx, 0, 10)
	assert.False(t, auth.Allowed)
	assert.Contains(t, auth.Reason, "No bankroll available")
	assert.False(t, g.Paused())
	assert.Zero(t, audit.count(EventRiskPaused))

	assert.True(t, g.Authorize(ctx, 1000, 10).Allowed)
}

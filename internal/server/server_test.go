package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/server/handler"
	"github.com/alanyoungcy/updownbot/internal/service"
)

type fakeBook struct{ open []domain.Position }

func (b *fakeBook) Snapshot() []domain.Position { return b.open }
func (b *fakeBook) Stats() domain.SessionStats {
	return domain.SessionStats{Trades: 2, Wins: 1, Losses: 1, WinRate: 0.5, TotalPnL: 10}
}
func (b *fakeBook) TotalOpenExposure() float64 { return 50 }

type fakeLedger struct {
	opts domain.ListOpts
}

func (l *fakeLedger) List(_ context.Context, opts domain.ListOpts) ([]domain.LedgerEntry, error) {
	l.opts = opts
	return []domain.LedgerEntry{{
		ConditionID: "0xa",
		Side:        domain.SideYes,
		EntryPrice:  decimal.RequireFromString("0.5"),
		ExitPrice:   decimal.RequireFromString("0.8"),
		SizeUSD:     decimal.RequireFromString("50"),
		PnL:         decimal.RequireFromString("30"),
		Reason:      domain.ExitTakeProfit,
	}}, nil
}

type fakeRisk struct{}

func (fakeRisk) Snapshot(_ context.Context, bankroll float64) service.RiskSnapshot {
	return service.RiskSnapshot{DailyPnL: -12.5, DailyLossLimit: bankroll * 0.2, MaxPositionSize: 100}
}

type fakeBankroll float64

func (b fakeBankroll) Bankroll(context.Context) float64 { return float64(b) }

type fakeDecisions struct{ limit int }

func (d *fakeDecisions) RecentDecisions(limit int) []domain.DecisionRecord {
	d.limit = limit
	return []domain.DecisionRecord{{ConditionID: "0xa", Decision: domain.Decision{HasEdge: true, Side: domain.SideYes}}}
}

type fakeState struct{}

func (fakeState) Memo() domain.SignalMemo {
	return domain.SignalMemo{Fired: true, Side: domain.SideYes, PctMove: 0.4}
}
func (fakeState) Catalyst() domain.CatalystFlag { return domain.CatalystFlag{} }

type fakeStream struct{ after string }

func (s *fakeStream) StreamRead(_ context.Context, stream, lastID string, _ int) ([]domain.StreamMessage, error) {
	s.after = lastID
	rec, _ := json.Marshal(domain.DecisionRecord{ConditionID: "0xb"})
	return []domain.StreamMessage{
		{ID: "1-0", Payload: rec},
		{ID: "2-0", Payload: []byte("garbage")},
	}, nil
}

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return false, nil
}
func (denyLimiter) Wait(context.Context, string) error { return nil }

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fixture struct {
	ledger    *fakeLedger
	decisions *fakeDecisions
	stream    *fakeStream
}

func newTestHandler(cfg Config, checks map[string]handler.Check) (http.Handler, *fixture) {
	f := &fixture{ledger: &fakeLedger{}, decisions: &fakeDecisions{}, stream: &fakeStream{}}
	logger := quietLogger()
	book := &fakeBook{open: []domain.Position{{
		ConditionID:  "0xa",
		Side:         domain.SideYes,
		EntryPrice:   0.5,
		CurrentPrice: 0.6,
		Shares:       100,
		SizeUSD:      50,
		State:        domain.PositionOpen,
	}}}
	h := Handlers{
		Health:    handler.NewHealthHandler("trade", true, checks, nil, logger),
		Positions: handler.NewPositionHandler(book, f.ledger, logger),
		Risk:      handler.NewRiskHandler(fakeRisk{}, fakeBankroll(1000), book),
		Signals:   handler.NewSignalHandler(f.decisions, fakeState{}, f.stream, logger),
	}
	return newHandler(cfg, h, logger), f
}

func get(t *testing.T, h http.Handler, path string, hdr map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandler(Config{}, map[string]handler.Check{
		"postgres": func(context.Context) error { return nil },
	})
	rec, body := get(t, h, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["paper_trading"])
	assert.Equal(t, map[string]any{"postgres": "ok"}, body["checks"])

	h, _ = newTestHandler(Config{}, map[string]handler.Check{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})
	rec, body = get(t, h, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", body["status"])
}

func TestPositions(t *testing.T) {
	h, _ := newTestHandler(Config{}, nil)
	rec, body := get(t, h, "/api/positions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	positions := body["positions"].([]any)
	require.Len(t, positions, 1)
	p := positions[0].(map[string]any)
	assert.Equal(t, "0xa", p["condition_id"])
	assert.InDelta(t, 10.0, p["unrealized_pnl"], 1e-9)
	assert.Equal(t, 50.0, body["exposure_usd"])
	assert.Equal(t, 0.5, body["session"].(map[string]any)["win_rate"])
}

func TestTrades(t *testing.T) {
	h, f := newTestHandler(Config{}, nil)
	rec, body := get(t, h, "/api/trades?limit=1000&offset=5&since=2025-03-01T00:00:00Z", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 500, f.ledger.opts.Limit)
	assert.Equal(t, 5, f.ledger.opts.Offset)
	require.NotNil(t, f.ledger.opts.Since)
	assert.Nil(t, f.ledger.opts.Until)

	trades := body["trades"].([]any)
	require.Len(t, trades, 1)
	tr := trades[0].(map[string]any)
	assert.Equal(t, "30.00", tr["pnl"])
	assert.Equal(t, "TAKE_PROFIT", tr["reason"])

	rec, _ = get(t, h, "/api/trades?since=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRisk(t *testing.T) {
	h, _ := newTestHandler(Config{}, nil)
	rec, body := get(t, h, "/api/risk", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1000.0, body["bankroll"])
	assert.Equal(t, 200.0, body["daily_loss_limit_usdc"])
	assert.Equal(t, -12.5, body["daily_pnl"])
	assert.Equal(t, false, body["trading_paused"])
}

func TestSignalsAndDecisionStream(t *testing.T) {
	h, f := newTestHandler(Config{}, nil)
	rec, body := get(t, h, "/api/signals?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, f.decisions.limit)
	assert.Len(t, body["decisions"].([]any), 1)
	assert.Equal(t, true, body["memo"].(map[string]any)["fired"])

	rec, body = get(t, h, "/api/decisions?after=1-0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1-0", f.stream.after)
	entries := body["entries"].([]any)
	require.Len(t, entries, 1)
	assert.Equal(t, "1-0", entries[0].(map[string]any)["id"])
}

func TestAuth(t *testing.T) {
	h, _ := newTestHandler(Config{APIKey: "k3y"}, nil)

	rec, _ := get(t, h, "/api/risk", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, _ = get(t, h, "/api/risk", map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, _ = get(t, h, "/api/risk", map[string]string{"Authorization": "Bearer k3y"})
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = get(t, h, "/api/risk", map[string]string{"X-API-Key": "k3y"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = get(t, h, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitAndCORS(t *testing.T) {
	h, _ := newTestHandler(Config{Limiter: denyLimiter{}, RequestsPerMinute: 10, CORSOrigins: []string{"http://localhost:3000"}}, nil)

	rec, _ := get(t, h, "/api/positions", map[string]string{"Origin": "http://localhost:3000"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	rec, _ = get(t, h, "/api/positions", map[string]string{"Origin": "http://evil.example"})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	req := httptest.NewRequest(http.MethodOptions, "/api/positions", nil)
	out := httptest.NewRecorder()
	h.ServeHTTP(out, req)
	assert.Equal(t, http.StatusNoContent, out.Code)
}

func TestUnknownMethodRejected(t *testing.T) {
	h, _ := newTestHandler(Config{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/positions", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// Alerter delivers operator notifications. notify.Notifier satisfies it.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Notification event types.
const (
	EventRiskPaused      = "risk_paused"
	EventPositionOpened  = "position_opened"
	EventPositionClosed  = "position_closed"
	EventOrphanRecovered = "orphan_recovered"
)

// RiskConfig holds the limits the gate enforces.
type RiskConfig struct {
	DailyLossLimitPct  float64
	PerTradeMaxLossPct float64
	MaxTradesPerHour   int
	MaxBet             float64
}

// Authorization is the gate's verdict on a proposed trade size.
type Authorization struct {
	Allowed    bool
	Reason     string
	CappedSize float64
}

// RiskSnapshot is the gate state reported by the status API.
type RiskSnapshot struct {
	DailyPnL          float64 `json:"daily_pnl"`
	DailyLossLimit    float64 `json:"daily_loss_limit_usdc"`
	TradesThisHour    int     `json:"trades_this_hour"`
	Paused            bool    `json:"trading_paused"`
	PauseReason       string  `json:"pause_reason"`
	ConsecutiveLosses int     `json:"consecutive_losses"`
	MaxPositionSize   float64 `json:"max_position_size"`
}

// RiskGate authorizes trades against the daily loss limit, the hourly trade
// cap and the per-trade size limit. Once the daily limit trips the gate stays
// paused until the UTC date changes.
type RiskGate struct {
	cfg    RiskConfig
	ledger domain.LedgerStore
	audit  domain.AuditStore
	alerts Alerter
	now    func() time.Time
	logger *slog.Logger

	mu             sync.Mutex
	day            string // UTC date the daily counters belong to
	replayed       bool   // dailyPnL includes the ledger for day
	dailyPnL       float64
	hourStart      time.Time
	tradesThisHour int
	lossStreak     int
	paused         bool
	pauseReason    string
}

// NewRiskGate creates a RiskGate. ledger, audit and alerts may be nil; without
// a ledger the daily P&L only counts closes recorded by this process.
func NewRiskGate(cfg RiskConfig, ledger domain.LedgerStore, audit domain.AuditStore, alerts Alerter, logger *slog.Logger) *RiskGate {
	return &RiskGate{
		cfg:    cfg,
		ledger: ledger,
		audit:  audit,
		alerts: alerts,
		now:    time.Now,
		logger: logger.With(slog.String("component", "risk_gate")),
	}
}

// Authorize decides whether a trade of proposed USD may be opened.
func (g *RiskGate) Authorize(ctx context.Context, bankroll, proposed float64) Authorization {
	g.mu.Lock()
	defer g.mu.Unlock()

	pnl := g.dailyPnLLocked(ctx)
	if g.paused {
		return Authorization{Reason: "Trading paused: " + g.pauseReason}
	}
	if bankroll <= 0 {
		return Authorization{Reason: fmt.Sprintf("No bankroll available ($%.2f)", bankroll)}
	}

	limit := bankroll * g.cfg.DailyLossLimitPct
	if pnl <= -limit {
		g.paused = true
		g.pauseReason = fmt.Sprintf("Daily loss limit reached ($%.2f >= $%.2f)", -pnl, limit)
		g.logger.WarnContext(ctx, "risk_gate: trading paused until next UTC day",
			slog.Float64("daily_pnl", pnl),
			slog.Float64("limit", limit),
		)
		g.onPause(ctx, pnl, limit)
		return Authorization{Reason: g.pauseReason}
	}

	g.rollHourLocked()
	if g.tradesThisHour >= g.cfg.MaxTradesPerHour {
		return Authorization{Reason: fmt.Sprintf("Max trades per hour (%d) reached", g.cfg.MaxTradesPerHour)}
	}

	maxSize := bankroll * g.cfg.PerTradeMaxLossPct
	capped := min(proposed, maxSize)
	if proposed > maxSize {
		return Authorization{
			Reason:     fmt.Sprintf("Proposed size $%.2f exceeds per-trade limit ($%.2f)", proposed, maxSize),
			CappedSize: capped,
		}
	}
	return Authorization{Allowed: true, CappedSize: capped}
}

// RecordOpen counts a newly opened position against the hourly cap.
func (g *RiskGate) RecordOpen() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollHourLocked()
	g.tradesThisHour++
}

// RecordClose adds realized P&L to today's total and updates the loss
// streak. Call it before the close is appended to the ledger.
func (g *RiskGate) RecordClose(ctx context.Context, pnl float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dailyPnLLocked(ctx)
	g.dailyPnL += pnl
	if pnl <= 0 {
		g.lossStreak++
	} else {
		g.lossStreak = 0
	}
}

// ConsecutiveLosses returns the current losing-close streak.
func (g *RiskGate) ConsecutiveLosses() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lossStreak
}

// Paused reports whether the daily loss limit has tripped.
func (g *RiskGate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// MaxPositionSize is the largest USD size a single trade may have.
func (g *RiskGate) MaxPositionSize(bankroll float64) float64 {
	return min(bankroll*g.cfg.PerTradeMaxLossPct, g.cfg.MaxBet)
}

// RollDay clears the pause, daily P&L and loss streak once the UTC date has
// changed since the counters were last touched. It does nothing within a day.
func (g *RiskGate) RollDay(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollDayLocked(now)
}

func (g *RiskGate) rollDayLocked(now time.Time) {
	today := utcDay(now)
	if g.day == today {
		return
	}
	if g.day != "" {
		g.lossStreak = 0
		g.paused = false
		g.pauseReason = ""
		g.logger.Info("risk_gate: new UTC day, daily counters reset", slog.String("day", today))
	}
	g.day = today
	g.dailyPnL = 0
	g.replayed = false
}

// Snapshot reports the gate state for the given bankroll.
func (g *RiskGate) Snapshot(ctx context.Context, bankroll float64) RiskSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	pnl := g.dailyPnLLocked(ctx)
	g.rollHourLocked()
	return RiskSnapshot{
		DailyPnL:          round2(pnl),
		DailyLossLimit:    round2(bankroll * g.cfg.DailyLossLimitPct),
		TradesThisHour:    g.tradesThisHour,
		Paused:            g.paused,
		PauseReason:       g.pauseReason,
		ConsecutiveLosses: g.lossStreak,
		MaxPositionSize:   round2(g.MaxPositionSize(bankroll)),
	}
}

// dailyPnLLocked returns today's realized P&L. Every caller passes through
// here, so a UTC date change resets the day before anything else reads it.
// The ledger is replayed once per day; a failed replay is retried on the next
// call while closes recorded meanwhile still count.
func (g *RiskGate) dailyPnLLocked(ctx context.Context) float64 {
	now := g.now().UTC()
	g.rollDayLocked(now)
	if g.replayed || g.ledger == nil {
		return g.dailyPnL
	}

	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	total, err := g.ledger.SumPnLBetween(ctx, start, start.AddDate(0, 0, 1))
	if err != nil {
		g.logger.WarnContext(ctx, "risk_gate: could not load daily pnl", slog.String("error", err.Error()))
		return g.dailyPnL
	}
	g.replayed = true
	g.dailyPnL = total
	return total
}

func (g *RiskGate) rollHourLocked() {
	now := g.now()
	if g.hourStart.IsZero() || now.Sub(g.hourStart) >= time.Hour {
		g.hourStart = now
		g.tradesThisHour = 0
	}
}

func (g *RiskGate) onPause(ctx context.Context, pnl, limit float64) {
	if g.audit != nil {
		if err := g.audit.Log(ctx, EventRiskPaused, map[string]any{
			"daily_pnl": pnl,
			"limit":     limit,
			"reason":    g.pauseReason,
		}); err != nil {
			g.logger.WarnContext(ctx, "risk_gate: audit log failed", slog.String("error", err.Error()))
		}
	}
	if g.alerts != nil {
		if err := g.alerts.Notify(ctx, EventRiskPaused, "Trading paused", g.pauseReason); err != nil {
			g.logger.WarnContext(ctx, "risk_gate: notify failed", slog.String("error", err.Error()))
		}
	}
}

func utcDay(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

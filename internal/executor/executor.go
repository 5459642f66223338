package executor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/service"
	"github.com/alanyoungcy/updownbot/internal/strategy"
)

var _ strategy.TradeExecutor = (*Executor)(nil)

// RiskAuthorizer is the risk gate surface the executor consults before every
// entry. service.RiskGate implements it.
type RiskAuthorizer interface {
	RollDay(now time.Time)
	MaxPositionSize(bankroll float64) float64
	Authorize(ctx context.Context, bankroll, proposed float64) service.Authorization
	ConsecutiveLosses() int
	RecordOpen()
}

// PositionOpener tracks positions and their portfolio exposure.
// service.PositionManager implements it.
type PositionOpener interface {
	HasPosition(conditionID string) bool
	WouldExceedPortfolioRisk(additional, bankroll float64) bool
	Open(ctx context.Context, m domain.Market, d domain.Decision, orderID string) (domain.Position, error)
}

// Config holds the entry gates applied after the risk gate.
type Config struct {
	MinBet float64
	// MinEdge is the Kelly edge an entry normally needs; after
	// LossStreakThreshold consecutive losses it must beat MinEdge plus
	// LossStreakExtraEdge.
	MinEdge             float64
	LossStreakThreshold int
	LossStreakExtraEdge float64
	Slippage            float64
	DedupTTL            time.Duration
}

// Executor turns a decision with edge into a sized, risk-checked limit order
// and, once the order is accepted, an open position.
type Executor struct {
	cfg       Config
	risk      RiskAuthorizer
	positions PositionOpener
	orders    service.OrderSubmitter
	bankroll  strategy.BankrollSource
	alerts    service.Alerter
	dedup     *Dedup
	now       func() time.Time
	logger    *slog.Logger

	cleanupInterval time.Duration
}

// NewExecutor creates an Executor. alerts may be nil.
func NewExecutor(
	cfg Config,
	risk RiskAuthorizer,
	positions PositionOpener,
	orders service.OrderSubmitter,
	bankroll strategy.BankrollSource,
	alerts service.Alerter,
	logger *slog.Logger,
) *Executor {
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = 2 * time.Minute
	}
	return &Executor{
		cfg:             cfg,
		risk:            risk,
		positions:       positions,
		orders:          orders,
		bankroll:        bankroll,
		alerts:          alerts,
		dedup:           NewDedup(cfg.DedupTTL),
		now:             time.Now,
		logger:          logger.With(slog.String("component", "executor")),
		cleanupInterval: 30 * time.Second,
	}
}

// Run expires old dedup claims until ctx is cancelled.
func (e *Executor) Run(ctx context.Context) error {
	e.logger.Info("executor started")
	defer e.logger.Info("executor stopped")

	ticker := time.NewTicker(e.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.dedup.Cleanup()
		}
	}
}

// Execute runs the entry gates for d and, if they all pass, places the order
// and opens the position. It reports whether a position was opened; a gate
// that blocks the trade is not an error.
func (e *Executor) Execute(ctx context.Context, m domain.Market, d domain.Decision) (bool, error) {
	log := e.logger.With(
		slog.String("condition_id", m.ConditionID),
		slog.String("asset", string(d.Asset)),
		slog.String("side", string(d.Side)),
	)
	if !d.HasEdge || d.Side == domain.SideNone {
		return false, nil
	}
	if e.positions.HasPosition(m.ConditionID) {
		log.DebugContext(ctx, "executor: already holding market")
		return false, nil
	}
	if e.dedup.IsDuplicate(m.ConditionID) {
		log.InfoContext(ctx, "executor: duplicate submission suppressed")
		return false, nil
	}
	entered := false
	defer func() {
		if !entered {
			e.dedup.Release(m.ConditionID)
		}
	}()

	e.risk.RollDay(e.now())
	bankroll := e.bankroll.Bankroll(ctx)
	size := min(d.KellySize, e.risk.MaxPositionSize(bankroll))

	auth := e.risk.Authorize(ctx, bankroll, size)
	if !auth.Allowed {
		log.InfoContext(ctx, "executor: risk blocked", slog.String("reason", auth.Reason))
		return false, nil
	}
	if streak := e.risk.ConsecutiveLosses(); streak >= e.cfg.LossStreakThreshold && e.cfg.LossStreakThreshold > 0 {
		if need := e.cfg.MinEdge + e.cfg.LossStreakExtraEdge; d.KellyEdge < need {
			log.WarnContext(ctx, "executor: loss streak requires extra edge",
				slog.Int("streak", streak),
				slog.Float64("kelly_edge", d.KellyEdge),
				slog.Float64("required", need),
			)
			return false, nil
		}
	}
	if size < e.cfg.MinBet {
		log.InfoContext(ctx, "executor: size below minimum bet",
			slog.Float64("size", size),
			slog.Float64("min_bet", e.cfg.MinBet),
		)
		return false, nil
	}
	if e.positions.WouldExceedPortfolioRisk(size, bankroll) {
		log.InfoContext(ctx, "executor: portfolio risk limit", slog.Float64("size", size))
		return false, nil
	}

	limit, ok := LimitPrice(m, d.Side, e.cfg.Slippage)
	if !ok {
		log.WarnContext(ctx, "executor: no limit price, skipping")
		return false, nil
	}
	label := d.Strategy
	if label == "" {
		label = "BASE"
	}
	req := domain.OrderRequest{
		TokenID: m.TokenFor(d.Side),
		Price:   limit,
		Size:    round4(size / limit),
		Side:    domain.OrderSideBuy,
		Label:   label,
	}
	log.InfoContext(ctx, "executor: edge found, placing order",
		slog.String("strategy", label),
		slog.Int("signals", d.SignalCount),
		slog.Float64("size_usd", size),
		slog.Float64("limit", limit),
		slog.Float64("shares", req.Size),
	)

	res, err := e.orders.Submit(ctx, req)
	if err != nil {
		return false, fmt.Errorf("executor: submit %s: %w", m.ConditionID, err)
	}

	pos, err := e.positions.Open(ctx, m, d.WithSize(size), res.OrderID)
	if err != nil {
		return false, fmt.Errorf("executor: open %s after order %s: %w", m.ConditionID, res.OrderID, err)
	}
	e.risk.RecordOpen()
	entered = true

	if e.alerts != nil {
		msg := fmt.Sprintf("%s %s [%s] $%.2f @ %.4f", pos.Side, pos.Question, label, pos.SizeUSD, pos.EntryPrice)
		if err := e.alerts.Notify(ctx, service.EventPositionOpened, "Position opened", msg); err != nil {
			log.WarnContext(ctx, "executor: notify failed", slog.String("error", err.Error()))
		}
	}
	return true, nil
}

// LimitPrice is the most the executor pays for side: a little through the
// touch, but no more than Slippage above the side's mid, and never above
// 0.99. ok is false when the book lacks the needed quote.
func LimitPrice(m domain.Market, side domain.Side, slippage float64) (float64, bool) {
	if m.YesBook == nil {
		return 0, false
	}
	var limit float64
	switch side {
	case domain.SideYes:
		ask, ok := m.YesBook.BestAsk()
		if !ok {
			return 0, false
		}
		mid, ok := m.YesBook.Mid()
		if !ok {
			mid = ask
		}
		limit = min(ask*1.005, mid*(1+slippage))
	case domain.SideNo:
		bid, ok := m.YesBook.BestBid()
		if !ok {
			return 0, false
		}
		mid, ok := m.YesBook.Mid()
		if !ok {
			mid = bid
		}
		limit = min((1-bid)*1.005, (1-mid)*(1+slippage))
	default:
		return 0, false
	}
	limit = round4(min(limit, 0.99))
	if limit <= 0 {
		return 0, false
	}
	return limit, true
}

func round4(x float64) float64 {
	return math.Round(x*1e4) / 1e4
}

package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// MarketSource discovers tradeable markets, enriched with books and ticks.
type MarketSource interface {
	Discover(ctx context.Context) ([]domain.Market, error)
}

// PositionBook answers the position questions a scan needs.
type PositionBook interface {
	HasPosition(conditionID string) bool
	AtCapacity() bool
}

// TradeExecutor turns an accepted decision into an order and a position.
// entered is false when a downstream gate skipped the trade.
type TradeExecutor interface {
	Execute(ctx context.Context, m domain.Market, d domain.Decision) (entered bool, err error)
}

// BankrollSource reports the capital available for sizing.
type BankrollSource interface {
	Bankroll(ctx context.Context) float64
}

// Engine runs the scan loop: discover markets, route each one, and hand
// decisions with edge to the executor. A nil executor evaluates only.
type Engine struct {
	source   MarketSource
	router   *Router
	board    SignalBoard
	book     PositionBook
	executor TradeExecutor
	bankroll BankrollSource
	bus      domain.SignalBus
	interval time.Duration
	logger   *slog.Logger

	mu          sync.Mutex
	recent      []domain.DecisionRecord
	recentLimit int
	lastScan    time.Time
}

// EngineDeps groups the Engine's collaborators. Bus is optional.
type EngineDeps struct {
	Source   MarketSource
	Router   *Router
	Board    SignalBoard
	Book     PositionBook
	Executor TradeExecutor
	Bankroll BankrollSource
	Bus      domain.SignalBus
}

// NewEngine creates an Engine that scans every interval and remembers the
// last recentLimit decisions.
func NewEngine(deps EngineDeps, interval time.Duration, recentLimit int, logger *slog.Logger) *Engine {
	if recentLimit <= 0 {
		recentLimit = 200
	}
	return &Engine{
		source:      deps.Source,
		router:      deps.Router,
		board:       deps.Board,
		book:        deps.Book,
		executor:    deps.Executor,
		bankroll:    deps.Bankroll,
		bus:         deps.Bus,
		interval:    interval,
		recentLimit: recentLimit,
		logger:      logger.With(slog.String("component", "strategy_engine")),
	}
}

// Run scans immediately and then every interval until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.InfoContext(ctx, "strategy engine started", slog.Duration("interval", e.interval))
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		if err := e.Scan(ctx); err != nil && ctx.Err() == nil {
			e.logger.ErrorContext(ctx, "strategy: scan failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			e.logger.Info("strategy engine stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Scan performs one pass over the discovered markets. BTC markets go first
// so their memo is available to ETH markets in the same pass.
func (e *Engine) Scan(ctx context.Context) error {
	now := time.Now()
	if e.board.ExpireMemo(ctx, now) {
		e.logger.DebugContext(ctx, "strategy: btc memo expired")
	}

	markets, err := e.source.Discover(ctx)
	if err != nil {
		return fmt.Errorf("strategy: discover: %w", err)
	}
	sortBTCFirst(markets)

	bankroll := e.bankroll.Bankroll(ctx)
	var evaluated, entered int
	for _, m := range markets {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if e.book.HasPosition(m.ConditionID) {
			continue
		}
		if e.book.AtCapacity() {
			e.logger.InfoContext(ctx, "strategy: at position capacity, ending scan")
			break
		}

		d := e.router.Route(ctx, m, bankroll)
		evaluated++

		ok := false
		if d.HasEdge && e.executor != nil {
			ok, err = e.executor.Execute(ctx, m, d)
			if err != nil {
				e.logger.ErrorContext(ctx, "strategy: execute failed",
					slog.String("condition_id", m.ConditionID),
					slog.String("error", err.Error()),
				)
			}
			if ok {
				entered++
			}
		}
		e.record(ctx, m, d, ok)
	}

	e.mu.Lock()
	e.lastScan = now
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "strategy: scan complete",
		slog.Int("markets", len(markets)),
		slog.Int("evaluated", evaluated),
		slog.Int("entered", entered),
		slog.Float64("bankroll", bankroll),
	)
	return nil
}

// RecentDecisions returns up to limit most recent decisions, newest first.
func (e *Engine) RecentDecisions(limit int) []domain.DecisionRecord {
	if limit <= 0 {
		limit = 20
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.recent)
	if limit > n {
		limit = n
	}
	out := make([]domain.DecisionRecord, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, e.recent[i])
	}
	return out
}

// LastScan returns when the last scan finished.
func (e *Engine) LastScan() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastScan
}

func (e *Engine) record(ctx context.Context, m domain.Market, d domain.Decision, entered bool) {
	rec := domain.DecisionRecord{
		ConditionID: m.ConditionID,
		Question:    m.Question,
		Decision:    d,
		Entered:     entered,
		At:          time.Now().UTC(),
	}
	e.mu.Lock()
	e.recent = append(e.recent, rec)
	if len(e.recent) > e.recentLimit {
		e.recent = e.recent[len(e.recent)-e.recentLimit:]
	}
	e.mu.Unlock()

	if e.bus == nil || !d.HasEdge {
		return
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := e.bus.StreamAppend(ctx, domain.StreamDecisions, payload); err != nil {
		e.logger.WarnContext(ctx, "strategy: decision stream append failed", slog.String("error", err.Error()))
	}
}

// sortBTCFirst moves BTC markets to the front, keeping relative order.
func sortBTCFirst(markets []domain.Market) {
	sort.SliceStable(markets, func(i, j int) bool {
		bi := ClassifyAsset(markets[i].Question) == domain.AssetBTC
		bj := ClassifyAsset(markets[j].Question) == domain.AssetBTC
		return bi && !bj
	})
}

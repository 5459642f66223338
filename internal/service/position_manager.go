package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/strategy"
)

var _ strategy.PositionBook = (*PositionManager)(nil)

// TokenPricer quotes the last traded price of an outcome token.
type TokenPricer interface {
	LastTradePrice(ctx context.Context, tokenID string) (float64, error)
}

// OrderSubmitter places orders on the venue (or simulates them).
type OrderSubmitter interface {
	Submit(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error)
}

// CloseRecorder is told about every realized P&L.
type CloseRecorder interface {
	RecordClose(ctx context.Context, pnl float64)
}

// PositionConfig holds the capacity, exposure and exit settings.
type PositionConfig struct {
	MaxPositions     int
	MaxPortfolioRisk float64
	Exit             ExitRules
	PollInterval     time.Duration
	PriceTimeout     time.Duration
	ExitTimeout      time.Duration
	ExitSlippage     float64
}

// PositionDeps groups the PositionManager's collaborators. Only Pricer and
// Orders are required.
type PositionDeps struct {
	Pricer TokenPricer
	Orders OrderSubmitter
	Risk   CloseRecorder
	Store  domain.PositionStore
	Ledger domain.LedgerStore
	Bus    domain.SignalBus
	Audit  domain.AuditStore
	Alerts Alerter
}

// PositionManager owns every open position: it opens them after a confirmed
// order, polls their prices and exits them when a trigger fires.
type PositionManager struct {
	cfg    PositionConfig
	deps   PositionDeps
	now    func() time.Time
	logger *slog.Logger

	mu      sync.Mutex
	open    map[string]*domain.Position // keyed by condition id
	exiting map[string]bool
	closed  []domain.Position

	inflight sync.WaitGroup
}

// NewPositionManager creates an empty PositionManager.
func NewPositionManager(cfg PositionConfig, deps PositionDeps, logger *slog.Logger) *PositionManager {
	if cfg.PriceTimeout <= 0 {
		cfg.PriceTimeout = 10 * time.Second
	}
	if cfg.ExitTimeout <= 0 {
		cfg.ExitTimeout = 30 * time.Second
	}
	return &PositionManager{
		cfg:     cfg,
		deps:    deps,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "position_manager")),
		open:    make(map[string]*domain.Position),
		exiting: make(map[string]bool),
	}
}

// HasPosition reports whether an open position exists for the market.
func (pm *PositionManager) HasPosition(conditionID string) bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	_, ok := pm.open[conditionID]
	return ok
}

// HasToken reports whether an open position holds the outcome token.
func (pm *PositionManager) HasToken(tokenID string) bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	for _, p := range pm.open {
		if p.TokenID == tokenID {
			return true
		}
	}
	return false
}

// AtCapacity reports whether the open position count has reached the cap.
func (pm *PositionManager) AtCapacity() bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return len(pm.open) >= pm.cfg.MaxPositions
}

// TotalOpenExposure is the USD committed across open positions.
func (pm *PositionManager) TotalOpenExposure() float64 {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	var total float64
	for _, p := range pm.open {
		total += p.SizeUSD
	}
	return total
}

// WouldExceedPortfolioRisk reports whether adding additional USD would push
// open exposure past bankroll * MaxPortfolioRisk. Landing exactly on the cap
// is allowed.
func (pm *PositionManager) WouldExceedPortfolioRisk(additional, bankroll float64) bool {
	return pm.TotalOpenExposure()+additional > bankroll*pm.cfg.MaxPortfolioRisk
}

// Open records a position for an order that has been placed. The entry
// price is the evaluated mid of the chosen side.
func (pm *PositionManager) Open(ctx context.Context, m domain.Market, d domain.Decision, orderID string) (domain.Position, error) {
	entry := d.OutcomePrice()
	if entry <= 0 || entry >= 1 {
		return domain.Position{}, fmt.Errorf("position_manager: entry price %.4f: %w", entry, domain.ErrInvalidOrder)
	}
	pos := domain.Position{
		ConditionID: m.ConditionID,
		Question:    m.Question,
		Side:        d.Side,
		TokenID:     m.TokenFor(d.Side),
		EntryPrice:  entry,
		SizeUSD:     d.KellySize,
		Shares:      d.KellySize / entry,
		Strategy:    d.Strategy,
		OrderID:     orderID,
		EntryTime:   pm.now().UTC(),
		EndTime:     m.EndTime,
		State:       domain.PositionOpen,
	}
	if err := pm.insert(pos); err != nil {
		return domain.Position{}, err
	}

	pm.logger.InfoContext(ctx, "position_manager: position opened",
		slog.String("condition_id", pos.ConditionID),
		slog.String("side", string(pos.Side)),
		slog.String("strategy", pos.Strategy),
		slog.Float64("entry_price", pos.EntryPrice),
		slog.Float64("size_usd", pos.SizeUSD),
	)
	pm.persist(ctx, pos)
	pm.publish(ctx, EventPositionOpened, pos)
	return pos, nil
}

// Adopt inserts a position that was recovered rather than opened here.
func (pm *PositionManager) Adopt(ctx context.Context, pos domain.Position) error {
	if pos.State == "" {
		pos.State = domain.PositionOpen
	}
	if err := pm.insert(pos); err != nil {
		return err
	}
	pm.persist(ctx, pos)
	pm.publish(ctx, EventPositionOpened, pos)
	return nil
}

// Restore reloads open positions from the store. Positions already held in
// memory are left alone.
func (pm *PositionManager) Restore(ctx context.Context) (int, error) {
	if pm.deps.Store == nil {
		return 0, nil
	}
	positions, err := pm.deps.Store.GetOpen(ctx)
	if err != nil {
		return 0, fmt.Errorf("position_manager: restore: %w", err)
	}
	n := 0
	for _, p := range positions {
		if err := pm.insert(p); err == nil {
			n++
		}
	}
	if n > 0 {
		pm.logger.InfoContext(ctx, "position_manager: restored open positions", slog.Int("count", n))
	}
	return n, nil
}

func (pm *PositionManager) insert(pos domain.Position) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if _, ok := pm.open[pos.ConditionID]; ok {
		return fmt.Errorf("position_manager: open position for %s: %w", pos.ConditionID, domain.ErrAlreadyExists)
	}
	p := pos
	pm.open[pos.ConditionID] = &p
	return nil
}

// Monitor polls open positions every PollInterval until ctx is cancelled.
func (pm *PositionManager) Monitor(ctx context.Context) error {
	pm.logger.InfoContext(ctx, "position monitor started", slog.Duration("interval", pm.cfg.PollInterval))
	ticker := time.NewTicker(pm.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			pm.logger.Info("position monitor stopped")
			return nil
		case <-ticker.C:
			pm.CheckExits(ctx)
		}
	}
}

// CheckExits prices every open position concurrently and exits those whose
// trigger fired. A position whose price is unavailable is retried next poll.
func (pm *PositionManager) CheckExits(ctx context.Context) {
	targets := pm.exitCandidates()
	if len(targets) == 0 {
		return
	}

	var g errgroup.Group
	for _, pos := range targets {
		g.Go(func() error {
			pm.checkOne(ctx, pos)
			return nil
		})
	}
	_ = g.Wait()
}

func (pm *PositionManager) exitCandidates() []domain.Position {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	out := make([]domain.Position, 0, len(pm.open))
	for id, p := range pm.open {
		if !pm.exiting[id] {
			out = append(out, *p)
		}
	}
	return out
}

func (pm *PositionManager) checkOne(ctx context.Context, pos domain.Position) {
	priceCtx, cancel := context.WithTimeout(ctx, pm.cfg.PriceTimeout)
	price, err := pm.deps.Pricer.LastTradePrice(priceCtx, pos.TokenID)
	cancel()
	if err != nil || price <= 0 {
		attrs := []any{slog.String("condition_id", pos.ConditionID)}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		pm.logger.WarnContext(ctx, "position_manager: price unavailable", attrs...)
		return
	}

	pm.mu.Lock()
	if p, ok := pm.open[pos.ConditionID]; ok {
		p.CurrentPrice = price
		p.State = domain.PositionMonitoring
	}
	pm.mu.Unlock()

	now := pm.now()
	reason := EvaluateExit(pos, price, now, pm.cfg.Exit)
	if reason == domain.ExitNone {
		pm.logger.DebugContext(ctx, "position_manager: hold",
			slog.String("condition_id", pos.ConditionID),
			slog.Float64("price", price),
			slog.Float64("unrealized_pnl", domain.RealizedPnL(pos.EntryPrice, price, pos.Shares)),
			slog.Float64("seconds_left", pos.SecondsRemaining(now)),
		)
		return
	}
	pm.logger.InfoContext(ctx, "position_manager: exit triggered",
		slog.String("condition_id", pos.ConditionID),
		slog.String("reason", string(reason)),
		slog.Float64("entry_price", pos.EntryPrice),
		slog.Float64("price", price),
	)
	pm.exit(ctx, pos.ConditionID, price, true, reason)
}

// CloseAll exits every open position, pricing each one if possible and
// falling back to its entry price.
func (pm *PositionManager) CloseAll(ctx context.Context, reason domain.ExitReason) {
	targets := pm.exitCandidates()
	if len(targets) == 0 {
		return
	}
	pm.logger.InfoContext(ctx, "position_manager: closing all positions",
		slog.Int("count", len(targets)),
		slog.String("reason", string(reason)),
	)

	var g errgroup.Group
	for _, pos := range targets {
		g.Go(func() error {
			priceCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pm.cfg.PriceTimeout)
			price, err := pm.deps.Pricer.LastTradePrice(priceCtx, pos.TokenID)
			cancel()
			pm.exit(ctx, pos.ConditionID, price, err == nil && price > 0, reason)
			return nil
		})
	}
	_ = g.Wait()
}

// exit sells the position and closes it. It runs detached from ctx's
// cancellation so a shutdown cannot leave a half-closed position, and is
// tracked for Drain. A rejected sell leaves the position open and untouched.
func (pm *PositionManager) exit(ctx context.Context, conditionID string, price float64, priced bool, reason domain.ExitReason) {
	pm.mu.Lock()
	p, ok := pm.open[conditionID]
	if !ok || pm.exiting[conditionID] {
		pm.mu.Unlock()
		return
	}
	pm.exiting[conditionID] = true
	pos := *p
	pm.inflight.Add(1)
	pm.mu.Unlock()
	defer pm.inflight.Done()

	exitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pm.cfg.ExitTimeout)
	defer cancel()

	exitPrice := pos.EntryPrice
	if priced {
		exitPrice = price
	}
	req := domain.OrderRequest{
		TokenID: pos.TokenID,
		Price:   ExitMinPrice(exitPrice, pm.cfg.ExitSlippage),
		Size:    roundTo(pos.Shares, 4),
		Side:    domain.OrderSideSell,
		Label:   string(reason),
	}
	if _, err := pm.deps.Orders.Submit(exitCtx, req); err != nil {
		pm.logger.ErrorContext(exitCtx, "position_manager: exit order failed, retrying next poll",
			slog.String("condition_id", conditionID),
			slog.String("reason", string(reason)),
			slog.String("error", err.Error()),
		)
		pm.mu.Lock()
		delete(pm.exiting, conditionID)
		pm.mu.Unlock()
		return
	}

	pm.mu.Lock()
	pnl := p.Close(exitPrice, pm.now().UTC(), reason)
	closed := *p
	delete(pm.open, conditionID)
	delete(pm.exiting, conditionID)
	pm.closed = append(pm.closed, closed)
	pm.mu.Unlock()

	pm.logger.InfoContext(exitCtx, "position_manager: position closed",
		slog.String("condition_id", conditionID),
		slog.String("reason", string(reason)),
		slog.Float64("exit_price", exitPrice),
		slog.Float64("pnl", pnl),
	)

	if pm.deps.Risk != nil {
		pm.deps.Risk.RecordClose(exitCtx, pnl)
	}
	if pm.deps.Ledger != nil {
		if entry, ok := domain.NewLedgerEntry(closed); ok {
			if err := pm.deps.Ledger.Append(exitCtx, entry); err != nil {
				pm.logger.ErrorContext(exitCtx, "position_manager: ledger append failed",
					slog.String("condition_id", conditionID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	pm.persist(exitCtx, closed)
	pm.publish(exitCtx, EventPositionClosed, closed)
	if pm.deps.Alerts != nil {
		msg := fmt.Sprintf("%s %s closed [%s] pnl $%+.2f", closed.Side, closed.Question, reason, pnl)
		if err := pm.deps.Alerts.Notify(exitCtx, EventPositionClosed, "Position closed", msg); err != nil {
			pm.logger.WarnContext(exitCtx, "position_manager: notify failed", slog.String("error", err.Error()))
		}
	}
}

// Drain waits for in-flight exits to finish or ctx to expire.
func (pm *PositionManager) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		pm.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("position_manager: drain: %w", ctx.Err())
	}
}

// Snapshot returns copies of the open positions, oldest first.
func (pm *PositionManager) Snapshot() []domain.Position {
	pm.mu.Lock()
	out := make([]domain.Position, 0, len(pm.open))
	for _, p := range pm.open {
		out = append(out, *p)
	}
	pm.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].EntryTime.Before(out[j].EntryTime) })
	return out
}

// Closed returns copies of positions closed during this session.
func (pm *PositionManager) Closed() []domain.Position {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	out := make([]domain.Position, len(pm.closed))
	copy(out, pm.closed)
	return out
}

// Stats summarises the positions closed during this session.
func (pm *PositionManager) Stats() domain.SessionStats {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	var s domain.SessionStats
	for _, p := range pm.closed {
		if p.PnL == nil {
			continue
		}
		s.Trades++
		s.TotalPnL += *p.PnL
		if *p.PnL > 0 {
			s.Wins++
		} else {
			s.Losses++
		}
	}
	if s.Trades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Trades)
	}
	return s
}

func (pm *PositionManager) persist(ctx context.Context, pos domain.Position) {
	if pm.deps.Store == nil {
		return
	}
	if err := pm.deps.Store.Upsert(ctx, pos); err != nil {
		pm.logger.WarnContext(ctx, "position_manager: persist failed",
			slog.String("condition_id", pos.ConditionID),
			slog.String("error", err.Error()),
		)
	}
}

func (pm *PositionManager) publish(ctx context.Context, event string, pos domain.Position) {
	evt := map[string]any{
		"event":        event,
		"condition_id": pos.ConditionID,
		"side":         string(pos.Side),
		"entry_price":  pos.EntryPrice,
		"size_usd":     pos.SizeUSD,
		"strategy":     pos.Strategy,
	}
	if pos.PnL != nil {
		evt["pnl"] = *pos.PnL
		evt["reason"] = string(pos.ExitReason)
	}
	if pm.deps.Bus != nil {
		payload, _ := json.Marshal(evt)
		if err := pm.deps.Bus.Publish(ctx, domain.ChannelPositions, payload); err != nil {
			pm.logger.WarnContext(ctx, "position_manager: publish event failed",
				slog.String("condition_id", pos.ConditionID),
				slog.String("error", err.Error()),
			)
		}
	}
	if pm.deps.Audit != nil {
		if err := pm.deps.Audit.Log(ctx, event, evt); err != nil {
			pm.logger.WarnContext(ctx, "position_manager: audit log failed", slog.String("error", err.Error()))
		}
	}
}

// ExitMinPrice is the lowest price an exit sell accepts: the observed price
// less slippage, floored at one cent.
func ExitMinPrice(price, slippage float64) float64 {
	return roundTo(math.Max(price*(1-slippage), 0.01), 4)
}

func roundTo(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}

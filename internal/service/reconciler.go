package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/strategy"
)

// dustShares is the smallest holding worth adopting.
const dustShares = 0.01

const reconcileLockKey = "updownbot:lock:reconcile"

// HoldingsSource reports the outcome tokens the wallet holds on the venue.
type HoldingsSource interface {
	Holdings(ctx context.Context) ([]domain.Holding, error)
}

// Reconciler adopts venue-held positions the PositionManager does not know
// about, such as a maker leg that filled alone or a position left over from
// a previous run.
type Reconciler struct {
	holdings HoldingsSource
	pm       *PositionManager
	source   strategy.MarketSource
	locks    domain.LockManager
	alerts   Alerter
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewReconciler creates a Reconciler. locks and alerts may be nil.
func NewReconciler(holdings HoldingsSource, pm *PositionManager, source strategy.MarketSource,
	locks domain.LockManager, alerts Alerter, interval time.Duration, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		holdings: holdings,
		pm:       pm,
		source:   source,
		locks:    locks,
		alerts:   alerts,
		interval: interval,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "reconciler")),
	}
}

// Reconcile compares venue holdings with tracked positions and adopts every
// untracked holding that belongs to one of markets. A failed holdings query
// changes nothing.
func (r *Reconciler) Reconcile(ctx context.Context, markets []domain.Market) ([]domain.Position, error) {
	holdings, err := r.holdings.Holdings(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconciler: fetch holdings: %w", err)
	}

	byToken := make(map[string]domain.Market, 2*len(markets))
	for _, m := range markets {
		byToken[m.YesTokenID] = m
		byToken[m.NoTokenID] = m
	}

	var adopted []domain.Position
	for _, h := range holdings {
		if h.Size < dustShares || r.pm.HasToken(h.TokenID) {
			continue
		}
		m, ok := byToken[h.TokenID]
		if !ok {
			continue
		}
		side, ok := m.SideOfToken(h.TokenID)
		if !ok {
			continue
		}

		entry := 0.5
		if h.AvgPrice != nil && *h.AvgPrice > 0 {
			entry = *h.AvgPrice
		}
		conditionID := h.ConditionID
		if conditionID == "" {
			conditionID = m.ConditionID
		}
		if r.pm.HasPosition(conditionID) {
			continue
		}

		pos := domain.Position{
			ConditionID: conditionID,
			Question:    m.Question,
			Side:        side,
			TokenID:     h.TokenID,
			EntryPrice:  entry,
			SizeUSD:     h.Size * entry,
			Shares:      h.Size,
			Strategy:    domain.StrategyOrphan,
			EntryTime:   r.now().UTC(),
			EndTime:     m.EndTime,
			State:       domain.PositionOpen,
		}
		if err := r.pm.Adopt(ctx, pos); err != nil {
			if !errors.Is(err, domain.ErrAlreadyExists) {
				return adopted, fmt.Errorf("reconciler: adopt %s: %w", conditionID, err)
			}
			continue
		}
		adopted = append(adopted, pos)
		r.logger.WarnContext(ctx, "reconciler: orphan position adopted",
			slog.String("condition_id", conditionID),
			slog.String("side", string(side)),
			slog.Float64("shares", h.Size),
			slog.Float64("entry_price", entry),
		)
		if r.alerts != nil {
			msg := fmt.Sprintf("%s %.2f shares of %s", side, h.Size, m.Question)
			if err := r.alerts.Notify(ctx, EventOrphanRecovered, "Orphan position adopted", msg); err != nil {
				r.logger.WarnContext(ctx, "reconciler: notify failed", slog.String("error", err.Error()))
			}
		}
	}
	return adopted, nil
}

// Run reconciles every interval until ctx is cancelled. With a lock manager
// only one instance reconciles per tick.
func (r *Reconciler) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "reconciler started", slog.Duration("interval", r.interval))
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return nil
		case <-ticker.C:
			if err := r.tick(ctx); err != nil && ctx.Err() == nil {
				r.logger.WarnContext(ctx, "reconciler: pass failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (r *Reconciler) tick(ctx context.Context) error {
	if r.locks != nil {
		unlock, err := r.locks.Acquire(ctx, reconcileLockKey, r.interval)
		if errors.Is(err, domain.ErrLockHeld) {
			r.logger.DebugContext(ctx, "reconciler: another instance holds the lock")
			return nil
		}
		if err != nil {
			return err
		}
		defer unlock()
	}

	markets, err := r.source.Discover(ctx)
	if err != nil {
		return fmt.Errorf("reconciler: discover: %w", err)
	}
	adopted, err := r.Reconcile(ctx, markets)
	if err != nil {
		return err
	}
	if len(adopted) > 0 {
		r.logger.InfoContext(ctx, "reconciler: pass complete", slog.Int("adopted", len(adopted)))
	}
	return nil
}

package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/strategy"
)

// OrderPlacer submits and cancels resting orders.
type OrderPlacer interface {
	OrderSubmitter
	Cancel(ctx context.Context, orderID string) error
}

type makerPair struct {
	yesID, noID string
	placedAt    time.Time
}

// MakerLoop rests a buy on both outcomes of calm BTC and ETH markets during
// the quiet overnight hours.
type MakerLoop struct {
	params   strategy.MakerParams
	source   strategy.MarketSource
	book     strategy.PositionBook
	orders   OrderPlacer
	interval time.Duration
	cooldown time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu    sync.Mutex
	pairs map[string]makerPair
}

// NewMakerLoop creates a MakerLoop. A pair is left alone for cooldown before
// the market may be quoted again.
func NewMakerLoop(params strategy.MakerParams, source strategy.MarketSource, book strategy.PositionBook,
	orders OrderPlacer, interval, cooldown time.Duration, logger *slog.Logger) *MakerLoop {
	return &MakerLoop{
		params:   params,
		source:   source,
		book:     book,
		orders:   orders,
		interval: interval,
		cooldown: cooldown,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "maker")),
		pairs:    make(map[string]makerPair),
	}
}

// Run quotes every interval until ctx is cancelled.
func (l *MakerLoop) Run(ctx context.Context) error {
	l.logger.InfoContext(ctx, "maker loop started", slog.Duration("interval", l.interval))
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("maker loop stopped")
			return nil
		case <-ticker.C:
			if !l.params.InMakerHours(l.now()) {
				continue
			}
			if _, err := l.Quote(ctx); err != nil && ctx.Err() == nil {
				l.logger.ErrorContext(ctx, "maker: pass failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Quote places pairs on every eligible market and returns how many pairs
// were placed.
func (l *MakerLoop) Quote(ctx context.Context) (int, error) {
	markets, err := l.source.Discover(ctx)
	if err != nil {
		return 0, err
	}
	placed := 0
	for _, m := range markets {
		if !strategy.MakerEligible(strategy.ClassifyAsset(m.Question)) {
			continue
		}
		if l.book.HasPosition(m.ConditionID) || l.coolingDown(ctx, m.ConditionID) {
			continue
		}
		if !l.params.LowVolatility(m.Ticks) {
			continue
		}
		yes, no, ok := l.params.Quotes(m)
		if !ok {
			continue
		}
		if l.placePair(ctx, m, yes, no) {
			placed++
		}
	}
	return placed, nil
}

// coolingDown reports whether a recent pair still rests on the market. An
// expired pair's orders are cancelled and forgotten.
func (l *MakerLoop) coolingDown(ctx context.Context, conditionID string) bool {
	l.mu.Lock()
	pair, ok := l.pairs[conditionID]
	if ok && l.now().Sub(pair.placedAt) > l.cooldown {
		delete(l.pairs, conditionID)
	}
	l.mu.Unlock()
	if !ok {
		return false
	}
	if l.now().Sub(pair.placedAt) <= l.cooldown {
		return true
	}
	for _, id := range []string{pair.yesID, pair.noID} {
		if err := l.orders.Cancel(ctx, id); err != nil {
			l.logger.DebugContext(ctx, "maker: cancel stale leg failed",
				slog.String("order_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	return true
}

func (l *MakerLoop) placePair(ctx context.Context, m domain.Market, yes, no strategy.MakerQuote) bool {
	yesRes, err := l.orders.Submit(ctx, makerRequest(yes))
	if err != nil {
		l.logger.ErrorContext(ctx, "maker: yes leg failed",
			slog.String("condition_id", m.ConditionID),
			slog.String("error", err.Error()),
		)
		return false
	}
	noRes, err := l.orders.Submit(ctx, makerRequest(no))
	if err != nil {
		l.logger.ErrorContext(ctx, "maker: no leg failed, cancelling yes leg",
			slog.String("condition_id", m.ConditionID),
			slog.String("error", err.Error()),
		)
		if cerr := l.orders.Cancel(ctx, yesRes.OrderID); cerr != nil {
			l.logger.WarnContext(ctx, "maker: cancel yes leg failed", slog.String("error", cerr.Error()))
		}
		return false
	}

	l.mu.Lock()
	l.pairs[m.ConditionID] = makerPair{yesID: yesRes.OrderID, noID: noRes.OrderID, placedAt: l.now()}
	l.mu.Unlock()

	l.logger.InfoContext(ctx, "maker: pair placed",
		slog.String("condition_id", m.ConditionID),
		slog.Float64("yes_price", yes.Price),
		slog.Float64("no_price", no.Price),
	)
	return true
}

func makerRequest(q strategy.MakerQuote) domain.OrderRequest {
	return domain.OrderRequest{
		TokenID: q.TokenID,
		Price:   q.Price,
		Size:    q.Shares,
		Side:    domain.OrderSideBuy,
		Type:    domain.OrderTypeGTC,
		Label:   domain.StrategyMaker,
	}
}

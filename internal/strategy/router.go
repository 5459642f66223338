package strategy

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// PriceContext supplies spot-market context for an asset. The boolean
// results are false when the feed has no value yet.
type PriceContext interface {
	Price(asset domain.Asset) (float64, bool)
	PctMoveFromWindowOpen(asset domain.Asset) (float64, bool)
	WindowOpenPrice(asset domain.Asset) (float64, bool)
	History(asset domain.Asset) []float64
	FundingRate(ctx context.Context, asset domain.Asset) (float64, error)
}

// SignalBoard holds the cross-asset memo and the catalyst flag.
type SignalBoard interface {
	Memo() domain.SignalMemo
	Catalyst() domain.CatalystFlag
	RecordMemo(ctx context.Context, memo domain.SignalMemo)
	ExpireMemo(ctx context.Context, now time.Time) bool
}

// Router picks the asset for a market, gathers that asset's context and
// runs the evaluator. BTC decisions with edge leave a memo for ETH.
type Router struct {
	eval   *Evaluator
	prices PriceContext
	board  SignalBoard
	now    func() time.Time
	logger *slog.Logger
}

// NewRouter creates a Router. prices may be nil, in which case every
// spot-dependent signal is disabled.
func NewRouter(eval *Evaluator, prices PriceContext, board SignalBoard, logger *slog.Logger) *Router {
	return &Router{
		eval:   eval,
		prices: prices,
		board:  board,
		now:    time.Now,
		logger: logger.With(slog.String("component", "router")),
	}
}

// Route evaluates one market with its asset's context.
func (r *Router) Route(ctx context.Context, m domain.Market, bankroll float64) domain.Decision {
	p := r.eval.Params()
	now := r.now()

	asset := ClassifyAsset(m.Question)
	if asset == domain.AssetUnknown && m.Slug != "" {
		asset = ClassifyAsset(m.Slug)
	}

	sc := Context{
		Asset:          asset,
		Bankroll:       bankroll,
		Now:            now,
		BTCNeutralOrUp: true,
		Memo:           r.board.Memo(),
		Catalyst:       r.board.Catalyst(),
	}

	if r.prices != nil {
		if v, ok := r.prices.Price(asset); ok {
			sc.SpotPrice = &v
		}
		if v, ok := r.prices.PctMoveFromWindowOpen(asset); ok {
			sc.PctMove = &v
		}
		if v, ok := r.prices.WindowOpenPrice(asset); ok {
			sc.WindowOpenPrice = &v
		}
		if btcPct, ok := r.prices.PctMoveFromWindowOpen(domain.AssetBTC); ok {
			sc.BTCNeutralOrUp = btcPct >= p.BTCNeutralFloor
		}
		switch asset {
		case domain.AssetSOL:
			rate, err := r.prices.FundingRate(ctx, asset)
			if err != nil {
				r.logger.WarnContext(ctx, "router: funding rate unavailable",
					slog.String("asset", string(asset)),
					slog.String("error", err.Error()),
				)
			} else {
				sc.FundingRate = &rate
			}
		case domain.AssetBTC:
			sc.SpotHistory = r.prices.History(asset)
		}
		if sc.SpotPrice == nil {
			r.logger.DebugContext(ctx, "router: no spot price yet", slog.String("asset", string(asset)))
		}
	}

	d := r.eval.Evaluate(m, sc)
	d.Asset = asset

	if asset == domain.AssetBTC && d.HasEdge && sc.PctMove != nil && abs(*sc.PctMove) >= p.ETHMinBTCMove {
		memo := domain.SignalMemo{
			Fired:   true,
			Side:    d.Side,
			PctMove: *sc.PctMove,
			At:      now,
		}
		if sc.WindowOpenPrice != nil {
			memo.WindowOpenPrice = *sc.WindowOpenPrice
		}
		r.board.RecordMemo(ctx, memo)
		r.logger.InfoContext(ctx, "router: btc memo recorded",
			slog.String("side", string(d.Side)),
			slog.Float64("pct_move", memo.PctMove),
		)
	}
	return d
}

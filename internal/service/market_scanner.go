package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/strategy"
)

var _ strategy.MarketSource = (*MarketScanner)(nil)

// EventSource looks up the markets of a venue event by slug.
type EventSource interface {
	EventMarkets(ctx context.Context, slug string) ([]domain.Listing, error)
}

// BookSource fetches order books and trade history.
type BookSource interface {
	OrderBook(ctx context.Context, tokenID string) (*domain.OrderBook, error)
	PriceHistory(ctx context.Context, conditionID, interval string, fidelity int) ([]domain.PriceTick, error)
}

// ScannerConfig controls discovery and the enrichment filters.
type ScannerConfig struct {
	Assets           []string
	MinTimeRemaining time.Duration
	MaxTimeRemaining time.Duration
	MinLiquidityUSD  float64
	MaxSpread        float64
	Concurrency      int
	HistoryInterval  string
	HistoryFidelity  int
}

// MarketScanner discovers the live 15-minute Up/Down markets by slug and
// enriches each with its order books and recent trade history.
type MarketScanner struct {
	events EventSource
	books  BookSource
	cfg    ScannerConfig
	now    func() time.Time
	logger *slog.Logger
}

// NewMarketScanner creates a MarketScanner.
func NewMarketScanner(events EventSource, books BookSource, cfg ScannerConfig, logger *slog.Logger) *MarketScanner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	return &MarketScanner{
		events: events,
		books:  books,
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With(slog.String("component", "market_scanner")),
	}
}

// WindowSlugs returns the event slugs of the current 15-minute window and the
// next two for every asset, e.g. "btc-updown-15m-1760533200".
func WindowSlugs(assets []string, now time.Time) []string {
	base := now.UTC().Truncate(domain.WindowLength).Unix()
	step := int64(domain.WindowLength / time.Second)
	slugs := make([]string, 0, 3*len(assets))
	for _, a := range assets {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" {
			continue
		}
		for i := int64(0); i < 3; i++ {
			slugs = append(slugs, fmt.Sprintf("%s-updown-15m-%d", a, base+i*step))
		}
	}
	return slugs
}

// Discover returns the tradeable, liquid markets of the current windows.
// Lookups and enrichments that fail drop only the affected market.
func (s *MarketScanner) Discover(ctx context.Context) ([]domain.Market, error) {
	now := s.now()
	candidates, err := s.candidates(ctx, now)
	if err != nil {
		return nil, err
	}

	enriched := make([]*domain.Market, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, m := range candidates {
		g.Go(func() error {
			em, ok := s.enrich(gctx, m)
			if ok {
				enriched[i] = &em
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]domain.Market, 0, len(enriched))
	for _, m := range enriched {
		if m != nil {
			out = append(out, *m)
		}
	}
	s.logger.InfoContext(ctx, "market_scanner: scan complete",
		slog.Int("candidates", len(candidates)),
		slog.Int("markets", len(out)),
	)
	return out, nil
}

func (s *MarketScanner) candidates(ctx context.Context, now time.Time) ([]domain.Market, error) {
	slugs := WindowSlugs(s.cfg.Assets, now)
	results := make([][]domain.Listing, len(slugs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, slug := range slugs {
		g.Go(func() error {
			listings, err := s.events.EventMarkets(gctx, slug)
			if err != nil {
				if !errors.Is(err, domain.ErrNotFound) {
					s.logger.DebugContext(gctx, "market_scanner: event lookup failed",
						slog.String("slug", slug),
						slog.String("error", err.Error()),
					)
				}
				return nil
			}
			for j := range listings {
				if listings[j].Market.Slug == "" {
					listings[j].Market.Slug = slug
				}
			}
			results[i] = listings
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("market_scanner: discover: %w", err)
	}

	maxLeft := min(s.cfg.MaxTimeRemaining, domain.WindowLength)
	seen := make(map[string]bool)
	var out []domain.Market
	for _, listings := range results {
		for _, l := range listings {
			m := l.Market
			if !l.Tradeable() || m.ConditionID == "" || seen[m.ConditionID] {
				continue
			}
			if m.YesTokenID == "" || m.NoTokenID == "" || m.EndTime.IsZero() {
				continue
			}
			left := m.EndTime.Sub(now)
			if left <= 0 || left < s.cfg.MinTimeRemaining || left > maxLeft {
				continue
			}
			seen[m.ConditionID] = true
			out = append(out, m)
		}
	}
	return out, nil
}

// enrich attaches books and history. The yes book is required; a missing no
// book or history only disables the signals that use them.
func (s *MarketScanner) enrich(ctx context.Context, m domain.Market) (domain.Market, bool) {
	yes, err := s.books.OrderBook(ctx, m.YesTokenID)
	if err != nil {
		s.logger.WarnContext(ctx, "market_scanner: order book unavailable",
			slog.String("condition_id", m.ConditionID),
			slog.String("error", err.Error()),
		)
		return m, false
	}
	m.YesBook = yes

	if depth := m.TotalDepthUSD(); depth < s.cfg.MinLiquidityUSD {
		s.logger.DebugContext(ctx, "market_scanner: skipping thin market",
			slog.String("condition_id", m.ConditionID),
			slog.Float64("depth_usd", depth),
		)
		return m, false
	}
	if spread := yes.Spread(); spread > s.cfg.MaxSpread {
		s.logger.DebugContext(ctx, "market_scanner: skipping wide spread",
			slog.String("condition_id", m.ConditionID),
			slog.Float64("spread", spread),
		)
		return m, false
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		no, err := s.books.OrderBook(ctx, m.NoTokenID)
		if err != nil {
			s.logger.DebugContext(ctx, "market_scanner: no book unavailable", slog.String("error", err.Error()))
			return
		}
		m.NoBook = no
	}()
	go func() {
		defer wg.Done()
		ticks, err := s.books.PriceHistory(ctx, m.ConditionID, s.cfg.HistoryInterval, s.cfg.HistoryFidelity)
		if err != nil {
			s.logger.DebugContext(ctx, "market_scanner: price history unavailable", slog.String("error", err.Error()))
			return
		}
		m.Ticks = ticks
	}()
	wg.Wait()
	return m, true
}

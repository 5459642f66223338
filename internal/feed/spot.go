package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/strategy"
)

var _ strategy.PriceContext = (*SpotFeed)(nil)

// windowLength is the duration of one Up/Down market window.
const windowLength = 15 * time.Minute

// Assets are the underlyings the feed tracks.
var Assets = []domain.Asset{domain.AssetBTC, domain.AssetETH, domain.AssetSOL, domain.AssetXRP}

// SpotConfig configures a SpotFeed.
type SpotConfig struct {
	WsHost          string
	RestURL         string // empty uses the library's spot endpoint
	FuturesURL      string // empty uses the library's futures endpoint
	ApiKey          string
	ApiSecret       string
	HistorySize     int
	StaleAfter      time.Duration
	FundingCacheTTL time.Duration
	ReconnectDelay  time.Duration
	CallTimeout     time.Duration
}

type tick struct {
	price float64
	at    time.Time
}

type windowOpen struct {
	start time.Time
	price float64
}

type fundingEntry struct {
	rate      float64
	fetchedAt time.Time
}

// SpotFeed keeps the latest spot price, the open of the current 15-minute
// window, and a short price history for each tracked asset. Prices stream
// from the Binance mini-ticker; REST quotes fill in whenever the stream goes
// quiet for longer than StaleAfter.
type SpotFeed struct {
	cfg SpotConfig

	mu      sync.RWMutex
	latest  map[domain.Asset]tick
	opens   map[domain.Asset]windowOpen
	history map[domain.Asset][]float64
	funding map[domain.Asset]fundingEntry

	fetchPrice      func(ctx context.Context, symbol string) (float64, error)
	fetchWindowOpen func(ctx context.Context, symbol string) (float64, error)
	fetchFunding    func(ctx context.Context, symbol string) (float64, error)

	now    func() time.Time
	logger *slog.Logger
}

// NewSpotFeed creates a SpotFeed backed by the Binance spot and futures REST
// APIs. Public market data needs no credentials; ApiKey may be empty.
func NewSpotFeed(cfg SpotConfig, logger *slog.Logger) *SpotFeed {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 60
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 30 * time.Second
	}
	if cfg.FundingCacheTTL <= 0 {
		cfg.FundingCacheTTL = 5 * time.Minute
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	httpClient := &http.Client{Timeout: cfg.CallTimeout}
	spot := binance.NewClient(cfg.ApiKey, cfg.ApiSecret)
	spot.HTTPClient = httpClient
	if cfg.RestURL != "" {
		spot.BaseURL = cfg.RestURL
	}
	perp := futures.NewClient(cfg.ApiKey, cfg.ApiSecret)
	perp.HTTPClient = httpClient
	if cfg.FuturesURL != "" {
		perp.BaseURL = cfg.FuturesURL
	}

	f := &SpotFeed{
		cfg:     cfg,
		latest:  make(map[domain.Asset]tick),
		opens:   make(map[domain.Asset]windowOpen),
		history: make(map[domain.Asset][]float64),
		funding: make(map[domain.Asset]fundingEntry),
		now:     time.Now,
		logger:  logger.With(slog.String("component", "spot_feed")),
	}
	f.fetchPrice = func(ctx context.Context, symbol string) (float64, error) {
		ctx, cancel := f.callContext(ctx)
		defer cancel()
		prices, err := spot.NewListPricesService().Symbol(symbol).Do(ctx)
		if err != nil {
			return 0, err
		}
		if len(prices) == 0 {
			return 0, domain.ErrNoPrice
		}
		return strconv.ParseFloat(prices[0].Price, 64)
	}
	f.fetchWindowOpen = func(ctx context.Context, symbol string) (float64, error) {
		ctx, cancel := f.callContext(ctx)
		defer cancel()
		klines, err := spot.NewKlinesService().Symbol(symbol).Interval("15m").Limit(1).Do(ctx)
		if err != nil {
			return 0, err
		}
		if len(klines) == 0 {
			return 0, domain.ErrNoPrice
		}
		return strconv.ParseFloat(klines[0].Open, 64)
	}
	f.fetchFunding = func(ctx context.Context, symbol string) (float64, error) {
		ctx, cancel := f.callContext(ctx)
		defer cancel()
		idx, err := perp.NewPremiumIndexService().Symbol(symbol).Do(ctx)
		if err != nil {
			return 0, err
		}
		if len(idx) == 0 {
			return 0, domain.ErrNoPrice
		}
		return strconv.ParseFloat(idx[0].LastFundingRate, 64)
	}
	return f
}

// callContext bounds a single REST call by CallTimeout.
func (f *SpotFeed) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, f.cfg.CallTimeout)
}

// Symbol is the Binance USDT pair for asset.
func Symbol(asset domain.Asset) string {
	return string(asset) + "USDT"
}

func assetForSymbol(symbol string) (domain.Asset, bool) {
	base, ok := strings.CutSuffix(strings.ToUpper(symbol), "USDT")
	if !ok {
		return "", false
	}
	for _, a := range Assets {
		if string(a) == base {
			return a, true
		}
	}
	return "", false
}

// Run streams prices until ctx is cancelled. The stream reconnects after
// ReconnectDelay; a REST poller keeps quiet assets fresh and bootstraps each
// window's open from the 15m kline.
func (f *SpotFeed) Run(ctx context.Context) error {
	f.logger.Info("spot feed started", slog.String("host", f.cfg.WsHost))
	defer f.logger.Info("spot feed stopped")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return f.stream(gctx) })
	g.Go(func() error { return f.poll(gctx) })
	return g.Wait()
}

func (f *SpotFeed) stream(ctx context.Context) error {
	for {
		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return nil
		}
		f.logger.WarnContext(ctx, "spot feed: stream disconnected, reconnecting",
			slog.String("error", fmt.Sprint(err)),
			slog.Duration("delay", f.cfg.ReconnectDelay),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(f.cfg.ReconnectDelay):
		}
	}
}

// StreamURL is the combined mini-ticker stream for every tracked asset.
func (f *SpotFeed) StreamURL() string {
	streams := make([]string, 0, len(Assets))
	for _, a := range Assets {
		streams = append(streams, strings.ToLower(Symbol(a))+"@miniTicker")
	}
	return strings.TrimRight(f.cfg.WsHost, "/") + "/stream?streams=" + strings.Join(streams, "/")
}

func (f *SpotFeed) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.StreamURL(), nil)
	if err != nil {
		return fmt.Errorf("feed: dial: %w", err)
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	f.logger.InfoContext(ctx, "spot feed: stream connected")
	for {
		conn.SetReadDeadline(time.Now().Add(2 * f.cfg.StaleAfter))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed: read: %w", err)
		}
		asset, price, ok := parseMiniTicker(data)
		if !ok {
			continue
		}
		f.Observe(asset, price)
	}
}

// miniTickerEnvelope is a combined-stream frame carrying a 24hrMiniTicker.
type miniTickerEnvelope struct {
	Stream string `json:"stream"`
	Data   struct {
		Event  string `json:"e"`
		Symbol string `json:"s"`
		Close  string `json:"c"`
	} `json:"data"`
}

func parseMiniTicker(data []byte) (domain.Asset, float64, bool) {
	var env miniTickerEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", 0, false
	}
	asset, ok := assetForSymbol(env.Data.Symbol)
	if !ok {
		return "", 0, false
	}
	price, err := strconv.ParseFloat(env.Data.Close, 64)
	if err != nil || price <= 0 {
		return "", 0, false
	}
	return asset, price, true
}

func (f *SpotFeed) poll(ctx context.Context) error {
	f.refresh(ctx)
	ticker := time.NewTicker(f.cfg.StaleAfter / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			f.refresh(ctx)
		}
	}
}

// refresh fetches REST quotes for stale assets and kline opens for assets
// whose window open belongs to an earlier window.
func (f *SpotFeed) refresh(ctx context.Context) {
	now := f.now()
	start := now.Truncate(windowLength)
	for _, a := range Assets {
		f.mu.RLock()
		last, haveLast := f.latest[a]
		open, haveOpen := f.opens[a]
		f.mu.RUnlock()

		if !haveLast || now.Sub(last.at) > f.cfg.StaleAfter {
			price, err := f.fetchPrice(ctx, Symbol(a))
			if err != nil {
				f.logger.WarnContext(ctx, "spot feed: rest price failed",
					slog.String("asset", string(a)),
					slog.String("error", err.Error()),
				)
			} else if price > 0 {
				f.Observe(a, price)
			}
		}
		if !haveOpen || open.start.Before(start) || open.price <= 0 {
			price, err := f.fetchWindowOpen(ctx, Symbol(a))
			if err != nil {
				f.logger.WarnContext(ctx, "spot feed: window open failed",
					slog.String("asset", string(a)),
					slog.String("error", err.Error()),
				)
				continue
			}
			f.setWindowOpen(a, start, price)
		}
	}
}

// Observe records a spot price for asset. The first price seen in a new
// window becomes that window's open until the kline open replaces it.
func (f *SpotFeed) Observe(asset domain.Asset, price float64) {
	if price <= 0 {
		return
	}
	now := f.now()
	start := now.Truncate(windowLength)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.latest[asset] = tick{price: price, at: now}

	h := append(f.history[asset], price)
	if len(h) > f.cfg.HistorySize {
		h = h[len(h)-f.cfg.HistorySize:]
	}
	f.history[asset] = h

	if open, ok := f.opens[asset]; !ok || open.start.Before(start) {
		f.opens[asset] = windowOpen{start: start, price: price}
	}
}

func (f *SpotFeed) setWindowOpen(asset domain.Asset, start time.Time, price float64) {
	if price <= 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if open, ok := f.opens[asset]; ok && open.start.After(start) {
		return
	}
	f.opens[asset] = windowOpen{start: start, price: price}
}

// Price returns the latest spot price, or false when none has arrived within
// StaleAfter.
func (f *SpotFeed) Price(asset domain.Asset) (float64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	t, ok := f.latest[asset]
	if !ok || f.now().Sub(t.at) > f.cfg.StaleAfter {
		return 0, false
	}
	return t.price, true
}

// WindowOpenPrice returns the open of the current 15-minute window.
func (f *SpotFeed) WindowOpenPrice(asset domain.Asset) (float64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	open, ok := f.opens[asset]
	if !ok || open.price <= 0 || open.start.Before(f.now().Truncate(windowLength)) {
		return 0, false
	}
	return open.price, true
}

// PctMoveFromWindowOpen is (spot − open) / open as a fraction.
func (f *SpotFeed) PctMoveFromWindowOpen(asset domain.Asset) (float64, bool) {
	spot, ok := f.Price(asset)
	if !ok {
		return 0, false
	}
	open, ok := f.WindowOpenPrice(asset)
	if !ok {
		return 0, false
	}
	return (spot - open) / open, true
}

// History returns the recent prices for asset, oldest first.
func (f *SpotFeed) History(asset domain.Asset) []float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	h := f.history[asset]
	out := make([]float64, len(h))
	copy(out, h)
	return out
}

// FundingRate returns the perpetual's last funding rate, cached for
// FundingCacheTTL. A failed refresh falls back to the cached value.
func (f *SpotFeed) FundingRate(ctx context.Context, asset domain.Asset) (float64, error) {
	now := f.now()
	f.mu.RLock()
	cached, ok := f.funding[asset]
	f.mu.RUnlock()
	if ok && now.Sub(cached.fetchedAt) < f.cfg.FundingCacheTTL {
		return cached.rate, nil
	}

	rate, err := f.fetchFunding(ctx, Symbol(asset))
	if err != nil {
		if ok {
			f.logger.WarnContext(ctx, "spot feed: funding refresh failed, using cached rate",
				slog.String("asset", string(asset)),
				slog.String("error", err.Error()),
			)
			return cached.rate, nil
		}
		return 0, fmt.Errorf("feed: funding rate %s: %w", asset, err)
	}

	f.mu.Lock()
	f.funding[asset] = fundingEntry{rate: rate, fetchedAt: now}
	f.mu.Unlock()
	return rate, nil
}

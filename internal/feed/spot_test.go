package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubREST struct {
	mu          sync.Mutex
	prices      map[string]float64
	opens       map[string]float64
	funding     map[string]float64
	fundingErr  error
	fundingHits int
}

func (s *stubREST) install(f *SpotFeed) {
	f.fetchPrice = func(_ context.Context, symbol string) (float64, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		p, ok := s.prices[symbol]
		if !ok {
			return 0, domain.ErrNoPrice
		}
		return p, nil
	}
	f.fetchWindowOpen = func(_ context.Context, symbol string) (float64, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		p, ok := s.opens[symbol]
		if !ok {
			return 0, domain.ErrNoPrice
		}
		return p, nil
	}
	f.fetchFunding = func(_ context.Context, symbol string) (float64, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.fundingHits++
		if s.fundingErr != nil {
			return 0, s.fundingErr
		}
		return s.funding[symbol], nil
	}
}

func newTestFeed(now *time.Time) (*SpotFeed, *stubREST) {
	f := NewSpotFeed(SpotConfig{HistorySize: 3, StaleAfter: 30 * time.Second, FundingCacheTTL: 5 * time.Minute}, discardLogger())
	f.now = func() time.Time { return *now }
	rest := &stubREST{
		prices:  map[string]float64{},
		opens:   map[string]float64{},
		funding: map[string]float64{},
	}
	rest.install(f)
	return f, rest
}

func TestSpotFeed_ObserveTracksWindowAndHistory(t *testing.T) {
	now := time.Date(2026, 3, 2, 14, 1, 0, 0, time.UTC)
	f, _ := newTestFeed(&now)

	_, ok := f.Price(domain.AssetBTC)
	assert.False(t, ok)

	f.Observe(domain.AssetBTC, 100)
	now = now.Add(10 * time.Second)
	f.Observe(domain.AssetBTC, 101)

	p, ok := f.Price(domain.AssetBTC)
	require.True(t, ok)
	assert.InDelta(t, 101, p, 1e-9)
	open, ok := f.WindowOpenPrice(domain.AssetBTC)
	require.True(t, ok)
	assert.InDelta(t, 100, open, 1e-9)
	move, ok := f.PctMoveFromWindowOpen(domain.AssetBTC)
	require.True(t, ok)
	assert.InDelta(t, 0.01, move, 1e-9)

	f.Observe(domain.AssetBTC, 102)
	f.Observe(domain.AssetBTC, 103)
	assert.Equal(t, []float64{101, 102, 103}, f.History(domain.AssetBTC))

	now = time.Date(2026, 3, 2, 14, 15, 5, 0, time.UTC)
	f.Observe(domain.AssetBTC, 110)
	open, ok = f.WindowOpenPrice(domain.AssetBTC)
	require.True(t, ok)
	assert.InDelta(t, 110, open, 1e-9, "first price of the new window")
}

func TestSpotFeed_PriceGoesStale(t *testing.T) {
	now := time.Date(2026, 3, 2, 14, 1, 0, 0, time.UTC)
	f, _ := newTestFeed(&now)
	f.Observe(domain.AssetETH, 2500)

	now = now.Add(31 * time.Second)
	_, ok := f.Price(domain.AssetETH)
	assert.False(t, ok)
	_, ok = f.PctMoveFromWindowOpen(domain.AssetETH)
	assert.False(t, ok)
}

func TestSpotFeed_WindowOpenExpiresWithWindow(t *testing.T) {
	now := time.Date(2026, 3, 2, 14, 14, 50, 0, time.UTC)
	f, _ := newTestFeed(&now)
	f.Observe(domain.AssetSOL, 150)

	now = now.Add(20 * time.Second)
	_, ok := f.WindowOpenPrice(domain.AssetSOL)
	assert.False(t, ok, "open belongs to the previous window")
}

func TestSpotFeed_RefreshFillsFromREST(t *testing.T) {
	now := time.Date(2026, 3, 2, 14, 7, 0, 0, time.UTC)
	f, rest := newTestFeed(&now)
	rest.prices["BTCUSDT"] = 67100
	rest.opens["BTCUSDT"] = 67000
	rest.prices["XRPUSDT"] = 0.61

	f.refresh(context.Background())

	p, ok := f.Price(domain.AssetBTC)
	require.True(t, ok)
	assert.InDelta(t, 67100, p, 1e-9)
	open, ok := f.WindowOpenPrice(domain.AssetBTC)
	require.True(t, ok)
	assert.InDelta(t, 67000, open, 1e-9, "kline open replaces the first observed price")

	xrp, ok := f.WindowOpenPrice(domain.AssetXRP)
	require.True(t, ok)
	assert.InDelta(t, 0.61, xrp, 1e-9, "no kline: first observed price stands")

	_, ok = f.Price(domain.AssetETH)
	assert.False(t, ok)
}

func TestSpotFeed_FundingRateCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	f, rest := newTestFeed(&now)
	rest.funding["SOLUSDT"] = 0.0007

	rate, err := f.FundingRate(ctx, domain.AssetSOL)
	require.NoError(t, err)
	assert.InDelta(t, 0.0007, rate, 1e-12)

	rest.funding["SOLUSDT"] = 0.0009
	rate, err = f.FundingRate(ctx, domain.AssetSOL)
	require.NoError(t, err)
	assert.InDelta(t, 0.0007, rate, 1e-12)
	assert.Equal(t, 1, rest.fundingHits)

	now = now.Add(6 * time.Minute)
	rest.fundingErr = errors.New("418")
	rate, err = f.FundingRate(ctx, domain.AssetSOL)
	require.NoError(t, err)
	assert.InDelta(t, 0.0007, rate, 1e-12, "stale cache beats nothing")

	_, err = f.FundingRate(ctx, domain.AssetETH)
	assert.Error(t, err)
}

func TestParseMiniTicker(t *testing.T) {
	asset, price, ok := parseMiniTicker([]byte(`{"stream":"ethusdt@miniTicker","data":{"e":"24hrMiniTicker","s":"ETHUSDT","c":"2501.50"}}`))
	require.True(t, ok)
	assert.Equal(t, domain.AssetETH, asset)
	assert.InDelta(t, 2501.5, price, 1e-9)

	for _, raw := range []string{
		`{"data":{"s":"DOGEUSDT","c":"0.1"}}`,
		`{"data":{"s":"BTCUSDT","c":"0"}}`,
		`{"data":{"s":"BTCUSDT","c":"x"}}`,
		`not json`,
	} {
		_, _, ok := parseMiniTicker([]byte(raw))
		assert.False(t, ok, raw)
	}
}

func TestSpotFeed_StreamURL(t *testing.T) {
	f := NewSpotFeed(SpotConfig{WsHost: "wss://stream.binance.com:9443/"}, discardLogger())
	assert.Equal(t,
		"wss://stream.binance.com:9443/stream?streams=btcusdt@miniTicker/ethusdt@miniTicker/solusdt@miniTicker/xrpusdt@miniTicker",
		f.StreamURL())
}

func TestSpotFeed_RunConnectionReadsStream(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"stream":"btcusdt@miniTicker","data":{"e":"24hrMiniTicker","s":"BTCUSDT","c":"68000.5"}}`))
		// hold the connection until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	f := NewSpotFeed(SpotConfig{WsHost: "ws" + strings.TrimPrefix(srv.URL, "http")}, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.runConnection(ctx) }()

	require.Eventually(t, func() bool {
		p, ok := f.Price(domain.AssetBTC)
		return ok && p == 68000.5
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runConnection did not return after cancel")
	}
}

func TestSpotFeed_RESTCallsTimeOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	f := NewSpotFeed(SpotConfig{
		RestURL:     srv.URL,
		FuturesURL:  srv.URL,
		CallTimeout: 100 * time.Millisecond,
	}, discardLogger())

	type result struct {
		name string
		err  error
	}
	done := make(chan result, 3)
	go func() {
		_, err := f.FundingRate(context.Background(), domain.AssetSOL)
		done <- result{"funding", err}
	}()
	go func() {
		_, err := f.fetchPrice(context.Background(), "BTCUSDT")
		done <- result{"price", err}
	}()
	go func() {
		_, err := f.fetchWindowOpen(context.Background(), "BTCUSDT")
		done <- result{"window open", err}
	}()

	for range 3 {
		select {
		case r := <-done:
			assert.Error(t, r.err, r.name)
		case <-time.After(3 * time.Second):
			t.Fatal("rest call did not time out")
		}
	}
}

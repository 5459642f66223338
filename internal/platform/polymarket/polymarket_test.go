package polymarket

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbot/internal/crypto"
	"github.com/alanyoungcy/updownbot/internal/domain"
)

const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func serve(t *testing.T, routes map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for pattern, h := range routes {
		mux.HandleFunc(pattern, h)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func authedClient(t *testing.T, url string) *ClobClient {
	t.Helper()
	signer, err := crypto.NewSigner(testKey, 137)
	require.NoError(t, err)
	auth := &crypto.HMACAuth{Key: "k", Secret: "c2VjcmV0", Passphrase: "p"}
	return NewClobClient(url, signer, auth, crypto.SignaturePolyProxy)
}

func TestGamma_EventMarkets(t *testing.T) {
	srv := serve(t, map[string]http.HandlerFunc{
		"/events/slug/btc-updown-15m-1772460000": func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{
				"slug": "btc-updown-15m-1772460000",
				"markets": [
					{"conditionId": "0xc1", "question": "Bitcoin Up or Down", "endDate": "2026-03-02T14:15:00Z",
					 "clobTokenIds": "[\"111\", \"222\"]", "active": true, "closed": false, "acceptingOrders": true},
					{"conditionId": "0xc2", "question": "Daily", "endDateIso": "2026-03-02",
					 "clobTokenIds": ["333", "444"], "active": "true", "closed": false},
					{"conditionId": "0xc3", "question": "No tokens", "endDate": "2026-03-02T14:15:00Z"}
				]
			}`)
		},
	})
	g := NewGammaClient(srv.URL)

	listings, err := g.EventMarkets(context.Background(), "btc-updown-15m-1772460000")
	require.NoError(t, err)
	require.Len(t, listings, 2)

	first := listings[0]
	assert.Equal(t, "0xc1", first.Market.ConditionID)
	assert.Equal(t, "111", first.Market.YesTokenID)
	assert.Equal(t, "222", first.Market.NoTokenID)
	assert.Equal(t, "btc-updown-15m-1772460000", first.Market.Slug)
	assert.Equal(t, time.Date(2026, 3, 2, 14, 15, 0, 0, time.UTC), first.Market.EndTime)
	assert.True(t, first.Tradeable())

	second := listings[1]
	assert.Equal(t, time.Date(2026, 3, 2, 23, 59, 59, 0, time.UTC), second.Market.EndTime)
	assert.True(t, second.Active)
	assert.True(t, second.AcceptingOrders, "missing acceptingOrders defaults to true")

	_, err = g.EventMarkets(context.Background(), "eth-updown-15m-0")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestClob_OrderBookSortsBestFirst(t *testing.T) {
	srv := serve(t, map[string]http.HandlerFunc{
		"/book": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "111", r.URL.Query().Get("token_id"))
			io.WriteString(w, `{"bids":[{"price":"0.47","size":"10"},{"price":"0.49","size":"5"},{"price":"0.48","size":"0"}],
				"asks":[{"price":"0.55","size":"7"},{"price":"0.51","size":"3"}],"timestamp":"1772460000000"}`)
		},
	})
	c := NewClobClient(srv.URL, nil, nil, 0)

	book, err := c.OrderBook(context.Background(), "111")
	require.NoError(t, err)
	assert.Equal(t, []domain.PriceLevel{{Price: 0.49, Size: 5}, {Price: 0.47, Size: 10}}, book.Bids)
	assert.Equal(t, []domain.PriceLevel{{Price: 0.51, Size: 3}, {Price: 0.55, Size: 7}}, book.Asks)
	assert.Equal(t, time.UnixMilli(1772460000000).UTC(), book.Timestamp)
}

func TestClob_PriceHistoryAndLastTrade(t *testing.T) {
	srv := serve(t, map[string]http.HandlerFunc{
		"/prices-history": func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			assert.Equal(t, "0xc1", q.Get("market"))
			assert.Equal(t, "1m", q.Get("interval"))
			assert.Equal(t, "60", q.Get("fidelity"))
			io.WriteString(w, `{"history":[{"t":1772460000,"p":0.5,"v":"12"},{"t":1772460060,"p":"0.52"},{"t":1772460120}]}`)
		},
		"/last-trade-price": func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("token_id") == "dead" {
				io.WriteString(w, `{"price":"0"}`)
				return
			}
			io.WriteString(w, `{"price":"0.61","side":"BUY"}`)
		},
	})
	c := NewClobClient(srv.URL, nil, nil, 0)
	ctx := context.Background()

	ticks, err := c.PriceHistory(ctx, "0xc1", "1m", 60)
	require.NoError(t, err)
	require.Len(t, ticks, 2)
	assert.InDelta(t, 0.5, ticks[0].Price, 1e-9)
	assert.InDelta(t, 12, ticks[0].Volume, 1e-9)
	assert.InDelta(t, 0.52, ticks[1].Price, 1e-9)

	p, err := c.LastTradePrice(ctx, "111")
	require.NoError(t, err)
	assert.InDelta(t, 0.61, p, 1e-9)

	_, err = c.LastTradePrice(ctx, "dead")
	assert.ErrorIs(t, err, domain.ErrNoPrice)
}

func TestClob_Balance(t *testing.T) {
	body := `{"balance":"412.35","allowances":{}}`
	srv := serve(t, map[string]http.HandlerFunc{
		"/balance-allowance": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "k", r.Header.Get("POLY_API_KEY"))
			assert.NotEmpty(t, r.Header.Get("POLY_SIGNATURE"))
			assert.Equal(t, "1", r.URL.Query().Get("signature_type"))
			io.WriteString(w, body)
		},
	})
	c := authedClient(t, srv.URL)
	ctx := context.Background()

	bal, err := c.Balance(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 412.35, bal, 1e-9)

	body = `{"balances":[{"buyingPower":99.5}]}`
	bal, err = c.Balance(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 99.5, bal, 1e-9)

	body = `{}`
	_, err = c.Balance(ctx)
	assert.Error(t, err)

	_, err = NewClobClient(srv.URL, nil, nil, 0).Balance(ctx)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestClob_PostOrder(t *testing.T) {
	status := http.StatusOK
	srv := serve(t, map[string]http.HandlerFunc{
		"/order": func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			var req struct {
				Order     map[string]any `json:"order"`
				Owner     string         `json:"owner"`
				OrderType string         `json:"orderType"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "SELL", req.Order["side"])
			assert.Equal(t, "0xsig", req.Order["signature"])
			assert.EqualValues(t, 42, req.Order["salt"])
			assert.Equal(t, "k", req.Owner)
			assert.Equal(t, "FOK", req.OrderType)
			w.WriteHeader(status)
			if status == http.StatusOK {
				io.WriteString(w, `{"success":true,"orderID":"0xabc","status":"matched"}`)
			} else {
				io.WriteString(w, `{"error":"slow down"}`)
			}
		},
	})
	c := authedClient(t, srv.URL)
	payload := crypto.OrderPayload{
		Salt: "42", TokenID: "111", MakerAmount: "1000000", TakerAmount: "500000",
		Expiration: "0", Nonce: "0", FeeRateBps: "0", Side: crypto.SideSell,
	}

	res, err := c.PostOrder(context.Background(), payload, "0xsig", domain.OrderTypeFOK)
	require.NoError(t, err)
	assert.Equal(t, "0xabc", res.OrderID)
	assert.Equal(t, domain.OrderStatusMatched, res.Status)

	status = http.StatusTooManyRequests
	_, err = c.PostOrder(context.Background(), payload, "0xsig", domain.OrderTypeFOK)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestClob_PostOrderRejected(t *testing.T) {
	srv := serve(t, map[string]http.HandlerFunc{
		"/order": func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"success":false,"errorMsg":"not enough balance"}`)
		},
	})
	c := authedClient(t, srv.URL)
	payload := crypto.OrderPayload{Salt: "1", Side: crypto.SideBuy}

	_, err := c.PostOrder(context.Background(), payload, "0xsig", domain.OrderTypeGTC)
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
	assert.ErrorContains(t, err, "not enough balance")
}

func TestClob_CancelOrder(t *testing.T) {
	srv := serve(t, map[string]http.HandlerFunc{
		"/order": func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodDelete, r.Method)
			var req struct {
				OrderID string `json:"orderID"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			if req.OrderID == "gone" {
				io.WriteString(w, `{"canceled":[],"not_canceled":{"gone":"order already matched"}}`)
				return
			}
			io.WriteString(w, `{"canceled":["`+req.OrderID+`"],"not_canceled":{}}`)
		},
	})
	c := authedClient(t, srv.URL)

	require.NoError(t, c.CancelOrder(context.Background(), "0xabc"))
	assert.ErrorContains(t, c.CancelOrder(context.Background(), "gone"), "already matched")
}

func TestCheckHTTPStatus(t *testing.T) {
	tests := []struct {
		code int
		want error
	}{
		{http.StatusBadRequest, domain.ErrInvalidOrder},
		{http.StatusUnauthorized, domain.ErrUnauthorized},
		{http.StatusForbidden, domain.ErrUnauthorized},
		{http.StatusNotFound, domain.ErrNotFound},
		{http.StatusTooManyRequests, domain.ErrRateLimited},
	}
	for _, tt := range tests {
		assert.ErrorIs(t, checkHTTPStatus(tt.code, nil), tt.want, tt.code)
	}
	assert.NoError(t, checkHTTPStatus(http.StatusCreated, nil))
	assert.ErrorContains(t, checkHTTPStatus(http.StatusBadGateway, []byte("upstream")), "HTTP 502")
}

func TestData_Holdings(t *testing.T) {
	srv := serve(t, map[string]http.HandlerFunc{
		"/positions": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "0xfunder", r.URL.Query().Get("user"))
			io.WriteString(w, `[
				{"asset":"111","size":12.5,"conditionId":"0xc1","avgPrice":0.42},
				{"asset_id":"222","size":"3","condition_id":"0xc2","avg_price":"0.6"},
				{"size":4},
				{"token_id":"333","size":1}
			]`)
		},
	})
	d := NewDataClient(srv.URL, "0xfunder")

	holdings, err := d.Holdings(context.Background())
	require.NoError(t, err)
	require.Len(t, holdings, 3)

	assert.Equal(t, "111", holdings[0].TokenID)
	assert.InDelta(t, 12.5, holdings[0].Size, 1e-9)
	assert.Equal(t, "0xc1", holdings[0].ConditionID)
	require.NotNil(t, holdings[0].AvgPrice)
	assert.InDelta(t, 0.42, *holdings[0].AvgPrice, 1e-9)

	assert.Equal(t, "222", holdings[1].TokenID)
	assert.Equal(t, "0xc2", holdings[1].ConditionID)
	require.NotNil(t, holdings[1].AvgPrice)
	assert.InDelta(t, 0.6, *holdings[1].AvgPrice, 1e-9)

	assert.Nil(t, holdings[2].AvgPrice)

	_, err = NewDataClient(srv.URL, "").Holdings(context.Background())
	assert.Error(t, err)
}

func TestDecodePositionsWrapped(t *testing.T) {
	rows, err := decodePositions([]byte(`{"data":[{"asset":"1","size":2}]}`))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "1", rows[0].Asset)
}

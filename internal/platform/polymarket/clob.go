package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/alanyoungcy/updownbot/internal/crypto"
	"github.com/alanyoungcy/updownbot/internal/domain"
)

// ClobClient is the REST client for the Polymarket CLOB (Central Limit
// Order Book) API: books, price history, balances, and order placement.
type ClobClient struct {
	baseURL       string
	httpClient    *http.Client
	signer        *crypto.Signer
	signatureType int

	mu       sync.RWMutex
	hmacAuth *crypto.HMACAuth
}

// NewClobClient creates a new CLOB REST client.
//
// baseURL is the CLOB API root, e.g. "https://clob.polymarket.com".
// signer may be nil for a read-only client. auth may be nil until
// DeriveAPIKey has run.
func NewClobClient(baseURL string, signer *crypto.Signer, auth *crypto.HMACAuth, signatureType int) *ClobClient {
	return &ClobClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		signer:        signer,
		signatureType: signatureType,
		hmacAuth:      auth,
	}
}

// OrderBook returns the current book for an outcome token.
func (c *ClobClient) OrderBook(ctx context.Context, tokenID string) (*domain.OrderBook, error) {
	q := url.Values{}
	q.Set("token_id", tokenID)

	body, err := c.doPublic(ctx, "/book?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: book %s: %w", tokenID, err)
	}
	var book APIBook
	if err := json.Unmarshal(body, &book); err != nil {
		return nil, fmt.Errorf("polymarket/clob: decode book: %w", err)
	}
	return book.ToDomainOrderBook(), nil
}

// PriceHistory returns the trade price history of a market.
func (c *ClobClient) PriceHistory(ctx context.Context, conditionID, interval string, fidelity int) ([]domain.PriceTick, error) {
	q := url.Values{}
	q.Set("market", conditionID)
	q.Set("interval", interval)
	q.Set("fidelity", strconv.Itoa(fidelity))

	body, err := c.doPublic(ctx, "/prices-history?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: price history %s: %w", conditionID, err)
	}
	var hist APIPriceHistory
	if err := json.Unmarshal(body, &hist); err != nil {
		return nil, fmt.Errorf("polymarket/clob: decode price history: %w", err)
	}
	return hist.ToDomainTicks(), nil
}

// LastTradePrice returns the last traded price of an outcome token.
func (c *ClobClient) LastTradePrice(ctx context.Context, tokenID string) (float64, error) {
	q := url.Values{}
	q.Set("token_id", tokenID)

	body, err := c.doPublic(ctx, "/last-trade-price?"+q.Encode())
	if err != nil {
		return 0, fmt.Errorf("polymarket/clob: last trade price %s: %w", tokenID, err)
	}
	var resp struct {
		Price flexFloat `json:"price"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("polymarket/clob: decode last trade price: %w", err)
	}
	if !resp.Price.Set || resp.Price.Value <= 0 {
		return 0, fmt.Errorf("polymarket/clob: last trade price %s: %w", tokenID, domain.ErrNoPrice)
	}
	return resp.Price.Value, nil
}

// Balance returns the wallet's USDC collateral balance.
func (c *ClobClient) Balance(ctx context.Context) (float64, error) {
	q := url.Values{}
	q.Set("asset_type", "COLLATERAL")
	q.Set("signature_type", strconv.Itoa(c.signatureType))

	body, err := c.doAuthenticatedRequest(ctx, http.MethodGet, "/balance-allowance?"+q.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("polymarket/clob: balance: %w", err)
	}
	var bal APIBalance
	if err := json.Unmarshal(body, &bal); err != nil {
		return 0, fmt.Errorf("polymarket/clob: decode balance: %w", err)
	}
	amount, ok := bal.Amount()
	if !ok {
		return 0, fmt.Errorf("polymarket/clob: balance: %w", domain.ErrNotFound)
	}
	return amount, nil
}

// PostOrder submits a signed order to the CLOB API and returns the result.
func (c *ClobClient) PostOrder(ctx context.Context, payload crypto.OrderPayload, signature string, orderType domain.OrderType) (domain.OrderResult, error) {
	side := "BUY"
	if payload.Side == crypto.SideSell {
		side = "SELL"
	}
	salt, err := strconv.ParseInt(payload.Salt, 10, 64)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: post order: salt: %w", domain.ErrInvalidOrder)
	}
	body := map[string]any{
		"order": map[string]any{
			"salt":          salt,
			"maker":         payload.Maker,
			"signer":        payload.Signer,
			"taker":         payload.Taker,
			"tokenId":       payload.TokenID,
			"makerAmount":   payload.MakerAmount,
			"takerAmount":   payload.TakerAmount,
			"expiration":    payload.Expiration,
			"nonce":         payload.Nonce,
			"feeRateBps":    payload.FeeRateBps,
			"side":          side,
			"signatureType": payload.SignatureType,
			"signature":     signature,
		},
		"owner":     c.apiKey(),
		"orderType": string(orderType),
	}

	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodPost, "/order", body)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: post order: %w", err)
	}

	var apiResult APIOrderResult
	if err := json.Unmarshal(respBody, &apiResult); err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: decode order result: %w", err)
	}

	result := apiResult.ToDomainOrderResult()
	if !result.Success {
		return result, fmt.Errorf("polymarket/clob: order rejected: %s: %w", result.Message, domain.ErrInvalidOrder)
	}
	return result, nil
}

// CancelOrder cancels a single resting order by its ID.
func (c *ClobClient) CancelOrder(ctx context.Context, orderID string) error {
	body := map[string]any{
		"orderID": orderID,
	}

	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodDelete, "/order", body)
	if err != nil {
		return fmt.Errorf("polymarket/clob: cancel order %s: %w", orderID, err)
	}

	var result struct {
		Canceled    []string          `json:"canceled"`
		NotCanceled map[string]string `json:"not_canceled"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("polymarket/clob: decode cancel response: %w", err)
	}
	if reason, ok := result.NotCanceled[orderID]; ok {
		return fmt.Errorf("polymarket/clob: cancel %s refused: %s", orderID, reason)
	}
	return nil
}

// DeriveAPIKey performs the CLOB auth flow to obtain an HMAC API key. It
// signs a ClobAuth EIP-712 message and sends it with L1 headers to the
// derive-api-key endpoint. On success the client uses the derived
// credentials for every authenticated request.
func (c *ClobClient) DeriveAPIKey(ctx context.Context) (*crypto.HMACAuth, error) {
	if c.signer == nil {
		return nil, fmt.Errorf("polymarket/clob: derive api key: %w", domain.ErrUnauthorized)
	}
	address := c.signer.Address().Hex()
	timestamp := time.Now().Unix()
	nonce := int64(0)

	sig, err := c.signer.SignAuthMessage(address, timestamp, nonce)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: sign auth message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/derive-api-key", nil)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: create auth request: %w", err)
	}
	req.Header.Set("POLY_ADDRESS", address)
	req.Header.Set("POLY_SIGNATURE", sig)
	req.Header.Set("POLY_TIMESTAMP", strconv.FormatInt(timestamp, 10))
	req.Header.Set("POLY_NONCE", strconv.FormatInt(nonce, 10))

	respBody, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: derive api key: %w", err)
	}

	var authResp struct {
		APIKey     string `json:"apiKey"`
		Secret     string `json:"secret"`
		Passphrase string `json:"passphrase"`
	}
	if err := json.Unmarshal(respBody, &authResp); err != nil {
		return nil, fmt.Errorf("polymarket/clob: decode auth response: %w", err)
	}

	auth := &crypto.HMACAuth{
		Key:        authResp.APIKey,
		Secret:     authResp.Secret,
		Passphrase: authResp.Passphrase,
	}
	c.mu.Lock()
	c.hmacAuth = auth
	c.mu.Unlock()
	return auth, nil
}

func (c *ClobClient) apiKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.hmacAuth == nil {
		return ""
	}
	return c.hmacAuth.Key
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (c *ClobClient) doPublic(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.do(req)
}

// doAuthenticatedRequest builds, signs (HMAC), sends, and reads an HTTP
// request against the CLOB API. The signed path includes the query string.
func (c *ClobClient) doAuthenticatedRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	c.mu.RLock()
	auth := c.hmacAuth
	c.mu.RUnlock()
	if auth == nil || c.signer == nil {
		return nil, domain.ErrUnauthorized
	}

	var bodyReader io.Reader
	var bodyStr string
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range auth.L2Headers(c.signer.Address().Hex(), method, path, bodyStr) {
		req.Header.Set(k, v)
	}
	return c.do(req)
}

func (c *ClobClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to appropriate domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", domain.ErrInvalidOrder, bodyStr)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}

package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// DataClient reads wallet positions from the Polymarket data API.
type DataClient struct {
	baseURL    string
	user       string
	httpClient *http.Client
}

// NewDataClient creates a data API client for the wallet that holds the
// positions: the proxy wallet when one is used, otherwise the EOA.
func NewDataClient(baseURL, user string) *DataClient {
	return &DataClient{
		baseURL: baseURL,
		user:    user,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Holdings returns every outcome-token balance the wallet holds.
func (d *DataClient) Holdings(ctx context.Context) ([]domain.Holding, error) {
	if d.user == "" {
		return nil, fmt.Errorf("polymarket/data: holdings: no wallet address")
	}
	q := url.Values{}
	q.Set("user", d.user)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/positions?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("polymarket/data: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("polymarket/data: holdings: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("polymarket/data: read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, fmt.Errorf("polymarket/data: holdings: %w", err)
	}

	rows, err := decodePositions(body)
	if err != nil {
		return nil, fmt.Errorf("polymarket/data: decode positions: %w", err)
	}
	out := make([]domain.Holding, 0, len(rows))
	for i := range rows {
		if h, ok := rows[i].ToDomainHolding(); ok {
			out = append(out, h)
		}
	}
	return out, nil
}

// decodePositions accepts a bare list or an object wrapping it in "data".
func decodePositions(body []byte) ([]APIPosition, error) {
	var rows []APIPosition
	if err := json.Unmarshal(body, &rows); err == nil {
		return rows, nil
	}
	var wrapped struct {
		Data []APIPosition `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Data, nil
}

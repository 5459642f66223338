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

// GammaClient is the REST client for the Polymarket Gamma API, which lists
// events and their markets.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewGammaClient creates a new Gamma API client.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string) *GammaClient {
	return &GammaClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Event returns the event with the given slug.
func (g *GammaClient) Event(ctx context.Context, slug string) (APIEvent, error) {
	body, err := g.doGet(ctx, "/events/slug/"+url.PathEscape(slug))
	if err != nil {
		return APIEvent{}, fmt.Errorf("polymarket/gamma: event %s: %w", slug, err)
	}
	var ev APIEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return APIEvent{}, fmt.Errorf("polymarket/gamma: decode event: %w", err)
	}
	return ev, nil
}

// EventMarkets returns the markets listed under an event slug. Markets the
// venue lists without tokens or an end date are skipped. An unknown slug
// returns an error wrapping domain.ErrNotFound.
func (g *GammaClient) EventMarkets(ctx context.Context, slug string) ([]domain.Listing, error) {
	ev, err := g.Event(ctx, slug)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Listing, 0, len(ev.Markets))
	for i := range ev.Markets {
		l, ok := ev.Markets[i].ToDomainListing()
		if !ok {
			continue
		}
		if l.Market.Slug == "" {
			l.Market.Slug = ev.Slug
		}
		if bool(ev.Closed) {
			l.Closed = true
		}
		out = append(out, l)
	}
	return out, nil
}

// doGet sends an unauthenticated GET request to the Gamma API.
func (g *GammaClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

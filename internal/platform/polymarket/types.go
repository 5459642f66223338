package polymarket

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// flexFloat unmarshals from a JSON number or a numeric string. Null and
// empty strings leave it unset.
type flexFloat struct {
	Value float64
	Set   bool
}

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexFloat{Value: n, Set: true}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat{Value: n, Set: true}
	return nil
}

// first returns the first set value.
func first(vals ...flexFloat) (float64, bool) {
	for _, v := range vals {
		if v.Set {
			return v.Value, true
		}
	}
	return 0, false
}

// tokenIDs unmarshals clobTokenIds, which Gamma sends either as a list or as
// a JSON-encoded string holding the list.
type tokenIDs []string

func (t *tokenIDs) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*t = list
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*t = nil
		return nil
	}
	if err := json.Unmarshal([]byte(s), &list); err != nil {
		return err
	}
	*t = list
	return nil
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// APIOrderResult is the response from placing an order via the CLOB API.
type APIOrderResult struct {
	Success     bool   `json:"success"`
	ErrorMsg    string `json:"errorMsg,omitempty"`
	OrderID     string `json:"orderID,omitempty"`
	Status      string `json:"status,omitempty"`
	ShouldRetry bool   `json:"shouldRetry,omitempty"`
}

// ToDomainOrderResult converts an APIOrderResult to a domain.OrderResult.
func (r *APIOrderResult) ToDomainOrderResult() domain.OrderResult {
	return domain.OrderResult{
		Success:     r.Success,
		OrderID:     r.OrderID,
		Status:      mapOrderStatus(r.Status),
		Message:     r.ErrorMsg,
		ShouldRetry: r.ShouldRetry,
	}
}

// mapOrderStatus maps a CLOB order status string to a domain.OrderStatus.
func mapOrderStatus(s string) domain.OrderStatus {
	switch strings.ToLower(s) {
	case "live", "open", "delayed", "unmatched":
		return domain.OrderStatusOpen
	case "matched", "filled", "mined", "confirmed":
		return domain.OrderStatusMatched
	case "cancelled", "canceled":
		return domain.OrderStatusCancelled
	case "failed", "rejected":
		return domain.OrderStatusFailed
	default:
		return domain.OrderStatusPending
	}
}

// APIBookLevel is one level of a CLOB book; prices and sizes are strings.
type APIBookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// APIBook is the response of GET /book.
type APIBook struct {
	Market    string         `json:"market"`
	AssetID   string         `json:"asset_id"`
	Bids      []APIBookLevel `json:"bids"`
	Asks      []APIBookLevel `json:"asks"`
	Timestamp string         `json:"timestamp"`
}

// ToDomainOrderBook converts the book, sorting bids best (highest) first and
// asks best (lowest) first. The CLOB returns both sides worst first.
func (b *APIBook) ToDomainOrderBook() *domain.OrderBook {
	book := &domain.OrderBook{
		Bids: parseLevels(b.Bids),
		Asks: parseLevels(b.Asks),
	}
	sort.Slice(book.Bids, func(i, j int) bool { return book.Bids[i].Price > book.Bids[j].Price })
	sort.Slice(book.Asks, func(i, j int) bool { return book.Asks[i].Price < book.Asks[j].Price })
	if ms, err := strconv.ParseInt(b.Timestamp, 10, 64); err == nil {
		book.Timestamp = time.UnixMilli(ms).UTC()
	}
	return book
}

func parseLevels(levels []APIBookLevel) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(levels))
	for _, l := range levels {
		p, err := strconv.ParseFloat(l.Price, 64)
		if err != nil {
			continue
		}
		s, err := strconv.ParseFloat(l.Size, 64)
		if err != nil || s <= 0 {
			continue
		}
		out = append(out, domain.PriceLevel{Price: p, Size: s})
	}
	return out
}

// APIHistoryPoint is one point of GET /prices-history.
type APIHistoryPoint struct {
	T int64     `json:"t"`
	P flexFloat `json:"p"`
	V flexFloat `json:"v"`
}

// APIPriceHistory is the response of GET /prices-history.
type APIPriceHistory struct {
	History []APIHistoryPoint `json:"history"`
}

// ToDomainTicks converts the history, dropping points without a price.
func (h *APIPriceHistory) ToDomainTicks() []domain.PriceTick {
	out := make([]domain.PriceTick, 0, len(h.History))
	for _, pt := range h.History {
		if !pt.P.Set {
			continue
		}
		out = append(out, domain.PriceTick{
			Price:  pt.P.Value,
			Volume: pt.V.Value,
			Time:   time.Unix(pt.T, 0).UTC(),
		})
	}
	return out
}

// APIBalanceEntry is one element of the balances list some balance
// responses carry.
type APIBalanceEntry struct {
	CurrentBalance flexFloat `json:"currentBalance"`
	BuyingPower    flexFloat `json:"buyingPower"`
	AssetAvailable flexFloat `json:"assetAvailable"`
}

// APIBalance is the response of GET /balance-allowance. The field holding
// the USDC balance has varied; Amount picks the first one present.
type APIBalance struct {
	Balance   flexFloat         `json:"balance"`
	USDC      flexFloat         `json:"usdc"`
	Available flexFloat         `json:"available"`
	Balances  []APIBalanceEntry `json:"balances"`
}

// Amount returns the balance in USD.
func (b *APIBalance) Amount() (float64, bool) {
	if v, ok := first(b.Balance, b.USDC, b.Available); ok {
		return v, true
	}
	if len(b.Balances) > 0 {
		e := b.Balances[0]
		return first(e.CurrentBalance, e.BuyingPower, e.AssetAvailable)
	}
	return 0, false
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIEvent represents an event as returned by the Polymarket Gamma API.
// An event groups one or more related markets.
type APIEvent struct {
	ID      string      `json:"id"`
	Title   string      `json:"title"`
	Slug    string      `json:"slug"`
	Active  flexBool    `json:"active"`
	Closed  flexBool    `json:"closed"`
	Markets []APIMarket `json:"markets"`
}

// APIMarket represents a market as returned by the Polymarket Gamma API.
type APIMarket struct {
	ID              string    `json:"id"`
	Question        string    `json:"question"`
	ConditionID     string    `json:"conditionId"`
	Slug            string    `json:"slug"`
	EndDate         string    `json:"endDate"`
	EndDateISO      string    `json:"endDateIso"`
	ClobTokenIDs    tokenIDs  `json:"clobTokenIds"`
	Active          flexBool  `json:"active"`
	Closed          flexBool  `json:"closed"`
	AcceptingOrders *flexBool `json:"acceptingOrders"`
}

// ToDomainListing converts the market. ok is false when the market lacks a
// condition id, an end date or both outcome tokens.
func (m *APIMarket) ToDomainListing() (domain.Listing, bool) {
	if m.ConditionID == "" || len(m.ClobTokenIDs) < 2 {
		return domain.Listing{}, false
	}
	end, ok := parseEndDate(m.EndDate, m.EndDateISO)
	if !ok {
		return domain.Listing{}, false
	}
	accepting := true
	if m.AcceptingOrders != nil {
		accepting = bool(*m.AcceptingOrders)
	}
	return domain.Listing{
		Market: domain.Market{
			ConditionID: m.ConditionID,
			Question:    m.Question,
			Slug:        m.Slug,
			YesTokenID:  m.ClobTokenIDs[0],
			NoTokenID:   m.ClobTokenIDs[1],
			EndTime:     end,
		},
		Active:          bool(m.Active),
		Closed:          bool(m.Closed),
		AcceptingOrders: accepting,
	}, true
}

// parseEndDate accepts RFC 3339 timestamps and bare dates; a bare date is
// the end of that UTC day.
func parseEndDate(candidates ...string) (time.Time, bool) {
	for _, s := range candidates {
		if s == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UTC(), true
		}
		if d, err := time.Parse(time.DateOnly, s); err == nil {
			return d.Add(24*time.Hour - time.Second).UTC(), true
		}
	}
	return time.Time{}, false
}

// --------------------------------------------------------------------------
// Data API DTOs
// --------------------------------------------------------------------------

// APIPosition is one row of the data API /positions response. Key names
// differ between API versions.
type APIPosition struct {
	Asset         string    `json:"asset"`
	AssetID       string    `json:"asset_id"`
	TokenID       string    `json:"token_id"`
	AssetIDCamel  string    `json:"assetID"`
	Size          flexFloat `json:"size"`
	ConditionID   string    `json:"conditionId"`
	ConditionSnek string    `json:"condition_id"`
	AvgPrice      flexFloat `json:"avgPrice"`
	AvgPriceSnek  flexFloat `json:"avg_price"`
}

// ToDomainHolding converts the row. ok is false when the token is unknown.
func (p *APIPosition) ToDomainHolding() (domain.Holding, bool) {
	token := firstString(p.AssetID, p.TokenID, p.AssetIDCamel, p.Asset)
	if token == "" {
		return domain.Holding{}, false
	}
	h := domain.Holding{
		TokenID:     token,
		Size:        p.Size.Value,
		ConditionID: firstString(p.ConditionSnek, p.ConditionID),
	}
	if avg, ok := first(p.AvgPrice, p.AvgPriceSnek); ok {
		h.AvgPrice = &avg
	}
	return h, true
}

func firstString(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

package domain

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType indicates the time-in-force policy.
type OrderType string

const (
	OrderTypeGTC OrderType = "GTC" // Good-Till-Cancelled
	OrderTypeFOK OrderType = "FOK" // Fill-Or-Kill
	OrderTypeFAK OrderType = "FAK" // Fill-And-Kill
)

// OrderStatus tracks the order lifecycle as reported by the venue.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusMatched   OrderStatus = "matched"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusFailed    OrderStatus = "failed"
)

// OrderRequest asks the order gateway to buy or sell Size shares of an
// outcome token at Price or better.
type OrderRequest struct {
	TokenID string
	Price   float64
	Size    float64 // shares
	Side    OrderSide
	Type    OrderType
	Label   string // entry strategy or exit reason, for logs
}

// Notional is price times size in USD.
func (r OrderRequest) Notional() float64 {
	return r.Price * r.Size
}

// OrderResult wraps the venue response after order submission.
type OrderResult struct {
	Success     bool
	OrderID     string
	Status      OrderStatus
	Message     string
	ShouldRetry bool
}

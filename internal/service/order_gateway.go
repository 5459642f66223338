package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/updownbot/internal/crypto"
	"github.com/alanyoungcy/updownbot/internal/domain"
)

var _ OrderSubmitter = (*OrderGateway)(nil)

const zeroAddress = "0x0000000000000000000000000000000000000000"

// collateralScale converts USDC and share quantities to the venue's
// six-decimal integer units.
var collateralScale = decimal.New(1, 6)

// Signer abstracts EIP-712 order signing so the service layer never depends
// on concrete key-management implementations.
type Signer interface {
	SignOrder(payload crypto.OrderPayload) (string, error)
	Address() common.Address
}

// ClobPoster submits signed orders to the Polymarket CLOB API.
type ClobPoster interface {
	PostOrder(ctx context.Context, payload crypto.OrderPayload, signature string, orderType domain.OrderType) (domain.OrderResult, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// GatewayConfig controls paper mode, retries and venue order settings.
type GatewayConfig struct {
	Paper           bool
	OrderType       domain.OrderType
	SignatureType   int    // 0 EOA, 1 proxy wallet
	Funder          string // proxy wallet address when SignatureType is 1
	RetryAttempts   int
	RetryDelay      time.Duration
	RateLimitDelay  time.Duration
	MaxRetryDelay   time.Duration
	CallTimeout     time.Duration
	OrdersPerSecond int
}

// OrderGateway is the single path orders take to the venue. In paper mode it
// simulates fills; live it rate limits, signs and posts with retries.
type OrderGateway struct {
	cfg     GatewayConfig
	signer  Signer
	clob    ClobPoster
	limiter domain.RateLimiter
	sleep   func(ctx context.Context, d time.Duration) error
	logger  *slog.Logger
}

// NewPaperGateway creates a gateway that never touches the venue.
func NewPaperGateway(logger *slog.Logger) *OrderGateway {
	return &OrderGateway{
		cfg:    GatewayConfig{Paper: true},
		sleep:  sleepCtx,
		logger: logger.With(slog.String("component", "order_gateway")),
	}
}

// NewLiveGateway creates a gateway that signs and posts real orders. limiter
// may be nil.
func NewLiveGateway(cfg GatewayConfig, signer Signer, clob ClobPoster, limiter domain.RateLimiter, logger *slog.Logger) *OrderGateway {
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	if cfg.OrderType == "" {
		cfg.OrderType = domain.OrderTypeGTC
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	cfg.Paper = false
	return &OrderGateway{
		cfg:     cfg,
		signer:  signer,
		clob:    clob,
		limiter: limiter,
		sleep:   sleepCtx,
		logger:  logger.With(slog.String("component", "order_gateway")),
	}
}

// Paper reports whether the gateway simulates orders.
func (g *OrderGateway) Paper() bool { return g.cfg.Paper }

// Submit places req and returns the venue order id. Transient failures and
// rate limiting are retried with exponential backoff; a final failure leaves
// nothing changed.
func (g *OrderGateway) Submit(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if req.TokenID == "" || req.Price <= 0 || req.Price >= 1 || req.Size <= 0 {
		return domain.OrderResult{}, fmt.Errorf("order_gateway: %s %.4f @ %.4f: %w", req.Side, req.Size, req.Price, domain.ErrInvalidOrder)
	}

	if g.cfg.Paper {
		id := "paper-" + uuid.NewString()
		g.logger.InfoContext(ctx, "order_gateway: paper order simulated",
			slog.String("order_id", id),
			slog.String("side", string(req.Side)),
			slog.String("label", req.Label),
			slog.Float64("price", req.Price),
			slog.Float64("shares", req.Size),
		)
		return domain.OrderResult{Success: true, OrderID: id, Status: domain.OrderStatusMatched}, nil
	}

	var lastErr error
	for attempt := 0; attempt < g.cfg.RetryAttempts; attempt++ {
		res, err := g.attempt(ctx, req)
		if err == nil {
			g.logger.InfoContext(ctx, "order_gateway: order placed",
				slog.String("order_id", res.OrderID),
				slog.String("side", string(req.Side)),
				slog.String("label", req.Label),
				slog.Float64("price", req.Price),
				slog.Float64("shares", req.Size),
				slog.Int("attempt", attempt+1),
			)
			return res, nil
		}
		lastErr = err
		if !retryable(err) || attempt == g.cfg.RetryAttempts-1 {
			break
		}
		delay := g.backoff(attempt, errors.Is(err, domain.ErrRateLimited))
		g.logger.WarnContext(ctx, "order_gateway: attempt failed, retrying",
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
		if err := g.sleep(ctx, delay); err != nil {
			return domain.OrderResult{}, fmt.Errorf("order_gateway: %w", err)
		}
	}
	return domain.OrderResult{}, fmt.Errorf("order_gateway: submit %s %s: %w", req.Side, req.Label, lastErr)
}

func (g *OrderGateway) attempt(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
	defer cancel()

	if g.limiter != nil && g.cfg.OrdersPerSecond > 0 {
		allowed, err := g.limiter.Allow(callCtx, "orders:"+g.signer.Address().Hex(), g.cfg.OrdersPerSecond, time.Second)
		if err != nil {
			return domain.OrderResult{}, fmt.Errorf("rate limiter: %w", err)
		}
		if !allowed {
			return domain.OrderResult{}, domain.ErrRateLimited
		}
	}

	payload := g.buildPayload(req)
	sig, err := g.signer.SignOrder(payload)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("%w: %v", domain.ErrSigningFailed, err)
	}
	res, err := g.clob.PostOrder(callCtx, payload, sig, g.cfg.OrderType)
	if err != nil {
		return domain.OrderResult{}, err
	}
	if res.OrderID == "" {
		return res, fmt.Errorf("order response missing id: %s", res.Message)
	}
	return res, nil
}

// Cancel cancels a resting order. Paper orders cancel trivially.
func (g *OrderGateway) Cancel(ctx context.Context, orderID string) error {
	if g.cfg.Paper {
		g.logger.InfoContext(ctx, "order_gateway: paper cancel", slog.String("order_id", orderID))
		return nil
	}
	callCtx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
	defer cancel()
	if err := g.clob.CancelOrder(callCtx, orderID); err != nil {
		return fmt.Errorf("order_gateway: cancel %s: %w", orderID, err)
	}
	return nil
}

func (g *OrderGateway) buildPayload(req domain.OrderRequest) crypto.OrderPayload {
	signer := g.signer.Address().Hex()
	maker := signer
	if g.cfg.SignatureType != crypto.SignatureEOA && g.cfg.Funder != "" {
		maker = g.cfg.Funder
	}
	makerAmt, takerAmt := OrderAmounts(req)
	side := crypto.SideBuy
	if req.Side == domain.OrderSideSell {
		side = crypto.SideSell
	}
	return crypto.OrderPayload{
		Salt:          strconv.FormatInt(time.Now().UnixNano(), 10),
		Maker:         maker,
		Signer:        signer,
		Taker:         zeroAddress,
		TokenID:       req.TokenID,
		MakerAmount:   makerAmt,
		TakerAmount:   takerAmt,
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          side,
		SignatureType: g.cfg.SignatureType,
	}
}

// OrderAmounts converts a limit order to the venue's maker and taker amounts
// in six-decimal units. A buy gives USDC for shares; a sell gives shares for
// USDC.
func OrderAmounts(req domain.OrderRequest) (maker, taker string) {
	shares := decimal.NewFromFloat(req.Size).RoundDown(2)
	usdc := shares.Mul(decimal.NewFromFloat(req.Price)).RoundDown(4)
	sharesUnits := shares.Mul(collateralScale).Truncate(0).String()
	usdcUnits := usdc.Mul(collateralScale).Truncate(0).String()
	if req.Side == domain.OrderSideSell {
		return sharesUnits, usdcUnits
	}
	return usdcUnits, sharesUnits
}

func (g *OrderGateway) backoff(attempt int, rateLimited bool) time.Duration {
	base := g.cfg.RetryDelay
	if rateLimited && g.cfg.RateLimitDelay > 0 {
		base = g.cfg.RateLimitDelay
	}
	d := base << attempt
	if g.cfg.MaxRetryDelay > 0 && (d > g.cfg.MaxRetryDelay || d <= 0) {
		d = g.cfg.MaxRetryDelay
	}
	return d
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, domain.ErrInvalidOrder),
		errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrSigningFailed):
		return false
	default:
		return true
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

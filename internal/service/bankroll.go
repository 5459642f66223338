package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/strategy"
)

var _ strategy.BankrollSource = (*Bankroll)(nil)

// BalanceSource reports the wallet's available USDC on the venue.
type BalanceSource interface {
	Balance(ctx context.Context) (float64, error)
}

// SessionStatsSource reports P&L realized by this process.
type SessionStatsSource interface {
	Stats() domain.SessionStats
}

// Bankroll resolves the capital used for sizing. Live it is the venue
// balance; in paper mode it is the starting bankroll plus realized P&L.
type Bankroll struct {
	starting float64
	balance  BalanceSource
	ledger   domain.LedgerStore
	session  SessionStatsSource
	logger   *slog.Logger

	mu   sync.Mutex
	last float64
}

// NewLiveBankroll creates a Bankroll backed by the venue balance.
func NewLiveBankroll(starting float64, balance BalanceSource, logger *slog.Logger) *Bankroll {
	return &Bankroll{
		starting: starting,
		balance:  balance,
		logger:   logger.With(slog.String("component", "bankroll")),
	}
}

// NewPaperBankroll creates a Bankroll that replays realized P&L from the
// ledger, or from the session stats when no ledger is configured.
func NewPaperBankroll(starting float64, ledger domain.LedgerStore, session SessionStatsSource, logger *slog.Logger) *Bankroll {
	return &Bankroll{
		starting: starting,
		ledger:   ledger,
		session:  session,
		logger:   logger.With(slog.String("component", "bankroll")),
	}
}

// Bankroll returns the current bankroll. Failed lookups fall back to the
// last good value, then to the starting bankroll.
func (b *Bankroll) Bankroll(ctx context.Context) float64 {
	v, err := b.resolve(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.logger.WarnContext(ctx, "bankroll: lookup failed, using last value", slog.String("error", err.Error()))
		if b.last > 0 {
			return b.last
		}
		return b.starting
	}
	b.last = v
	return v
}

func (b *Bankroll) resolve(ctx context.Context) (float64, error) {
	switch {
	case b.balance != nil:
		v, err := b.balance.Balance(ctx)
		if err != nil {
			return 0, err
		}
		return round2(v), nil
	case b.ledger != nil:
		pnl, err := b.ledger.SumPnLBetween(ctx, time.Unix(0, 0), time.Now().Add(24*time.Hour))
		if err != nil {
			return 0, err
		}
		return round2(b.starting + pnl), nil
	case b.session != nil:
		return round2(b.starting + b.session.Stats().TotalPnL), nil
	default:
		return b.starting, nil
	}
}

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

var _ domain.LedgerStore = (*LedgerStore)(nil)

// LedgerStore is the append-only trade ledger. Money columns are NUMERIC and
// cross the wire as text so no precision is lost to float conversion.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a new LedgerStore backed by the given connection pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Append inserts one closed trade.
func (s *LedgerStore) Append(ctx context.Context, e domain.LedgerEntry) error {
	const query = `
		INSERT INTO trades (
			condition_id, question, side,
			entry_price, exit_price, size_usd, shares, pnl,
			entry_time, exit_time, duration_seconds, reason, strategy
		) VALUES (
			$1, $2, $3,
			$4::numeric, $5::numeric, $6::numeric, $7::numeric, $8::numeric,
			$9, $10, $11, $12, $13
		)`

	_, err := s.pool.Exec(ctx, query,
		e.ConditionID, e.Question, string(e.Side),
		e.EntryPrice.String(), e.ExitPrice.String(), e.SizeUSD.String(), e.Shares.String(), e.PnL.String(),
		e.EntryTime, e.ExitTime, e.DurationSeconds, string(e.Reason), e.Strategy,
	)
	if err != nil {
		return fmt.Errorf("postgres: append trade %s: %w", e.ConditionID, err)
	}
	return nil
}

// SumPnLBetween totals realized P&L for trades that exited in [from, to).
func (s *LedgerStore) SumPnLBetween(ctx context.Context, from, to time.Time) (float64, error) {
	var sum string
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(pnl), 0)::text FROM trades WHERE exit_time >= $1 AND exit_time < $2`,
		from, to,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("postgres: sum pnl: %w", err)
	}
	d, err := decimal.NewFromString(sum)
	if err != nil {
		return 0, fmt.Errorf("postgres: parse pnl sum %q: %w", sum, err)
	}
	return d.InexactFloat64(), nil
}

// List returns trades newest first, filtered on exit time.
func (s *LedgerStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.LedgerEntry, error) {
	query, args := withListOpts(`
		SELECT id, condition_id, question, side,
			entry_price::text, exit_price::text, size_usd::text, shares::text, pnl::text,
			entry_time, exit_time, duration_seconds, reason, strategy
		FROM trades WHERE 1=1`, nil, "exit_time", opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades: %w", err)
	}
	defer rows.Close()

	var out []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var side, reason string
		var money [5]string
		if err := rows.Scan(
			&e.ID, &e.ConditionID, &e.Question, &side,
			&money[0], &money[1], &money[2], &money[3], &money[4],
			&e.EntryTime, &e.ExitTime, &e.DurationSeconds, &reason, &e.Strategy,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		dst := []*decimal.Decimal{&e.EntryPrice, &e.ExitPrice, &e.SizeUSD, &e.Shares, &e.PnL}
		for i, s := range money {
			d, err := decimal.NewFromString(s)
			if err != nil {
				return nil, fmt.Errorf("postgres: parse trade %d amount %q: %w", e.ID, s, err)
			}
			*dst[i] = d
		}
		e.Side = domain.Side(side)
		e.Reason = domain.ExitReason(reason)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list trades rows: %w", err)
	}
	return out, nil
}

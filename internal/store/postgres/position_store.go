package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

var _ domain.PositionStore = (*PositionStore)(nil)

// PositionStore implements domain.PositionStore using PostgreSQL. A row is
// keyed by market and entry time, so a market re-entered after a close
// keeps both rows.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `condition_id, question, side, token_id,
	entry_price, size_usd, shares, strategy, order_id,
	entry_time, end_time, current_price, state,
	exit_price, exit_time, pnl, exit_reason`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var side, state, reason string
	err := row.Scan(
		&p.ConditionID, &p.Question, &side, &p.TokenID,
		&p.EntryPrice, &p.SizeUSD, &p.Shares, &p.Strategy, &p.OrderID,
		&p.EntryTime, &p.EndTime, &p.CurrentPrice, &state,
		&p.ExitPrice, &p.ExitTime, &p.PnL, &reason,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Side = domain.Side(side)
	p.State = domain.PositionState(state)
	p.ExitReason = domain.ExitReason(reason)
	return p, nil
}

func collectPositions(rows pgx.Rows) ([]domain.Position, error) {
	defer rows.Close()
	var out []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Upsert inserts the position or replaces its mutable fields.
func (s *PositionStore) Upsert(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			condition_id, entry_time, question, side, token_id,
			entry_price, size_usd, shares, strategy, order_id,
			end_time, current_price, state,
			exit_price, exit_time, pnl, exit_reason, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13,
			$14, $15, $16, $17, NOW()
		)
		ON CONFLICT (condition_id, entry_time) DO UPDATE SET
			current_price = EXCLUDED.current_price,
			state         = EXCLUDED.state,
			exit_price    = EXCLUDED.exit_price,
			exit_time     = EXCLUDED.exit_time,
			pnl           = EXCLUDED.pnl,
			exit_reason   = EXCLUDED.exit_reason,
			order_id      = EXCLUDED.order_id,
			updated_at    = NOW()`

	_, err := s.pool.Exec(ctx, query,
		p.ConditionID, p.EntryTime, p.Question, string(p.Side), p.TokenID,
		p.EntryPrice, p.SizeUSD, p.Shares, p.Strategy, p.OrderID,
		p.EndTime, p.CurrentPrice, string(p.State),
		p.ExitPrice, p.ExitTime, p.PnL, string(p.ExitReason),
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert position %s: %w", p.ConditionID, err)
	}
	return nil
}

// GetOpen returns every position that has not been closed.
func (s *PositionStore) GetOpen(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE state <> 'closed'
		 ORDER BY entry_time`)
	if err != nil {
		return nil, fmt.Errorf("postgres: get open positions: %w", err)
	}
	positions, err := collectPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open positions: %w", err)
	}
	return positions, nil
}

// GetByConditionID returns the most recent position in a market.
func (s *PositionStore) GetByConditionID(ctx context.Context, conditionID string) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE condition_id = $1
		 ORDER BY entry_time DESC LIMIT 1`, conditionID)

	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", conditionID, err)
	}
	return p, nil
}

// ListHistory returns positions newest first, filtered on entry time.
func (s *PositionStore) ListHistory(ctx context.Context, opts domain.ListOpts) ([]domain.Position, error) {
	query, args := withListOpts(`SELECT `+positionSelectCols+` FROM positions WHERE 1=1`, nil, "entry_time", opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	positions, err := collectPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions: %w", err)
	}
	return positions, nil
}

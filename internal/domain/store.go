package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// PositionStore persists positions so open ones can be restored on start.
type PositionStore interface {
	Upsert(ctx context.Context, pos Position) error
	GetOpen(ctx context.Context) ([]Position, error)
	GetByConditionID(ctx context.Context, conditionID string) (Position, error)
	ListHistory(ctx context.Context, opts ListOpts) ([]Position, error)
}

// LedgerStore is the append-only trade ledger.
type LedgerStore interface {
	Append(ctx context.Context, entry LedgerEntry) error
	// SumPnLBetween totals realized P&L for rows whose exit time falls in
	// [from, to).
	SumPnLBetween(ctx context.Context, from, to time.Time) (float64, error)
	List(ctx context.Context, opts ListOpts) ([]LedgerEntry, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

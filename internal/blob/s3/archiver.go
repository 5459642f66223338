package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

var _ domain.LedgerArchiver = (*LedgerArchive)(nil)

const (
	archivePageSize = 500
	// multipartThreshold switches uploads to the multipart manager.
	multipartThreshold = 8 * 1024 * 1024
)

// LedgerLister is the slice of domain.LedgerStore the archive reads from.
type LedgerLister interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.LedgerEntry, error)
}

// BlobStore is the object storage the archive merges into.
type BlobStore interface {
	domain.BlobWriter
	domain.BlobReader
}

// LedgerArchive copies one UTC day of closed trades into a monthly JSONL
// object, merging with whatever that month's object already holds. Rows are
// keyed by condition id and entry time, so re-archiving a day is a no-op.
// The ledger itself is never pruned.
type LedgerArchive struct {
	ledger LedgerLister
	blobs  BlobStore
	audit  domain.AuditStore
	prefix string
}

// NewLedgerArchive creates a LedgerArchive writing under prefix. audit may
// be nil.
func NewLedgerArchive(ledger LedgerLister, blobs BlobStore, audit domain.AuditStore, prefix string) *LedgerArchive {
	if prefix == "" {
		prefix = "archive/ledger"
	}
	return &LedgerArchive{ledger: ledger, blobs: blobs, audit: audit, prefix: prefix}
}

// ledgerRecord is the archived JSON shape of a ledger row.
type ledgerRecord struct {
	ConditionID     string          `json:"condition_id"`
	Question        string          `json:"question"`
	Side            string          `json:"side"`
	EntryPrice      decimal.Decimal `json:"entry_price"`
	ExitPrice       decimal.Decimal `json:"exit_price"`
	SizeUSD         decimal.Decimal `json:"size_usd"`
	Shares          decimal.Decimal `json:"shares"`
	PnL             decimal.Decimal `json:"pnl"`
	EntryTime       time.Time       `json:"entry_time"`
	ExitTime        time.Time       `json:"exit_time"`
	DurationSeconds int64           `json:"duration_seconds"`
	Reason          string          `json:"reason"`
	Strategy        string          `json:"strategy"`
}

func toRecord(e domain.LedgerEntry) ledgerRecord {
	return ledgerRecord{
		ConditionID:     e.ConditionID,
		Question:        e.Question,
		Side:            string(e.Side),
		EntryPrice:      e.EntryPrice,
		ExitPrice:       e.ExitPrice,
		SizeUSD:         e.SizeUSD,
		Shares:          e.Shares,
		PnL:             e.PnL,
		EntryTime:       e.EntryTime.UTC(),
		ExitTime:        e.ExitTime.UTC(),
		DurationSeconds: e.DurationSeconds,
		Reason:          string(e.Reason),
		Strategy:        e.Strategy,
	}
}

func (r ledgerRecord) key() string {
	return r.ConditionID + "|" + r.EntryTime.UTC().Format(time.RFC3339Nano)
}

// MonthPath returns the object key holding trades that exited in t's month.
func (a *LedgerArchive) MonthPath(t time.Time) string {
	return path.Join(a.prefix, t.UTC().Format("2006-01")+".jsonl")
}

// ArchiveDay archives trades whose exit time falls on day (UTC) and returns
// how many rows were new to the archive.
func (a *LedgerArchive) ArchiveDay(ctx context.Context, day time.Time) (int, error) {
	from := time.Date(day.UTC().Year(), day.UTC().Month(), day.UTC().Day(), 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	entries, err := a.listRange(ctx, from, to)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	objPath := a.MonthPath(from)
	records, err := a.readMonth(ctx, objPath)
	if err != nil {
		return 0, err
	}

	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		seen[r.key()] = struct{}{}
	}
	added := 0
	for _, e := range entries {
		rec := toRecord(e)
		if _, dup := seen[rec.key()]; dup {
			continue
		}
		seen[rec.key()] = struct{}{}
		records = append(records, rec)
		added++
	}
	if added == 0 {
		return 0, nil
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].ExitTime.Before(records[j].ExitTime)
	})
	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive ledger marshal: %w", err)
	}

	if len(buf) >= multipartThreshold {
		err = a.blobs.PutMultipart(ctx, objPath, bytes.NewReader(buf), 0)
	} else {
		err = a.blobs.Put(ctx, objPath, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive ledger upload: %w", err)
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.ledger", map[string]any{
			"path":  objPath,
			"day":   from.Format("2006-01-02"),
			"added": added,
			"total": len(records),
		}); err != nil {
			return added, fmt.Errorf("s3blob: archive ledger audit log: %w", err)
		}
	}
	return added, nil
}

func (a *LedgerArchive) listRange(ctx context.Context, from, to time.Time) ([]domain.LedgerEntry, error) {
	var out []domain.LedgerEntry
	for offset := 0; ; offset += archivePageSize {
		page, err := a.ledger.List(ctx, domain.ListOpts{
			Limit:  archivePageSize,
			Offset: offset,
			Since:  &from,
			Until:  &to,
		})
		if err != nil {
			return nil, fmt.Errorf("s3blob: archive ledger query: %w", err)
		}
		out = append(out, page...)
		if len(page) < archivePageSize {
			return out, nil
		}
	}
}

// readMonth loads the existing monthly object, or nothing if absent.
func (a *LedgerArchive) readMonth(ctx context.Context, objPath string) ([]ledgerRecord, error) {
	ok, err := a.blobs.Exists(ctx, objPath)
	if err != nil {
		return nil, fmt.Errorf("s3blob: archive ledger exists: %w", err)
	}
	if !ok {
		return nil, nil
	}
	rc, err := a.blobs.Get(ctx, objPath)
	if err != nil {
		return nil, fmt.Errorf("s3blob: archive ledger read: %w", err)
	}
	defer rc.Close()

	records, err := unmarshalJSONL(rc)
	if err != nil {
		return nil, fmt.Errorf("s3blob: archive ledger decode %s: %w", objPath, err)
	}
	return records, nil
}

// marshalJSONL writes one compact JSON object per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

func unmarshalJSONL(r io.Reader) ([]ledgerRecord, error) {
	var out []ledgerRecord
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var rec ledgerRecord
		if err := json.Unmarshal(b, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

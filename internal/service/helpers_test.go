package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

type memLedger struct {
	mu      sync.Mutex
	entries []domain.LedgerEntry
	sum     float64
	sumErr  error
	sumCall int
}

func (l *memLedger) Append(_ context.Context, e domain.LedgerEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	return nil
}

func (l *memLedger) SumPnLBetween(context.Context, time.Time, time.Time) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sumCall++
	return l.sum, l.sumErr
}

func (l *memLedger) List(context.Context, domain.ListOpts) ([]domain.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.LedgerEntry, len(l.entries))
	copy(out, l.entries)
	return out, nil
}

type memAudit struct {
	mu     sync.Mutex
	events []string
}

func (a *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func (a *memAudit) count(event string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, e := range a.events {
		if e == event {
			n++
		}
	}
	return n
}

type memAlerts struct {
	mu     sync.Mutex
	events []string
}

func (a *memAlerts) Notify(_ context.Context, event, _, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

type memPositions struct {
	mu   sync.Mutex
	rows map[string]domain.Position
}

func newMemPositions(open ...domain.Position) *memPositions {
	s := &memPositions{rows: make(map[string]domain.Position)}
	for _, p := range open {
		s.rows[p.ConditionID] = p
	}
	return s
}

func (s *memPositions) Upsert(_ context.Context, p domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[p.ConditionID] = p
	return nil
}

func (s *memPositions) GetOpen(context.Context) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Position
	for _, p := range s.rows {
		if p.IsOpen() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memPositions) GetByConditionID(_ context.Context, id string) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.rows[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *memPositions) ListHistory(context.Context, domain.ListOpts) ([]domain.Position, error) {
	return nil, nil
}

type fakePricer struct {
	mu     sync.Mutex
	prices map[string]float64
	err    error
}

func (f *fakePricer) LastTradePrice(_ context.Context, tokenID string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	p, ok := f.prices[tokenID]
	if !ok {
		return 0, domain.ErrNoPrice
	}
	return p, nil
}

type recordingOrders struct {
	mu        sync.Mutex
	reqs      []domain.OrderRequest
	cancelled []string
	failOn    func(domain.OrderRequest) error
	next      int
}

func (o *recordingOrders) Submit(_ context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reqs = append(o.reqs, req)
	if o.failOn != nil {
		if err := o.failOn(req); err != nil {
			return domain.OrderResult{}, err
		}
	}
	o.next++
	return domain.OrderResult{
		Success: true,
		OrderID: fmt.Sprintf("order-%d", o.next),
		Status:  domain.OrderStatusOpen,
	}, nil
}

func (o *recordingOrders) Cancel(_ context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cancelled = append(o.cancelled, id)
	return nil
}

func (o *recordingOrders) requests() []domain.OrderRequest {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]domain.OrderRequest, len(o.reqs))
	copy(out, o.reqs)
	return out
}

type closeLog struct {
	mu  sync.Mutex
	pnl []float64
}

func (c *closeLog) RecordClose(_ context.Context, pnl float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pnl = append(c.pnl, pnl)
}

type memBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	subs      map[string]chan []byte
	failSubs  int // Subscribe errors this many times before succeeding
}

func newMemBus() *memBus {
	return &memBus{
		published: make(map[string][][]byte),
		subs:      make(map[string]chan []byte),
	}
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[channel] = append(b.published[channel], payload)
	if ch, ok := b.subs[channel]; ok {
		ch <- payload
	}
	return nil
}

func (b *memBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failSubs > 0 {
		b.failSubs--
		return nil, errors.New("redis: connection refused")
	}
	ch := make(chan []byte, 8)
	b.subs[channel] = ch
	return ch, nil
}

func (b *memBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *memBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func (b *memBus) count(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published[channel])
}

type memSignalStore struct {
	mu       sync.Mutex
	memo     domain.SignalMemo
	catalyst domain.CatalystFlag
	saves    int
}

func (s *memSignalStore) SaveMemo(_ context.Context, memo domain.SignalMemo, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memo = memo
	s.saves++
	return nil
}

func (s *memSignalStore) LoadMemo(context.Context) (domain.SignalMemo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.memo, nil
}

func (s *memSignalStore) SaveCatalyst(_ context.Context, flag domain.CatalystFlag, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalyst = flag
	s.saves++
	return nil
}

func (s *memSignalStore) LoadCatalyst(context.Context) (domain.CatalystFlag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalyst, nil
}

type fakeLocks struct {
	held bool
	n    int
}

func (l *fakeLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	if l.held {
		return nil, domain.ErrLockHeld
	}
	l.n++
	return func() {}, nil
}

// testMarket builds a market with a 0.50 yes mid ending in ten minutes.
func testMarket(id string, now time.Time) domain.Market {
	return domain.Market{
		ConditionID: id,
		Question:    "Bitcoin Up or Down - " + id,
		YesTokenID:  id + "-yes",
		NoTokenID:   id + "-no",
		EndTime:     now.Add(10 * time.Minute),
		YesBook: &domain.OrderBook{
			Bids: []domain.PriceLevel{{Price: 0.49, Size: 100}},
			Asks: []domain.PriceLevel{{Price: 0.51, Size: 100}},
		},
	}
}

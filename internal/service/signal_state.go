package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/strategy"
)

var _ strategy.SignalBoard = (*SignalState)(nil)

// SignalState holds the BTC memo the ETH lag-carry signal reads and the XRP
// catalyst flag. It is safe for concurrent use. When a store is attached,
// every write goes through to it so both survive a restart.
type SignalState struct {
	mu             sync.Mutex
	memo           domain.SignalMemo
	catalyst       domain.CatalystFlag
	memoExpiry     time.Duration
	catalystExpiry time.Duration
	store          domain.SignalStateStore
	logger         *slog.Logger
}

// NewSignalState creates an empty SignalState. store may be nil.
func NewSignalState(memoExpiry, catalystExpiry time.Duration, store domain.SignalStateStore, logger *slog.Logger) *SignalState {
	return &SignalState{
		memoExpiry:     memoExpiry,
		catalystExpiry: catalystExpiry,
		store:          store,
		logger:         logger.With(slog.String("component", "signal_state")),
	}
}

// Restore loads the last persisted memo and catalyst flag, dropping any that
// have already expired.
func (s *SignalState) Restore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	now := time.Now()
	memo, err := s.store.LoadMemo(ctx)
	if err != nil {
		return err
	}
	flag, err := s.store.LoadCatalyst(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if memo.Live(now, s.memoExpiry) {
		s.memo = memo
	}
	if flag.Active && !flag.Expired(now, s.catalystExpiry) {
		s.catalyst = flag
	}
	return nil
}

// Memo returns the current BTC memo.
func (s *SignalState) Memo() domain.SignalMemo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.memo
}

// Catalyst returns the current catalyst flag.
func (s *SignalState) Catalyst() domain.CatalystFlag {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalyst
}

// RecordMemo replaces the memo.
func (s *SignalState) RecordMemo(ctx context.Context, memo domain.SignalMemo) {
	s.mu.Lock()
	s.memo = memo
	s.mu.Unlock()

	if s.store == nil {
		return
	}
	if err := s.store.SaveMemo(ctx, memo, s.memoExpiry); err != nil {
		s.logger.WarnContext(ctx, "signal_state: persist memo failed", slog.String("error", err.Error()))
	}
}

// ExpireMemo clears a memo older than the lag expiry. It reports whether a
// memo was cleared.
func (s *SignalState) ExpireMemo(ctx context.Context, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.memo.Fired || s.memo.Live(now, s.memoExpiry) {
		return false
	}
	s.memo = domain.SignalMemo{}
	return true
}

// SetCatalyst replaces the catalyst flag. A flag without a set time is
// stamped with now.
func (s *SignalState) SetCatalyst(ctx context.Context, flag domain.CatalystFlag) {
	if flag.Active && flag.SetAt.IsZero() {
		flag.SetAt = time.Now().UTC()
	}
	s.mu.Lock()
	changed := s.catalyst != flag
	s.catalyst = flag
	s.mu.Unlock()

	if changed {
		s.logger.InfoContext(ctx, "signal_state: catalyst updated",
			slog.Bool("active", flag.Active),
			slog.String("direction", flag.Direction),
			slog.String("reason", flag.Reason),
		)
	}
	if s.store == nil || !changed {
		return
	}
	if err := s.store.SaveCatalyst(ctx, flag, s.catalystExpiry); err != nil {
		s.logger.WarnContext(ctx, "signal_state: persist catalyst failed", slog.String("error", err.Error()))
	}
}

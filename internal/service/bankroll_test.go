package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

type scriptedBalance struct {
	values []float64
	errs   []error
}

func (b *scriptedBalance) Balance(context.Context) (float64, error) {
	v, err := b.values[0], b.errs[0]
	b.values, b.errs = b.values[1:], b.errs[1:]
	return v, err
}

type fixedStats domain.SessionStats

func (f fixedStats) Stats() domain.SessionStats { return domain.SessionStats(f) }

func TestBankroll_LiveFallsBackToLastGood(t *testing.T) {
	ctx := context.Background()
	bal := &scriptedBalance{
		values: []float64{0, 412.349, 0},
		errs:   []error{errors.New("down"), nil, errors.New("down")},
	}
	b := NewLiveBankroll(500, bal, discardLogger())

	assert.InDelta(t, 500, b.Bankroll(ctx), 1e-9, "no good value yet: starting bankroll")
	assert.InDelta(t, 412.35, b.Bankroll(ctx), 1e-9)
	assert.InDelta(t, 412.35, b.Bankroll(ctx), 1e-9)
}

func TestBankroll_PaperFromLedger(t *testing.T) {
	ledger := &memLedger{sum: -37.5}
	b := NewPaperBankroll(500, ledger, nil, discardLogger())
	assert.InDelta(t, 462.5, b.Bankroll(context.Background()), 1e-9)
}

func TestBankroll_PaperFromSession(t *testing.T) {
	b := NewPaperBankroll(500, nil, fixedStats{TotalPnL: 12.25}, discardLogger())
	assert.InDelta(t, 512.25, b.Bankroll(context.Background()), 1e-9)
}

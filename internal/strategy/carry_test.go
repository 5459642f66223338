package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

func TestLagCarryMeasuresRepricingTowardMemoSide(t *testing.T) {
	p := testParams()
	p.ETHMaxRepricing = 0.08

	tests := []struct {
		name string
		side domain.Side
		mid  float64
		want bool
	}{
		{"yes memo, untouched odds", domain.SideYes, 0.50, true},
		{"yes memo, partly repriced", domain.SideYes, 0.57, true},
		{"yes memo, already repriced", domain.SideYes, 0.60, false},
		{"yes memo, leaning against", domain.SideYes, 0.45, true},
		{"yes memo, far against", domain.SideYes, 0.30, false},
		{"no memo, partly repriced", domain.SideNo, 0.43, true},
		{"no memo, already repriced", domain.SideNo, 0.40, false},
		{"no memo, leaning against", domain.SideNo, 0.55, true},
		{"no memo, far against", domain.SideNo, 0.70, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			memo := domain.SignalMemo{Fired: true, Side: tt.side, At: evalNow.Add(-20 * time.Second)}
			got := lagCarry(p, memo, tt.mid, evalNow)
			assert.Equal(t, tt.want, got.fired)
			if tt.want {
				assert.Equal(t, tt.side, got.side)
			}
		})
	}
}

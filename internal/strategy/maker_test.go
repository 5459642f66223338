package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

func makerParams() MakerParams {
	return MakerParams{
		Spread:        0.04,
		HoursStart:    23,
		HoursEnd:      5,
		Location:      time.UTC,
		MaxSize:       50,
		MaxPerTrade:   25,
		MaxVolatility: 0.005,
		VolWindow:     10,
	}
}

func TestInMakerHoursWraps(t *testing.T) {
	mp := makerParams()
	at := func(h int) time.Time { return time.Date(2026, 1, 5, h, 30, 0, 0, time.UTC) }

	assert.True(t, mp.InMakerHours(at(23)))
	assert.True(t, mp.InMakerHours(at(0)))
	assert.True(t, mp.InMakerHours(at(4)))
	assert.False(t, mp.InMakerHours(at(5)))
	assert.False(t, mp.InMakerHours(at(12)))
}

func TestLowVolatility(t *testing.T) {
	mp := makerParams()
	calm := ticks(0.50, 0.501, 0.499, 0.50, 0.502, 0.50, 0.499, 0.501, 0.50, 0.50)
	assert.True(t, mp.LowVolatility(calm))

	wild := ticks(0.50, 0.52, 0.48, 0.53, 0.47, 0.50, 0.55, 0.45, 0.50, 0.51)
	assert.False(t, mp.LowVolatility(wild))

	assert.False(t, mp.LowVolatility(calm[:9]), "too few ticks")
}

func TestMakerQuotes(t *testing.T) {
	mp := makerParams()
	m := market("Bitcoin Up or Down", book([][2]float64{{0.54, 100}}, [][2]float64{{0.56, 100}}))

	yes, no, ok := mp.Quotes(m)
	require.True(t, ok)
	assert.Equal(t, "yes-token", yes.TokenID)
	assert.InDelta(t, 0.53, yes.Price, 1e-9)
	assert.InDelta(t, 0.43, no.Price, 1e-9)
	assert.InDelta(t, 47.1698, yes.Shares, 1e-9, "25 usd at 0.53")
	assert.InDelta(t, 58.1395, no.Shares, 1e-9, "25 usd at 0.43")

	_, _, ok = mp.Quotes(market("Bitcoin Up or Down", &domain.OrderBook{}))
	assert.False(t, ok)

	assert.True(t, MakerEligible(domain.AssetETH))
	assert.False(t, MakerEligible(domain.AssetSOL))
}

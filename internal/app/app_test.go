package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbot/internal/config"
	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/strategy"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// offlineConfig is a paper config with every network backend switched off.
func offlineConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Postgres.Enabled = false
	cfg.Redis.Enabled = false
	cfg.S3.Enabled = false
	return &cfg
}

func TestStrategyParamsFromConfig(t *testing.T) {
	cfg := offlineConfig()
	cfg.Sizing.Bankroll = 2500
	cfg.Sizing.Mode = "bankroll_pct"
	cfg.Strategy.BTC.ActiveHoursEnabled = true
	cfg.Strategy.BTC.MomentumThreshold = 0.004
	cfg.Strategy.XRP.RequireCatalyst = true
	cfg.Strategy.ETH.LagExpiry.Duration = 2 * time.Minute

	p := strategyParams(cfg, quietLogger())
	assert.Equal(t, 2500.0, p.Bankroll)
	assert.Equal(t, strategy.SizingBankrollPct, p.SizingMode)
	assert.True(t, p.ActiveHoursEnabled)
	assert.Equal(t, 0.004, p.BTCMomentumThreshold)
	assert.True(t, p.XRPRequireCatalyst)
	assert.Equal(t, 2*time.Minute, p.ETHLagExpiry)
	assert.Equal(t, "America/New_York", p.ActiveHoursLocation.String())

	// Untouched fields keep the tuned defaults.
	def := strategy.DefaultParams()
	assert.Equal(t, def.FundingBoostBelow, p.FundingBoostBelow)
	assert.Equal(t, def.SOLMinTicks, p.SOLMinTicks)
}

func TestUnknownTimeZoneFallsBackToUTC(t *testing.T) {
	cfg := offlineConfig()
	cfg.Strategy.BTC.ActiveHoursTZ = "Mars/Olympus_Mons"

	assert.Equal(t, time.UTC, strategyParams(cfg, quietLogger()).ActiveHoursLocation)
	assert.Equal(t, time.UTC, makerParams(cfg, quietLogger()).Location)
}

func TestMakerParamsCappedByPositionSize(t *testing.T) {
	cfg := offlineConfig()
	mp := makerParams(cfg, quietLogger())
	assert.Equal(t, 50.0, mp.MaxSize)
	assert.Equal(t, 25.0, mp.MaxPerTrade)
	assert.Equal(t, 23, mp.HoursStart)
	assert.Equal(t, 5, mp.HoursEnd)
}

func TestGatewayConfigNormalisesOrderType(t *testing.T) {
	cfg := offlineConfig()
	cfg.Execution.OrderType = "fok"
	gc := gatewayConfig(cfg)
	assert.Equal(t, domain.OrderTypeFOK, gc.OrderType)
	assert.True(t, gc.Paper)
}

func TestWireOffline(t *testing.T) {
	deps, cleanup, err := Wire(context.Background(), offlineConfig(), quietLogger())
	require.NoError(t, err)
	defer cleanup()

	assert.NotNil(t, deps.Clob)
	assert.NotNil(t, deps.Gamma)
	assert.NotNil(t, deps.Notifier)
	assert.Nil(t, deps.Signer)
	assert.Nil(t, deps.Data)
	assert.Nil(t, deps.Ledger)
	assert.Nil(t, deps.Bus)
	assert.Nil(t, deps.Archiver)
}

func TestWirePaperUsesProxyForHoldings(t *testing.T) {
	cfg := offlineConfig()
	cfg.Wallet.ProxyAddress = "0x1111111111111111111111111111111111111111"
	deps, cleanup, err := Wire(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	defer cleanup()
	assert.NotNil(t, deps.Data)
}

func TestWireLiveRejectsBadKey(t *testing.T) {
	cfg := offlineConfig()
	cfg.PaperTrading = false
	cfg.Wallet.PrivateKey = "not-a-key"
	_, _, err := Wire(context.Background(), cfg, quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wire: wallet key")
}

func TestBuildTradeMode(t *testing.T) {
	cfg := offlineConfig()
	a := New(cfg, quietLogger())
	deps, cleanup, err := Wire(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	defer cleanup()

	c, err := a.build(deps, true)
	require.NoError(t, err)
	assert.NotNil(t, c.executor)
	assert.NotNil(t, c.maker)
	assert.NotNil(t, c.server)
	assert.True(t, c.gateway.Paper())
	// Paper trading never adopts venue holdings.
	assert.Nil(t, c.reconciler)
	assert.Nil(t, c.archive)
}

func TestBuildMonitorModeCannotTrade(t *testing.T) {
	cfg := offlineConfig()
	cfg.Mode = "monitor"
	cfg.Server.Enabled = false
	a := New(cfg, quietLogger())
	deps, cleanup, err := Wire(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	defer cleanup()

	c, err := a.build(deps, false)
	require.NoError(t, err)
	assert.Nil(t, c.executor)
	assert.Nil(t, c.maker)
	assert.Nil(t, c.reconciler)
	assert.Nil(t, c.server)
	assert.NotNil(t, c.engine)
}

func TestRunRejectsUnknownMode(t *testing.T) {
	cfg := offlineConfig()
	cfg.Mode = "backtest"
	a := New(cfg, quietLogger())
	defer a.Close()

	err := a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported mode")
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := offlineConfig()
	cfg.Mode = "monitor"
	cfg.Server.Enabled = false
	cfg.Strategy.XRP.CatalystFile = ""
	a := New(cfg, quietLogger())
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, a.Run(ctx))
}

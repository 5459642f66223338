package app

import (
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/updownbot/internal/config"
	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/executor"
	"github.com/alanyoungcy/updownbot/internal/feed"
	"github.com/alanyoungcy/updownbot/internal/service"
	"github.com/alanyoungcy/updownbot/internal/strategy"
)

// strategyParams maps the loaded config onto evaluator thresholds. An
// unknown active-hours zone falls back to UTC with a warning.
func strategyParams(cfg *config.Config, logger *slog.Logger) strategy.Params {
	p := strategy.DefaultParams()

	p.Bankroll = cfg.Sizing.Bankroll
	p.SizingMode = strategy.SizingMode(cfg.Sizing.Mode)
	p.KellyFraction = cfg.Sizing.KellyFraction
	p.MinBet = cfg.Sizing.MinBet
	p.MaxBet = cfg.Sizing.MaxBet
	p.BaseKellyBoost = cfg.Sizing.BaseKellyBoost
	p.MinKellyEdge = cfg.Sizing.MinKellyEdge
	p.MinEdgePct = cfg.Sizing.MinEdgePct

	s := cfg.Signals
	p.MinEdgeSignals = s.MinEdgeSignals
	p.OBImbalanceThreshold = s.OBImbalanceThreshold
	p.OBDepthLevels = s.OBDepthLevels
	p.OBFallbackLow = s.OBFallbackLow
	p.OBFallbackHigh = s.OBFallbackHigh
	p.MomentumWindow = s.MomentumWindow
	p.MomentumMinMove = s.MomentumMinMove
	p.MomentumConsistency = s.MomentumConsistency
	p.VolumeSpikeMultiplier = s.VolumeSpikeMultiplier
	p.VolumeWindow = s.VolumeWindow
	p.RSIPeriod = s.RSIPeriod

	btc := cfg.Strategy.BTC
	p.BTCMomentumThreshold = btc.MomentumThreshold
	p.BTCMaxEntryMove = btc.MaxEntryMove
	p.BTCConsistencyWindow = btc.ConsistencyWindow
	p.BTCConsistencyMin = btc.ConsistencyMin
	p.BTCNeutralFloor = btc.NeutralFloor
	p.ActiveHoursEnabled = btc.ActiveHoursEnabled
	p.ActiveHoursStart = btc.ActiveHoursStart
	p.ActiveHoursEnd = btc.ActiveHoursEnd
	p.ActiveHoursLocation = loadLocation(btc.ActiveHoursTZ, logger)

	eth := cfg.Strategy.ETH
	p.ETHLagExpiry = eth.LagExpiry.Duration
	p.ETHMaxRepricing = eth.MaxRepricing
	p.ETHMinBTCMove = eth.MinBTCMove
	p.ETHBoost = eth.Boost

	sol := cfg.Strategy.SOL
	p.SOLFundingThreshold = sol.FundingThreshold
	p.SOLRSIOversold = sol.RSIOversold
	p.SOLBoost = sol.Boost
	p.SOLMinSignals = sol.MinSignals
	p.SOLMaxEntryMinutes = sol.MaxEntryMinutes
	p.SOLMinTicks = sol.MinTicks
	p.SOLMinBounce = sol.MinBounce

	xrp := cfg.Strategy.XRP
	p.XRPRequireCatalyst = xrp.RequireCatalyst
	p.XRPCatalystExpiry = xrp.CatalystExpiry.Duration
	p.XRPBoost = xrp.Boost
	p.XRPNoCatalystMinSignals = xrp.NoCatalystMinSignals

	return p
}

// makerParams maps the maker config. The maker shares the active-hours zone
// and is capped by the per-position size limit.
func makerParams(cfg *config.Config, logger *slog.Logger) strategy.MakerParams {
	m := cfg.Strategy.Maker
	return strategy.MakerParams{
		Spread:        m.Spread,
		HoursStart:    m.HoursStart,
		HoursEnd:      m.HoursEnd,
		Location:      loadLocation(cfg.Strategy.BTC.ActiveHoursTZ, logger),
		MaxSize:       m.MaxSize,
		MaxPerTrade:   cfg.Sizing.MaxPositionSizeUSD,
		MaxVolatility: m.MaxVolatility,
		VolWindow:     cfg.Signals.MomentumWindow,
	}
}

func loadLocation(name string, logger *slog.Logger) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		logger.Warn("app: unknown time zone, using UTC",
			slog.String("tz", name),
			slog.String("error", err.Error()),
		)
		return time.UTC
	}
	return loc
}

func spotConfig(cfg *config.Config) feed.SpotConfig {
	return feed.SpotConfig{
		WsHost:          cfg.Feed.WsHost,
		RestURL:         cfg.Feed.RestURL,
		FuturesURL:      cfg.Feed.FuturesURL,
		ApiKey:          cfg.Feed.ApiKey,
		ApiSecret:       cfg.Feed.ApiSecret,
		HistorySize:     cfg.Feed.HistorySize,
		StaleAfter:      cfg.Feed.StaleAfter.Duration,
		FundingCacheTTL: cfg.Feed.FundingCacheTTL.Duration,
		ReconnectDelay:  cfg.Feed.ReconnectDelay.Duration,
		CallTimeout:     cfg.Feed.CallTimeout.Duration,
	}
}

func scannerConfig(cfg *config.Config) service.ScannerConfig {
	s := cfg.Scanner
	return service.ScannerConfig{
		Assets:           s.Assets,
		MinTimeRemaining: s.MinTimeRemaining.Duration,
		MaxTimeRemaining: s.MaxTimeRemaining.Duration,
		MinLiquidityUSD:  s.MinLiquidityUSD,
		MaxSpread:        s.MaxSpread,
		Concurrency:      s.Concurrency,
		HistoryInterval:  s.HistoryInterval,
		HistoryFidelity:  s.HistoryFidelity,
	}
}

func positionConfig(cfg *config.Config) service.PositionConfig {
	p := cfg.Positions
	return service.PositionConfig{
		MaxPositions:     p.MaxPositions,
		MaxPortfolioRisk: p.MaxPortfolioRisk,
		Exit: service.ExitRules{
			TakeProfitMultiplier: p.TakeProfitMultiplier,
			StopLossThreshold:    p.StopLossThreshold,
			TimeStopBuffer:       p.TimeStopBuffer.Duration,
		},
		PollInterval: p.PollInterval.Duration,
		PriceTimeout: p.PriceTimeout.Duration,
		ExitTimeout:  cfg.Execution.CallTimeout.Duration * 2,
		ExitSlippage: p.ExitSlippage,
	}
}

func riskConfig(cfg *config.Config) service.RiskConfig {
	return service.RiskConfig{
		DailyLossLimitPct:  cfg.Risk.DailyLossLimitPct,
		PerTradeMaxLossPct: cfg.Risk.PerTradeMaxLossPct,
		MaxTradesPerHour:   cfg.Risk.MaxTradesPerHour,
		MaxBet:             cfg.Sizing.MaxBet,
	}
}

func gatewayConfig(cfg *config.Config) service.GatewayConfig {
	e := cfg.Execution
	return service.GatewayConfig{
		Paper:           !cfg.LiveTrading(),
		OrderType:       domain.OrderType(strings.ToUpper(e.OrderType)),
		SignatureType:   cfg.Polymarket.SignatureType,
		Funder:          cfg.Wallet.ProxyAddress,
		RetryAttempts:   e.RetryAttempts,
		RetryDelay:      e.RetryDelay.Duration,
		RateLimitDelay:  e.RateLimitRetryDelay.Duration,
		MaxRetryDelay:   e.MaxRetryDelay.Duration,
		CallTimeout:     e.CallTimeout.Duration,
		OrdersPerSecond: e.OrdersPerSecond,
	}
}

func executorConfig(cfg *config.Config, params strategy.Params) executor.Config {
	return executor.Config{
		MinBet:              cfg.Sizing.MinBet,
		MinEdge:             params.MinEdge(),
		LossStreakThreshold: cfg.Risk.LossStreakThreshold,
		LossStreakExtraEdge: cfg.Risk.LossStreakExtraEdge,
		Slippage:            cfg.Execution.Slippage,
		DedupTTL:            cfg.Execution.DedupTTL.Duration,
	}
}

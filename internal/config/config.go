// Package config defines the top-level configuration for the up/down bot
// and provides validation helpers.
package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by UPDOWNBOT_* environment variables.
type Config struct {
	Wallet     WalletConfig     `toml:"wallet"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Feed       FeedConfig       `toml:"feed"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Sizing     SizingConfig     `toml:"sizing"`
	Signals    SignalsConfig    `toml:"signals"`
	Strategy   StrategyConfig   `toml:"strategy"`
	Risk       RiskConfig       `toml:"risk"`
	Positions  PositionsConfig  `toml:"positions"`
	Scanner    ScannerConfig    `toml:"scanner"`
	Execution  ExecutionConfig  `toml:"execution"`
	Archive    ArchiveConfig    `toml:"archive"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`

	Mode         string `toml:"mode"`
	LogLevel     string `toml:"log_level"`
	PaperTrading bool   `toml:"paper_trading"`
}

// WalletConfig holds Ethereum wallet credentials.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	ProxyAddress     string `toml:"proxy_address"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PolymarketConfig holds Polymarket API endpoints, chain parameters and the
// optional pre-derived L2 API credentials.
type PolymarketConfig struct {
	ClobHost      string `toml:"clob_host"`
	GammaHost     string `toml:"gamma_host"`
	DataHost      string `toml:"data_host"`
	ChainID       int    `toml:"chain_id"`
	SignatureType int    `toml:"signature_type"`
	ApiKey        string `toml:"api_key"`
	ApiSecret     string `toml:"api_secret"`
	ApiPassphrase string `toml:"api_passphrase"`
}

// FeedConfig configures the Binance spot and funding-rate context.
type FeedConfig struct {
	WsHost          string   `toml:"ws_host"`
	RestURL         string   `toml:"rest_url"`
	FuturesURL      string   `toml:"futures_url"`
	ApiKey          string   `toml:"api_key"`
	ApiSecret       string   `toml:"api_secret"`
	HistorySize     int      `toml:"history_size"`
	StaleAfter      duration `toml:"stale_after"`
	FundingCacheTTL duration `toml:"funding_cache_ttl"`
	ReconnectDelay  duration `toml:"reconnect_delay"`
	CallTimeout     duration `toml:"call_timeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// SizingConfig holds bankroll and bet sizing parameters.
type SizingConfig struct {
	Bankroll           float64 `toml:"bankroll"`
	Mode               string  `toml:"mode"` // kelly | fractional_kelly | bankroll_pct
	KellyFraction      float64 `toml:"kelly_fraction"`
	MinBet             float64 `toml:"min_bet"`
	MaxBet             float64 `toml:"max_bet"`
	MaxPositionSizeUSD float64 `toml:"max_position_size_usd"`
	BaseKellyBoost     float64 `toml:"base_kelly_boost"`
	MinKellyEdge       float64 `toml:"min_kelly_edge"`
	MinEdgePct         float64 `toml:"min_edge_pct"`
}

// SignalsConfig holds the base signal thresholds.
type SignalsConfig struct {
	MinEdgeSignals        int     `toml:"min_edge_signals"`
	OBImbalanceThreshold  float64 `toml:"ob_imbalance_threshold"`
	OBDepthLevels         int     `toml:"ob_depth_levels"`
	OBFallbackLow         float64 `toml:"ob_fallback_low"`
	OBFallbackHigh        float64 `toml:"ob_fallback_high"`
	MomentumWindow        int     `toml:"momentum_window"`
	MomentumMinMove       float64 `toml:"momentum_min_move"`
	MomentumConsistency   float64 `toml:"momentum_consistency"`
	VolumeSpikeMultiplier float64 `toml:"volume_spike_multiplier"`
	VolumeWindow          int     `toml:"volume_window"`
	RSIPeriod             int     `toml:"rsi_period"`
}

// StrategyConfig groups the per-asset strategy parameters.
type StrategyConfig struct {
	BTC   BTCConfig   `toml:"btc"`
	ETH   ETHConfig   `toml:"eth"`
	SOL   SOLConfig   `toml:"sol"`
	XRP   XRPConfig   `toml:"xrp"`
	Maker MakerConfig `toml:"maker"`
}

// BTCConfig configures the BTC momentum-carry strategy and the active-hours
// gate shared by BTC, ETH and SOL.
type BTCConfig struct {
	MomentumThreshold  float64 `toml:"momentum_threshold"`
	MaxEntryMove       float64 `toml:"max_entry_move"`
	ConsistencyWindow  int     `toml:"consistency_window"`
	ConsistencyMin     float64 `toml:"consistency_min"`
	ActiveHoursEnabled bool    `toml:"active_hours_enabled"`
	ActiveHoursStart   int     `toml:"active_hours_start"`
	ActiveHoursEnd     int     `toml:"active_hours_end"`
	ActiveHoursTZ      string  `toml:"active_hours_tz"`
	NeutralFloor       float64 `toml:"neutral_floor"`
}

// ETHConfig configures the ETH lag-carry strategy.
type ETHConfig struct {
	LagExpiry    duration `toml:"lag_expiry"`
	MaxRepricing float64  `toml:"max_repricing"`
	MinBTCMove   float64  `toml:"min_btc_move"`
	Boost        float64  `toml:"boost"`
}

// SOLConfig configures the SOL short-squeeze strategy.
type SOLConfig struct {
	FundingThreshold float64 `toml:"funding_threshold"`
	RSIOversold      float64 `toml:"rsi_oversold"`
	Boost            float64 `toml:"boost"`
	MinSignals       int     `toml:"min_signals"`
	MaxEntryMinutes  float64 `toml:"max_entry_minutes"`
	MinTicks         int     `toml:"min_ticks"`
	MinBounce        float64 `toml:"min_bounce"`
}

// XRPConfig configures the XRP catalyst strategy.
type XRPConfig struct {
	RequireCatalyst      bool     `toml:"require_catalyst"`
	CatalystExpiry       duration `toml:"catalyst_expiry"`
	Boost                float64  `toml:"boost"`
	NoCatalystMinSignals int      `toml:"no_catalyst_min_signals"`
	CatalystFile         string   `toml:"catalyst_file"`
	WatchInterval        duration `toml:"watch_interval"`
}

// MakerConfig configures the off-hours maker pair strategy.
type MakerConfig struct {
	Enabled       bool     `toml:"enabled"`
	Spread        float64  `toml:"spread"`
	HoursStart    int      `toml:"hours_start"`
	HoursEnd      int      `toml:"hours_end"`
	MaxSize       float64  `toml:"max_size"`
	MaxVolatility float64  `toml:"max_volatility"`
	PairCooldown  duration `toml:"pair_cooldown"`
	Interval      duration `toml:"interval"`
}

// RiskConfig holds the account-level risk limits.
type RiskConfig struct {
	DailyLossLimitPct   float64 `toml:"daily_loss_limit_pct"`
	PerTradeMaxLossPct  float64 `toml:"per_trade_max_loss_pct"`
	MaxTradesPerHour    int     `toml:"max_trades_per_hour"`
	LossStreakThreshold int     `toml:"loss_streak_threshold"`
	LossStreakExtraEdge float64 `toml:"loss_streak_extra_edge"`
}

// PositionsConfig holds position lifecycle parameters.
type PositionsConfig struct {
	MaxPositions         int      `toml:"max_positions"`
	MaxPortfolioRisk     float64  `toml:"max_portfolio_risk"`
	TakeProfitMultiplier float64  `toml:"take_profit_multiplier"`
	StopLossThreshold    float64  `toml:"stop_loss_threshold"`
	TimeStopBuffer       duration `toml:"time_stop_buffer"`
	PollInterval         duration `toml:"poll_interval"`
	PriceTimeout         duration `toml:"price_timeout"`
	ExitSlippage         float64  `toml:"exit_slippage"`
	CloseOnRestart       bool     `toml:"close_on_restart"`
}

// ScannerConfig holds market discovery parameters.
type ScannerConfig struct {
	Interval         duration `toml:"interval"`
	Assets           []string `toml:"assets"`
	MinTimeRemaining duration `toml:"min_time_remaining"`
	MaxTimeRemaining duration `toml:"max_time_remaining"`
	MinLiquidityUSD  float64  `toml:"min_liquidity_usd"`
	MaxSpread        float64  `toml:"max_spread"`
	Concurrency      int      `toml:"concurrency"`
	HistoryInterval  string   `toml:"history_interval"`
	HistoryFidelity  int      `toml:"history_fidelity"`
}

// ExecutionConfig holds order placement parameters.
type ExecutionConfig struct {
	OrderType           string   `toml:"order_type"`
	Slippage            float64  `toml:"slippage"`
	RetryAttempts       int      `toml:"retry_attempts"`
	RetryDelay          duration `toml:"retry_delay"`
	RateLimitRetryDelay duration `toml:"rate_limit_retry_delay"`
	MaxRetryDelay       duration `toml:"max_retry_delay"`
	CallTimeout         duration `toml:"call_timeout"`
	OrdersPerSecond     int      `toml:"orders_per_second"`
	DedupTTL            duration `toml:"dedup_ttl"`
	ReconcileInterval   duration `toml:"reconcile_interval"`
}

// ArchiveConfig controls the ledger archiver.
type ArchiveConfig struct {
	Enabled bool   `toml:"enabled"`
	Cron    string `toml:"cron"` // 5-field, UTC
	Prefix  string `toml:"prefix"`
	// CatchUpDays is how many past days the first run re-archives.
	CatchUpDays int `toml:"catch_up_days"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP status server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	RecentLimit int      `toml:"recent_limit"`
	APIKey      string   `toml:"api_key"`
	// RequestsPerMinute caps each client IP when Redis is enabled; 0 disables.
	RequestsPerMinute int `toml:"requests_per_minute"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with the bot's tuned default values.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			ClobHost:      "https://clob.polymarket.com",
			GammaHost:     "https://gamma-api.polymarket.com",
			DataHost:      "https://data-api.polymarket.com",
			ChainID:       137,
			SignatureType: 2,
		},
		Feed: FeedConfig{
			WsHost:          "wss://stream.binance.com:9443",
			HistorySize:     60,
			StaleAfter:      duration{30 * time.Second},
			FundingCacheTTL: duration{5 * time.Minute},
			ReconnectDelay:  duration{3 * time.Second},
			CallTimeout:     duration{10 * time.Second},
		},
		Postgres: PostgresConfig{
			Enabled:       true,
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    true,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "updownbot-data",
			ForcePathStyle: true,
		},
		Sizing: SizingConfig{
			Bankroll:           1000.0,
			Mode:               "fractional_kelly",
			KellyFraction:      0.25,
			MinBet:             5.0,
			MaxBet:             100.0,
			MaxPositionSizeUSD: 25.0,
			BaseKellyBoost:     0.08,
			MinKellyEdge:       0.02,
			MinEdgePct:         0.02,
		},
		Signals: SignalsConfig{
			MinEdgeSignals:        2,
			OBImbalanceThreshold:  0.52,
			OBDepthLevels:         5,
			OBFallbackLow:         0.42,
			OBFallbackHigh:        0.58,
			MomentumWindow:        5,
			MomentumMinMove:       0.01,
			MomentumConsistency:   0.60,
			VolumeSpikeMultiplier: 1.5,
			VolumeWindow:          10,
			RSIPeriod:             14,
		},
		Strategy: StrategyConfig{
			BTC: BTCConfig{
				MomentumThreshold: 0.003,
				MaxEntryMove:      0.015,
				ConsistencyWindow: 5,
				ConsistencyMin:    0.60,
				ActiveHoursStart:  9,
				ActiveHoursEnd:    16,
				ActiveHoursTZ:     "America/New_York",
				NeutralFloor:      -0.002,
			},
			ETH: ETHConfig{
				LagExpiry:    duration{90 * time.Second},
				MaxRepricing: 0.08,
				MinBTCMove:   0.004,
				Boost:        0.12,
			},
			SOL: SOLConfig{
				FundingThreshold: -0.001,
				RSIOversold:      38.0,
				Boost:            0.15,
				MinSignals:       2,
				MaxEntryMinutes:  3.0,
				MinTicks:         15,
				MinBounce:        0.002,
			},
			XRP: XRPConfig{
				CatalystExpiry:       duration{60 * time.Minute},
				Boost:                0.18,
				NoCatalystMinSignals: 2,
				CatalystFile:         "catalyst_flag.json",
				WatchInterval:        duration{30 * time.Second},
			},
			Maker: MakerConfig{
				Enabled:       true,
				Spread:        0.04,
				HoursStart:    23,
				HoursEnd:      5,
				MaxSize:       50.0,
				MaxVolatility: 0.005,
				PairCooldown:  duration{5 * time.Minute},
				Interval:      duration{60 * time.Second},
			},
		},
		Risk: RiskConfig{
			DailyLossLimitPct:   0.20,
			PerTradeMaxLossPct:  0.10,
			MaxTradesPerHour:    20,
			LossStreakThreshold: 2,
			LossStreakExtraEdge: 0.02,
		},
		Positions: PositionsConfig{
			MaxPositions:         20,
			MaxPortfolioRisk:     0.50,
			TakeProfitMultiplier: 1.8,
			StopLossThreshold:    0.35,
			TimeStopBuffer:       duration{90 * time.Second},
			PollInterval:         duration{15 * time.Second},
			PriceTimeout:         duration{10 * time.Second},
			ExitSlippage:         0.03,
		},
		Scanner: ScannerConfig{
			Interval:         duration{30 * time.Second},
			Assets:           []string{"btc", "eth", "sol", "xrp"},
			MinTimeRemaining: duration{60 * time.Second},
			MaxTimeRemaining: duration{900 * time.Second},
			MinLiquidityUSD:  500.0,
			MaxSpread:        0.08,
			Concurrency:      5,
			HistoryInterval:  "1m",
			HistoryFidelity:  60,
		},
		Execution: ExecutionConfig{
			OrderType:           "GTC",
			Slippage:            0.02,
			RetryAttempts:       3,
			RetryDelay:          duration{1 * time.Second},
			RateLimitRetryDelay: duration{5 * time.Second},
			MaxRetryDelay:       duration{30 * time.Second},
			CallTimeout:         duration{15 * time.Second},
			OrdersPerSecond:     2,
			DedupTTL:            duration{2 * time.Minute},
			ReconcileInterval:   duration{120 * time.Second},
		},
		Archive: ArchiveConfig{
			Enabled:     false,
			Cron:        "15 0 * * *",
			Prefix:      "archive/ledger",
			CatchUpDays: 3,
		},
		Server: ServerConfig{
			Enabled:           true,
			Port:              8000,
			CORSOrigins:       []string{"http://localhost:3000"},
			RecentLimit:       200,
			RequestsPerMinute: 120,
		},
		Notify: NotifyConfig{
			Events: []string{"risk_paused", "position_closed", "orphan_recovered"},
		},
		Mode:         "trade",
		LogLevel:     "info",
		PaperTrading: true,
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":   true,
	"monitor": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validSizingModes = map[string]bool{
	"kelly":            true,
	"fractional_kelly": true,
	"bankroll_pct":     true,
}

var privateKeyPattern = regexp.MustCompile(`^(0x)?[0-9a-fA-F]{64}$`)

// ValidPrivateKey reports whether key is 64 hex characters, optionally
// prefixed with 0x.
func ValidPrivateKey(key string) bool {
	return privateKeyPattern.MatchString(strings.TrimSpace(key))
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet is only needed when real orders are placed.
	if c.LiveTrading() {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for live trading")
		}
		if c.Wallet.PrivateKey != "" && !ValidPrivateKey(c.Wallet.PrivateKey) {
			errs = append(errs, "wallet: private_key must be 64 hex characters")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	}

	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.ChainID <= 0 {
		errs = append(errs, "polymarket: chain_id must be positive")
	}
	if c.Polymarket.SignatureType < 0 || c.Polymarket.SignatureType > 2 {
		errs = append(errs, fmt.Sprintf("polymarket: signature_type must be 0 (EOA), 1 (proxy) or 2 (Safe), got %d", c.Polymarket.SignatureType))
	}
	ak := c.Polymarket.ApiKey != ""
	as := c.Polymarket.ApiSecret != ""
	ap := c.Polymarket.ApiPassphrase != ""
	if (ak || as || ap) && !(ak && as && ap) {
		errs = append(errs, "polymarket: api_key, api_secret, and api_passphrase must all be set together")
	}

	if c.Postgres.Enabled && strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.Enabled && c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.S3.Enabled && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}
	if c.Archive.Enabled && !c.S3.Enabled {
		errs = append(errs, "archive: requires s3.enabled")
	}
	if c.Archive.Enabled && !c.Postgres.Enabled {
		errs = append(errs, "archive: requires postgres.enabled")
	}
	if c.Archive.Enabled && len(strings.Fields(c.Archive.Cron)) != 5 {
		errs = append(errs, fmt.Sprintf("archive: cron %q must have 5 fields", c.Archive.Cron))
	}

	// Sizing
	if c.Sizing.Bankroll <= 0 {
		errs = append(errs, "sizing: bankroll must be > 0")
	}
	if !validSizingModes[c.Sizing.Mode] {
		errs = append(errs, fmt.Sprintf("sizing: unknown mode %q (valid: kelly, fractional_kelly, bankroll_pct)", c.Sizing.Mode))
	}
	if c.Sizing.KellyFraction <= 0 || c.Sizing.KellyFraction > 1 {
		errs = append(errs, "sizing: kelly_fraction must be in (0, 1]")
	}
	if c.Sizing.MinBet <= 0 || c.Sizing.MaxBet < c.Sizing.MinBet {
		errs = append(errs, "sizing: require 0 < min_bet <= max_bet")
	}

	// Signals
	if c.Signals.MinEdgeSignals < 1 {
		errs = append(errs, "signals: min_edge_signals must be >= 1")
	}
	if c.Signals.OBDepthLevels < 1 {
		errs = append(errs, "signals: ob_depth_levels must be >= 1")
	}
	if c.Signals.MomentumWindow < 2 {
		errs = append(errs, "signals: momentum_window must be >= 2")
	}
	if c.Signals.VolumeWindow < 1 {
		errs = append(errs, "signals: volume_window must be >= 1")
	}
	if c.Signals.RSIPeriod < 1 {
		errs = append(errs, "signals: rsi_period must be >= 1")
	}

	// Strategy
	if c.Strategy.BTC.ActiveHoursEnabled {
		if _, err := time.LoadLocation(c.Strategy.BTC.ActiveHoursTZ); err != nil {
			errs = append(errs, fmt.Sprintf("strategy.btc: unknown active_hours_tz %q", c.Strategy.BTC.ActiveHoursTZ))
		}
	}
	if !validHour(c.Strategy.BTC.ActiveHoursStart) || !validHour(c.Strategy.BTC.ActiveHoursEnd) {
		errs = append(errs, "strategy.btc: active hours must be 0-23")
	}
	if !validHour(c.Strategy.Maker.HoursStart) || !validHour(c.Strategy.Maker.HoursEnd) {
		errs = append(errs, "strategy.maker: hours must be 0-23")
	}

	// Risk
	if c.Risk.DailyLossLimitPct <= 0 || c.Risk.DailyLossLimitPct > 1 {
		errs = append(errs, "risk: daily_loss_limit_pct must be in (0, 1]")
	}
	if c.Risk.PerTradeMaxLossPct <= 0 || c.Risk.PerTradeMaxLossPct > 1 {
		errs = append(errs, "risk: per_trade_max_loss_pct must be in (0, 1]")
	}
	if c.Risk.MaxTradesPerHour < 1 {
		errs = append(errs, "risk: max_trades_per_hour must be >= 1")
	}

	// Positions
	if c.Positions.MaxPositions < 1 {
		errs = append(errs, "positions: max_positions must be >= 1")
	}
	if c.Positions.MaxPortfolioRisk <= 0 || c.Positions.MaxPortfolioRisk > 1 {
		errs = append(errs, "positions: max_portfolio_risk must be in (0, 1]")
	}
	if c.Positions.PollInterval.Duration <= 0 {
		errs = append(errs, "positions: poll_interval must be > 0")
	}

	// Scanner
	if c.Scanner.Interval.Duration <= 0 {
		errs = append(errs, "scanner: interval must be > 0")
	}
	if c.Scanner.MinTimeRemaining.Duration > c.Scanner.MaxTimeRemaining.Duration {
		errs = append(errs, "scanner: min_time_remaining must not exceed max_time_remaining")
	}
	if c.Scanner.Concurrency < 1 {
		errs = append(errs, "scanner: concurrency must be >= 1")
	}

	// Execution
	if c.Execution.RetryAttempts < 1 {
		errs = append(errs, "execution: retry_attempts must be >= 1")
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// LiveTrading reports whether real orders will be submitted.
func (c *Config) LiveTrading() bool {
	return strings.EqualFold(c.Mode, "trade") && !c.PaperTrading
}

func validHour(h int) bool {
	return h >= 0 && h <= 23
}

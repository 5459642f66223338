package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies UPDOWNBOT_* environment variable overrides, and
// returns the final Config. An empty path skips the file and uses defaults.
// The returned Config has NOT been validated; the caller should invoke
// Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known UPDOWNBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). The bare POLY_* and trading-toggle names are accepted as aliases and
// lose to the prefixed form when both are set.
func applyEnvOverrides(cfg *Config) {
	// ── Aliases ──
	setStr(&cfg.Wallet.PrivateKey, "POLY_PRIVATE_KEY")
	setStr(&cfg.Wallet.ProxyAddress, "PROXY_WALLET")
	setStr(&cfg.Polymarket.ApiKey, "POLY_API_KEY")
	setStr(&cfg.Polymarket.ApiSecret, "POLY_API_SECRET")
	setStr(&cfg.Polymarket.ApiPassphrase, "POLY_API_PASSPHRASE")
	setBool(&cfg.PaperTrading, "PAPER_TRADING")
	setBool(&cfg.Positions.CloseOnRestart, "CLOSE_ON_RESTART")
	setFloat64(&cfg.Sizing.Bankroll, "BANKROLL")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL")
	setStr(&cfg.Notify.DiscordWebhookURL, "DISCORD_WEBHOOK_URL")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "UPDOWNBOT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.ProxyAddress, "UPDOWNBOT_WALLET_PROXY_ADDRESS")
	setStr(&cfg.Wallet.EncryptedKeyPath, "UPDOWNBOT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "UPDOWNBOT_WALLET_KEY_PASSWORD")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "UPDOWNBOT_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "UPDOWNBOT_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.DataHost, "UPDOWNBOT_POLYMARKET_DATA_HOST")
	setInt(&cfg.Polymarket.ChainID, "UPDOWNBOT_POLYMARKET_CHAIN_ID")
	setInt(&cfg.Polymarket.SignatureType, "UPDOWNBOT_POLYMARKET_SIGNATURE_TYPE")
	setStr(&cfg.Polymarket.ApiKey, "UPDOWNBOT_POLYMARKET_API_KEY")
	setStr(&cfg.Polymarket.ApiSecret, "UPDOWNBOT_POLYMARKET_API_SECRET")
	setStr(&cfg.Polymarket.ApiPassphrase, "UPDOWNBOT_POLYMARKET_API_PASSPHRASE")

	// ── Feed ──
	setStr(&cfg.Feed.WsHost, "UPDOWNBOT_FEED_WS_HOST")
	setStr(&cfg.Feed.ApiKey, "UPDOWNBOT_FEED_API_KEY")
	setStr(&cfg.Feed.ApiSecret, "UPDOWNBOT_FEED_API_SECRET")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "UPDOWNBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "UPDOWNBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "UPDOWNBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "UPDOWNBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "UPDOWNBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "UPDOWNBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "UPDOWNBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "UPDOWNBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "UPDOWNBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "UPDOWNBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "UPDOWNBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "UPDOWNBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "UPDOWNBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "UPDOWNBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "UPDOWNBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "UPDOWNBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "UPDOWNBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "UPDOWNBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "UPDOWNBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "UPDOWNBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "UPDOWNBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "UPDOWNBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "UPDOWNBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "UPDOWNBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "UPDOWNBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "UPDOWNBOT_S3_FORCE_PATH_STYLE")

	// ── Sizing ──
	setFloat64(&cfg.Sizing.Bankroll, "UPDOWNBOT_SIZING_BANKROLL")
	setStr(&cfg.Sizing.Mode, "UPDOWNBOT_SIZING_MODE")
	setFloat64(&cfg.Sizing.KellyFraction, "UPDOWNBOT_SIZING_KELLY_FRACTION")
	setFloat64(&cfg.Sizing.MaxPositionSizeUSD, "UPDOWNBOT_SIZING_MAX_POSITION_SIZE_USD")
	setFloat64(&cfg.Sizing.MinKellyEdge, "UPDOWNBOT_SIZING_MIN_KELLY_EDGE")
	setFloat64(&cfg.Sizing.MinEdgePct, "UPDOWNBOT_SIZING_MIN_EDGE_PCT")

	// ── Signals ──
	setInt(&cfg.Signals.MinEdgeSignals, "UPDOWNBOT_SIGNALS_MIN_EDGE_SIGNALS")
	setFloat64(&cfg.Signals.OBImbalanceThreshold, "UPDOWNBOT_SIGNALS_OB_IMBALANCE_THRESHOLD")
	setInt(&cfg.Signals.MomentumWindow, "UPDOWNBOT_SIGNALS_MOMENTUM_WINDOW")
	setFloat64(&cfg.Signals.MomentumMinMove, "UPDOWNBOT_SIGNALS_MOMENTUM_MIN_MOVE")
	setFloat64(&cfg.Signals.MomentumConsistency, "UPDOWNBOT_SIGNALS_MOMENTUM_CONSISTENCY")
	setFloat64(&cfg.Signals.VolumeSpikeMultiplier, "UPDOWNBOT_SIGNALS_VOLUME_SPIKE_MULTIPLIER")
	setInt(&cfg.Signals.VolumeWindow, "UPDOWNBOT_SIGNALS_VOLUME_WINDOW")

	// ── Strategy ──
	setBool(&cfg.Strategy.BTC.ActiveHoursEnabled, "UPDOWNBOT_STRATEGY_BTC_ACTIVE_HOURS_ENABLED")
	setBool(&cfg.Strategy.XRP.RequireCatalyst, "UPDOWNBOT_STRATEGY_XRP_REQUIRE_CATALYST")
	setInt(&cfg.Strategy.XRP.NoCatalystMinSignals, "UPDOWNBOT_STRATEGY_XRP_NO_CATALYST_MIN_SIGNALS")
	setStr(&cfg.Strategy.XRP.CatalystFile, "UPDOWNBOT_STRATEGY_XRP_CATALYST_FILE")
	setBool(&cfg.Strategy.Maker.Enabled, "UPDOWNBOT_STRATEGY_MAKER_ENABLED")

	// ── Risk ──
	setFloat64(&cfg.Risk.DailyLossLimitPct, "UPDOWNBOT_RISK_DAILY_LOSS_LIMIT_PCT")
	setFloat64(&cfg.Risk.PerTradeMaxLossPct, "UPDOWNBOT_RISK_PER_TRADE_MAX_LOSS_PCT")
	setInt(&cfg.Risk.MaxTradesPerHour, "UPDOWNBOT_RISK_MAX_TRADES_PER_HOUR")

	// ── Positions ──
	setInt(&cfg.Positions.MaxPositions, "UPDOWNBOT_POSITIONS_MAX_POSITIONS")
	setFloat64(&cfg.Positions.MaxPortfolioRisk, "UPDOWNBOT_POSITIONS_MAX_PORTFOLIO_RISK")
	setDuration(&cfg.Positions.PollInterval, "UPDOWNBOT_POSITIONS_POLL_INTERVAL")
	setBool(&cfg.Positions.CloseOnRestart, "UPDOWNBOT_POSITIONS_CLOSE_ON_RESTART")

	// ── Scanner ──
	setDuration(&cfg.Scanner.Interval, "UPDOWNBOT_SCANNER_INTERVAL")
	setStringSlice(&cfg.Scanner.Assets, "UPDOWNBOT_SCANNER_ASSETS")

	// ── Execution ──
	setInt(&cfg.Execution.RetryAttempts, "UPDOWNBOT_EXECUTION_RETRY_ATTEMPTS")
	setDuration(&cfg.Execution.CallTimeout, "UPDOWNBOT_EXECUTION_CALL_TIMEOUT")
	setDuration(&cfg.Execution.ReconcileInterval, "UPDOWNBOT_EXECUTION_RECONCILE_INTERVAL")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "UPDOWNBOT_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Cron, "UPDOWNBOT_ARCHIVE_CRON")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "UPDOWNBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "UPDOWNBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "UPDOWNBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "UPDOWNBOT_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "UPDOWNBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "UPDOWNBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "UPDOWNBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "UPDOWNBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "UPDOWNBOT_MODE")
	setStr(&cfg.LogLevel, "UPDOWNBOT_LOG_LEVEL")
	setBool(&cfg.PaperTrading, "UPDOWNBOT_PAPER_TRADING")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

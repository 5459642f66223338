package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/alanyoungcy/updownbot/internal/blob/s3"
	"github.com/alanyoungcy/updownbot/internal/cache/redis"
	"github.com/alanyoungcy/updownbot/internal/config"
	"github.com/alanyoungcy/updownbot/internal/crypto"
	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/notify"
	"github.com/alanyoungcy/updownbot/internal/platform/polymarket"
	"github.com/alanyoungcy/updownbot/internal/store/postgres"
)

// Dependencies bundles the infrastructure the modes build on. Optional
// backends are left as nil interfaces when disabled, never as typed nils.
type Dependencies struct {
	// Postgres
	PG        *postgres.Client
	Positions domain.PositionStore
	Ledger    domain.LedgerStore
	Audit     domain.AuditStore

	// Redis
	Redis       *redis.Client
	SignalStore domain.SignalStateStore
	RateLimiter domain.RateLimiter
	Locks       domain.LockManager
	Bus         domain.SignalBus

	// Blob storage
	S3       *s3blob.Client
	Archiver domain.LedgerArchiver

	// Venue
	Signer *crypto.Signer // nil unless trading live
	Clob   *polymarket.ClobClient
	Gamma  *polymarket.GammaClient
	Data   *polymarket.DataClient // nil when no wallet address is known

	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from cfg and
// returns them with a cleanup function that releases them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pg.Close)

		if cfg.Postgres.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		stores := pg.Stores()
		deps.PG = pg
		deps.Positions = stores.Positions
		deps.Ledger = stores.Ledger
		deps.Audit = stores.Audit
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = rc.Close() })

		deps.Redis = rc
		deps.SignalStore = redis.NewSignalStateStore(rc)
		deps.RateLimiter = redis.NewRateLimiter(rc, cfg.Execution.OrdersPerSecond, time.Second)
		deps.Locks = redis.NewLockManager(rc)
		deps.Bus = redis.NewSignalBus(rc)
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		sc, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.S3 = sc
		if cfg.Archive.Enabled && deps.PG != nil {
			stores := deps.PG.Stores()
			deps.Archiver = s3blob.NewLedgerArchive(stores.Ledger, sc, stores.Audit, cfg.Archive.Prefix)
		}
	}

	// --- Polymarket ---
	if err := wireVenue(ctx, cfg, deps, logger); err != nil {
		return fail(err)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, tradingTag(cfg), logger)

	return deps, cleanup, nil
}

// wireVenue builds the CLOB, Gamma and Data API clients. Live trading also
// loads the wallet key and makes sure L2 credentials exist.
func wireVenue(ctx context.Context, cfg *config.Config, deps *Dependencies, logger *slog.Logger) error {
	deps.Gamma = polymarket.NewGammaClient(cfg.Polymarket.GammaHost)

	var auth *crypto.HMACAuth
	if cfg.Polymarket.ApiKey != "" {
		auth = &crypto.HMACAuth{
			Key:        cfg.Polymarket.ApiKey,
			Secret:     cfg.Polymarket.ApiSecret,
			Passphrase: cfg.Polymarket.ApiPassphrase,
		}
	}

	if !cfg.LiveTrading() {
		deps.Clob = polymarket.NewClobClient(cfg.Polymarket.ClobHost, nil, auth, cfg.Polymarket.SignatureType)
		if cfg.Wallet.ProxyAddress != "" {
			deps.Data = polymarket.NewDataClient(cfg.Polymarket.DataHost, cfg.Wallet.ProxyAddress)
		}
		return nil
	}

	key, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return fmt.Errorf("wire: wallet key: %w", err)
	}
	signer, err := crypto.NewSigner(key, cfg.Polymarket.ChainID)
	if err != nil {
		return fmt.Errorf("wire: signer: %w", err)
	}
	deps.Signer = signer
	deps.Clob = polymarket.NewClobClient(cfg.Polymarket.ClobHost, signer, auth, cfg.Polymarket.SignatureType)

	if !auth.Valid() {
		if _, err := deps.Clob.DeriveAPIKey(ctx); err != nil {
			return fmt.Errorf("wire: derive api key: %w", err)
		}
		logger.InfoContext(ctx, "wire: derived CLOB API credentials",
			slog.String("address", signer.Address().Hex()))
	}

	user := cfg.Wallet.ProxyAddress
	if user == "" {
		user = signer.Address().Hex()
	}
	deps.Data = polymarket.NewDataClient(cfg.Polymarket.DataHost, user)
	return nil
}

// tradingTag labels notifications with the account they concern.
func tradingTag(cfg *config.Config) string {
	if cfg.LiveTrading() {
		return "live"
	}
	return "paper"
}

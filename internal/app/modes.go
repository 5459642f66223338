package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/executor"
	"github.com/alanyoungcy/updownbot/internal/feed"
	"github.com/alanyoungcy/updownbot/internal/server"
	"github.com/alanyoungcy/updownbot/internal/server/handler"
	"github.com/alanyoungcy/updownbot/internal/service"
	"github.com/alanyoungcy/updownbot/internal/strategy"
)

// shutdownTimeout bounds the close-all, drain and HTTP shutdown on exit.
const shutdownTimeout = 30 * time.Second

// components holds the services a mode runs. Loops that a mode or config
// turns off stay nil.
type components struct {
	spot       *feed.SpotFeed
	signals    *service.SignalState
	scanner    *service.MarketScanner
	gate       *service.RiskGate
	gateway    *service.OrderGateway
	positions  *service.PositionManager
	bankroll   *service.Bankroll
	engine     *strategy.Engine
	executor   *executor.Executor
	reconciler *service.Reconciler
	maker      *service.MakerLoop
	catalyst   *service.CatalystWatcher
	archive    *service.ArchiveJob
	server     *server.Server
}

// TradeMode scans, enters, monitors and exits positions.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode", slog.Bool("paper", !a.cfg.LiveTrading()))
	return a.run(ctx, deps, true)
}

// MonitorMode scans and evaluates markets without placing orders.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")
	return a.run(ctx, deps, false)
}

func (a *App) run(ctx context.Context, deps *Dependencies, trading bool) error {
	c, err := a.build(deps, trading)
	if err != nil {
		return err
	}

	if err := c.signals.Restore(ctx); err != nil {
		a.logger.WarnContext(ctx, "app: restore signal state failed", slog.String("error", err.Error()))
	}
	if trading {
		if _, err := c.positions.Restore(ctx); err != nil {
			a.logger.WarnContext(ctx, "app: restore positions failed", slog.String("error", err.Error()))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.spot.Run(gctx) })
	g.Go(func() error { return c.engine.Run(gctx) })
	g.Go(func() error { return c.catalyst.Run(gctx) })
	if trading {
		g.Go(func() error { return c.positions.Monitor(gctx) })
		g.Go(func() error { return c.executor.Run(gctx) })
	}
	if c.reconciler != nil {
		g.Go(func() error { return c.reconciler.Run(gctx) })
	}
	if c.maker != nil {
		g.Go(func() error { return c.maker.Run(gctx) })
	}
	if c.archive != nil {
		g.Go(func() error { return c.archive.Run(gctx) })
	}
	if c.server != nil {
		g.Go(c.server.Start)
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return c.server.Shutdown(sctx)
		})
	}

	err = g.Wait()
	if trading {
		a.stopTrading(c)
	}
	return err
}

// stopTrading closes every position when configured to, then waits for
// in-flight exits.
func (a *App) stopTrading(c *components) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.cfg.Positions.CloseOnRestart {
		c.positions.CloseAll(ctx, domain.ExitShutdown)
	}
	if err := c.positions.Drain(ctx); err != nil {
		a.logger.Warn("app: exits still in flight at shutdown", slog.String("error", err.Error()))
	}
	stats := c.positions.Stats()
	a.logger.Info("app: session summary",
		slog.Int("trades", stats.Trades),
		slog.Int("open", len(c.positions.Snapshot())),
		slog.Float64("pnl", stats.TotalPnL),
	)
}

// build constructs every service for the mode. Monitor mode leaves the
// executor, reconciler and maker out, so nothing can place an order.
func (a *App) build(deps *Dependencies, trading bool) (*components, error) {
	cfg := a.cfg
	logger := a.logger
	live := trading && cfg.LiveTrading()
	params := strategyParams(cfg, logger)

	c := &components{}
	c.spot = feed.NewSpotFeed(spotConfig(cfg), logger)
	c.signals = service.NewSignalState(params.ETHLagExpiry, params.XRPCatalystExpiry, deps.SignalStore, logger)
	c.scanner = service.NewMarketScanner(deps.Gamma, deps.Clob, scannerConfig(cfg), logger)
	c.gate = service.NewRiskGate(riskConfig(cfg), deps.Ledger, deps.Audit, deps.Notifier, logger)

	if live {
		c.gateway = service.NewLiveGateway(gatewayConfig(cfg), deps.Signer, deps.Clob, deps.RateLimiter, logger)
	} else {
		c.gateway = service.NewPaperGateway(logger)
	}

	c.positions = service.NewPositionManager(positionConfig(cfg), service.PositionDeps{
		Pricer: deps.Clob,
		Orders: c.gateway,
		Risk:   c.gate,
		Store:  deps.Positions,
		Ledger: deps.Ledger,
		Bus:    deps.Bus,
		Audit:  deps.Audit,
		Alerts: deps.Notifier,
	}, logger)

	if live {
		c.bankroll = service.NewLiveBankroll(cfg.Sizing.Bankroll, deps.Clob, logger)
	} else {
		c.bankroll = service.NewPaperBankroll(cfg.Sizing.Bankroll, deps.Ledger, c.positions, logger)
	}

	router := strategy.NewRouter(strategy.NewEvaluator(params, logger), c.spot, c.signals, logger)
	engineDeps := strategy.EngineDeps{
		Source:   c.scanner,
		Router:   router,
		Board:    c.signals,
		Book:     c.positions,
		Bankroll: c.bankroll,
		Bus:      deps.Bus,
	}
	if trading {
		c.executor = executor.NewExecutor(executorConfig(cfg, params),
			c.gate, c.positions, c.gateway, c.bankroll, deps.Notifier, logger)
		engineDeps.Executor = c.executor
	}
	c.engine = strategy.NewEngine(engineDeps, cfg.Scanner.Interval.Duration, cfg.Server.RecentLimit, logger)

	if live && deps.Data != nil {
		c.reconciler = service.NewReconciler(deps.Data, c.positions, c.scanner,
			deps.Locks, deps.Notifier, cfg.Execution.ReconcileInterval.Duration, logger)
	}
	if trading && cfg.Strategy.Maker.Enabled {
		m := cfg.Strategy.Maker
		c.maker = service.NewMakerLoop(makerParams(cfg, logger), c.scanner, c.positions, c.gateway,
			m.Interval.Duration, m.PairCooldown.Duration, logger)
	}

	x := cfg.Strategy.XRP
	c.catalyst = service.NewCatalystWatcher(x.CatalystFile, x.WatchInterval.Duration, c.signals, deps.Bus, logger)

	if deps.Archiver != nil {
		job, err := service.NewArchiveJob(deps.Archiver, cfg.Archive.Cron, cfg.Archive.CatchUpDays, logger)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		c.archive = job
	}

	if cfg.Server.Enabled {
		c.server = a.buildServer(deps, c)
	}
	return c, nil
}

func (a *App) buildServer(deps *Dependencies, c *components) *server.Server {
	checks := map[string]handler.Check{}
	if deps.PG != nil {
		checks["postgres"] = deps.PG.Ping
	}
	if deps.Redis != nil {
		checks["redis"] = deps.Redis.Ping
	}
	if deps.S3 != nil {
		checks["s3"] = deps.S3.Health
	}

	h := server.Handlers{
		Health:    handler.NewHealthHandler(a.cfg.Mode, !a.cfg.LiveTrading(), checks, c.engine.LastScan, a.logger),
		Positions: handler.NewPositionHandler(c.positions, deps.Ledger, a.logger),
		Risk:      handler.NewRiskHandler(c.gate, c.bankroll, c.positions),
		Signals:   handler.NewSignalHandler(c.engine, c.signals, deps.Bus, a.logger),
	}
	return server.NewServer(server.Config{
		Port:              a.cfg.Server.Port,
		CORSOrigins:       a.cfg.Server.CORSOrigins,
		APIKey:            a.cfg.Server.APIKey,
		Limiter:           deps.RateLimiter,
		RequestsPerMinute: a.cfg.Server.RequestsPerMinute,
	}, h, a.logger)
}

package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/polyfolio/syncd/internal/platform/polymarket"
	"github.com/polyfolio/syncd/internal/provider"
	"github.com/polyfolio/syncd/internal/provider/alpaca"
	"github.com/polyfolio/syncd/internal/provider/stooq"
	"github.com/polyfolio/syncd/internal/provider/tiingo"
	"github.com/polyfolio/syncd/internal/server"
	"github.com/polyfolio/syncd/internal/server/handler"
	"github.com/polyfolio/syncd/internal/server/ws"
	"github.com/polyfolio/syncd/internal/service"
	syncer "github.com/polyfolio/syncd/internal/sync"
)

// ServeMode runs the long-lived daemon: the periodic sync scheduler, the
// WebSocket hub, and the HTTP API server, all under one errgroup.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	orch := a.buildOrchestrator(deps)
	catchup := syncer.NewCatchupSyncer(orch, deps.MarketStore, deps.LedgerStore, a.logger)

	sched := syncer.NewScheduler(orch, a.cfg.Sync.Interval.Duration, syncer.Params{
		MaxEntities:      a.cfg.Sync.MaxEntities,
		SyncPriceHistory: true,
		SyncHolders:      true,
		SyncActivity:     true,
	}, a.logger)
	g.Go(func() error {
		err := sched.RunLoop(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})

	marketSvc := service.NewMarketService(deps.MarketStore, deps.HolderStore, deps.MarketCache, a.logger)
	historySvc := service.NewHistoryService(a.buildResolver(), deps.BarStore, a.logger)

	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health:  handler.NewHealthHandler(a.logger, deps.Health),
		Markets: handler.NewMarketHandler(marketSvc, a.logger),
		History: handler.NewHistoryHandler(historySvc, a.logger),
		Sync:    handler.NewSyncHandler(orch, catchup, a.logger),
		Status:  handler.NewStatusHandler(deps.LedgerStore, a.logger),
	}, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}

// SyncMode runs a single full sync pass and exits.
func (a *App) SyncMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting sync mode")

	orch := a.buildOrchestrator(deps)
	report, err := orch.RunPassLocked(ctx, syncer.Params{
		MaxEntities:      a.cfg.Sync.MaxEntities,
		SyncPriceHistory: true,
		SyncHolders:      true,
		SyncActivity:     true,
	})
	if err != nil {
		return fmt.Errorf("sync mode: %w", err)
	}

	a.logger.InfoContext(ctx, "sync pass finished",
		slog.String("run_id", report.RunID),
		slog.Int("entities_synced", report.EntitiesSynced),
		slog.Int("entities_failed", report.EntitiesFailed),
		slog.Duration("duration", report.Duration),
	)
	return nil
}

// CatchupMode re-runs auxiliary sync for entities the ledger marks pending or
// errored, then exits.
func (a *App) CatchupMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting catchup mode")

	orch := a.buildOrchestrator(deps)
	catchup := syncer.NewCatchupSyncer(orch, deps.MarketStore, deps.LedgerStore, a.logger)

	report, err := catchup.Run(ctx, a.cfg.Sync.MaxEntities)
	if err != nil {
		return fmt.Errorf("catchup mode: %w", err)
	}

	a.logger.InfoContext(ctx, "catchup finished",
		slog.String("run_id", report.RunID),
		slog.Int("entities_synced", report.EntitiesSynced),
		slog.Int("entities_failed", report.EntitiesFailed),
	)
	return nil
}

// ArchiveMode exports trade activity older than the retention window to
// object storage, prunes it from Postgres, and exits.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.Sync.RetentionDays)
	a.logger.InfoContext(ctx, "starting archive mode",
		slog.Int("retention_days", a.cfg.Sync.RetentionDays),
		slog.Time("cutoff", cutoff),
	)

	archived, err := deps.Archiver.ArchiveActivity(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive mode: %w", err)
	}

	a.logger.InfoContext(ctx, "archive finished",
		slog.Int64("records_archived", archived),
	)
	return nil
}

// buildOrchestrator wires the sync orchestrator from Polymarket clients,
// stores, and the Redis coordination primitives.
func (a *App) buildOrchestrator(deps *Dependencies) *syncer.Orchestrator {
	gamma := polymarket.NewGammaClient(a.cfg.Polymarket.GammaHost)
	data := polymarket.NewDataClient(a.cfg.Polymarket.DataHost, a.cfg.Polymarket.ClobHost)

	marketSvc := service.NewMarketService(deps.MarketStore, deps.HolderStore, deps.MarketCache, a.logger)

	return syncer.NewOrchestrator(
		gamma,
		data,
		marketSvc,
		deps.BarStore,
		deps.HolderStore,
		deps.ActivityStore,
		deps.LedgerStore,
		deps.RateLimiter,
		deps.SignalBus,
		deps.LockManager,
		syncer.Config{
			PriceBatchSize:  a.cfg.Sync.PriceBatchSize,
			HolderBatchSize: a.cfg.Sync.HolderBatchSize,
			BatchDelay:      a.cfg.Sync.BatchDelay.Duration,
			Concurrency:     a.cfg.Sync.Concurrency,
			HoldersLimit:    a.cfg.Sync.HoldersLimit,
			ActivityLimit:   a.cfg.Sync.ActivityLimit,
			PriceInterval:   a.cfg.Sync.PriceInterval,
			RateKey:         "sync:aux",
			RateLimit:       a.cfg.Sync.RateLimit,
			RateWindow:      a.cfg.Sync.RateWindow.Duration,
		},
		a.logger,
	)
}

// buildResolver assembles the equity history provider chain in priority
// order. Providers without credentials are left out; stooq needs none and
// acts as the keyless fallback.
func (a *App) buildResolver() *provider.Resolver {
	var clients []provider.Client

	if t := a.cfg.Providers.Tiingo; t.Token != "" {
		clients = append(clients, tiingo.New(t.BaseURL, t.Token, t.RequestsPerHour/3600))
	}
	if al := a.cfg.Providers.Alpaca; al.KeyID != "" && al.SecretKey != "" {
		clients = append(clients, alpaca.New(al.BaseURL, al.KeyID, al.SecretKey, al.RequestsPerMin/60))
	}
	if s := a.cfg.Providers.Stooq; s.Enabled {
		clients = append(clients, stooq.New(s.BaseURL, s.RequestsPerMin/60))
	}

	return provider.NewResolver(clients, a.logger)
}

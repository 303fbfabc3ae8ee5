// Package sync implements the batch sync orchestrator: primary market
// collection, bounded-concurrency auxiliary fetches, ledger bookkeeping, and
// the scheduler that drives periodic passes.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/polyfolio/syncd/internal/domain"
	"github.com/polyfolio/syncd/internal/provider"
)

// progressChannel is the signal-bus channel carrying per-batch progress
// events during a pass.
const progressChannel = "sync:progress"

// passLockKey guards against overlapping passes across processes.
const passLockKey = "sync:pass"

const passLockTTL = 10 * time.Minute

// MarketSource fetches the primary market collection ordered by volume.
type MarketSource interface {
	GetMarketsByVolume(ctx context.Context, limit int) ([]domain.Market, error)
}

// AuxSource fetches the per-market auxiliary resources.
type AuxSource interface {
	GetPriceHistory(ctx context.Context, tokenID, interval string) ([]domain.PricePoint, error)
	GetHolders(ctx context.Context, marketID, conditionID string, limit int) ([]domain.Holder, error)
	GetTradeActivity(ctx context.Context, marketID, conditionID string, limit int) ([]domain.TradeActivity, error)
}

// MarketWriter persists a batch of markets with per-record outcomes.
type MarketWriter interface {
	UpsertMarkets(ctx context.Context, markets []domain.Market) []domain.UpsertOutcome
}

// Config carries the tunables of a sync pass.
type Config struct {
	PriceBatchSize  int           // markets per price-history batch
	HolderBatchSize int           // markets per holders batch
	BatchDelay      time.Duration // pause between batches
	Concurrency     int           // concurrent aux fetches within a batch
	HoldersLimit    int           // holders requested per market
	ActivityLimit   int           // trade-activity rows requested per market
	PriceInterval   string        // Data-API interval, stored as the bar resolution
	RateKey         string        // rate-limiter key for aux fetches
	RateLimit       int           // aux requests allowed per RateWindow
	RateWindow      time.Duration
}

// Params selects the work of one pass.
type Params struct {
	MaxEntities      int  `json:"max_entities"`
	SyncPriceHistory bool `json:"sync_price_history"`
	SyncHolders      bool `json:"sync_holders"`
	SyncActivity     bool `json:"sync_activity"`
}

// Orchestrator runs sync passes: fetch markets, upsert them, then fan out
// bounded-concurrency auxiliary fetches in fixed-size batches while keeping
// the per-entity ledger current.
type Orchestrator struct {
	source   MarketSource
	aux      AuxSource
	markets  MarketWriter
	bars     domain.BarStore
	holders  domain.HolderStore
	activity domain.ActivityStore
	ledger   domain.SyncStatusStore
	limiter  domain.RateLimiter
	bus      domain.SignalBus
	locks    domain.LockManager
	cfg      Config
	logger   *slog.Logger
}

// NewOrchestrator creates an Orchestrator. The signal bus and lock manager
// may be nil, in which case progress events and pass locking are disabled.
func NewOrchestrator(
	source MarketSource,
	aux AuxSource,
	markets MarketWriter,
	bars domain.BarStore,
	holders domain.HolderStore,
	activity domain.ActivityStore,
	ledger domain.SyncStatusStore,
	limiter domain.RateLimiter,
	bus domain.SignalBus,
	locks domain.LockManager,
	cfg Config,
	logger *slog.Logger,
) *Orchestrator {
	if cfg.PriceBatchSize <= 0 {
		cfg.PriceBatchSize = 50
	}
	if cfg.HolderBatchSize <= 0 {
		cfg.HolderBatchSize = 20
	}
	if cfg.BatchDelay <= 0 {
		cfg.BatchDelay = 2 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.HoldersLimit <= 0 {
		cfg.HoldersLimit = 20
	}
	if cfg.ActivityLimit <= 0 {
		cfg.ActivityLimit = 100
	}
	if cfg.PriceInterval == "" {
		cfg.PriceInterval = "1d"
	}
	return &Orchestrator{
		source:   source,
		aux:      aux,
		markets:  markets,
		bars:     bars,
		holders:  holders,
		activity: activity,
		ledger:   ledger,
		limiter:  limiter,
		bus:      bus,
		locks:    locks,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "orchestrator")),
	}
}

// RunPassLocked acquires the distributed pass lock before running, so two
// triggers (scheduler tick, HTTP) cannot overlap. It returns
// domain.ErrLockHeld when another pass is in flight.
func (o *Orchestrator) RunPassLocked(ctx context.Context, p Params) (domain.SyncReport, error) {
	if o.locks != nil {
		unlock, err := o.locks.Acquire(ctx, passLockKey, passLockTTL)
		if err != nil {
			return domain.SyncReport{}, err
		}
		defer unlock()
	}
	return o.RunPass(ctx, p)
}

// RunPass executes one full pass. A failed primary fetch is fatal; everything
// after it degrades per entity without aborting the pass.
func (o *Orchestrator) RunPass(ctx context.Context, p Params) (domain.SyncReport, error) {
	start := time.Now()
	runID := uuid.New().String()
	log := o.logger.With(slog.String("run_id", runID))

	log.InfoContext(ctx, "sync pass starting",
		slog.Int("max_entities", p.MaxEntities),
		slog.Bool("price_history", p.SyncPriceHistory),
		slog.Bool("holders", p.SyncHolders),
		slog.Bool("activity", p.SyncActivity),
	)

	fetched, err := o.source.GetMarketsByVolume(ctx, p.MaxEntities)
	if err != nil {
		return domain.SyncReport{}, fmt.Errorf("sync: fetch markets: %w", err)
	}

	outcomes := o.markets.UpsertMarkets(ctx, fetched)

	rep := newReportCollector(runID)
	saved := make(map[string]bool, len(outcomes))
	for _, out := range outcomes {
		if out.Err != nil {
			log.ErrorContext(ctx, "market upsert failed",
				slog.String("market_id", out.ID),
				slog.String("error", out.Err.Error()),
			)
			rep.entityFailed()
			continue
		}
		saved[out.ID] = true
		rep.entitySynced()
	}

	// Only markets that actually landed get aux work.
	entities := make([]domain.Market, 0, len(fetched))
	for _, m := range fetched {
		if saved[m.ID] {
			entities = append(entities, m)
		}
	}

	if err := o.runAux(ctx, log, runID, entities, p, rep); err != nil {
		return domain.SyncReport{}, err
	}

	report := rep.report(time.Since(start))
	log.InfoContext(ctx, "sync pass complete",
		slog.Int("entities_synced", report.EntitiesSynced),
		slog.Int("entities_failed", report.EntitiesFailed),
		slog.Int("price_points", report.PricePointsSynced),
		slog.Int("holder_updates", report.HolderUpdates),
		slog.Int("activity_rows", report.ActivityRows),
		slog.Int("failed_price_syncs", report.FailedPriceSyncs),
		slog.Int("failed_holder_syncs", report.FailedHolderSyncs),
		slog.Duration("duration", report.Duration),
	)
	return report, nil
}

// runAux drives the per-entity auxiliary stages, then finalizes the ledger
// row for every entity that had aux work.
func (o *Orchestrator) runAux(ctx context.Context, log *slog.Logger, runID string, entities []domain.Market, p Params, rep *reportCollector) error {
	if len(entities) == 0 || (!p.SyncPriceHistory && !p.SyncHolders && !p.SyncActivity) {
		return nil
	}

	for _, m := range entities {
		if err := o.ledger.Record(ctx, domain.SyncStatus{
			EntityID: m.ID,
			Status:   domain.SyncStateInProgress,
		}); err != nil {
			log.WarnContext(ctx, "ledger write failed",
				slog.String("entity_id", m.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if p.SyncPriceHistory {
		if err := o.runStage(ctx, log, runID, "price_history", entities, o.cfg.PriceBatchSize, rep, o.syncPriceHistory); err != nil {
			return err
		}
	}
	if p.SyncHolders {
		if err := o.runStage(ctx, log, runID, "holders", entities, o.cfg.HolderBatchSize, rep, o.syncHolders); err != nil {
			return err
		}
	}
	if p.SyncActivity {
		if err := o.runStage(ctx, log, runID, "activity", entities, o.cfg.HolderBatchSize, rep, o.syncActivity); err != nil {
			return err
		}
	}

	for _, m := range entities {
		status := rep.finalStatus(m.ID)
		if err := o.ledger.Record(ctx, status); err != nil {
			log.WarnContext(ctx, "ledger write failed",
				slog.String("entity_id", m.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// stageFn performs one entity's work for a stage. It reports (count, skipped,
// err): count feeds the report, skipped marks a missing prerequisite.
type stageFn func(ctx context.Context, m domain.Market) (int, bool, error)

// runStage partitions entities into fixed-size batches and runs one stage
// task per entity with bounded concurrency. A batch joins fully before the
// next starts; the configured delay applies between batches, not after the
// last one. Individual task failures are classified and counted, never
// escalated; only context cancellation aborts the stage.
func (o *Orchestrator) runStage(ctx context.Context, log *slog.Logger, runID, stage string, entities []domain.Market, batchSize int, rep *reportCollector, fn stageFn) error {
	totalBatches := (len(entities) + batchSize - 1) / batchSize

	for i := 0; i < len(entities); i += batchSize {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("sync: %s stage: %w", stage, err)
		}

		end := i + batchSize
		if end > len(entities) {
			end = len(entities)
		}
		batch := entities[i:end]
		batchNum := i/batchSize + 1

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(o.cfg.Concurrency)
		for _, m := range batch {
			g.Go(func() error {
				count, skipped, err := fn(gctx, m)
				if skipped {
					log.DebugContext(gctx, "entity missing prerequisite, skipped",
						slog.String("stage", stage),
						slog.String("entity_id", m.ID),
					)
					return nil
				}
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					rep.stageFailed(stage, m.ID, err)
					if expectedFailure(err) {
						log.DebugContext(gctx, "aux fetch returned no data",
							slog.String("stage", stage),
							slog.String("entity_id", m.ID),
						)
					} else {
						log.ErrorContext(gctx, "aux fetch failed",
							slog.String("stage", stage),
							slog.String("entity_id", m.ID),
							slog.String("error", err.Error()),
						)
					}
					return nil
				}
				rep.stageSynced(stage, m.ID, count)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return fmt.Errorf("sync: %s stage: %w", stage, err)
		}

		o.publishProgress(ctx, progressEvent{
			RunID:        runID,
			Stage:        stage,
			Batch:        batchNum,
			TotalBatches: totalBatches,
			Completed:    rep.stageCompleted(stage),
			Failed:       rep.stageFailedCount(stage),
		})

		// Pace the upstream between batches, but not after the last.
		if end < len(entities) {
			timer := time.NewTimer(o.cfg.BatchDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("sync: %s stage: %w", stage, ctx.Err())
			case <-timer.C:
			}
		}
	}
	return nil
}

// syncPriceHistory fetches the point series for a market's first CLOB token
// and stores it as bars keyed by (tokenID, interval).
func (o *Orchestrator) syncPriceHistory(ctx context.Context, m domain.Market) (int, bool, error) {
	tokenID := m.FirstTokenID()
	if tokenID == "" {
		return 0, true, nil
	}

	if err := o.wait(ctx); err != nil {
		return 0, false, err
	}

	points, err := o.aux.GetPriceHistory(ctx, tokenID, o.cfg.PriceInterval)
	if err != nil {
		return 0, false, err
	}
	if len(points) == 0 {
		o.logger.DebugContext(ctx, "price history empty",
			slog.String("market_id", m.ID),
			slog.String("token_id", tokenID),
		)
		return 0, false, nil
	}

	bars := make([]domain.Bar, 0, len(points))
	for _, pt := range points {
		bars = append(bars, domain.Bar{
			Symbol:     tokenID,
			Resolution: domain.Resolution(o.cfg.PriceInterval),
			Timestamp:  pt.Timestamp,
			Open:       pt.Price,
			High:       pt.Price,
			Low:        pt.Price,
			Close:      pt.Price,
		})
	}
	if err := o.bars.UpsertBatch(ctx, bars); err != nil {
		return 0, false, err
	}
	return len(bars), false, nil
}

// syncHolders fetches and wholesale-replaces a market's ranked holder
// snapshot.
func (o *Orchestrator) syncHolders(ctx context.Context, m domain.Market) (int, bool, error) {
	if m.ConditionID == "" {
		return 0, true, nil
	}

	if err := o.wait(ctx); err != nil {
		return 0, false, err
	}

	holders, err := o.aux.GetHolders(ctx, m.ID, m.ConditionID, o.cfg.HoldersLimit)
	if err != nil {
		return 0, false, err
	}
	if err := o.holders.Replace(ctx, m.ID, holders); err != nil {
		return 0, false, err
	}
	return len(holders), false, nil
}

// syncActivity fetches recent trade activity for a market and upserts it by
// deterministic id, so re-fetching overlapping windows stays idempotent.
func (o *Orchestrator) syncActivity(ctx context.Context, m domain.Market) (int, bool, error) {
	if m.ConditionID == "" {
		return 0, true, nil
	}

	if err := o.wait(ctx); err != nil {
		return 0, false, err
	}

	rows, err := o.aux.GetTradeActivity(ctx, m.ID, m.ConditionID, o.cfg.ActivityLimit)
	if err != nil {
		return 0, false, err
	}
	if len(rows) == 0 {
		return 0, false, nil
	}
	if err := o.activity.UpsertBatch(ctx, rows); err != nil {
		return 0, false, err
	}
	return len(rows), false, nil
}

func (o *Orchestrator) wait(ctx context.Context) error {
	if o.limiter == nil || o.cfg.RateLimit <= 0 {
		return nil
	}
	return o.limiter.Wait(ctx, o.cfg.RateKey, o.cfg.RateLimit, o.cfg.RateWindow)
}

// progressEvent is the JSON payload published per batch on the signal bus.
type progressEvent struct {
	RunID        string `json:"run_id"`
	Stage        string `json:"stage"`
	Batch        int    `json:"batch"`
	TotalBatches int    `json:"total_batches"`
	Completed    int    `json:"completed"`
	Failed       int    `json:"failed"`
}

func (o *Orchestrator) publishProgress(ctx context.Context, ev progressEvent) {
	if o.bus == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := o.bus.Publish(ctx, progressChannel, payload); err != nil {
		o.logger.WarnContext(ctx, "progress publish failed",
			slog.String("error", err.Error()),
		)
	}
}

// expectedFailure reports whether an aux error is an anticipated upstream
// condition (nothing exists for this entity) rather than a fault worth an
// error-level log.
func expectedFailure(err error) bool {
	return provider.IsNoData(err) ||
		errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrNoData)
}

// reportCollector accumulates pass counters and per-entity outcomes across
// concurrent stage tasks.
type reportCollector struct {
	mu    sync.Mutex
	runID string

	entitiesSynced    int
	entitiesFailed    int
	pricePoints       int
	holderUpdates     int
	activityRows      int
	failedPriceSyncs  int
	failedHolderSyncs int
	failedActivity    int

	stageDone map[string]int
	stageFail map[string]int

	entitySyncedCount map[string]int64
	entityErr         map[string]string
}

func newReportCollector(runID string) *reportCollector {
	return &reportCollector{
		runID:             runID,
		stageDone:         make(map[string]int),
		stageFail:         make(map[string]int),
		entitySyncedCount: make(map[string]int64),
		entityErr:         make(map[string]string),
	}
}

func (r *reportCollector) entitySynced() {
	r.mu.Lock()
	r.entitiesSynced++
	r.mu.Unlock()
}

func (r *reportCollector) entityFailed() {
	r.mu.Lock()
	r.entitiesFailed++
	r.mu.Unlock()
}

func (r *reportCollector) stageSynced(stage, entityID string, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stageDone[stage]++
	r.entitySyncedCount[entityID] += int64(count)
	switch stage {
	case "price_history":
		r.pricePoints += count
	case "holders":
		r.holderUpdates += count
	case "activity":
		r.activityRows += count
	}
}

func (r *reportCollector) stageFailed(stage, entityID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stageFail[stage]++
	if _, ok := r.entityErr[entityID]; !ok {
		r.entityErr[entityID] = err.Error()
	}
	switch stage {
	case "price_history":
		r.failedPriceSyncs++
	case "holders":
		r.failedHolderSyncs++
	case "activity":
		r.failedActivity++
	}
}

func (r *reportCollector) stageCompleted(stage string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stageDone[stage]
}

func (r *reportCollector) stageFailedCount(stage string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stageFail[stage]
}

// finalStatus builds the closing ledger row for an entity: error with the
// first recorded message when any stage task failed, completed otherwise.
func (r *reportCollector) finalStatus(entityID string) domain.SyncStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := domain.SyncStatus{
		EntityID:     entityID,
		Status:       domain.SyncStateCompleted,
		LastSyncedAt: time.Now().UTC(),
		TotalSynced:  r.entitySyncedCount[entityID],
	}
	if msg, ok := r.entityErr[entityID]; ok {
		status.Status = domain.SyncStateError
		status.ErrorMessage = &msg
	}
	return status
}

func (r *reportCollector) report(elapsed time.Duration) domain.SyncReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return domain.SyncReport{
		RunID:             r.runID,
		EntitiesSynced:    r.entitiesSynced,
		EntitiesFailed:    r.entitiesFailed,
		PricePointsSynced: r.pricePoints,
		HolderUpdates:     r.holderUpdates,
		ActivityRows:      r.activityRows,
		FailedPriceSyncs:  r.failedPriceSyncs,
		FailedHolderSyncs: r.failedHolderSyncs,
		FailedActivity:    r.failedActivity,
		Duration:          elapsed,
		DurationSeconds:   elapsed.Seconds(),
	}
}

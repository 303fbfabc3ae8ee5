package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/polyfolio/syncd/internal/domain"
)

// CatchupSyncer re-runs the auxiliary machinery for entities whose ledger row
// is still pending or in error, without re-fetching the primary collection.
type CatchupSyncer struct {
	orch   *Orchestrator
	store  domain.MarketStore
	ledger domain.SyncStatusStore
	logger *slog.Logger
}

// NewCatchupSyncer creates a CatchupSyncer sharing the orchestrator's stage
// machinery.
func NewCatchupSyncer(orch *Orchestrator, store domain.MarketStore, ledger domain.SyncStatusStore, logger *slog.Logger) *CatchupSyncer {
	return &CatchupSyncer{
		orch:   orch,
		store:  store,
		ledger: ledger,
		logger: logger.With(slog.String("component", "catchup")),
	}
}

// Run selects up to limit entities needing sync from the ledger and runs both
// auxiliary stages for them. Entities that have vanished from the store are
// skipped.
func (c *CatchupSyncer) Run(ctx context.Context, limit int) (domain.SyncReport, error) {
	start := time.Now()
	runID := uuid.New().String()
	log := c.logger.With(slog.String("run_id", runID))

	ids, err := c.ledger.EntitiesNeedingSync(ctx, limit)
	if err != nil {
		return domain.SyncReport{}, fmt.Errorf("sync: catchup select: %w", err)
	}
	if len(ids) == 0 {
		log.InfoContext(ctx, "catchup: nothing to do")
		return domain.SyncReport{RunID: runID}, nil
	}

	entities := make([]domain.Market, 0, len(ids))
	for _, id := range ids {
		m, err := c.store.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				log.DebugContext(ctx, "catchup: entity no longer stored",
					slog.String("entity_id", id),
				)
				continue
			}
			return domain.SyncReport{}, fmt.Errorf("sync: catchup load %s: %w", id, err)
		}
		entities = append(entities, m)
	}

	log.InfoContext(ctx, "catchup starting",
		slog.Int("selected", len(ids)),
		slog.Int("loaded", len(entities)),
	)

	rep := newReportCollector(runID)
	params := Params{SyncPriceHistory: true, SyncHolders: true, SyncActivity: true}
	if err := c.orch.runAux(ctx, log, runID, entities, params, rep); err != nil {
		return domain.SyncReport{}, err
	}

	report := rep.report(time.Since(start))
	report.EntitiesSynced = len(entities)
	log.InfoContext(ctx, "catchup complete",
		slog.Int("entities", len(entities)),
		slog.Int("price_points", report.PricePointsSynced),
		slog.Int("holder_updates", report.HolderUpdates),
		slog.Duration("duration", report.Duration),
	)
	return report, nil
}

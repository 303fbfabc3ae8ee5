package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// UpsertOutcome is the per-record result of a batch upsert. One record's
// failure must not abort the batch; callers count outcomes and continue.
type UpsertOutcome struct {
	ID  string
	Err error
}

// MarketStore persists market metadata keyed by the upstream id.
type MarketStore interface {
	Upsert(ctx context.Context, m Market) error
	UpsertBatch(ctx context.Context, markets []Market) []UpsertOutcome
	GetByID(ctx context.Context, id string) (Market, error)
	List(ctx context.Context, opts ListOpts) ([]Market, error)
	Count(ctx context.Context) (int64, error)
}

// BarStore persists time-series bars keyed by (symbol, resolution, timestamp).
type BarStore interface {
	UpsertBatch(ctx context.Context, bars []Bar) error
	ListRange(ctx context.Context, symbol string, res Resolution, from, to time.Time) ([]Bar, error)
}

// HolderStore persists ranked holder snapshots. Replace swaps the full set
// for a market atomically; partial updates would corrupt rank ordering.
type HolderStore interface {
	Replace(ctx context.Context, marketID string, holders []Holder) error
	ListByMarket(ctx context.Context, marketID string) ([]Holder, error)
}

// ActivityStore persists trade-activity records keyed by their derived id.
type ActivityStore interface {
	UpsertBatch(ctx context.Context, activities []TradeActivity) error
	ListBefore(ctx context.Context, before time.Time) ([]TradeActivity, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// SyncStatusStore is the per-entity sync ledger.
type SyncStatusStore interface {
	Record(ctx context.Context, status SyncStatus) error
	Get(ctx context.Context, entityID string) (SyncStatus, error)
	EntitiesNeedingSync(ctx context.Context, limit int) ([]string, error)
}

package domain

import "time"

// SyncState is the lifecycle state of one entity's sync cursor.
type SyncState string

const (
	SyncStatePending    SyncState = "pending"
	SyncStateInProgress SyncState = "in_progress"
	SyncStateCompleted  SyncState = "completed"
	SyncStateError      SyncState = "error"
)

// SyncStatus is the per-entity ledger row driving incremental catch-up syncs.
// It is written exclusively by the orchestrator around each unit of work.
type SyncStatus struct {
	EntityID     string    `json:"entity_id"`
	Status       SyncState `json:"status"`
	LastSyncedAt time.Time `json:"last_synced_at"`
	TotalSynced  int64     `json:"total_synced"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SyncReport is the aggregate result of one sync pass, returned to the
// triggering collaborator.
type SyncReport struct {
	RunID             string        `json:"run_id"`
	EntitiesSynced    int           `json:"entities_synced"`
	EntitiesFailed    int           `json:"entities_failed"`
	PricePointsSynced int           `json:"price_points_synced"`
	HolderUpdates     int           `json:"holder_updates"`
	ActivityRows      int           `json:"activity_rows"`
	FailedPriceSyncs  int           `json:"failed_price_syncs"`
	FailedHolderSyncs int           `json:"failed_holder_syncs"`
	FailedActivity    int           `json:"failed_activity_syncs"`
	Duration          time.Duration `json:"-"`
	DurationSeconds   float64       `json:"duration_seconds"`
}

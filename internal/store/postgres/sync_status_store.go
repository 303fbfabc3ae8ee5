package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polyfolio/syncd/internal/domain"
)

// SyncStatusStore implements domain.SyncStatusStore using PostgreSQL.
type SyncStatusStore struct {
	pool *pgxpool.Pool
}

// NewSyncStatusStore creates a new SyncStatusStore backed by the given pool.
func NewSyncStatusStore(pool *pgxpool.Pool) *SyncStatusStore {
	return &SyncStatusStore{pool: pool}
}

// Record upserts one ledger row. The orchestrator calls this around each unit
// of work, so writes are frequent and idempotent.
func (s *SyncStatusStore) Record(ctx context.Context, status domain.SyncStatus) error {
	var lastSynced *time.Time
	if !status.LastSyncedAt.IsZero() {
		lastSynced = &status.LastSyncedAt
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO sync_status (entity_id, status, last_synced_at, total_synced, error_message, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (entity_id) DO UPDATE SET
			status         = EXCLUDED.status,
			last_synced_at = COALESCE(EXCLUDED.last_synced_at, sync_status.last_synced_at),
			total_synced   = EXCLUDED.total_synced,
			error_message  = EXCLUDED.error_message,
			updated_at     = NOW()`,
		status.EntityID, string(status.Status), lastSynced,
		status.TotalSynced, status.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("postgres: record sync status %s: %w", status.EntityID, err)
	}
	return nil
}

// Get retrieves the ledger row for one entity.
func (s *SyncStatusStore) Get(ctx context.Context, entityID string) (domain.SyncStatus, error) {
	var (
		st         domain.SyncStatus
		lastSynced *time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT entity_id, status, last_synced_at, total_synced, error_message, updated_at
		FROM sync_status
		WHERE entity_id = $1`, entityID,
	).Scan(&st.EntityID, &st.Status, &lastSynced, &st.TotalSynced, &st.ErrorMessage, &st.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.SyncStatus{}, domain.ErrNotFound
		}
		return domain.SyncStatus{}, fmt.Errorf("postgres: get sync status %s: %w", entityID, err)
	}
	if lastSynced != nil {
		st.LastSyncedAt = *lastSynced
	}
	return st, nil
}

// EntitiesNeedingSync returns entity ids whose last pass is pending, failed,
// or stuck in_progress (a crashed pass never finalizes its rows), oldest
// first, so catch-up passes retry the stalest work before anything else.
func (s *SyncStatusStore) EntitiesNeedingSync(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT entity_id
		FROM sync_status
		WHERE status IN ('pending', 'in_progress', 'error')
		ORDER BY updated_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: entities needing sync: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan entity id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: entities needing sync rows: %w", err)
	}
	return ids, nil
}

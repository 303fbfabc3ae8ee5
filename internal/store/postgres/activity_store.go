package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polyfolio/syncd/internal/domain"
)

// ActivityStore implements domain.ActivityStore using PostgreSQL.
type ActivityStore struct {
	pool *pgxpool.Pool
}

// NewActivityStore creates a new ActivityStore backed by the given connection pool.
func NewActivityStore(pool *pgxpool.Pool) *ActivityStore {
	return &ActivityStore{pool: pool}
}

const activityUpsertQuery = `
	INSERT INTO trade_activity (
		id, market_id, transaction_hash, outcome_index,
		wallet, side, outcome, price, size, usdc_size, ts
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (id) DO UPDATE SET
		price     = EXCLUDED.price,
		size      = EXCLUDED.size,
		usdc_size = EXCLUDED.usdc_size,
		ts        = EXCLUDED.ts`

// UpsertBatch writes trade-activity records in one pipelined batch.
// Overlapping history fetches converge on the deterministic id.
func (s *ActivityStore) UpsertBatch(ctx context.Context, activities []domain.TradeActivity) error {
	if len(activities) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, a := range activities {
		batch.Queue(activityUpsertQuery,
			a.ID, a.MarketID, a.TransactionHash, a.OutcomeIndex,
			a.Wallet, a.Side, a.Outcome, a.Price, a.Size, a.USDCSize, a.Timestamp,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range activities {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert activity: %w", err)
		}
	}
	return nil
}

// ListBefore returns all activity records older than the cutoff, ordered by
// timestamp ascending. The archiver streams these to blob storage before
// pruning.
func (s *ActivityStore) ListBefore(ctx context.Context, before time.Time) ([]domain.TradeActivity, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, market_id, transaction_hash, outcome_index,
		       wallet, side, outcome, price, size, usdc_size, ts
		FROM trade_activity
		WHERE ts < $1
		ORDER BY ts ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list activity before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	var activities []domain.TradeActivity
	for rows.Next() {
		var a domain.TradeActivity
		if err := rows.Scan(&a.ID, &a.MarketID, &a.TransactionHash, &a.OutcomeIndex,
			&a.Wallet, &a.Side, &a.Outcome, &a.Price, &a.Size, &a.USDCSize, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: scan activity: %w", err)
		}
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list activity rows: %w", err)
	}
	return activities, nil
}

// DeleteBefore prunes activity records older than the cutoff and reports how
// many rows were removed.
func (s *ActivityStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM trade_activity WHERE ts < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete activity before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

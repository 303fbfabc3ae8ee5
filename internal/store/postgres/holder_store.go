package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polyfolio/syncd/internal/domain"
)

// HolderStore implements domain.HolderStore using PostgreSQL.
type HolderStore struct {
	pool *pgxpool.Pool
}

// NewHolderStore creates a new HolderStore backed by the given connection pool.
func NewHolderStore(pool *pgxpool.Pool) *HolderStore {
	return &HolderStore{pool: pool}
}

// Replace swaps the full holder set for a market in a single transaction.
// Rank ordering is only meaningful as a complete snapshot, so a partial
// write is never left behind.
func (s *HolderStore) Replace(ctx context.Context, marketID string, holders []domain.Holder) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin holder replace: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM market_holders WHERE market_id = $1`, marketID); err != nil {
		return fmt.Errorf("postgres: clear holders for %s: %w", marketID, err)
	}

	for _, h := range holders {
		_, err := tx.Exec(ctx, `
			INSERT INTO market_holders (
				market_id, address, rank, outcome, balance, value,
				overall_gain, win_rate, total_profit, total_loss,
				total_positions, synced_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			marketID, h.Address, h.Rank, h.Outcome, h.Balance, h.Value,
			h.OverallGain, h.WinRate, h.TotalProfit, h.TotalLoss,
			h.TotalPositions, h.SyncedAt,
		)
		if err != nil {
			return fmt.Errorf("postgres: insert holder %s rank %d: %w", marketID, h.Rank, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit holder replace: %w", err)
	}
	return nil
}

// ListByMarket returns the holder snapshot for a market ordered by rank.
func (s *HolderStore) ListByMarket(ctx context.Context, marketID string) ([]domain.Holder, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT market_id, address, rank, outcome, balance, value,
		       overall_gain, win_rate, total_profit, total_loss,
		       total_positions, synced_at
		FROM market_holders
		WHERE market_id = $1
		ORDER BY rank ASC`, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list holders %s: %w", marketID, err)
	}
	defer rows.Close()

	var holders []domain.Holder
	for rows.Next() {
		var h domain.Holder
		if err := rows.Scan(&h.MarketID, &h.Address, &h.Rank, &h.Outcome,
			&h.Balance, &h.Value, &h.OverallGain, &h.WinRate,
			&h.TotalProfit, &h.TotalLoss, &h.TotalPositions, &h.SyncedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan holder: %w", err)
		}
		holders = append(holders, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list holders rows: %w", err)
	}
	return holders, nil
}

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polyfolio/syncd/internal/domain"
)

// BarStore implements domain.BarStore using PostgreSQL.
type BarStore struct {
	pool *pgxpool.Pool
}

// NewBarStore creates a new BarStore backed by the given connection pool.
func NewBarStore(pool *pgxpool.Pool) *BarStore {
	return &BarStore{pool: pool}
}

const barUpsertQuery = `
	INSERT INTO price_bars (symbol, resolution, ts, open, high, low, close, volume)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (symbol, resolution, ts) DO UPDATE SET
		open   = EXCLUDED.open,
		high   = EXCLUDED.high,
		low    = EXCLUDED.low,
		close  = EXCLUDED.close,
		volume = EXCLUDED.volume`

// UpsertBatch writes bars in one pipelined batch. Re-fetching an overlapping
// window supersedes existing rows.
func (s *BarStore) UpsertBatch(ctx context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(barUpsertQuery,
			b.Symbol, string(b.Resolution), b.Timestamp,
			b.Open, b.High, b.Low, b.Close, b.Volume,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range bars {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert bars: %w", err)
		}
	}
	return nil
}

// ListRange returns bars for a (symbol, resolution) series within [from, to],
// ordered by timestamp ascending.
func (s *BarStore) ListRange(ctx context.Context, symbol string, res domain.Resolution, from, to time.Time) ([]domain.Bar, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT symbol, resolution, ts, open, high, low, close, volume
		FROM price_bars
		WHERE symbol = $1 AND resolution = $2 AND ts >= $3 AND ts <= $4
		ORDER BY ts ASC`,
		symbol, string(res), from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bars %s/%s: %w", symbol, res, err)
	}
	defer rows.Close()

	var bars []domain.Bar
	for rows.Next() {
		var b domain.Bar
		if err := rows.Scan(&b.Symbol, &b.Resolution, &b.Timestamp,
			&b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("postgres: scan bar: %w", err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list bars rows: %w", err)
	}
	return bars, nil
}

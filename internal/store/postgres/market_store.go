package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polyfolio/syncd/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketUpsertQuery = `
	INSERT INTO markets (
		id, question, slug, event_slug, condition_id,
		volume_24hr, volume_total, active, closed,
		outcomes, outcome_prices, clob_token_ids, tags,
		category, subcategory, created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8, $9,
		$10, $11, $12, $13,
		$14, $15, $16, NOW()
	)
	ON CONFLICT (id) DO UPDATE SET
		question       = EXCLUDED.question,
		slug           = EXCLUDED.slug,
		event_slug     = EXCLUDED.event_slug,
		condition_id   = EXCLUDED.condition_id,
		volume_24hr    = EXCLUDED.volume_24hr,
		volume_total   = EXCLUDED.volume_total,
		active         = EXCLUDED.active,
		closed         = EXCLUDED.closed,
		outcomes       = EXCLUDED.outcomes,
		outcome_prices = EXCLUDED.outcome_prices,
		clob_token_ids = EXCLUDED.clob_token_ids,
		tags           = EXCLUDED.tags,
		category       = EXCLUDED.category,
		subcategory    = EXCLUDED.subcategory,
		updated_at     = NOW()`

// Upsert inserts or updates a single market. The creation timestamp is never
// overwritten on update.
func (s *MarketStore) Upsert(ctx context.Context, m domain.Market) error {
	_, err := s.pool.Exec(ctx, marketUpsertQuery,
		m.ID, m.Question, m.Slug, m.EventSlug, m.ConditionID,
		m.Volume24hr, m.VolumeTotal, m.Active, m.Closed,
		m.Outcomes, m.OutcomePrices, m.ClobTokenIDs, m.Tags,
		m.Category, m.Subcategory, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert market %s: %w", m.ID, err)
	}
	return nil
}

// UpsertBatch inserts or updates multiple markets and returns a per-record
// outcome. Records are executed one statement at a time rather than through
// pgx.Batch: a pipelined batch shares one implicit transaction, so a failure
// at record k would abort the remaining statements and roll back the earlier
// ones, breaking the per-record contract the orchestrator counts on.
func (s *MarketStore) UpsertBatch(ctx context.Context, markets []domain.Market) []domain.UpsertOutcome {
	outcomes := make([]domain.UpsertOutcome, 0, len(markets))
	for _, m := range markets {
		outcomes = append(outcomes, domain.UpsertOutcome{ID: m.ID, Err: s.Upsert(ctx, m)})
	}
	return outcomes
}

const marketCols = `id, question, slug, event_slug, condition_id,
	volume_24hr, volume_total, active, closed,
	outcomes, outcome_prices, clob_token_ids, tags,
	category, subcategory, created_at, updated_at`

// scanMarket scans a single market row into a domain.Market.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	err := row.Scan(
		&m.ID, &m.Question, &m.Slug, &m.EventSlug, &m.ConditionID,
		&m.Volume24hr, &m.VolumeTotal, &m.Active, &m.Closed,
		&m.Outcomes, &m.OutcomePrices, &m.ClobTokenIDs, &m.Tags,
		&m.Category, &m.Subcategory, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	return m, nil
}

// GetByID retrieves a market by its primary key.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// List returns markets ordered by 24-hour volume descending with pagination.
func (s *MarketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets ORDER BY volume_24hr DESC`
	args := []any{}
	argIdx := 1

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}

// Count returns the total number of markets in the database.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}

package sync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyfolio/syncd/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubMarketStore struct {
	mu      sync.Mutex
	markets map[string]domain.Market
}

func (s *stubMarketStore) Upsert(ctx context.Context, m domain.Market) error { return nil }

func (s *stubMarketStore) UpsertBatch(ctx context.Context, markets []domain.Market) []domain.UpsertOutcome {
	return nil
}

func (s *stubMarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *stubMarketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	return nil, nil
}

func (s *stubMarketStore) Count(ctx context.Context) (int64, error) { return 0, nil }

type catchupLedger struct {
	stubLedger
	needing []string
	selErr  error
}

func (l *catchupLedger) EntitiesNeedingSync(ctx context.Context, limit int) ([]string, error) {
	if l.selErr != nil {
		return nil, l.selErr
	}
	if limit > 0 && limit < len(l.needing) {
		return l.needing[:limit], nil
	}
	return l.needing, nil
}

func TestCatchupRunsAuxForStaleEntities(t *testing.T) {
	markets := testMarkets(3)
	store := &stubMarketStore{markets: map[string]domain.Market{
		"m1": markets[0],
		"m3": markets[2],
	}}
	ledger := &catchupLedger{needing: []string{"m1", "m3"}}
	aux := &stubAux{points: 2, holderCount: 1}
	orch := newTestOrchestrator(&stubSource{}, aux, &stubWriter{}, &stubBarStore{}, &stubHolderStore{}, ledger)
	syncer := NewCatchupSyncer(orch, store, ledger, testLogger())

	report, err := syncer.Run(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, 2, report.EntitiesSynced)
	assert.Equal(t, 2*2, report.PricePointsSynced)
	assert.Len(t, aux.holderCalls, 2)

	status, ok := ledger.final("m1")
	require.True(t, ok)
	assert.Equal(t, domain.SyncStateCompleted, status.Status)
}

func TestCatchupSkipsVanishedEntities(t *testing.T) {
	markets := testMarkets(1)
	store := &stubMarketStore{markets: map[string]domain.Market{"m1": markets[0]}}
	ledger := &catchupLedger{needing: []string{"m1", "gone"}}
	aux := &stubAux{points: 1, holderCount: 1}
	orch := newTestOrchestrator(&stubSource{}, aux, &stubWriter{}, &stubBarStore{}, &stubHolderStore{}, ledger)
	syncer := NewCatchupSyncer(orch, store, ledger, testLogger())

	report, err := syncer.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, report.EntitiesSynced)
	assert.Len(t, aux.priceCalls, 1)
}

func TestCatchupEmptyLedger(t *testing.T) {
	ledger := &catchupLedger{}
	orch := newTestOrchestrator(&stubSource{}, &stubAux{}, &stubWriter{}, &stubBarStore{}, &stubHolderStore{}, ledger)
	syncer := NewCatchupSyncer(orch, &stubMarketStore{}, ledger, testLogger())

	report, err := syncer.Run(context.Background(), 5)
	require.NoError(t, err)
	assert.Zero(t, report.EntitiesSynced)
	assert.NotEmpty(t, report.RunID)
}

func TestCatchupSelectError(t *testing.T) {
	ledger := &catchupLedger{selErr: errors.New("db down")}
	orch := newTestOrchestrator(&stubSource{}, &stubAux{}, &stubWriter{}, &stubBarStore{}, &stubHolderStore{}, ledger)
	syncer := NewCatchupSyncer(orch, &stubMarketStore{}, ledger, testLogger())

	_, err := syncer.Run(context.Background(), 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catchup select")
}

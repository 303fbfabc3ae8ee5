package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyfolio/syncd/internal/domain"
)

type stubSource struct {
	markets []domain.Market
	err     error
}

func (s *stubSource) GetMarketsByVolume(ctx context.Context, limit int) ([]domain.Market, error) {
	if s.err != nil {
		return nil, s.err
	}
	if limit > 0 && limit < len(s.markets) {
		return s.markets[:limit], nil
	}
	return s.markets, nil
}

type stubAux struct {
	mu            sync.Mutex
	priceCalls    []string
	holderCalls   []string
	activityCalls []string
	priceErrFor   map[string]error
	holderErrFor  map[string]error
	points        int
	holderCount   int
	activityCount int
}

func (a *stubAux) GetPriceHistory(ctx context.Context, tokenID, interval string) ([]domain.PricePoint, error) {
	a.mu.Lock()
	a.priceCalls = append(a.priceCalls, tokenID)
	a.mu.Unlock()
	if err := a.priceErrFor[tokenID]; err != nil {
		return nil, err
	}
	points := make([]domain.PricePoint, a.points)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := range points {
		points[i] = domain.PricePoint{Timestamp: base.Add(time.Duration(i) * time.Hour), Price: 0.5}
	}
	return points, nil
}

func (a *stubAux) GetHolders(ctx context.Context, marketID, conditionID string, limit int) ([]domain.Holder, error) {
	a.mu.Lock()
	a.holderCalls = append(a.holderCalls, marketID)
	a.mu.Unlock()
	if err := a.holderErrFor[marketID]; err != nil {
		return nil, err
	}
	holders := make([]domain.Holder, a.holderCount)
	for i := range holders {
		holders[i] = domain.Holder{MarketID: marketID, Rank: i + 1}
	}
	return holders, nil
}

func (a *stubAux) GetTradeActivity(ctx context.Context, marketID, conditionID string, limit int) ([]domain.TradeActivity, error) {
	a.mu.Lock()
	a.activityCalls = append(a.activityCalls, marketID)
	a.mu.Unlock()
	rows := make([]domain.TradeActivity, a.activityCount)
	for i := range rows {
		rows[i] = domain.TradeActivity{
			ID:       fmt.Sprintf("%s-0xabc-%d", marketID, i),
			MarketID: marketID,
		}
	}
	return rows, nil
}

type stubWriter struct {
	mu     sync.Mutex
	failID string
	seen   []domain.Market
}

func (w *stubWriter) UpsertMarkets(ctx context.Context, markets []domain.Market) []domain.UpsertOutcome {
	w.mu.Lock()
	w.seen = append(w.seen, markets...)
	w.mu.Unlock()
	outcomes := make([]domain.UpsertOutcome, 0, len(markets))
	for _, m := range markets {
		var err error
		if m.ID == w.failID {
			err = errors.New("constraint violation")
		}
		outcomes = append(outcomes, domain.UpsertOutcome{ID: m.ID, Err: err})
	}
	return outcomes
}

type stubBarStore struct {
	mu   sync.Mutex
	bars []domain.Bar
}

func (s *stubBarStore) UpsertBatch(ctx context.Context, bars []domain.Bar) error {
	s.mu.Lock()
	s.bars = append(s.bars, bars...)
	s.mu.Unlock()
	return nil
}

func (s *stubBarStore) ListRange(ctx context.Context, symbol string, res domain.Resolution, from, to time.Time) ([]domain.Bar, error) {
	return nil, nil
}

type stubHolderStore struct {
	mu       sync.Mutex
	replaced map[string]int
}

func (s *stubHolderStore) Replace(ctx context.Context, marketID string, holders []domain.Holder) error {
	s.mu.Lock()
	if s.replaced == nil {
		s.replaced = make(map[string]int)
	}
	s.replaced[marketID] = len(holders)
	s.mu.Unlock()
	return nil
}

func (s *stubHolderStore) ListByMarket(ctx context.Context, marketID string) ([]domain.Holder, error) {
	return nil, nil
}

type stubActivityStore struct {
	mu   sync.Mutex
	rows []domain.TradeActivity
}

func (s *stubActivityStore) UpsertBatch(ctx context.Context, activities []domain.TradeActivity) error {
	s.mu.Lock()
	s.rows = append(s.rows, activities...)
	s.mu.Unlock()
	return nil
}

func (s *stubActivityStore) ListBefore(ctx context.Context, before time.Time) ([]domain.TradeActivity, error) {
	return nil, nil
}

func (s *stubActivityStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

type stubLedger struct {
	mu      sync.Mutex
	records []domain.SyncStatus
}

func (l *stubLedger) Record(ctx context.Context, status domain.SyncStatus) error {
	l.mu.Lock()
	l.records = append(l.records, status)
	l.mu.Unlock()
	return nil
}

func (l *stubLedger) Get(ctx context.Context, entityID string) (domain.SyncStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.records) - 1; i >= 0; i-- {
		if l.records[i].EntityID == entityID {
			return l.records[i], nil
		}
	}
	return domain.SyncStatus{}, domain.ErrNotFound
}

func (l *stubLedger) EntitiesNeedingSync(ctx context.Context, limit int) ([]string, error) {
	return nil, nil
}

func (l *stubLedger) final(entityID string) (domain.SyncStatus, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.records) - 1; i >= 0; i-- {
		if l.records[i].EntityID == entityID {
			return l.records[i], true
		}
	}
	return domain.SyncStatus{}, false
}

func testMarkets(n int) []domain.Market {
	markets := make([]domain.Market, 0, n)
	for i := 1; i <= n; i++ {
		markets = append(markets, domain.Market{
			ID:           fmt.Sprintf("m%d", i),
			Question:     fmt.Sprintf("market %d", i),
			ConditionID:  fmt.Sprintf("0xcond%d", i),
			ClobTokenIDs: fmt.Sprintf("[%q,%q]", fmt.Sprintf("tok%d-yes", i), fmt.Sprintf("tok%d-no", i)),
		})
	}
	return markets
}

func newTestOrchestrator(src *stubSource, aux *stubAux, w *stubWriter, bars *stubBarStore, holders *stubHolderStore, ledger domain.SyncStatusStore) *Orchestrator {
	cfg := Config{
		PriceBatchSize:  4,
		HolderBatchSize: 4,
		BatchDelay:      time.Millisecond,
		Concurrency:     3,
		HoldersLimit:    5,
		PriceInterval:   "1d",
	}
	return NewOrchestrator(src, aux, w, bars, holders, &stubActivityStore{}, ledger, nil, nil, nil, cfg, testLogger())
}

func TestRunPassFatalPrimaryFetch(t *testing.T) {
	src := &stubSource{err: errors.New("gamma is down")}
	orch := newTestOrchestrator(src, &stubAux{}, &stubWriter{}, &stubBarStore{}, &stubHolderStore{}, &stubLedger{})

	_, err := orch.RunPass(context.Background(), Params{MaxEntities: 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch markets")
}

func TestRunPassOneFailureDoesNotAbortBatch(t *testing.T) {
	src := &stubSource{markets: testMarkets(10)}
	aux := &stubAux{
		points:      3,
		holderCount: 2,
		priceErrFor: map[string]error{"tok5-yes": errors.New("upstream 500")},
	}
	writer := &stubWriter{}
	bars := &stubBarStore{}
	holders := &stubHolderStore{}
	ledger := &stubLedger{}
	orch := newTestOrchestrator(src, aux, writer, bars, holders, ledger)

	report, err := orch.RunPass(context.Background(), Params{
		MaxEntities:      10,
		SyncPriceHistory: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 10, report.EntitiesSynced)
	assert.Equal(t, 1, report.FailedPriceSyncs)
	assert.Equal(t, 9*3, report.PricePointsSynced)
	assert.Len(t, aux.priceCalls, 10)

	status, ok := ledger.final("m5")
	require.True(t, ok)
	assert.Equal(t, domain.SyncStateError, status.Status)
	require.NotNil(t, status.ErrorMessage)
	assert.Contains(t, *status.ErrorMessage, "upstream 500")

	status, ok = ledger.final("m1")
	require.True(t, ok)
	assert.Equal(t, domain.SyncStateCompleted, status.Status)
	assert.Equal(t, int64(3), status.TotalSynced)
}

func TestRunPassSkipsEntitiesMissingPrerequisites(t *testing.T) {
	markets := testMarkets(4)
	markets[1].ClobTokenIDs = "[]" // no token: price skip
	markets[2].ConditionID = ""    // no condition: holder skip
	src := &stubSource{markets: markets}
	aux := &stubAux{points: 2, holderCount: 3}
	holders := &stubHolderStore{}
	orch := newTestOrchestrator(src, aux, &stubWriter{}, &stubBarStore{}, holders, &stubLedger{})

	report, err := orch.RunPass(context.Background(), Params{
		MaxEntities:      4,
		SyncPriceHistory: true,
		SyncHolders:      true,
	})
	require.NoError(t, err)

	assert.Len(t, aux.priceCalls, 3)
	assert.Len(t, aux.holderCalls, 3)
	assert.NotContains(t, aux.holderCalls, "m3")
	assert.Zero(t, report.FailedPriceSyncs)
	assert.Zero(t, report.FailedHolderSyncs)
	assert.Equal(t, 3*3, report.HolderUpdates)
}

func TestRunPassCountsFailedUpserts(t *testing.T) {
	src := &stubSource{markets: testMarkets(5)}
	writer := &stubWriter{failID: "m2"}
	aux := &stubAux{points: 1}
	orch := newTestOrchestrator(src, aux, writer, &stubBarStore{}, &stubHolderStore{}, &stubLedger{})

	report, err := orch.RunPass(context.Background(), Params{
		MaxEntities:      5,
		SyncPriceHistory: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 4, report.EntitiesSynced)
	assert.Equal(t, 1, report.EntitiesFailed)
	// Failed upserts get no aux work.
	assert.Len(t, aux.priceCalls, 4)
	assert.NotContains(t, aux.priceCalls, "tok2-yes")
}

func TestRunPassHolderReplaceWholesale(t *testing.T) {
	src := &stubSource{markets: testMarkets(2)}
	aux := &stubAux{holderCount: 7}
	holders := &stubHolderStore{}
	orch := newTestOrchestrator(src, aux, &stubWriter{}, &stubBarStore{}, holders, &stubLedger{})

	report, err := orch.RunPass(context.Background(), Params{
		MaxEntities: 2,
		SyncHolders: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 14, report.HolderUpdates)
	assert.Equal(t, 7, holders.replaced["m1"])
	assert.Equal(t, 7, holders.replaced["m2"])
}

func TestRunPassActivityUpsertedByID(t *testing.T) {
	src := &stubSource{markets: testMarkets(3)}
	aux := &stubAux{activityCount: 4}
	activity := &stubActivityStore{}
	cfg := Config{
		PriceBatchSize:  4,
		HolderBatchSize: 4,
		BatchDelay:      time.Millisecond,
		Concurrency:     3,
	}
	orch := NewOrchestrator(src, aux, &stubWriter{}, &stubBarStore{}, &stubHolderStore{}, activity, &stubLedger{}, nil, nil, nil, cfg, testLogger())

	report, err := orch.RunPass(context.Background(), Params{
		MaxEntities:  3,
		SyncActivity: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 12, report.ActivityRows)
	assert.Zero(t, report.FailedActivity)
	assert.Len(t, aux.activityCalls, 3)
	assert.Len(t, activity.rows, 12)
	assert.Empty(t, aux.priceCalls)
	assert.Empty(t, aux.holderCalls)
}

func TestRunPassEmptyPriceHistoryIsSuccessWithTrace(t *testing.T) {
	src := &stubSource{markets: testMarkets(2)}
	aux := &stubAux{points: 0}
	ledger := &stubLedger{}

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	cfg := Config{
		PriceBatchSize:  4,
		HolderBatchSize: 4,
		BatchDelay:      time.Millisecond,
		Concurrency:     3,
		HoldersLimit:    5,
		PriceInterval:   "1d",
	}
	orch := NewOrchestrator(src, aux, &stubWriter{}, &stubBarStore{}, &stubHolderStore{}, &stubActivityStore{}, ledger, nil, nil, nil, cfg, logger)

	report, err := orch.RunPass(context.Background(), Params{MaxEntities: 2, SyncPriceHistory: true})
	require.NoError(t, err)

	assert.Equal(t, 2, report.EntitiesSynced)
	assert.Zero(t, report.PricePointsSynced)
	assert.Zero(t, report.FailedPriceSyncs)
	assert.Len(t, aux.priceCalls, 2)
	assert.Equal(t, 2, strings.Count(buf.String(), "price history empty"))

	status, ok := ledger.final("m1")
	require.True(t, ok)
	assert.Equal(t, domain.SyncStateCompleted, status.Status)
}

func TestRunPassNoAuxWhenDisabled(t *testing.T) {
	src := &stubSource{markets: testMarkets(3)}
	aux := &stubAux{points: 2, holderCount: 2}
	ledger := &stubLedger{}
	orch := newTestOrchestrator(src, aux, &stubWriter{}, &stubBarStore{}, &stubHolderStore{}, ledger)

	report, err := orch.RunPass(context.Background(), Params{MaxEntities: 3})
	require.NoError(t, err)

	assert.Equal(t, 3, report.EntitiesSynced)
	assert.Empty(t, aux.priceCalls)
	assert.Empty(t, aux.holderCalls)
	assert.Empty(t, ledger.records)
}

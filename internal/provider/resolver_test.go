package provider

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyfolio/syncd/internal/domain"
)

type stubClient struct {
	name  string
	bars  []domain.Bar
	err   error
	calls int
}

func (s *stubClient) Name() string { return s.name }

func (s *stubClient) FetchHistory(ctx context.Context, req domain.HistoryRequest) ([]domain.Bar, error) {
	s.calls++
	return s.bars, s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func someBars(n int) []domain.Bar {
	bars := make([]domain.Bar, n)
	base := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = domain.Bar{
			Symbol:     "AAPL",
			Resolution: domain.ResolutionDay,
			Timestamp:  base.AddDate(0, 0, i),
			Open:       100, High: 101, Low: 99, Close: 100.5,
			Volume: 1000,
		}
	}
	return bars
}

func TestResolverReturnsFirstNonEmptyWithAttribution(t *testing.T) {
	first := &stubClient{name: "tiingo", err: NewError("tiingo", KindNoData, domain.ErrNoData)}
	second := &stubClient{name: "alpaca", bars: someBars(3)}
	third := &stubClient{name: "stooq", bars: someBars(5)}

	r := NewResolver([]Client{first, second, third}, testLogger())
	res, err := r.FetchHistory(context.Background(), domain.HistoryRequest{Symbol: "AAPL", Resolution: domain.ResolutionDay})
	require.NoError(t, err)

	assert.Equal(t, "alpaca", res.Provider)
	assert.Len(t, res.Bars, 3)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.Zero(t, third.calls, "later providers must not be invoked after a hit")
}

func TestResolverTreatsEmptyAndErrorAlike(t *testing.T) {
	empty := &stubClient{name: "tiingo"} // nil bars, nil error
	broken := &stubClient{name: "alpaca", err: NewError("alpaca", KindTransport, errors.New("connection reset"))}
	hit := &stubClient{name: "stooq", bars: someBars(1)}

	r := NewResolver([]Client{empty, broken, hit}, testLogger())
	res, err := r.FetchHistory(context.Background(), domain.HistoryRequest{Symbol: "TSLA"})
	require.NoError(t, err)
	assert.Equal(t, "stooq", res.Provider)
}

func TestResolverExhaustionRetainsLastConcreteError(t *testing.T) {
	noData := &stubClient{name: "tiingo", err: NewError("tiingo", KindNoData, domain.ErrNoData)}
	broken := &stubClient{name: "alpaca", err: NewError("alpaca", KindTransport, errors.New("upstream 502"))}

	r := NewResolver([]Client{noData, broken}, testLogger())
	_, err := r.FetchHistory(context.Background(), domain.HistoryRequest{Symbol: "GME"})
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrNoDataFromAnyProvider)
	assert.Contains(t, err.Error(), "upstream 502", "exhaustion must embed the last concrete error")

	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindTransport, pe.Kind)
}

func TestResolverAllEmptyReportsPlainExhaustion(t *testing.T) {
	r := NewResolver([]Client{
		&stubClient{name: "tiingo"},
		&stubClient{name: "alpaca", err: NewError("alpaca", KindNoData, domain.ErrNoData)},
	}, testLogger())

	_, err := r.FetchHistory(context.Background(), domain.HistoryRequest{Symbol: "ZZZZ"})
	require.ErrorIs(t, err, ErrNoDataFromAnyProvider)

	var pe *Error
	assert.False(t, errors.As(err, &pe), "no concrete error should be embedded when every provider was merely empty")
}

func TestKindOfFallsBackToTransport(t *testing.T) {
	assert.Equal(t, KindTransport, KindOf(errors.New("plain")))
	assert.Equal(t, KindRateLimited, KindOf(NewError("x", KindRateLimited, nil)))
}

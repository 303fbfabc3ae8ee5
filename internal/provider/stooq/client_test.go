package stooq

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyfolio/syncd/internal/domain"
	"github.com/polyfolio/syncd/internal/provider"
)

const sampleCSV = `Date,Open,High,Low,Close,Volume
2025-01-02,243.95,249.10,241.82,243.85,55740700
2025-01-03,243.36,244.18,241.89,243.36,40244100
2025-01-06,244.31,247.33,243.20,245.00,45045600
`

func dailyRequest(symbol string) domain.HistoryRequest {
	return domain.HistoryRequest{
		Symbol:     symbol,
		Resolution: domain.ResolutionDay,
		From:       time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		To:         time.Date(2025, 1, 7, 0, 0, 0, 0, time.UTC),
	}
}

func TestFetchHistoryParsesCSV(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "aapl.us", r.URL.Query().Get("s"))
		assert.Equal(t, "20250101", r.URL.Query().Get("d1"))
		fmt.Fprint(w, sampleCSV)
	}))
	defer srv.Close()

	c := New(srv.URL, 1000)
	bars, err := c.FetchHistory(context.Background(), dailyRequest("AAPL"))
	require.NoError(t, err)

	require.Len(t, bars, 3)
	assert.Equal(t, "AAPL", bars[0].Symbol)
	assert.Equal(t, 243.95, bars[0].Open)
	assert.Equal(t, int64(55740700), bars[0].Volume)
	assert.Equal(t, time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC), bars[2].Timestamp)
}

func TestFetchHistoryNoDataBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "No data")
	}))
	defer srv.Close()

	c := New(srv.URL, 1000)
	_, err := c.FetchHistory(context.Background(), dailyRequest("ZZZZ"))
	require.Error(t, err)
	assert.True(t, provider.IsNoData(err))
}

func TestFetchHistoryIntradayUnsupported(t *testing.T) {
	c := New("http://unused", 1000)
	req := dailyRequest("AAPL")
	req.Resolution = domain.ResolutionMinute

	_, err := c.FetchHistory(context.Background(), req)
	require.Error(t, err)
	assert.True(t, provider.IsNoData(err))
}

func TestFetchHistorySkipsMalformedRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "Date,Open,High,Low,Close,Volume\nnot-a-date,1,2,3,4,5\n2025-01-02,243.95,249.10,241.82,243.85,55740700\n")
	}))
	defer srv.Close()

	c := New(srv.URL, 1000)
	bars, err := c.FetchHistory(context.Background(), dailyRequest("AAPL"))
	require.NoError(t, err)
	assert.Len(t, bars, 1)
}

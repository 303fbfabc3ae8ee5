package alpaca

import (
	"context"
	"encoding/json"
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

func dayRequest() domain.HistoryRequest {
	return domain.HistoryRequest{
		Symbol:     "AAPL",
		Resolution: domain.ResolutionDay,
		From:       time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		To:         time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
	}
}

func barPage(ts []string, next *string) barsResponse {
	resp := barsResponse{Symbol: "AAPL", NextPageToken: next}
	for _, t := range ts {
		resp.Bars = append(resp.Bars, apiBar{Timestamp: t, Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 100})
	}
	return resp
}

func TestFeedDemotionOnSubscriptionDenied(t *testing.T) {
	var feedsSeen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		feed := r.URL.Query().Get("feed")
		feedsSeen = append(feedsSeen, feed)

		if feed == "sip" {
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(apiError{Code: subscriptionDeniedCode, Message: "subscription does not permit querying recent SIP data"})
			return
		}
		json.NewEncoder(w).Encode(barPage([]string{"2025-01-02T05:00:00Z", "2025-01-03T05:00:00Z"}, nil))
	}))
	defer srv.Close()

	c := New(srv.URL, "key", "secret", 1000)
	bars, err := c.FetchHistory(context.Background(), dayRequest())
	require.NoError(t, err)

	assert.Len(t, bars, 2)
	assert.Equal(t, []string{"sip", "iex"}, feedsSeen, "sip must be tried first, iex after the denial")
}

func TestNonSubscriptionFailureDoesNotDemote(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "boom")
	}))
	defer srv.Close()

	c := New(srv.URL, "key", "secret", 1000)
	_, err := c.FetchHistory(context.Background(), dayRequest())
	require.Error(t, err)

	assert.Equal(t, 1, calls, "a transport failure must surface without trying the next feed")
	assert.Equal(t, provider.KindTransport, provider.KindOf(err))
}

func TestPaginationAccumulatesAcrossPages(t *testing.T) {
	var tokensSeen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("page_token")
		tokensSeen = append(tokensSeen, token)

		switch token {
		case "":
			next := "page2"
			json.NewEncoder(w).Encode(barPage([]string{"2025-01-02T05:00:00Z"}, &next))
		case "page2":
			next := "page3"
			json.NewEncoder(w).Encode(barPage([]string{"2025-01-03T05:00:00Z"}, &next))
		default:
			json.NewEncoder(w).Encode(barPage([]string{"2025-01-06T05:00:00Z"}, nil))
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "key", "secret", 1000)
	bars, err := c.FetchHistory(context.Background(), dayRequest())
	require.NoError(t, err)

	assert.Len(t, bars, 3)
	assert.Equal(t, []string{"", "page2", "page3"}, tokensSeen)
}

func TestPaginationCeiling(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Always hand back another token: a pagination loop.
		next := "again"
		json.NewEncoder(w).Encode(barPage([]string{"2025-01-02T05:00:00Z"}, &next))
	}))
	defer srv.Close()

	c := New(srv.URL, "key", "secret", 1000)
	_, err := c.FetchHistory(context.Background(), dayRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pagination exceeded")
}

func TestMissingCredentialsIsAuthMissing(t *testing.T) {
	c := New("http://unused", "", "", 1000)
	_, err := c.FetchHistory(context.Background(), dayRequest())
	require.Error(t, err)
	assert.Equal(t, provider.KindAuthMissing, provider.KindOf(err))
}

func TestRateLimitedMapsToKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(srv.URL, "key", "secret", 1000)
	_, err := c.FetchHistory(context.Background(), dayRequest())
	require.Error(t, err)
	assert.Equal(t, provider.KindRateLimited, provider.KindOf(err))
}

// Package stooq implements the keyless HTTP fallback vendor. It serves daily
// history as CSV downloads and needs no credentials, which makes it the last
// resort in the fallback chain for symbols the paid vendors do not cover.
package stooq

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/polyfolio/syncd/internal/domain"
	"github.com/polyfolio/syncd/internal/provider"
)

const providerName = "stooq"

// Client downloads daily OHLCV history from the stooq CSV endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// New creates a stooq client.
//
// baseURL is the site root, e.g. "https://stooq.com".
func New(baseURL string, requestsPerSecond float64) *Client {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

// Name implements provider.Client.
func (c *Client) Name() string { return providerName }

// FetchHistory implements provider.Client. Stooq only serves daily bars;
// intraday resolutions are reported as no-data so the resolver moves on.
func (c *Client) FetchHistory(ctx context.Context, req domain.HistoryRequest) ([]domain.Bar, error) {
	if req.Resolution != domain.ResolutionDay {
		return nil, provider.NewError(providerName, provider.KindNoData,
			fmt.Errorf("%w: resolution %s not served", domain.ErrNoData, req.Resolution))
	}

	params := url.Values{}
	params.Set("s", strings.ToLower(req.Symbol)+".us")
	params.Set("d1", req.From.UTC().Format("20060102"))
	params.Set("d2", req.To.UTC().Format("20060102"))
	params.Set("i", "d")

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, provider.NewError(providerName, provider.KindTransport, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/q/d/l/?"+params.Encode(), nil)
	if err != nil {
		return nil, provider.NewError(providerName, provider.KindTransport,
			fmt.Errorf("create request: %w", err))
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, provider.NewError(providerName, provider.KindTransport,
			fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, provider.NewError(providerName, provider.KindRateLimited, domain.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, provider.NewError(providerName, provider.KindTransport,
			fmt.Errorf("status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.NewError(providerName, provider.KindTransport,
			fmt.Errorf("read response: %w", err))
	}

	// The endpoint answers 200 with a plain-text marker for unknown symbols.
	if strings.HasPrefix(strings.TrimSpace(string(body)), "No data") {
		return nil, provider.NewError(providerName, provider.KindNoData, domain.ErrNoData)
	}

	bars, err := parseCSV(body, req.Symbol)
	if err != nil {
		return nil, provider.NewError(providerName, provider.KindTransport, err)
	}
	return bars, nil
}

// parseCSV decodes the "Date,Open,High,Low,Close,Volume" download format.
// Rows that fail to parse are skipped; a malformed header fails the fetch.
func parseCSV(body []byte, symbol string) ([]domain.Bar, error) {
	r := csv.NewReader(strings.NewReader(string(body)))
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 || len(records[0]) < 5 || !strings.EqualFold(records[0][0], "Date") {
		return nil, fmt.Errorf("unexpected csv header")
	}

	var bars []domain.Bar
	for _, rec := range records[1:] {
		if len(rec) < 5 {
			continue
		}
		ts, err := time.Parse("2006-01-02", rec[0])
		if err != nil {
			continue
		}
		open, err1 := strconv.ParseFloat(rec[1], 64)
		high, err2 := strconv.ParseFloat(rec[2], 64)
		low, err3 := strconv.ParseFloat(rec[3], 64)
		closeP, err4 := strconv.ParseFloat(rec[4], 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			continue
		}
		var volume int64
		if len(rec) >= 6 {
			volume, _ = strconv.ParseInt(rec[5], 10, 64)
		}
		bars = append(bars, domain.Bar{
			Symbol:     symbol,
			Resolution: domain.ResolutionDay,
			Timestamp:  ts.UTC(),
			Open:       open,
			High:       high,
			Low:        low,
			Close:      closeP,
			Volume:     volume,
		})
	}
	return bars, nil
}

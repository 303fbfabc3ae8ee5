// Package tiingo implements the primary equity history vendor. Access is
// token-gated; when no token is configured the client is left out of the
// fallback chain entirely.
package tiingo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/polyfolio/syncd/internal/domain"
	"github.com/polyfolio/syncd/internal/provider"
)

const providerName = "tiingo"

// Client is the REST client for the Tiingo end-of-day and IEX intraday APIs.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// New creates a Tiingo client.
//
// baseURL is the API root, e.g. "https://api.tiingo.com".
func New(baseURL, token string, requestsPerSecond float64) *Client {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 2
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

// Name implements provider.Client.
func (c *Client) Name() string { return providerName }

// FetchHistory implements provider.Client. Daily resolutions hit the
// end-of-day endpoint; intraday resolutions hit the IEX endpoint with a
// resample frequency.
func (c *Client) FetchHistory(ctx context.Context, req domain.HistoryRequest) ([]domain.Bar, error) {
	if c.token == "" {
		return nil, provider.NewError(providerName, provider.KindAuthMissing, fmt.Errorf("no api token configured"))
	}

	params := url.Values{}
	params.Set("token", c.token)
	params.Set("startDate", req.From.UTC().Format("2006-01-02"))
	params.Set("endDate", req.To.UTC().Format("2006-01-02"))

	var path string
	switch req.Resolution {
	case domain.ResolutionDay:
		path = fmt.Sprintf("/tiingo/daily/%s/prices", url.PathEscape(req.Symbol))
	case domain.ResolutionHour:
		params.Set("resampleFreq", "1hour")
		path = fmt.Sprintf("/iex/%s/prices", url.PathEscape(req.Symbol))
	default:
		params.Set("resampleFreq", "1min")
		path = fmt.Sprintf("/iex/%s/prices", url.PathEscape(req.Symbol))
	}

	body, err := c.doGet(ctx, path+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var rows []priceRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, provider.NewError(providerName, provider.KindTransport,
			fmt.Errorf("decode prices: %w", err))
	}

	bars := make([]domain.Bar, 0, len(rows))
	for i := range rows {
		bar, ok := rows[i].toBar(req.Symbol, req.Resolution)
		if !ok {
			continue
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// doGet sends one GET request, maps HTTP failures to typed provider errors,
// and returns the raw body.
func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, provider.NewError(providerName, provider.KindTransport, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, provider.NewError(providerName, provider.KindTransport,
			fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, provider.NewError(providerName, provider.KindTransport,
			fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.NewError(providerName, provider.KindTransport,
			fmt.Errorf("read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, provider.NewError(providerName, provider.KindNoData, domain.ErrNoData)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, provider.NewError(providerName, provider.KindAuthMissing,
			fmt.Errorf("%w: status %d", domain.ErrUnauthorized, resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, provider.NewError(providerName, provider.KindRateLimited, domain.ErrRateLimited)
	case resp.StatusCode != http.StatusOK:
		return nil, provider.NewError(providerName, provider.KindTransport,
			fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body, 200)))
	}

	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

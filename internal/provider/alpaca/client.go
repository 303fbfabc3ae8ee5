// Package alpaca implements the secondary equity history vendor. The bars
// endpoint has tiered data feeds: the full consolidated "sip" feed is
// restricted to paid subscriptions while "iex" is open to every account. The
// client asks for the richest feed first and silently demotes on a
// subscription-denied response, restarting pagination for the lower tier.
package alpaca

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/polyfolio/syncd/internal/domain"
	"github.com/polyfolio/syncd/internal/provider"
)

const providerName = "alpaca"

// maxPages bounds the pagination loop per feed. A window that needs more
// pages than this is a caller bug or an upstream loop.
const maxPages = 50

// feedTiers lists data feeds from richest to most available.
var feedTiers = []string{"sip", "iex"}

// Client is the REST client for the Alpaca Market Data bars API.
type Client struct {
	baseURL    string
	keyID      string
	secretKey  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// New creates an Alpaca market-data client.
//
// baseURL is the data API root, e.g. "https://data.alpaca.markets".
func New(baseURL, keyID, secretKey string, requestsPerSecond float64) *Client {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 3
	}
	return &Client{
		baseURL:   baseURL,
		keyID:     keyID,
		secretKey: secretKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

// Name implements provider.Client.
func (c *Client) Name() string { return providerName }

// FetchHistory implements provider.Client. It walks the feed tiers in order;
// only a subscription-denied signal moves to the next tier, any other failure
// surfaces immediately.
func (c *Client) FetchHistory(ctx context.Context, req domain.HistoryRequest) ([]domain.Bar, error) {
	if c.keyID == "" || c.secretKey == "" {
		return nil, provider.NewError(providerName, provider.KindAuthMissing, fmt.Errorf("no api key configured"))
	}

	var lastDenied error
	for _, feed := range feedTiers {
		bars, err := c.fetchFeed(ctx, req, feed)
		if err != nil {
			if isSubscriptionDenied(err) {
				lastDenied = err
				continue
			}
			return nil, err
		}
		return bars, nil
	}
	return nil, lastDenied
}

// fetchFeed paginates one feed tier to completion via next_page_token.
func (c *Client) fetchFeed(ctx context.Context, req domain.HistoryRequest, feed string) ([]domain.Bar, error) {
	var (
		bars      []domain.Bar
		pageToken string
	)

	for page := 0; page < maxPages; page++ {
		params := url.Values{}
		params.Set("timeframe", timeframe(req.Resolution))
		params.Set("start", req.From.UTC().Format(time.RFC3339))
		params.Set("end", req.To.UTC().Format(time.RFC3339))
		params.Set("limit", "10000")
		params.Set("feed", feed)
		params.Set("adjustment", "raw")
		if pageToken != "" {
			params.Set("page_token", pageToken)
		}

		path := fmt.Sprintf("/v2/stocks/%s/bars?%s", url.PathEscape(req.Symbol), params.Encode())
		body, err := c.doGet(ctx, path)
		if err != nil {
			return nil, err
		}

		var resp barsResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, provider.NewError(providerName, provider.KindTransport,
				fmt.Errorf("decode bars: %w", err))
		}

		for i := range resp.Bars {
			bar, ok := resp.Bars[i].toBar(req.Symbol, req.Resolution)
			if !ok {
				continue
			}
			bars = append(bars, bar)
		}

		if resp.NextPageToken == nil || *resp.NextPageToken == "" {
			return bars, nil
		}
		pageToken = *resp.NextPageToken
	}

	return nil, provider.NewError(providerName, provider.KindTransport,
		fmt.Errorf("pagination exceeded %d pages for %s", maxPages, req.Symbol))
}

// doGet sends one authenticated GET request and maps HTTP failures to typed
// provider errors.
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
	req.Header.Set("APCA-API-KEY-ID", c.keyID)
	req.Header.Set("APCA-API-SECRET-KEY", c.secretKey)

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

	switch resp.StatusCode {
	case http.StatusOK:
		return body, nil
	case http.StatusNotFound, http.StatusUnprocessableEntity:
		return nil, provider.NewError(providerName, provider.KindNoData, domain.ErrNoData)
	case http.StatusUnauthorized:
		return nil, provider.NewError(providerName, provider.KindAuthMissing,
			fmt.Errorf("%w: status 401", domain.ErrUnauthorized))
	case http.StatusForbidden:
		// Distinguish subscription-denied (tier too low) from bad keys by the
		// structured error payload, never by free-text matching alone.
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.isSubscriptionDenied() {
			return nil, provider.NewError(providerName, provider.KindAuthMissing,
				fmt.Errorf("%w: %s", errSubscriptionDenied, apiErr.Message))
		}
		return nil, provider.NewError(providerName, provider.KindAuthMissing,
			fmt.Errorf("%w: status 403", domain.ErrUnauthorized))
	case http.StatusTooManyRequests:
		return nil, provider.NewError(providerName, provider.KindRateLimited, domain.ErrRateLimited)
	default:
		return nil, provider.NewError(providerName, provider.KindTransport,
			fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body, 200)))
	}
}

// timeframe maps a domain resolution onto the bars API timeframe parameter.
func timeframe(res domain.Resolution) string {
	switch res {
	case domain.ResolutionMinute:
		return "1Min"
	case domain.ResolutionHour:
		return "1Hour"
	default:
		return "1Day"
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// errSubscriptionDenied marks a 403 caused by feed tier, not credentials.
var errSubscriptionDenied = errors.New("subscription does not permit feed")

// isSubscriptionDenied reports whether err carries the feed-tier denial.
func isSubscriptionDenied(err error) bool {
	return errors.Is(err, errSubscriptionDenied)
}

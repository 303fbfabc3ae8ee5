package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/polyfolio/syncd/internal/domain"
)

// DataClient is the REST client for the Polymarket Data API, which serves
// per-market auxiliary resources: holder snapshots, trade activity, and
// price history. These endpoints are rate-limited far more aggressively than
// the Gamma listing endpoint.
type DataClient struct {
	baseURL    string
	clobURL    string
	httpClient *http.Client
}

// NewDataClient creates a new Data API client.
//
// baseURL is the Data API root, e.g. "https://data-api.polymarket.com";
// clobURL is the CLOB root serving price history, e.g.
// "https://clob.polymarket.com".
func NewDataClient(baseURL, clobURL string) *DataClient {
	return &DataClient{
		baseURL: baseURL,
		clobURL: clobURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetHolders returns the ranked holder snapshot for a market condition. The
// upstream already orders holders by position value; ranks are assigned here
// from that ordering.
func (d *DataClient) GetHolders(ctx context.Context, marketID, conditionID string, limit int) ([]domain.Holder, error) {
	params := url.Values{}
	params.Set("market", conditionID)
	params.Set("limit", strconv.Itoa(limit))

	body, err := d.doGet(ctx, d.baseURL+"/holders?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket/data: get holders %s: %w", conditionID, err)
	}

	var resp holdersResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("polymarket/data: decode holders: %w", err)
	}

	now := time.Now().UTC()
	var holders []domain.Holder
	rank := 1
	for _, tok := range resp.Tokens {
		for i := range tok.Holders {
			h, ok := tok.Holders[i].toDomain(marketID, rank, now)
			if !ok {
				continue
			}
			holders = append(holders, h)
			rank++
		}
	}
	return holders, nil
}

// GetTradeActivity returns recent trade events for a market condition with
// deterministic ids, so overlapping fetches upsert cleanly.
func (d *DataClient) GetTradeActivity(ctx context.Context, marketID, conditionID string, limit int) ([]domain.TradeActivity, error) {
	params := url.Values{}
	params.Set("market", conditionID)
	params.Set("limit", strconv.Itoa(limit))

	body, err := d.doGet(ctx, d.baseURL+"/trades?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket/data: get trades %s: %w", conditionID, err)
	}

	var apiTrades []apiTrade
	if err := json.Unmarshal(body, &apiTrades); err != nil {
		return nil, fmt.Errorf("polymarket/data: decode trades: %w", err)
	}

	activities := make([]domain.TradeActivity, 0, len(apiTrades))
	for i := range apiTrades {
		activities = append(activities, apiTrades[i].toDomain(marketID))
	}
	return activities, nil
}

// GetPriceHistory returns the price series for a CLOB token over the named
// interval (e.g. "1d", "1w", "max").
func (d *DataClient) GetPriceHistory(ctx context.Context, tokenID, interval string) ([]domain.PricePoint, error) {
	params := url.Values{}
	params.Set("market", tokenID)
	params.Set("interval", interval)

	body, err := d.doGet(ctx, d.clobURL+"/prices-history?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket/data: get price history %s: %w", tokenID, err)
	}

	var resp priceHistoryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("polymarket/data: decode price history: %w", err)
	}

	points := make([]domain.PricePoint, 0, len(resp.History))
	for _, p := range resp.History {
		points = append(points, domain.PricePoint{
			Timestamp: time.Unix(p.Timestamp, 0).UTC(),
			Price:     p.Price,
		})
	}
	return points, nil
}

// doGet sends an unauthenticated GET request to an absolute URL.
func (d *DataClient) doGet(ctx context.Context, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	return body, nil
}

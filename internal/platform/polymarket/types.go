package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/polyfolio/syncd/internal/domain"
	"github.com/polyfolio/syncd/internal/normalize"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// flexFloat unmarshals from JSON number or numeric string; Gamma volume
// fields switch between the two across endpoints.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexFloat(n)
	return nil
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIMarket represents a market as returned by the Polymarket Gamma API.
// Array-valued fields are kept raw: the API is inconsistent about whether
// they arrive as arrays or pre-serialized JSON strings, and canonicalization
// belongs to the normalizer, not the decoder.
type APIMarket struct {
	ID            string          `json:"id"`
	Question      string          `json:"question"`
	Slug          string          `json:"slug"`
	EventSlug     string          `json:"eventSlug"`
	ConditionID   string          `json:"conditionId"`
	Active        flexBool        `json:"active"`
	Closed        flexBool        `json:"closed"`
	Volume24hr    flexFloat       `json:"volume24hr"`
	VolumeTotal   flexFloat       `json:"volume"`
	Outcomes      json.RawMessage `json:"outcomes"`
	OutcomePrices json.RawMessage `json:"outcomePrices"`
	ClobTokenIDs  json.RawMessage `json:"clobTokenIds"`
	Tags          json.RawMessage `json:"tags"`
	CreatedAt     string          `json:"createdAt"`
	UpdatedAt     string          `json:"updatedAt"`
	Events        []apiEventRef   `json:"events"`
}

// apiEventRef is the embedded event reference carried on market payloads.
type apiEventRef struct {
	Slug string `json:"slug"`
}

// ToDomainMarket converts a Gamma APIMarket to a domain.Market with all
// array-valued fields in canonical encoding and category fields derived from
// the tag list.
func (m *APIMarket) ToDomainMarket() domain.Market {
	dm := domain.Market{
		ID:            m.ID,
		Question:      m.Question,
		Slug:          m.Slug,
		EventSlug:     m.EventSlug,
		ConditionID:   m.ConditionID,
		Active:        bool(m.Active),
		Closed:        bool(m.Closed),
		Volume24hr:    float64(m.Volume24hr),
		VolumeTotal:   float64(m.VolumeTotal),
		Outcomes:      normalize.StringArray(m.Outcomes),
		OutcomePrices: normalize.StringArray(m.OutcomePrices),
		ClobTokenIDs:  normalize.StringArray(m.ClobTokenIDs),
		Tags:          normalize.StringArray(m.Tags),
	}

	if dm.EventSlug == "" && len(m.Events) > 0 {
		dm.EventSlug = m.Events[0].Slug
	}

	dm.Category, dm.Subcategory = normalize.Category(domain.DecodeStringArray(dm.Tags))

	if t, err := time.Parse(time.RFC3339, m.CreatedAt); err == nil {
		dm.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, m.UpdatedAt); err == nil {
		dm.UpdatedAt = t
	} else {
		dm.UpdatedAt = time.Now().UTC()
	}

	return dm
}

// --------------------------------------------------------------------------
// Data API DTOs
// --------------------------------------------------------------------------

// holdersResponse groups holders by outcome token.
type holdersResponse struct {
	Tokens []tokenHolders `json:"tokens"`
}

type tokenHolders struct {
	Token   string      `json:"token"`
	Outcome string      `json:"outcome"`
	Holders []apiHolder `json:"holders"`
}

// apiHolder is one holder row from the Data API.
type apiHolder struct {
	ProxyWallet    string   `json:"proxyWallet"`
	Amount         float64  `json:"amount"`
	Value          float64  `json:"value"`
	OutcomeIndex   int      `json:"outcomeIndex"`
	Outcome        string   `json:"outcome"`
	OverallGain    *float64 `json:"overallGain"`
	WinRate        *float64 `json:"winRate"`
	TotalProfit    *float64 `json:"totalProfit"`
	TotalLoss      *float64 `json:"totalLoss"`
	TotalPositions *int64   `json:"totalPositions"`
}

// toDomain converts one holder row, rejecting rows with malformed wallet
// addresses.
func (h *apiHolder) toDomain(marketID string, rank int, syncedAt time.Time) (domain.Holder, bool) {
	addr, ok := normalize.HolderAddress(h.ProxyWallet)
	if !ok {
		return domain.Holder{}, false
	}
	dh := domain.Holder{
		MarketID:       marketID,
		Address:        addr,
		Rank:           rank,
		Balance:        h.Amount,
		Value:          h.Value,
		OverallGain:    h.OverallGain,
		WinRate:        h.WinRate,
		TotalProfit:    h.TotalProfit,
		TotalLoss:      h.TotalLoss,
		TotalPositions: h.TotalPositions,
		SyncedAt:       syncedAt,
	}
	if h.Outcome != "" {
		outcome := h.Outcome
		dh.Outcome = &outcome
	}
	return dh, true
}

// apiTrade is one trade event from the Data API.
type apiTrade struct {
	ProxyWallet     string  `json:"proxyWallet"`
	Side            string  `json:"side"`
	Outcome         string  `json:"outcome"`
	OutcomeIndex    int     `json:"outcomeIndex"`
	Price           float64 `json:"price"`
	Size            float64 `json:"size"`
	USDCSize        float64 `json:"usdcSize"`
	TransactionHash string  `json:"transactionHash"`
	Timestamp       int64   `json:"timestamp"`
}

// toDomain converts one trade event; the id derives from the transaction
// hash and outcome index so re-ingestion is idempotent.
func (t *apiTrade) toDomain(marketID string) domain.TradeActivity {
	return domain.TradeActivity{
		ID:              domain.ActivityID(t.TransactionHash, t.OutcomeIndex),
		MarketID:        marketID,
		TransactionHash: t.TransactionHash,
		OutcomeIndex:    t.OutcomeIndex,
		Wallet:          t.ProxyWallet,
		Side:            t.Side,
		Outcome:         t.Outcome,
		Price:           t.Price,
		Size:            t.Size,
		USDCSize:        t.USDCSize,
		Timestamp:       time.Unix(t.Timestamp, 0).UTC(),
	}
}

// priceHistoryResponse is the CLOB prices-history envelope.
type priceHistoryResponse struct {
	History []apiPricePoint `json:"history"`
}

type apiPricePoint struct {
	Timestamp int64   `json:"t"`
	Price     float64 `json:"p"`
}

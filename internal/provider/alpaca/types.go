package alpaca

import (
	"time"

	"github.com/polyfolio/syncd/internal/domain"
)

// barsResponse is one page of the stocks bars endpoint.
type barsResponse struct {
	Bars          []apiBar `json:"bars"`
	Symbol        string   `json:"symbol"`
	NextPageToken *string  `json:"next_page_token"`
}

// apiBar is one bar in the compact wire encoding.
type apiBar struct {
	Timestamp string  `json:"t"`
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    int64   `json:"v"`
}

// toBar converts one wire bar into a domain bar. Bars with unparseable
// timestamps are skipped rather than failing the page.
func (b *apiBar) toBar(symbol string, res domain.Resolution) (domain.Bar, bool) {
	ts, err := time.Parse(time.RFC3339, b.Timestamp)
	if err != nil {
		return domain.Bar{}, false
	}
	return domain.Bar{
		Symbol:     symbol,
		Resolution: res,
		Timestamp:  ts.UTC(),
		Open:       b.Open,
		High:       b.High,
		Low:        b.Low,
		Close:      b.Close,
		Volume:     b.Volume,
	}, true
}

// apiError is the structured error payload returned on 4xx responses.
type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// subscriptionDeniedCode is returned when the account's plan does not cover
// the requested feed tier.
const subscriptionDeniedCode = 40310000

func (e *apiError) isSubscriptionDenied() bool {
	return e.Code == subscriptionDeniedCode
}

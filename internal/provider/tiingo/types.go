package tiingo

import (
	"time"

	"github.com/polyfolio/syncd/internal/domain"
)

// priceRow is one sample from either the end-of-day or the IEX intraday
// endpoint. Both share the OHLCV field names; end-of-day rows use a date-only
// timestamp while intraday rows carry full RFC 3339 instants.
type priceRow struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// toBar converts one row into a domain bar. Rows with unparseable timestamps
// are skipped rather than failing the whole window.
func (r *priceRow) toBar(symbol string, res domain.Resolution) (domain.Bar, bool) {
	ts, err := time.Parse(time.RFC3339, r.Date)
	if err != nil {
		ts, err = time.Parse("2006-01-02", r.Date)
		if err != nil {
			return domain.Bar{}, false
		}
	}
	return domain.Bar{
		Symbol:     symbol,
		Resolution: res,
		Timestamp:  ts.UTC(),
		Open:       r.Open,
		High:       r.High,
		Low:        r.Low,
		Close:      r.Close,
		Volume:     r.Volume,
	}, true
}

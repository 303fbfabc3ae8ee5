package domain

import "time"

// Resolution identifies the sampling interval of a time-series.
type Resolution string

const (
	ResolutionMinute Resolution = "1m"
	ResolutionHour   Resolution = "1h"
	ResolutionDay    Resolution = "1d"
)

// Bar is one OHLCV sample in a (symbol, resolution) series. Bars are never
// mutated; re-fetching an overlapping window supersedes existing rows via
// upsert on (symbol, resolution, timestamp).
type Bar struct {
	Symbol     string     `json:"symbol"`
	Resolution Resolution `json:"resolution"`
	Timestamp  time.Time  `json:"timestamp"`
	Open       float64    `json:"open"`
	High       float64    `json:"high"`
	Low        float64    `json:"low"`
	Close      float64    `json:"close"`
	Volume     int64      `json:"volume"`
}

// HistoryRequest describes one time-series window to fetch from a provider.
type HistoryRequest struct {
	Symbol     string
	Resolution Resolution
	From       time.Time
	To         time.Time
}

// HistoryResult is a resolved time-series tagged with the provider that
// produced it.
type HistoryResult struct {
	Bars     []Bar
	Provider string
}

// PricePoint is one sample from the Polymarket price-history endpoint.
type PricePoint struct {
	Timestamp time.Time
	Price     float64
}

package domain

import "time"

// Holder is one ranked holder of a market outcome. The full holder set for a
// market is replaced wholesale on each sync: rank is only meaningful as a
// complete, freshly ordered snapshot.
type Holder struct {
	MarketID       string    `json:"market_id"`
	Address        string    `json:"address"` // EIP-55 checksummed wallet address
	Rank           int       `json:"rank"`    // 1-based, unique within a market after a sync
	Outcome        *string   `json:"outcome,omitempty"`
	Balance        float64   `json:"balance"`
	Value          float64   `json:"value"`
	OverallGain    *float64  `json:"overall_gain,omitempty"`
	WinRate        *float64  `json:"win_rate,omitempty"`
	TotalProfit    *float64  `json:"total_profit,omitempty"`
	TotalLoss      *float64  `json:"total_loss,omitempty"`
	TotalPositions *int64    `json:"total_positions,omitempty"`
	SyncedAt       time.Time `json:"synced_at"`
}

package domain

import (
	"fmt"
	"time"
)

// TradeActivity is one on-chain trade event observed for a market. Its ID is
// derived deterministically from the transaction hash and outcome index so
// overlapping history fetches upsert instead of duplicating.
type TradeActivity struct {
	ID              string    `json:"id"`
	MarketID        string    `json:"market_id"`
	TransactionHash string    `json:"transaction_hash"`
	OutcomeIndex    int       `json:"outcome_index"`
	Wallet          string    `json:"wallet"`
	Side            string    `json:"side"` // "BUY" or "SELL"
	Outcome         string    `json:"outcome"`
	Price           float64   `json:"price"`
	Size            float64   `json:"size"`
	USDCSize        float64   `json:"usdc_size"`
	Timestamp       time.Time `json:"timestamp"`
}

// ActivityID derives the natural key for a trade-activity record. Two fetches
// of the same fill always produce the same ID.
func ActivityID(txHash string, outcomeIndex int) string {
	return fmt.Sprintf("%s-%d", txHash, outcomeIndex)
}

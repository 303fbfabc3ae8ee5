package domain

import "time"

// Market represents a Polymarket prediction market as tracked by the sync
// pipeline. Array-valued fields (Outcomes, OutcomePrices, ClobTokenIDs, Tags)
// are stored in their canonical JSON encoding, e.g. `["Yes","No"]`, regardless
// of how the upstream payload delivered them.
type Market struct {
	ID            string    `json:"id"`
	Question      string    `json:"question"`
	Slug          string    `json:"slug"`
	EventSlug     string    `json:"event_slug"`
	ConditionID   string    `json:"condition_id"`
	Volume24hr    float64   `json:"volume_24hr"`
	VolumeTotal   float64   `json:"volume_total"`
	Active        bool      `json:"active"`
	Closed        bool      `json:"closed"`
	Outcomes      string    `json:"outcomes"`       // canonical JSON array of strings
	OutcomePrices string    `json:"outcome_prices"` // canonical JSON array of strings
	ClobTokenIDs  string    `json:"clob_token_ids"` // canonical JSON array of strings
	Tags          string    `json:"tags"`           // canonical JSON array of strings
	Category      *string   `json:"category,omitempty"`
	Subcategory   *string   `json:"subcategory,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// FirstTokenID returns the first CLOB token ID from the canonical JSON array,
// or "" when the market carries none. Price-history fetches key off this.
func (m Market) FirstTokenID() string {
	ids := DecodeStringArray(m.ClobTokenIDs)
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

package polymarket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyfolio/syncd/internal/domain"
)

func TestToDomainMarketCanonicalizesArrayFields(t *testing.T) {
	// outcomes pre-serialized, clobTokenIds native array, tags bare scalar,
	// outcomePrices missing: all four upstream shapes at once.
	payload := `{
		"id": "512329",
		"question": "Will it happen?",
		"slug": "will-it-happen",
		"conditionId": "0xabc",
		"active": "true",
		"closed": false,
		"volume24hr": "12345.67",
		"volume": 99999.5,
		"outcomes": "[\"Yes\",\"No\"]",
		"clobTokenIds": ["111", "222"],
		"tags": "Politics",
		"createdAt": "2025-02-01T10:00:00Z",
		"updatedAt": "2025-08-30T12:00:00Z"
	}`

	var m APIMarket
	require.NoError(t, json.Unmarshal([]byte(payload), &m))

	dm := m.ToDomainMarket()
	assert.Equal(t, "512329", dm.ID)
	assert.True(t, dm.Active)
	assert.False(t, dm.Closed)
	assert.Equal(t, 12345.67, dm.Volume24hr)
	assert.Equal(t, 99999.5, dm.VolumeTotal)
	assert.Equal(t, `["Yes","No"]`, dm.Outcomes)
	assert.Equal(t, `["111","222"]`, dm.ClobTokenIDs)
	assert.Equal(t, `["Politics"]`, dm.Tags)
	assert.Equal(t, `[]`, dm.OutcomePrices)
	assert.Equal(t, "111", dm.FirstTokenID())

	require.NotNil(t, dm.Category)
	assert.Equal(t, "Politics", *dm.Category)
	assert.Nil(t, dm.Subcategory)

	assert.Equal(t, time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC), dm.CreatedAt)
}

func TestToDomainMarketEventSlugFallback(t *testing.T) {
	payload := `{"id":"1","events":[{"slug":"election-2028"}],"tags":null}`
	var m APIMarket
	require.NoError(t, json.Unmarshal([]byte(payload), &m))

	dm := m.ToDomainMarket()
	assert.Equal(t, "election-2028", dm.EventSlug)
	assert.Nil(t, dm.Category)
}

func TestHolderConversionRejectsBadAddress(t *testing.T) {
	now := time.Now().UTC()
	good := apiHolder{ProxyWallet: "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", Amount: 10, Value: 5, Outcome: "Yes"}
	bad := apiHolder{ProxyWallet: "nonsense", Amount: 10, Value: 5}

	h, ok := good.toDomain("m1", 1, now)
	require.True(t, ok)
	assert.Equal(t, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", h.Address)
	assert.Equal(t, 1, h.Rank)
	require.NotNil(t, h.Outcome)
	assert.Equal(t, "Yes", *h.Outcome)

	_, ok = bad.toDomain("m1", 2, now)
	assert.False(t, ok)
}

func TestTradeConversionDerivesDeterministicID(t *testing.T) {
	tr := apiTrade{
		TransactionHash: "0xdeadbeef",
		OutcomeIndex:    1,
		Side:            "BUY",
		Price:           0.42,
		Timestamp:       1756300000,
	}

	a := tr.toDomain("m1")
	b := tr.toDomain("m1")
	assert.Equal(t, a.ID, b.ID, "same fill must always derive the same id")
	assert.Equal(t, domain.ActivityID("0xdeadbeef", 1), a.ID)
	assert.Equal(t, time.Unix(1756300000, 0).UTC(), a.Timestamp)
}

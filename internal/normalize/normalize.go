// Package normalize converts heterogeneous provider payloads into canonical
// record shapes and encodings. Upstream payloads are inconsistent about
// whether list-typed fields arrive as native arrays, pre-serialized JSON
// strings, or bare scalars; everything funnels through here before touching
// the store.
package normalize

import (
	"encoding/json"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/polyfolio/syncd/internal/domain"
)

// emptyArray is the canonical encoding for an absent list value.
const emptyArray = "[]"

// StringArray canonicalizes an array-valued field from a raw JSON value:
//
//   - a parsed sequence is re-encoded canonically;
//   - a string that itself parses as valid JSON is already canonical and
//     passes through unchanged (re-serializing would double-encode it);
//   - a bare scalar becomes a single-element sequence;
//   - null or missing becomes the empty sequence.
func StringArray(raw json.RawMessage) string {
	if len(raw) == 0 {
		return emptyArray
	}

	var arr []any
	if err := json.Unmarshal(raw, &arr); err == nil {
		return encodeAsStrings(arr)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		// A string payload that holds valid JSON is a pre-serialized array
		// (or scalar) sent by the upstream; pass arrays through untouched.
		var inner []any
		if json.Unmarshal([]byte(s), &inner) == nil {
			return s
		}
		return encodeAsStrings([]any{s})
	}

	var scalar any
	if err := json.Unmarshal(raw, &scalar); err == nil {
		if scalar == nil {
			return emptyArray
		}
		return encodeAsStrings([]any{scalar})
	}

	return emptyArray
}

// encodeAsStrings renders every element as its string form and marshals the
// result, so `[1,2]` and `["1","2"]` end up identical in the store.
func encodeAsStrings(values []any) string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		switch t := v.(type) {
		case string:
			out = append(out, t)
		default:
			b, err := json.Marshal(t)
			if err != nil {
				continue
			}
			out = append(out, string(b))
		}
	}
	encoded, err := json.Marshal(out)
	if err != nil {
		return emptyArray
	}
	return string(encoded)
}

// Bars sorts a series by timestamp, drops duplicate timestamps (latest
// occurrence wins, matching upsert semantics), and repairs bars whose range
// does not cover open/close. Providers occasionally emit crossed intraday
// bars; widening low/high keeps the series gap-free.
func Bars(bars []domain.Bar) []domain.Bar {
	if len(bars) == 0 {
		return bars
	}

	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})

	out := bars[:0]
	for _, b := range bars {
		if b.Low > b.Open {
			b.Low = b.Open
		}
		if b.Low > b.Close {
			b.Low = b.Close
		}
		if b.High < b.Open {
			b.High = b.Open
		}
		if b.High < b.Close {
			b.High = b.Close
		}
		if b.Volume < 0 {
			b.Volume = 0
		}

		if n := len(out); n > 0 && out[n-1].Timestamp.Equal(b.Timestamp) {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}

// HolderAddress validates and checksums a wallet address. Non-hex input is
// rejected so malformed upstream rows never reach the store.
func HolderAddress(addr string) (string, bool) {
	if !common.IsHexAddress(addr) {
		return "", false
	}
	return common.HexToAddress(addr).Hex(), true
}

// Category derives the nullable category/subcategory pair from a market's
// tag list: first tag is the category, second the subcategory.
func Category(tags []string) (category, subcategory *string) {
	if len(tags) > 0 && tags[0] != "" {
		category = &tags[0]
	}
	if len(tags) > 1 && tags[1] != "" {
		subcategory = &tags[1]
	}
	return category, subcategory
}

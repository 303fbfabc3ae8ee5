package domain

import "encoding/json"

// DecodeStringArray parses a canonical JSON string-array column back into a
// slice. Invalid or empty input yields nil.
func DecodeStringArray(encoded string) []string {
	if encoded == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(encoded), &out); err != nil {
		return nil
	}
	return out
}

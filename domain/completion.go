package domain

import (
	"bytes"
	"encoding/json"
	"strings"
)

// ParseCompletion folds the tolerated truthy encodings of a completion flag
// (true, 1, "yes", "true", "1" and their negatives) into a single bool.
func ParseCompletion(raw json.RawMessage) (bool, error) {
	raw = bytes.TrimSpace(raw)
	invalid := NewFieldError("completed", "completed must be a boolean")
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return false, invalid
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		switch n.String() {
		case "1":
			return true, nil
		case "0":
			return false, nil
		}
		return false, invalid
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "yes", "true", "1":
			return true, nil
		case "no", "false", "0":
			return false, nil
		}
	}
	return false, invalid
}

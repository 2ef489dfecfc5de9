package capture

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"calorie_tracker/internal/domain"
)

// MaxCaloriesPerCapture rejects estimates no single photo can plausibly carry
const MaxCaloriesPerCapture = 100000

// ParseCalories turns the estimator's raw value into a calorie count.
// Accepted: a JSON number >= 0 (fraction dropped) or a string of digits
// (surrounding whitespace ignored). Everything else is a ValidationError.
func ParseCalories(raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, invalid(raw)
	}

	var value int64
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, invalid(raw)
		}
		s = strings.TrimSpace(s)
		if s == "" || strings.TrimLeft(s, "0123456789") != "" {
			return 0, invalid(raw)
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, invalid(raw)
		}
		value = n
	default:
		// null decodes into a nil pointer rather than an error
		var f *float64
		if err := json.Unmarshal(raw, &f); err != nil || f == nil {
			return 0, invalid(raw)
		}
		if math.IsNaN(*f) || *f < 0 || *f > MaxCaloriesPerCapture {
			return 0, invalid(raw)
		}
		value = int64(*f)
	}

	if value > MaxCaloriesPerCapture {
		return 0, invalid(raw)
	}
	return value, nil
}

// maxQuotedBytes bounds how much of a rejected value is echoed back
const maxQuotedBytes = 64

func invalid(raw json.RawMessage) error {
	if len(raw) > maxQuotedBytes {
		return domain.NewValidationError("invalid calorie value: %s...", string(raw[:maxQuotedBytes]))
	}
	return domain.NewValidationError("invalid calorie value: %s", string(raw))
}

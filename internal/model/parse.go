package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the canonical delivery date format.
const DateLayout = "2006-01-02"

// dateLayouts are tried in order. Month-first wins over day-first for
// ambiguous values such as 03/04/2024.
var dateLayouts = []string{
	DateLayout,
	"01/02/2006",
	"2006/01/02",
	"02/01/2006",
	"1/2/2006",
}

// ParseDate parses a delivery date in any of the formats the report
// sources use. Timestamps are truncated to their date part.
func ParseDate(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		y, m, d := x.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	case string:
		s := strings.TrimSpace(x)
		if len(s) > 10 && s[4] == '-' && (s[10] == 'T' || s[10] == ' ') {
			s = s[:10]
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("%w: unrecognized date %q", ErrInvalidValue, x)
	default:
		return time.Time{}, fmt.Errorf("%w: date of type %T", ErrInvalidValue, v)
	}
}

// NormalizeDate returns the date in DateLayout, or the input unchanged
// when it cannot be parsed.
func NormalizeDate(s string) string {
	t, err := ParseDate(s)
	if err != nil {
		return s
	}
	return t.Format(DateLayout)
}

// ParseHour parses an hour-ending value such as "01:00", "1", 1 or 1.0.
func ParseHour(v any) (int, error) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if i := strings.IndexByte(s, ':'); i >= 0 {
			s = s[:i]
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("%w: hour %q", ErrInvalidValue, v)
		}
		return n, nil
	}
	return ParseInt(v)
}

// ParseInt parses an integer from a string or JSON number.
func ParseInt(v any) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int32:
		return int(x), nil
	case int64:
		return int(x), nil
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("%w: non-integer %v", ErrInvalidValue, x)
		}
		return int(x), nil
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidValue, x.String())
		}
		return int(n), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, fmt.Errorf("%w: integer %q", ErrInvalidValue, x)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: integer of type %T", ErrInvalidValue, v)
	}
}

// ParseNumber parses a float from a string or JSON number.
func ParseNumber(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidValue, x.String())
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(x), ",", ""), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: number %q", ErrInvalidValue, x)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: number of type %T", ErrInvalidValue, v)
	}
}

// ParseText renders a scalar as a trimmed string.
func ParseText(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case json.Number:
		return x.String(), nil
	case bool:
		return strconv.FormatBool(x), nil
	default:
		return "", fmt.Errorf("%w: text of type %T", ErrInvalidValue, v)
	}
}

package normalize

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// SerialThreshold separates spreadsheet serial dates (after 1968) from
	// small numbers that merely look numeric.
	SerialThreshold = 25000
	// serialUnixEpoch is the serial of 1970-01-01 counted from the
	// 1899-12-30 anchor.
	serialUnixEpoch = 25569
	secondsPerDay   = 86400
)

var (
	currencyMarks = regexp.MustCompile(`(?i)php|₱|\$|,|\s|\x{00A0}`)
	dateLayouts   = []string{
		"2006-01-02",
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006/01/02",
		"01/02/2006",
		"1/2/2006",
		"01/02/06",
		"1/2/06",
		"01-02-2006",
		"01-02-06",
		"January 2, 2006",
		"January 2 2006",
		"Jan 2, 2006",
		"Jan 2 2006",
		"2-Jan-06",
		"02-Jan-06",
		"2-Jan-2006",
		"02-Jan-2006",
		"2 January 2006",
		"2 Jan 2006",
	}
)

// CoerceNumber parses v as a number, tolerating currency symbols, thousands
// separators, a trailing percent sign and accounting-style parentheses.
// Blank and non-numeric input yields nil.
func CoerceNumber(v any) *float64 {
	switch x := v.(type) {
	case nil:
		return nil
	case float64:
		return finite(x)
	case float32:
		return finite(float64(x))
	case int:
		return ptr(float64(x))
	case int64:
		return ptr(float64(x))
	case int32:
		return ptr(float64(x))
	case json.Number:
		return CoerceNumber(x.String())
	case decimal.Decimal:
		f, _ := x.Float64()
		return finite(f)
	case string:
		return parseNumber(x)
	default:
		return nil
	}
}

func parseNumber(raw string) *float64 {
	s := strings.TrimSpace(raw)
	if s == "" || s == "-" {
		return nil
	}
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = currencyMarks.ReplaceAllString(s, "")
	s = strings.TrimSuffix(s, "%")
	if s == "" || s == "-" {
		return nil
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	if negative {
		d = d.Neg()
	}
	f, _ := d.Float64()
	return finite(f)
}

// CoerceText stringifies v and trims it; blank yields nil.
func CoerceText(v any) *string {
	var s string
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		s = x
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		s = strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		s = strconv.Itoa(x)
	case int64:
		s = strconv.FormatInt(x, 10)
	case bool:
		s = strconv.FormatBool(x)
	case json.Number:
		s = x.String()
	case time.Time:
		s = x.UTC().Format("2006-01-02")
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return nil
		}
		s = string(b)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// CoerceDate converts v to Unix seconds. Falsy input yields nil; strings are
// tried as calendar dates (UTC) first; numbers, numeric strings included, above
// SerialThreshold are spreadsheet serials anchored at 1899-12-30. Anything
// else yields nil.
func CoerceDate(v any) *int64 {
	switch x := v.(type) {
	case nil:
		return nil
	case bool:
		return nil
	case time.Time:
		if x.IsZero() {
			return nil
		}
		u := x.Unix()
		return &u
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil
		}
		for _, layout := range dateLayouts {
			if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
				u := t.Unix()
				return &u
			}
		}
		if f := parseNumber(s); f != nil {
			return SerialToUnix(*f)
		}
		return nil
	default:
		if f := CoerceNumber(v); f != nil {
			return SerialToUnix(*f)
		}
		return nil
	}
}

// SerialToUnix converts a spreadsheet serial day number. Values at or below
// SerialThreshold are not treated as dates.
func SerialToUnix(serial float64) *int64 {
	if serial <= SerialThreshold || math.IsNaN(serial) || math.IsInf(serial, 0) {
		return nil
	}
	u := int64(math.Round((serial - serialUnixEpoch) * secondsPerDay))
	return &u
}

func finite(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func ptr[T any](v T) *T {
	return &v
}

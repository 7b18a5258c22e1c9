package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// ISOLayout is the date format written to the store.
const ISOLayout = "2006-01-02T15:04:05.000Z"

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

// ToNumber coerces numbers, numeric strings and booleans. Blank strings and
// non-finite results report false.
func ToNumber(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case Number:
		if !x.Valid {
			return 0, false
		}
		f = x.Value
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ParseDate accepts time values, ISO-like strings and epoch milliseconds.
func ParseDate(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, !x.IsZero()
	case *time.Time:
		if x == nil {
			return time.Time{}, false
		}
		return *x, !x.IsZero()
	case Date:
		return x.Time, x.Valid
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	case float64, int, int64, json.Number:
		ms, ok := ToNumber(x)
		if !ok || ms <= 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(ms)).UTC(), true
	}
	return time.Time{}, false
}

// ToDate returns the ISO-8601 form of a date value.
func ToDate(v any) (string, bool) {
	t, ok := ParseDate(v)
	if !ok {
		return "", false
	}
	return t.UTC().Format(ISOLayout), true
}

// ToChoices reads a multi-choice value: a slice, a {results:[...]} wrapper,
// or a ";#" / ";" delimited string.
func ToChoices(v any) []string {
	var out []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	switch x := v.(type) {
	case []string:
		for _, s := range x {
			add(s)
		}
	case Choices:
		for _, s := range x {
			add(s)
		}
	case []any:
		for _, item := range x {
			switch s := item.(type) {
			case string:
				add(s)
			case float64:
				add(strconv.FormatFloat(s, 'f', -1, 64))
			}
		}
	case map[string]any:
		if results, ok := x["results"]; ok {
			return ToChoices(results)
		}
	case string:
		sep := ";"
		if strings.Contains(x, ";#") {
			sep = ";#"
		}
		for _, s := range strings.Split(x, sep) {
			add(s)
		}
	}
	return out
}

// ToText reads a text value. Numbers and booleans are formatted; nil and
// structured values report false.
func ToText(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	case bool:
		return strconv.FormatBool(x), true
	}
	return "", false
}

// ToBool reads booleans, "true"/"yes"/"1" strings and non-zero numbers.
func ToBool(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "yes", "1":
			return true, true
		case "false", "no", "0":
			return false, true
		}
		return false, false
	}
	if f, ok := ToNumber(v); ok {
		return f != 0, true
	}
	return false, false
}

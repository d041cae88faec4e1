package schema

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/iota-uz/projtrack/pkg/store"
)

// Encode converts v into the value the dialect expects for the column.
func (c Column) Encode(v any, d store.Dialect) any {
	if v == nil {
		return nil
	}
	switch c.Kind {
	case Bool:
		b := store.AsBool(v)
		if d == store.SQLite {
			if b {
				return int64(1)
			}
			return int64(0)
		}
		return b
	case Integer:
		switch x := v.(type) {
		case time.Time:
			return x.Unix()
		case float64:
			return int64(math.Round(x))
		case string:
			if n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64); err == nil {
				return n
			}
			if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
				return int64(math.Round(f))
			}
			return nil
		}
		return store.AsInt64(v)
	case Real:
		if s, ok := v.(string); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil
			}
			return f
		}
		return store.AsFloat64(v)
	case JSON:
		raw := encodeJSON(v)
		if raw == nil {
			return nil
		}
		if d == store.Postgres {
			return json.RawMessage(raw)
		}
		return string(raw)
	default:
		return store.AsString(v)
	}
}

// Canonical normalizes a stored value so rows read from different dialects
// compare equal.
func (c Column) Canonical(v any) any {
	if v == nil {
		return nil
	}
	switch c.Kind {
	case Bool:
		return store.AsBool(v)
	case Integer:
		if t, ok := v.(time.Time); ok {
			return t.Unix()
		}
		return store.AsInt64(v)
	case Real:
		return store.AsFloat64(v)
	case JSON:
		raw := encodeJSON(v)
		if raw == nil {
			return nil
		}
		var out any
		if err := json.Unmarshal(raw, &out); err != nil {
			return string(raw)
		}
		return out
	default:
		return store.AsString(v)
	}
}

// encodeJSON keeps valid JSON text as is and marshals everything else.
func encodeJSON(v any) []byte {
	switch x := v.(type) {
	case json.RawMessage:
		return x
	case []byte:
		if json.Valid(x) {
			return x
		}
		v = string(x)
	case string:
		if json.Valid([]byte(x)) {
			return []byte(x)
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}

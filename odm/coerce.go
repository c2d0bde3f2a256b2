package odm

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// coerce converts a value read back from a store to the Go type of its
// key. Backends decode numbers and times differently (JSON numbers as
// float64, BSON integers as int32, timestamps as RFC 3339 strings), so the
// document layer normalises them here. Values that cannot be converted are
// returned unchanged.
func coerce(t KeyType, v any) any {
	if v == nil {
		return nil
	}
	switch t {
	case Int:
		switch n := v.(type) {
		case int:
			return int64(n)
		case int32:
			return int64(n)
		case int64:
			return n
		case float64:
			if n == math.Trunc(n) {
				return int64(n)
			}
		case json.Number:
			if i, err := n.Int64(); err == nil {
				return i
			}
		case string:
			if i, err := strconv.ParseInt(n, 10, 64); err == nil {
				return i
			}
		}
	case Float:
		switch n := v.(type) {
		case float64:
			return n
		case float32:
			return float64(n)
		case int:
			return float64(n)
		case int32:
			return float64(n)
		case int64:
			return float64(n)
		case json.Number:
			if f, err := n.Float64(); err == nil {
				return f
			}
		}
	case Time:
		switch tv := v.(type) {
		case time.Time:
			return tv
		case string:
			if parsed, err := time.Parse(time.RFC3339Nano, tv); err == nil {
				return parsed
			}
		case interface{ Time() time.Time }:
			return tv.Time()
		}
	case Bool:
		switch b := v.(type) {
		case bool:
			return b
		case int64:
			return b != 0
		case float64:
			return b != 0
		}
	case String, ID:
		if s, ok := v.(string); ok {
			return s
		}
	}
	return v
}

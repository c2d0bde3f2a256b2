package memory

import (
	"cmp"
	"fmt"
	"time"

	"github.com/mickamy/docmap/odm"
	"github.com/mickamy/docmap/scope"
)

func matches(r odm.Record, conds []scope.Condition) bool {
	for _, c := range conds {
		v := r[c.Field]
		switch c.Op {
		case scope.OpEq:
			if !equal(v, c.Value) {
				return false
			}
		case scope.OpIn:
			found := false
			for _, want := range c.Values {
				if equal(v, want) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func equal(a, b any) bool {
	return compare(a, b) == 0 && rank(a) == rank(b)
}

// rank orders values of different kinds: nil, bool, number, string, time.
func rank(v any) int {
	switch normalize(v).(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	case time.Time:
		return 4
	default:
		return 5
	}
}

func compare(a, b any) int {
	if c := cmp.Compare(rank(a), rank(b)); c != 0 {
		return c
	}
	na, nb := normalize(a), normalize(b)
	switch x := na.(type) {
	case nil:
		return 0
	case bool:
		y := nb.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case float64:
		return cmp.Compare(x, nb.(float64))
	case string:
		return cmp.Compare(x, nb.(string))
	case time.Time:
		return x.Compare(nb.(time.Time))
	default:
		return cmp.Compare(fmt.Sprint(na), fmt.Sprint(nb))
	}
}

// normalize maps every numeric type to float64 so 1, int64(1) and 1.0
// compare equal.
func normalize(v any) any {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint:
		return float64(x)
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case float32:
		return float64(x)
	case *string:
		if x == nil {
			return nil
		}
		return *x
	default:
		return v
	}
}

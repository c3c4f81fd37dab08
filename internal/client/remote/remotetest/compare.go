package remotetest

import (
	"github.com/iudanet/worldkeeper/internal/models"
)

// Compare orders two JSON scalar values. ok is false for mixed or unsupported types.
func Compare(a, b any) (int, bool) {
	switch av := a.(type) {
	case float64:
		bv, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		}
		return 0, true
	case int:
		return Compare(float64(av), b)
	case int64:
		return Compare(float64(av), b)
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		}
		return 0, true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		if av == bv {
			return 0, true
		}
		if !av {
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// Matches reports whether entity satisfies every filter.
func Matches(entity models.Entity, filters []models.Filter) bool {
	for _, f := range filters {
		c, ok := Compare(entity[f.Field], f.Value)
		var pass bool
		switch f.Op {
		case models.OpEqual:
			pass = ok && c == 0
		case models.OpNotEqual:
			pass = !ok || c != 0
		case models.OpLess:
			pass = ok && c < 0
		case models.OpLessOrEqual:
			pass = ok && c <= 0
		case models.OpGreater:
			pass = ok && c > 0
		case models.OpGreaterOrEqual:
			pass = ok && c >= 0
		}
		if !pass {
			return false
		}
	}
	return true
}

package metrics

import (
	"github.com/shopspring/decimal"
)

// ToNumber coerces a runtime value to float64. The second return is false
// for nil, strings, booleans, and anything else non-numeric.
func ToNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case decimal.Decimal:
		f, _ := n.Float64()
		return f, true
	default:
		return 0, false
	}
}

// IsNull reports whether a value counts as absent. count(attr) skips these.
func IsNull(v interface{}) bool {
	return v == nil
}

// Divide performs division through decimal arithmetic. Division by zero
// returns (nil, false): the caller propagates undefined rather than an
// error.
func Divide(num, den float64) (interface{}, bool) {
	if den == 0 {
		return nil, false
	}
	d := decimal.NewFromFloat(num).DivRound(decimal.NewFromFloat(den), 12)
	f, _ := d.Float64()
	return f, true
}

// Truthy interprets a value as a boolean. Non-boolean values are false;
// predicates over mismatched types never pass.
func Truthy(v interface{}) bool {
	b, ok := v.(bool)
	return ok && b
}

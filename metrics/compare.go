package metrics

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// CompareOp identifies a comparison operator.
type CompareOp uint8

const (
	OpEQ CompareOp = iota
	OpNE
	OpLT
	OpLTE
	OpGT
	OpGTE
)

// String returns the string representation of CompareOp
func (op CompareOp) String() string {
	switch op {
	case OpEQ:
		return "="
	case OpNE:
		return "!="
	case OpLT:
		return "<"
	case OpLTE:
		return "<="
	case OpGT:
		return ">"
	case OpGTE:
		return ">="
	default:
		return "?"
	}
}

// Compare evaluates a comparison between two runtime values. Numeric
// values compare numerically across int/float kinds; strings and booleans
// compare within their own type. Mismatched or null operands yield false
// for every operator, including !=.
func Compare(op CompareOp, a, b interface{}) bool {
	if a == nil || b == nil {
		return false
	}

	if an, ok := ToNumber(a); ok {
		bn, ok := ToNumber(b)
		if !ok {
			return false
		}
		return compareOrdered(op, an, bn)
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return false
		}
		return compareOrdered(op, av, bv)
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return false
		}
		switch op {
		case OpEQ:
			return av == bv
		case OpNE:
			return av != bv
		}
		return false
	}

	return false
}

func compareOrdered[T float64 | string](op CompareOp, a, b T) bool {
	switch op {
	case OpEQ:
		return a == b
	case OpNE:
		return a != b
	case OpLT:
		return a < b
	case OpLTE:
		return a <= b
	case OpGT:
		return a > b
	case OpGTE:
		return a >= b
	}
	return false
}

// EncodeKey builds the canonical string encoding of a composite key. The
// same encoding backs hash-join lookups and group-by keys so that a value
// groups identically wherever it appears. Numeric values normalize through
// decimal so 1 and 1.0 encode the same.
func EncodeKey(values []interface{}) string {
	var sb strings.Builder
	for i, v := range values {
		if i > 0 {
			sb.WriteByte('|')
		}
		encodeValue(&sb, v)
	}
	return sb.String()
}

func encodeValue(sb *strings.Builder, v interface{}) {
	if v == nil {
		sb.WriteString("\x00nil")
		return
	}
	if n, ok := ToNumber(v); ok {
		sb.WriteString("n:")
		sb.WriteString(decimal.NewFromFloat(n).String())
		return
	}
	switch val := v.(type) {
	case string:
		sb.WriteString("s:")
		sb.WriteString(val)
	case bool:
		sb.WriteString("b:")
		sb.WriteString(strconv.FormatBool(val))
	default:
		sb.WriteString("x:")
		sb.WriteString(formatFallback(val))
	}
}

func formatFallback(v interface{}) string {
	type stringer interface{ String() string }
	if s, ok := v.(stringer); ok {
		return s.String()
	}
	return "?"
}

// Package metrics holds the value model shared by every layer of the
// engine: data types, numeric coercion, comparison semantics, and the
// canonical string encoding used for join and group keys.
package metrics

// DataType classifies the result of an expression or the content of a
// column.
type DataType uint8

const (
	TypeUnknown DataType = iota
	TypeNumber
	TypeDecimal
	TypeString
	TypeBoolean
)

// String returns the string representation of DataType
func (t DataType) String() string {
	switch t {
	case TypeNumber:
		return "number"
	case TypeDecimal:
		return "decimal"
	case TypeString:
		return "string"
	case TypeBoolean:
		return "boolean"
	default:
		return "unknown"
	}
}

// TypeOf infers the DataType of a runtime value.
func TypeOf(v interface{}) DataType {
	switch v.(type) {
	case float64, float32, int, int32, int64:
		return TypeNumber
	case string:
		return TypeString
	case bool:
		return TypeBoolean
	default:
		return TypeUnknown
	}
}

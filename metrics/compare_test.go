package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		op   CompareOp
		a, b interface{}
		want bool
	}{
		{"eq numbers", OpEQ, 1.0, 1.0, true},
		{"eq int float", OpEQ, 1, 1.0, true},
		{"ne numbers", OpNE, 1.0, 2.0, true},
		{"lt", OpLT, 1.0, 2.0, true},
		{"lte equal", OpLTE, 2.0, 2.0, true},
		{"gt", OpGT, 3.0, 2.0, true},
		{"gte", OpGTE, 2.0, 3.0, false},
		{"strings", OpLT, "a", "b", true},
		{"string eq", OpEQ, "x", "x", true},
		{"bool eq", OpEQ, true, true, true},
		{"bool ordering invalid", OpLT, true, false, false},
		{"type mismatch yields false", OpEQ, "1", 1.0, false},
		{"type mismatch ne also false", OpNE, "1", 1.0, false},
		{"nil left", OpEQ, nil, 1.0, false},
		{"nil right", OpNE, 1.0, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compare(tt.op, tt.a, tt.b))
		})
	}
}

func TestEncodeKey(t *testing.T) {
	// Numeric values normalize: 1 and 1.0 must group together.
	assert.Equal(t,
		EncodeKey([]interface{}{1}),
		EncodeKey([]interface{}{1.0}))

	// Different kinds never collide.
	assert.NotEqual(t,
		EncodeKey([]interface{}{"1"}),
		EncodeKey([]interface{}{1.0}))

	// Nil is distinguishable from the empty string.
	assert.NotEqual(t,
		EncodeKey([]interface{}{nil}),
		EncodeKey([]interface{}{""}))

	// Composite keys are positional.
	assert.NotEqual(t,
		EncodeKey([]interface{}{"a", "b"}),
		EncodeKey([]interface{}{"ab"}))
}

func TestDivide(t *testing.T) {
	v, ok := Divide(150, 3)
	assert.True(t, ok)
	assert.InDelta(t, 50.0, v.(float64), 1e-9)

	_, ok = Divide(1, 0)
	assert.False(t, ok)

	// Decimal arithmetic avoids float drift on common ratios.
	v, ok = Divide(0.3, 0.1)
	assert.True(t, ok)
	assert.InDelta(t, 3.0, v.(float64), 1e-9)
}

func TestToNumber(t *testing.T) {
	for _, v := range []interface{}{1, int32(1), int64(1), float32(1), 1.0} {
		n, ok := ToNumber(v)
		assert.True(t, ok)
		assert.Equal(t, 1.0, n)
	}

	for _, v := range []interface{}{"1", true, nil} {
		_, ok := ToNumber(v)
		assert.False(t, ok)
	}
}

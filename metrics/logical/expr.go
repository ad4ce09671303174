// Package logical defines the typed intermediate representation: resolved
// expressions, plan nodes, and the syntax-to-logical transformation.
// Expression and plan variants are closed sets; the evaluator, printer,
// SQL emitter, and dependency analyzer each switch exhaustively over them
// and must grow together with any new variant.
package logical

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jnyinglis/metricforge/metrics"
)

// Expr is a resolved, typed expression node.
type Expr interface {
	DataType() metrics.DataType
	String() string
	logicalExpr()
}

// SourceKind says which side of the star schema an attribute comes from.
type SourceKind uint8

const (
	SourceFact SourceKind = iota
	SourceDimension
)

// String returns the string representation of SourceKind
func (s SourceKind) String() string {
	if s == SourceDimension {
		return "dimension"
	}
	return "fact"
}

// AggregateOp identifies an aggregate function.
type AggregateOp uint8

const (
	AggSum AggregateOp = iota
	AggAvg
	AggMin
	AggMax
	AggCount
	AggCountDistinct
)

// String returns the string representation of AggregateOp
func (op AggregateOp) String() string {
	switch op {
	case AggSum:
		return "sum"
	case AggAvg:
		return "avg"
	case AggMin:
		return "min"
	case AggMax:
		return "max"
	case AggCount:
		return "count"
	case AggCountDistinct:
		return "count_distinct"
	default:
		return "unknown"
	}
}

// AggregateOpFromName maps a DSL function name to its AggregateOp.
func AggregateOpFromName(fn string) (AggregateOp, bool) {
	switch fn {
	case "sum":
		return AggSum, true
	case "avg":
		return AggAvg, true
	case "min":
		return AggMin, true
	case "max":
		return AggMax, true
	case "count":
		return AggCount, true
	case "count_distinct":
		return AggCountDistinct, true
	}
	return AggSum, false
}

// Constant is a literal value.
type Constant struct {
	Value interface{}
	Type  metrics.DataType
}

func (Constant) logicalExpr() {}

func (c Constant) DataType() metrics.DataType { return c.Type }

func (c Constant) String() string {
	switch v := c.Value.(type) {
	case string:
		return `"` + v + `"`
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// NewConstant builds a constant, inferring the data type from the value
// kind when not given.
func NewConstant(value interface{}) Constant {
	return Constant{Value: value, Type: metrics.TypeOf(value)}
}

// AttributeRef is a resolved reference to a physical column. The
// AttributeID "*" is the distinguished count(*) wildcard.
type AttributeRef struct {
	AttributeID string
	Table       string
	Column      string
	Source      SourceKind
	Type        metrics.DataType
}

func (AttributeRef) logicalExpr() {}

func (a AttributeRef) DataType() metrics.DataType { return a.Type }

func (a AttributeRef) String() string { return a.AttributeID }

// IsWildcard reports whether this is the count(*) wildcard reference.
func (a AttributeRef) IsWildcard() bool { return a.AttributeID == "*" }

// WildcardRef returns the distinguished count(*) attribute reference.
func WildcardRef() AttributeRef {
	return AttributeRef{AttributeID: "*", Table: "*", Column: "*", Source: SourceFact, Type: metrics.TypeUnknown}
}

// MetricRef is a resolved reference to a named metric.
type MetricRef struct {
	Name     string
	BaseFact string
	Type     metrics.DataType
}

func (MetricRef) logicalExpr() {}

func (m MetricRef) DataType() metrics.DataType { return m.Type }

func (m MetricRef) String() string { return m.Name }

// Aggregate applies an aggregate function to an input expression.
// Aggregates never nest; NewAggregate enforces this.
type Aggregate struct {
	Op       AggregateOp
	Input    Expr
	Distinct bool
	Type     metrics.DataType
}

func (Aggregate) logicalExpr() {}

func (a Aggregate) DataType() metrics.DataType { return a.Type }

func (a Aggregate) String() string {
	return a.Op.String() + "(" + a.Input.String() + ")"
}

// NewAggregate builds an aggregate, rejecting inputs that already
// contain an aggregate.
func NewAggregate(op AggregateOp, input Expr, distinct bool) (Aggregate, error) {
	if ContainsAggregate(input) {
		return Aggregate{}, fmt.Errorf("nested aggregate in %s(%s)", op, input)
	}
	return Aggregate{Op: op, Input: input, Distinct: distinct, Type: metrics.TypeNumber}, nil
}

// ScalarOp is binary arithmetic. Op is one of + - * / % ^.
type ScalarOp struct {
	Op    string
	Left  Expr
	Right Expr
	Type  metrics.DataType
}

func (ScalarOp) logicalExpr() {}

func (s ScalarOp) DataType() metrics.DataType { return s.Type }

func (s ScalarOp) String() string {
	return "(" + s.Left.String() + " " + s.Op + " " + s.Right.String() + ")"
}

// NewScalarOp builds an arithmetic node. Division results carry the
// decimal type; every other operator yields number.
func NewScalarOp(op string, left, right Expr) ScalarOp {
	t := metrics.TypeNumber
	if op == "/" {
		t = metrics.TypeDecimal
	}
	return ScalarOp{Op: op, Left: left, Right: right, Type: t}
}

// ScalarFunction is a named scalar function application. Placeholder
// functions produced by non-strict resolution also use this shape.
type ScalarFunction struct {
	Fn   string
	Args []Expr
	Type metrics.DataType
}

func (ScalarFunction) logicalExpr() {}

func (s ScalarFunction) DataType() metrics.DataType { return s.Type }

func (s ScalarFunction) String() string {
	parts := make([]string, len(s.Args))
	for i, arg := range s.Args {
		parts[i] = arg.String()
	}
	return s.Fn + "(" + strings.Join(parts, ", ") + ")"
}

// Conditional is CASE WHEN cond THEN a ELSE b END.
type Conditional struct {
	When Expr
	Then Expr
	Else Expr
	Type metrics.DataType
}

func (Conditional) logicalExpr() {}

func (c Conditional) DataType() metrics.DataType { return c.Type }

func (c Conditional) String() string {
	return "if(" + c.When.String() + ", " + c.Then.String() + ", " + c.Else.String() + ")"
}

// Coalesce yields the first non-null argument.
type Coalesce struct {
	Args []Expr
	Type metrics.DataType
}

func (Coalesce) logicalExpr() {}

func (c Coalesce) DataType() metrics.DataType { return c.Type }

func (c Coalesce) String() string {
	parts := make([]string, len(c.Args))
	for i, arg := range c.Args {
		parts[i] = arg.String()
	}
	return "coalesce(" + strings.Join(parts, ", ") + ")"
}

// Comparison is a boolean-valued comparison between two expressions.
type Comparison struct {
	Op    metrics.CompareOp
	Left  Expr
	Right Expr
}

func (Comparison) logicalExpr() {}

func (Comparison) DataType() metrics.DataType { return metrics.TypeBoolean }

func (c Comparison) String() string {
	return c.Left.String() + " " + c.Op.String() + " " + c.Right.String()
}

// LogicalKind identifies a boolean connective.
type LogicalKind uint8

const (
	BoolAnd LogicalKind = iota
	BoolOr
	BoolNot
)

// String returns the string representation of LogicalKind
func (k LogicalKind) String() string {
	switch k {
	case BoolAnd:
		return "and"
	case BoolOr:
		return "or"
	case BoolNot:
		return "not"
	default:
		return "?"
	}
}

// LogicalOp combines boolean expressions. not takes exactly one operand;
// and/or take at least two. NewLogicalOp enforces arity.
type LogicalOp struct {
	Op       LogicalKind
	Operands []Expr
}

func (LogicalOp) logicalExpr() {}

func (LogicalOp) DataType() metrics.DataType { return metrics.TypeBoolean }

func (l LogicalOp) String() string {
	if l.Op == BoolNot && len(l.Operands) == 1 {
		return "not (" + l.Operands[0].String() + ")"
	}
	parts := make([]string, len(l.Operands))
	for i, operand := range l.Operands {
		parts[i] = operand.String()
	}
	return "(" + strings.Join(parts, " "+l.Op.String()+" ") + ")"
}

// NewLogicalOp builds a boolean connective with arity checking.
func NewLogicalOp(op LogicalKind, operands ...Expr) (LogicalOp, error) {
	if op == BoolNot && len(operands) != 1 {
		return LogicalOp{}, fmt.Errorf("not takes exactly one operand, got %d", len(operands))
	}
	if op != BoolNot && len(operands) < 2 {
		return LogicalOp{}, fmt.Errorf("%s takes at least two operands, got %d", op, len(operands))
	}
	return LogicalOp{Op: op, Operands: operands}, nil
}

// InList tests membership of an expression in a literal list.
type InList struct {
	Input   Expr
	List    []Expr
	Negated bool
}

func (InList) logicalExpr() {}

func (InList) DataType() metrics.DataType { return metrics.TypeBoolean }

func (i InList) String() string {
	parts := make([]string, len(i.List))
	for j, item := range i.List {
		parts[j] = item.String()
	}
	op := "in"
	if i.Negated {
		op = "not in"
	}
	return i.Input.String() + " " + op + " (" + strings.Join(parts, ", ") + ")"
}

// Between tests whether an expression falls in an inclusive range.
type Between struct {
	Input Expr
	Low   Expr
	High  Expr
}

func (Between) logicalExpr() {}

func (Between) DataType() metrics.DataType { return metrics.TypeBoolean }

func (b Between) String() string {
	return b.Input.String() + " between " + b.Low.String() + " and " + b.High.String()
}

// IsNull tests an expression for null.
type IsNull struct {
	Input   Expr
	Negated bool
}

func (IsNull) logicalExpr() {}

func (IsNull) DataType() metrics.DataType { return metrics.TypeBoolean }

func (i IsNull) String() string {
	if i.Negated {
		return i.Input.String() + " is not null"
	}
	return i.Input.String() + " is null"
}

// IsPredicate reports whether an expression is boolean-valued.
func IsPredicate(expr Expr) bool {
	return expr != nil && expr.DataType() == metrics.TypeBoolean
}

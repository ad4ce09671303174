// Package ast defines the syntax tree produced by the DSL parser:
// metric declarations, query blocks, arithmetic expressions, and the
// boolean predicate trees used by where/having lines.
package ast

import (
	"strconv"
	"strings"

	"github.com/jnyinglis/metricforge/metrics"
)

// Expr is a node in a metric expression tree.
type Expr interface {
	String() string
	exprNode()
}

// Literal is a numeric constant.
type Literal struct {
	Value float64
}

func (Literal) exprNode() {}

func (l Literal) String() string {
	return strconv.FormatFloat(l.Value, 'f', -1, 64)
}

// AttrRef references an identifier by name. Bare identifiers parse as
// AttrRef; resolution decides whether the name is an attribute or a
// metric. The name "*" stands for the count(*) wildcard.
type AttrRef struct {
	Name string
}

func (AttrRef) exprNode() {}

func (a AttrRef) String() string { return a.Name }

// MetricRef references a named metric. The parser only emits these where
// the grammar forces a metric (the first argument of last_year);
// everywhere else metric references surface as AttrRef and are
// disambiguated during resolution.
type MetricRef struct {
	Name string
}

func (MetricRef) exprNode() {}

func (m MetricRef) String() string { return m.Name }

// BinaryOp is an arithmetic operation over two subexpressions.
// Op is one of + - * /.
type BinaryOp struct {
	Op    string
	Left  Expr
	Right Expr
}

func (BinaryOp) exprNode() {}

func (b BinaryOp) String() string {
	return "(" + b.Left.String() + " " + b.Op + " " + b.Right.String() + ")"
}

// Call is a function invocation, aggregate or otherwise.
type Call struct {
	Fn   string
	Args []Expr
}

func (Call) exprNode() {}

func (c Call) String() string {
	var sb strings.Builder
	sb.WriteString(c.Fn)
	sb.WriteByte('(')
	for i, arg := range c.Args {
		if i > 0 {
			sb.WriteString(", ")
			// last_year's anchor argument reads back through its
			// dedicated ", by" syntax.
			if c.Fn == "last_year" {
				sb.WriteString("by ")
			}
		}
		sb.WriteString(arg.String())
	}
	sb.WriteByte(')')
	return sb.String()
}

// MetricDecl declares a named metric anchored on an optional base fact.
type MetricDecl struct {
	Name     string
	BaseFact string
	Expr     Expr
}

func (d MetricDecl) String() string {
	var sb strings.Builder
	sb.WriteString("metric ")
	sb.WriteString(d.Name)
	if d.BaseFact != "" {
		sb.WriteString(" on ")
		sb.WriteString(d.BaseFact)
	}
	sb.WriteString(" = ")
	sb.WriteString(d.Expr.String())
	return sb.String()
}

// QueryDecl is a named query block.
type QueryDecl struct {
	Name       string
	Dimensions []string
	Metrics    []string
	Where      Predicate
	Having     Predicate
}

func (q QueryDecl) String() string {
	var sb strings.Builder
	sb.WriteString("query ")
	sb.WriteString(q.Name)
	sb.WriteString(" {\n")
	if len(q.Dimensions) > 0 {
		sb.WriteString("  dimensions: ")
		sb.WriteString(strings.Join(q.Dimensions, ", "))
		sb.WriteByte('\n')
	}
	if len(q.Metrics) > 0 {
		sb.WriteString("  metrics: ")
		sb.WriteString(strings.Join(q.Metrics, ", "))
		sb.WriteByte('\n')
	}
	if q.Where != nil {
		sb.WriteString("  where: ")
		sb.WriteString(q.Where.String())
		sb.WriteByte('\n')
	}
	if q.Having != nil {
		sb.WriteString("  having: ")
		sb.WriteString(q.Having.String())
		sb.WriteByte('\n')
	}
	sb.WriteString("}")
	return sb.String()
}

// File is a parsed DSL file.
type File struct {
	Metrics []MetricDecl
	Queries []QueryDecl
}

func (f File) String() string {
	var parts []string
	for _, m := range f.Metrics {
		parts = append(parts, m.String())
	}
	for _, q := range f.Queries {
		parts = append(parts, q.String())
	}
	return strings.Join(parts, "\n\n")
}

// Predicate is a node in a where/having condition tree.
type Predicate interface {
	String() string
	predNode()
}

// Comparison is a leaf predicate comparing a named value to a literal.
// In where lines the name resolves to an attribute, or to a metric when
// no attribute has that name; in having lines it resolves to a metric
// and the literal is numeric.
type Comparison struct {
	Name  string
	Op    metrics.CompareOp
	Value interface{}
}

func (Comparison) predNode() {}

func (c Comparison) String() string {
	op := c.Op.String()
	if c.Op == metrics.OpEQ {
		op = "=="
	}
	return c.Name + " " + op + " " + formatLiteral(c.Value)
}

// LogicalKind identifies a boolean connective.
type LogicalKind uint8

const (
	LogicalAnd LogicalKind = iota
	LogicalOr
	LogicalNot
)

// String returns the string representation of LogicalKind
func (k LogicalKind) String() string {
	switch k {
	case LogicalAnd:
		return "and"
	case LogicalOr:
		return "or"
	case LogicalNot:
		return "not"
	default:
		return "?"
	}
}

// Logical combines predicates with and/or/not.
type Logical struct {
	Op       LogicalKind
	Operands []Predicate
}

func (Logical) predNode() {}

func (l Logical) String() string {
	if l.Op == LogicalNot && len(l.Operands) == 1 {
		return "not (" + l.Operands[0].String() + ")"
	}
	var parts []string
	for _, operand := range l.Operands {
		parts = append(parts, operand.String())
	}
	return "(" + strings.Join(parts, " "+l.Op.String()+" ") + ")"
}

func formatLiteral(v interface{}) string {
	switch val := v.(type) {
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case string:
		if strings.Contains(val, `"`) {
			return "'" + val + "'"
		}
		return `"` + val + `"`
	case bool:
		return strconv.FormatBool(val)
	default:
		return "?"
	}
}

package explain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jnyinglis/metricforge/metrics"
	"github.com/jnyinglis/metricforge/metrics/logical"
)

// SQL renders a plan as a single SELECT statement: dimension columns and
// metric expressions, the join chain walked from the DAG, pre-aggregate
// predicates as WHERE, the grain as GROUP BY, and post-aggregate
// predicates as HAVING. Derived metrics inline their dependencies.
func SQL(plan *logical.QueryPlan) string {
	w := &sqlWriter{plan: plan}
	return w.render()
}

type sqlWriter struct {
	plan *logical.QueryPlan
}

func (w *sqlWriter) render() string {
	var sb strings.Builder

	agg, postFilters := w.splitPlan()

	sb.WriteString("SELECT ")
	var selects []string
	for _, dim := range w.plan.OutputGrain.Dimensions {
		selects = append(selects, w.attr(dim))
	}
	for _, name := range w.plan.OutputMetrics {
		if mp := w.plan.Metrics[name]; mp != nil {
			selects = append(selects, w.expr(mp.Expr)+` AS "`+name+`"`)
		}
	}
	if len(selects) == 0 {
		selects = append(selects, "*")
	}
	sb.WriteString(strings.Join(selects, ", "))

	var whereParts []string
	if agg != nil {
		w.writeFrom(&sb, agg.Input, &whereParts)
	}

	if len(whereParts) > 0 {
		sb.WriteString("\nWHERE ")
		sb.WriteString(strings.Join(whereParts, " AND "))
	}

	if len(w.plan.OutputGrain.Dimensions) > 0 {
		var groups []string
		for _, dim := range w.plan.OutputGrain.Dimensions {
			groups = append(groups, w.attr(dim))
		}
		sb.WriteString("\nGROUP BY ")
		sb.WriteString(strings.Join(groups, ", "))
	}

	if len(postFilters) > 0 {
		var havings []string
		for _, pred := range postFilters {
			havings = append(havings, w.expr(pred))
		}
		sb.WriteString("\nHAVING ")
		sb.WriteString(strings.Join(havings, " AND "))
	}

	return sb.String()
}

func (w *sqlWriter) splitPlan() (*logical.AggregateNode, []logical.Expr) {
	var postFilters []logical.Expr
	id := w.plan.RootID
	for {
		node, ok := w.plan.Node(id)
		if !ok {
			return nil, postFilters
		}
		switch n := node.(type) {
		case logical.Filter:
			postFilters = append(postFilters, n.Predicate)
			id = n.Input
		case logical.AggregateNode:
			return &n, postFilters
		default:
			return nil, postFilters
		}
	}
}

// writeFrom walks the join chain bottom-up, emitting FROM and JOIN
// clauses and collecting pre-aggregate predicates.
func (w *sqlWriter) writeFrom(sb *strings.Builder, id string, whereParts *[]string) {
	node, ok := w.plan.Node(id)
	if !ok {
		return
	}

	switch n := node.(type) {
	case logical.FactScan:
		sb.WriteString("\nFROM ")
		sb.WriteString(n.Table)
		for _, pred := range n.InlineFilters {
			*whereParts = append(*whereParts, w.expr(pred))
		}

	case logical.DimensionScan:
		for _, pred := range n.InlineFilters {
			*whereParts = append(*whereParts, w.expr(pred))
		}

	case logical.Join:
		w.writeFrom(sb, n.LeftInput, whereParts)
		rightTable := w.tableOf(n.RightInput)
		w.writeFrom(sb, n.RightInput, whereParts)
		joinWord := strings.ToUpper(n.Type.String()) + " JOIN"
		if n.Type == logical.JoinInner {
			joinWord = "JOIN"
		}
		var conds []string
		leftTable := w.leftTableOf(n.LeftInput)
		for _, k := range n.Keys {
			conds = append(conds, fmt.Sprintf("%s.%s = %s.%s", leftTable, k.LeftColumn, rightTable, k.RightColumn))
		}
		fmt.Fprintf(sb, "\n%s %s ON %s", joinWord, rightTable, strings.Join(conds, " AND "))

	case logical.Filter:
		w.writeFrom(sb, n.Input, whereParts)
		*whereParts = append(*whereParts, w.expr(n.Predicate))
	}
}

func (w *sqlWriter) tableOf(id string) string {
	node, ok := w.plan.Node(id)
	if !ok {
		return "?"
	}
	switch n := node.(type) {
	case logical.FactScan:
		return n.Table
	case logical.DimensionScan:
		return n.Table
	}
	return "?"
}

func (w *sqlWriter) leftTableOf(id string) string {
	node, ok := w.plan.Node(id)
	if !ok {
		return "?"
	}
	switch n := node.(type) {
	case logical.FactScan:
		return n.Table
	case logical.Join:
		return w.leftTableOf(n.LeftInput)
	case logical.Filter:
		return w.leftTableOf(n.Input)
	}
	return "?"
}

// attr renders an attribute as table.column.
func (w *sqlWriter) attr(ref logical.AttributeRef) string {
	return ref.Table + "." + ref.Column
}

// expr is the expression-to-SQL visitor: strings quote with standard
// single-quote doubling, != becomes <>, conditionals render as CASE
// WHEN, and metric references inline their definitions.
func (w *sqlWriter) expr(e logical.Expr) string {
	switch n := e.(type) {
	case logical.Constant:
		return sqlLiteral(n.Value)

	case logical.AttributeRef:
		if n.IsWildcard() {
			return "*"
		}
		return w.attr(n)

	case logical.MetricRef:
		if mp := w.plan.Metrics[n.Name]; mp != nil {
			return "(" + w.expr(mp.Expr) + ")"
		}
		return `"` + n.Name + `"`

	case logical.Aggregate:
		fn := strings.ToUpper(n.Op.String())
		arg := w.expr(n.Input)
		if n.Op == logical.AggCountDistinct {
			return "COUNT(DISTINCT " + arg + ")"
		}
		if n.Distinct {
			return fn + "(DISTINCT " + arg + ")"
		}
		return fn + "(" + arg + ")"

	case logical.ScalarOp:
		return "(" + w.expr(n.Left) + " " + n.Op + " " + w.expr(n.Right) + ")"

	case logical.ScalarFunction:
		args := make([]string, len(n.Args))
		for i, arg := range n.Args {
			args[i] = w.expr(arg)
		}
		return n.Fn + "(" + strings.Join(args, ", ") + ")"

	case logical.Conditional:
		return "CASE WHEN " + w.expr(n.When) + " THEN " + w.expr(n.Then) + " ELSE " + w.expr(n.Else) + " END"

	case logical.Coalesce:
		args := make([]string, len(n.Args))
		for i, arg := range n.Args {
			args[i] = w.expr(arg)
		}
		return "COALESCE(" + strings.Join(args, ", ") + ")"

	case logical.Comparison:
		op := n.Op.String()
		if n.Op == metrics.OpNE {
			op = "<>"
		}
		return w.expr(n.Left) + " " + op + " " + w.expr(n.Right)

	case logical.LogicalOp:
		if n.Op == logical.BoolNot && len(n.Operands) == 1 {
			return "NOT (" + w.expr(n.Operands[0]) + ")"
		}
		parts := make([]string, len(n.Operands))
		for i, operand := range n.Operands {
			parts[i] = w.expr(operand)
		}
		return "(" + strings.Join(parts, " "+strings.ToUpper(n.Op.String())+" ") + ")"

	case logical.InList:
		items := make([]string, len(n.List))
		for i, item := range n.List {
			items[i] = w.expr(item)
		}
		op := "IN"
		if n.Negated {
			op = "NOT IN"
		}
		return w.expr(n.Input) + " " + op + " (" + strings.Join(items, ", ") + ")"

	case logical.Between:
		return w.expr(n.Input) + " BETWEEN " + w.expr(n.Low) + " AND " + w.expr(n.High)

	case logical.IsNull:
		if n.Negated {
			return w.expr(n.Input) + " IS NOT NULL"
		}
		return w.expr(n.Input) + " IS NULL"
	}

	return "?"
}

func sqlLiteral(v interface{}) string {
	switch val := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'"
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	case nil:
		return "NULL"
	default:
		return fmt.Sprintf("%v", v)
	}
}

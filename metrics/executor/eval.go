package executor

import (
	"math"

	"github.com/jnyinglis/metricforge/metrics"
	"github.com/jnyinglis/metricforge/metrics/logical"
)

// evalScalar evaluates an expression against a single joined row.
// Aggregates and metric references have no value in row context and
// yield undefined; evaluation never aborts the query.
func (ex *execution) evalScalar(expr logical.Expr, row Row) interface{} {
	switch e := expr.(type) {
	case logical.Constant:
		return e.Value

	case logical.AttributeRef:
		if e.IsWildcard() {
			return nil
		}
		return row[qualify(e.Table, e.Column)]

	case logical.MetricRef, logical.Aggregate:
		return nil

	case logical.ScalarOp:
		return applyArith(e.Op, ex.evalScalar(e.Left, row), ex.evalScalar(e.Right, row))

	case logical.ScalarFunction:
		// Placeholders from non-strict resolution evaluate to undefined.
		return nil

	case logical.Conditional:
		if metrics.Truthy(ex.evalScalar(e.When, row)) {
			return ex.evalScalar(e.Then, row)
		}
		return ex.evalScalar(e.Else, row)

	case logical.Coalesce:
		for _, arg := range e.Args {
			if v := ex.evalScalar(arg, row); !metrics.IsNull(v) {
				return v
			}
		}
		return nil

	case logical.Comparison:
		return metrics.Compare(e.Op, ex.evalScalar(e.Left, row), ex.evalScalar(e.Right, row))

	case logical.LogicalOp:
		return ex.evalBool(e, func(operand logical.Expr) bool {
			return metrics.Truthy(ex.evalScalar(operand, row))
		})

	case logical.InList:
		v := ex.evalScalar(e.Input, row)
		found := false
		for _, item := range e.List {
			if metrics.Compare(metrics.OpEQ, v, ex.evalScalar(item, row)) {
				found = true
				break
			}
		}
		return found != e.Negated

	case logical.Between:
		v := ex.evalScalar(e.Input, row)
		return metrics.Compare(metrics.OpGTE, v, ex.evalScalar(e.Low, row)) &&
			metrics.Compare(metrics.OpLTE, v, ex.evalScalar(e.High, row))

	case logical.IsNull:
		return metrics.IsNull(ex.evalScalar(e.Input, row)) != e.Negated
	}

	return nil
}

func (ex *execution) evalBool(op logical.LogicalOp, truth func(logical.Expr) bool) bool {
	switch op.Op {
	case logical.BoolAnd:
		for _, operand := range op.Operands {
			if !truth(operand) {
				return false
			}
		}
		return true
	case logical.BoolOr:
		for _, operand := range op.Operands {
			if truth(operand) {
				return true
			}
		}
		return false
	case logical.BoolNot:
		return len(op.Operands) == 1 && !truth(op.Operands[0])
	}
	return false
}

// applyArith performs binary arithmetic with undefined propagation.
// Division by zero yields undefined, never infinity.
func applyArith(op string, a, b interface{}) interface{} {
	an, okA := metrics.ToNumber(a)
	bn, okB := metrics.ToNumber(b)
	if !okA || !okB {
		return nil
	}
	switch op {
	case "+":
		return an + bn
	case "-":
		return an - bn
	case "*":
		return an * bn
	case "/":
		v, ok := metrics.Divide(an, bn)
		if !ok {
			return nil
		}
		return v
	case "%":
		if bn == 0 {
			return nil
		}
		return math.Mod(an, bn)
	case "^":
		return math.Pow(an, bn)
	}
	return nil
}

// groupContext evaluates metric expressions against one group's rows.
// The memo maps metric name to computed value so derived metrics reuse
// their dependencies; it lives for exactly one group.
type groupContext struct {
	ex         *execution
	rows       []Row
	memo       map[string]interface{}
	inProgress map[string]bool
}

func newGroupContext(ex *execution, rows []Row) *groupContext {
	return &groupContext{
		ex:         ex,
		rows:       rows,
		memo:       make(map[string]interface{}),
		inProgress: make(map[string]bool),
	}
}

// evalMetric returns the cached value for a metric or evaluates and
// caches it. Re-entry during evaluation (possible only through metrics
// outside the scheduled query list) yields undefined instead of
// recursing forever.
func (g *groupContext) evalMetric(name string) interface{} {
	if v, ok := g.memo[name]; ok {
		return v
	}
	if g.inProgress[name] {
		return nil
	}
	mp, ok := g.ex.plan.Metrics[name]
	if !ok {
		return nil
	}
	g.inProgress[name] = true
	v := g.eval(mp.Expr)
	delete(g.inProgress, name)
	g.memo[name] = v
	return v
}

// eval evaluates an expression in group context: aggregates fold the
// group's rows, metric references go through the memo, and bare
// attributes take their value from the group's first row.
func (g *groupContext) eval(expr logical.Expr) interface{} {
	switch e := expr.(type) {
	case logical.Constant:
		return e.Value

	case logical.AttributeRef:
		if e.IsWildcard() || len(g.rows) == 0 {
			return nil
		}
		return g.rows[0][qualify(e.Table, e.Column)]

	case logical.MetricRef:
		return g.evalMetric(e.Name)

	case logical.Aggregate:
		return g.ex.computeAggregate(e, g.rows)

	case logical.ScalarOp:
		return applyArith(e.Op, g.eval(e.Left), g.eval(e.Right))

	case logical.ScalarFunction:
		return nil

	case logical.Conditional:
		if metrics.Truthy(g.eval(e.When)) {
			return g.eval(e.Then)
		}
		return g.eval(e.Else)

	case logical.Coalesce:
		for _, arg := range e.Args {
			if v := g.eval(arg); !metrics.IsNull(v) {
				return v
			}
		}
		return nil

	case logical.Comparison:
		return metrics.Compare(e.Op, g.eval(e.Left), g.eval(e.Right))

	case logical.LogicalOp:
		return g.ex.evalBool(e, func(operand logical.Expr) bool {
			return metrics.Truthy(g.eval(operand))
		})

	case logical.InList:
		v := g.eval(e.Input)
		found := false
		for _, item := range e.List {
			if metrics.Compare(metrics.OpEQ, v, g.eval(item)) {
				found = true
				break
			}
		}
		return found != e.Negated

	case logical.Between:
		v := g.eval(e.Input)
		return metrics.Compare(metrics.OpGTE, v, g.eval(e.Low)) &&
			metrics.Compare(metrics.OpLTE, v, g.eval(e.High))

	case logical.IsNull:
		return metrics.IsNull(g.eval(e.Input)) != e.Negated
	}

	return nil
}

// evalResult evaluates a post-aggregate predicate against a result row,
// where attribute and metric references read the row's output columns.
func (ex *execution) evalResult(expr logical.Expr, row Row) interface{} {
	switch e := expr.(type) {
	case logical.Constant:
		return e.Value

	case logical.AttributeRef:
		return row[e.AttributeID]

	case logical.MetricRef:
		return row[e.Name]

	case logical.Aggregate, logical.ScalarFunction:
		return nil

	case logical.ScalarOp:
		return applyArith(e.Op, ex.evalResult(e.Left, row), ex.evalResult(e.Right, row))

	case logical.Conditional:
		if metrics.Truthy(ex.evalResult(e.When, row)) {
			return ex.evalResult(e.Then, row)
		}
		return ex.evalResult(e.Else, row)

	case logical.Coalesce:
		for _, arg := range e.Args {
			if v := ex.evalResult(arg, row); !metrics.IsNull(v) {
				return v
			}
		}
		return nil

	case logical.Comparison:
		return metrics.Compare(e.Op, ex.evalResult(e.Left, row), ex.evalResult(e.Right, row))

	case logical.LogicalOp:
		return ex.evalBool(e, func(operand logical.Expr) bool {
			return metrics.Truthy(ex.evalResult(operand, row))
		})

	case logical.InList:
		v := ex.evalResult(e.Input, row)
		found := false
		for _, item := range e.List {
			if metrics.Compare(metrics.OpEQ, v, ex.evalResult(item, row)) {
				found = true
				break
			}
		}
		return found != e.Negated

	case logical.Between:
		v := ex.evalResult(e.Input, row)
		return metrics.Compare(metrics.OpGTE, v, ex.evalResult(e.Low, row)) &&
			metrics.Compare(metrics.OpLTE, v, ex.evalResult(e.High, row))

	case logical.IsNull:
		return metrics.IsNull(ex.evalResult(e.Input, row)) != e.Negated
	}

	return nil
}

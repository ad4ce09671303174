package parser

import (
	"fmt"

	"github.com/jnyinglis/metricforge/metrics/ast"
)

// ValidateMetricExpr checks an expression against known attribute and
// metric names without needing a full semantic model. It returns one
// error per unknown reference or malformed call.
func ValidateMetricExpr(expr ast.Expr, knownAttributes, knownMetrics map[string]bool) []error {
	var errs []error
	validateExpr(expr, knownAttributes, knownMetrics, false, &errs)
	return errs
}

func validateExpr(expr ast.Expr, attrs, mets map[string]bool, countArg bool, errs *[]error) {
	switch e := expr.(type) {
	case ast.Literal:

	case ast.AttrRef:
		if e.Name == "*" {
			if !countArg {
				*errs = append(*errs, fmt.Errorf("'*' is only valid as the sole argument to count"))
			}
			return
		}
		if !attrs[e.Name] && !mets[e.Name] {
			*errs = append(*errs, fmt.Errorf("Unknown attribute: %q", e.Name))
		}

	case ast.MetricRef:
		if !mets[e.Name] {
			*errs = append(*errs, fmt.Errorf("Unknown metric: %q", e.Name))
		}

	case ast.BinaryOp:
		validateExpr(e.Left, attrs, mets, false, errs)
		validateExpr(e.Right, attrs, mets, false, errs)

	case ast.Call:
		if !isAggregateFn(e.Fn) && e.Fn != "last_year" {
			*errs = append(*errs, fmt.Errorf("Unknown function: %q", e.Fn))
			return
		}
		for i, arg := range e.Args {
			validateExpr(arg, attrs, mets, e.Fn == "count" && i == 0, errs)
		}
	}
}

func isAggregateFn(fn string) bool {
	for _, name := range AggregateFunctions {
		if name == fn {
			return true
		}
	}
	return false
}

package logical

// Walk visits expr and every subexpression in depth-first order. The
// visit function returning false prunes the subtree.
func Walk(expr Expr, visit func(Expr) bool) {
	if expr == nil || !visit(expr) {
		return
	}
	switch e := expr.(type) {
	case Constant, AttributeRef, MetricRef:

	case Aggregate:
		Walk(e.Input, visit)
	case ScalarOp:
		Walk(e.Left, visit)
		Walk(e.Right, visit)
	case ScalarFunction:
		for _, arg := range e.Args {
			Walk(arg, visit)
		}
	case Conditional:
		Walk(e.When, visit)
		Walk(e.Then, visit)
		Walk(e.Else, visit)
	case Coalesce:
		for _, arg := range e.Args {
			Walk(arg, visit)
		}
	case Comparison:
		Walk(e.Left, visit)
		Walk(e.Right, visit)
	case LogicalOp:
		for _, operand := range e.Operands {
			Walk(operand, visit)
		}
	case InList:
		Walk(e.Input, visit)
		for _, item := range e.List {
			Walk(item, visit)
		}
	case Between:
		Walk(e.Input, visit)
		Walk(e.Low, visit)
		Walk(e.High, visit)
	case IsNull:
		Walk(e.Input, visit)
	}
}

// Dependencies returns the metric names an expression references, in
// first-appearance order without duplicates.
func Dependencies(expr Expr) []string {
	seen := make(map[string]bool)
	var deps []string
	Walk(expr, func(e Expr) bool {
		if ref, ok := e.(MetricRef); ok && !seen[ref.Name] {
			seen[ref.Name] = true
			deps = append(deps, ref.Name)
		}
		return true
	})
	return deps
}

// RequiredAttributes returns the attribute IDs an expression reads, in
// first-appearance order, excluding the count(*) wildcard.
func RequiredAttributes(expr Expr) []string {
	seen := make(map[string]bool)
	var attrs []string
	Walk(expr, func(e Expr) bool {
		if ref, ok := e.(AttributeRef); ok && !ref.IsWildcard() && !seen[ref.AttributeID] {
			seen[ref.AttributeID] = true
			attrs = append(attrs, ref.AttributeID)
		}
		return true
	})
	return attrs
}

// AttributeRefs returns every non-wildcard attribute reference in the
// expression, deduplicated by attribute ID.
func AttributeRefs(expr Expr) []AttributeRef {
	seen := make(map[string]bool)
	var refs []AttributeRef
	Walk(expr, func(e Expr) bool {
		if ref, ok := e.(AttributeRef); ok && !ref.IsWildcard() && !seen[ref.AttributeID] {
			seen[ref.AttributeID] = true
			refs = append(refs, ref)
		}
		return true
	})
	return refs
}

// ContainsAggregate reports whether the expression contains an Aggregate
// node at any depth.
func ContainsAggregate(expr Expr) bool {
	found := false
	Walk(expr, func(e Expr) bool {
		if _, ok := e.(Aggregate); ok {
			found = true
			return false
		}
		return true
	})
	return found
}

// ContainsMetricRef reports whether the expression references any metric.
func ContainsMetricRef(expr Expr) bool {
	found := false
	Walk(expr, func(e Expr) bool {
		if _, ok := e.(MetricRef); ok {
			found = true
			return false
		}
		return true
	})
	return found
}

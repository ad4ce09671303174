package planner

import (
	"github.com/jnyinglis/metricforge/metrics/ast"
	"github.com/jnyinglis/metricforge/metrics/logical"
	"github.com/jnyinglis/metricforge/metrics/model"
)

// resolvePredicate converts a parsed where/having condition tree into a
// logical predicate. In where position a leaf name resolves to an
// attribute first and falls back to a metric (making the predicate
// post-aggregate); in having position the name must be a metric.
func resolvePredicate(pred ast.Predicate, m *model.Model, having bool) (logical.Expr, error) {
	switch p := pred.(type) {
	case ast.Comparison:
		left, err := resolvePredicateName(p.Name, m, having)
		if err != nil {
			return nil, err
		}
		return logical.Comparison{Op: p.Op, Left: left, Right: logical.NewConstant(p.Value)}, nil

	case ast.Logical:
		operands := make([]logical.Expr, 0, len(p.Operands))
		for _, operand := range p.Operands {
			resolved, err := resolvePredicate(operand, m, having)
			if err != nil {
				return nil, err
			}
			operands = append(operands, resolved)
		}
		op := logical.BoolAnd
		switch p.Op {
		case ast.LogicalOr:
			op = logical.BoolOr
		case ast.LogicalNot:
			op = logical.BoolNot
		}
		return logical.NewLogicalOp(op, operands...)

	default:
		return nil, logical.ResolutionError{Kind: logical.UnsupportedSyntax, Name: "predicate"}
	}
}

func resolvePredicateName(name string, m *model.Model, having bool) (logical.Expr, error) {
	if having {
		def, ok := m.Metric(name)
		if !ok {
			return nil, logical.ResolutionError{Kind: logical.UnknownMetric, Name: name}
		}
		return logical.MetricRef{Name: def.Name, BaseFact: def.BaseFact}, nil
	}

	if attr, ok := m.Attribute(name); ok {
		source := logical.SourceDimension
		if m.IsFactTable(attr.Table) {
			source = logical.SourceFact
		}
		return logical.AttributeRef{
			AttributeID: attr.Name,
			Table:       attr.Table,
			Column:      attr.Column,
			Source:      source,
		}, nil
	}
	if def, ok := m.Metric(name); ok {
		return logical.MetricRef{Name: def.Name, BaseFact: def.BaseFact}, nil
	}
	return nil, logical.ResolutionError{Kind: logical.UnknownAttribute, Name: name}
}

// isPostAggregate reports whether a predicate references any metric or
// aggregate, which forces evaluation after grouping.
func isPostAggregate(pred logical.Expr) bool {
	post := false
	logical.Walk(pred, func(e logical.Expr) bool {
		switch e.(type) {
		case logical.MetricRef, logical.Aggregate:
			post = true
			return false
		}
		return true
	})
	return post
}

// predicateTables collects the physical tables a predicate reads, in
// first-appearance order. A single-table predicate is a pushdown
// candidate.
func predicateTables(pred logical.Expr) []string {
	seen := make(map[string]bool)
	var tables []string
	logical.Walk(pred, func(e logical.Expr) bool {
		if ref, ok := e.(logical.AttributeRef); ok && !ref.IsWildcard() && !seen[ref.Table] {
			seen[ref.Table] = true
			tables = append(tables, ref.Table)
		}
		return true
	})
	return tables
}

package logical

import (
	"fmt"

	"github.com/jnyinglis/metricforge/metrics"
	"github.com/jnyinglis/metricforge/metrics/ast"
	"github.com/jnyinglis/metricforge/metrics/model"
)

// ResolutionErrorKind classifies a name-resolution failure.
type ResolutionErrorKind uint8

const (
	UnknownAttribute ResolutionErrorKind = iota
	UnknownMetric
	UnknownFunction
	UnsupportedSyntax
)

// ResolutionError reports a failed resolution. Exactly one error is
// produced per unknown reference; no partial expression survives.
type ResolutionError struct {
	Kind ResolutionErrorKind
	Name string
}

// Error implements the error interface.
func (e ResolutionError) Error() string {
	switch e.Kind {
	case UnknownAttribute:
		return fmt.Sprintf("Unknown attribute: %q", e.Name)
	case UnknownMetric:
		return fmt.Sprintf("Unknown metric: %q", e.Name)
	case UnknownFunction:
		return fmt.Sprintf("Unknown function: %q", e.Name)
	case UnsupportedSyntax:
		return fmt.Sprintf("Unsupported syntax: %s", e.Name)
	default:
		return "resolution error"
	}
}

// ResolveOptions controls the syntax-to-logical transformation.
// StrictMode makes unsupported constructs fail instead of degrading to
// placeholder scalar functions.
type ResolveOptions struct {
	StrictMode bool
}

// Resolve converts a syntax expression to a typed logical expression in
// the context of a semantic model and an optional base fact.
func Resolve(expr ast.Expr, m *model.Model, baseFact string, opts ResolveOptions) (Expr, error) {
	r := &resolver{model: m, baseFact: baseFact, opts: opts}
	return r.resolve(expr)
}

type resolver struct {
	model    *model.Model
	baseFact string
	opts     ResolveOptions
}

func (r *resolver) resolve(expr ast.Expr) (Expr, error) {
	switch e := expr.(type) {
	case ast.Literal:
		return Constant{Value: e.Value, Type: metrics.TypeNumber}, nil

	case ast.AttrRef:
		if e.Name == "*" {
			return nil, ResolutionError{Kind: UnsupportedSyntax, Name: "'*' outside count()"}
		}
		return r.resolveName(e.Name)

	case ast.MetricRef:
		return r.resolveMetric(e.Name)

	case ast.BinaryOp:
		left, err := r.resolve(e.Left)
		if err != nil {
			return nil, err
		}
		right, err := r.resolve(e.Right)
		if err != nil {
			return nil, err
		}
		return NewScalarOp(e.Op, left, right), nil

	case ast.Call:
		return r.resolveCall(e)

	default:
		return nil, ResolutionError{Kind: UnsupportedSyntax, Name: fmt.Sprintf("%T", expr)}
	}
}

// resolveName disambiguates a bare identifier: attributes win, then
// metrics, then the lookup fails as an unknown attribute.
func (r *resolver) resolveName(name string) (Expr, error) {
	if attr, ok := r.model.Attribute(name); ok {
		return r.attributeRef(attr), nil
	}
	if _, ok := r.model.Metric(name); ok {
		return r.resolveMetric(name)
	}
	return nil, ResolutionError{Kind: UnknownAttribute, Name: name}
}

func (r *resolver) attributeRef(attr model.Attribute) AttributeRef {
	source := SourceDimension
	if r.model.IsFactTable(attr.Table) {
		source = SourceFact
	}
	return AttributeRef{
		AttributeID: attr.Name,
		Table:       attr.Table,
		Column:      attr.Column,
		Source:      source,
		Type:        metrics.TypeNumber,
	}
}

func (r *resolver) resolveMetric(name string) (Expr, error) {
	def, ok := r.model.Metric(name)
	if !ok {
		return nil, ResolutionError{Kind: UnknownMetric, Name: name}
	}
	return MetricRef{Name: def.Name, BaseFact: def.BaseFact, Type: metrics.TypeNumber}, nil
}

func (r *resolver) resolveCall(call ast.Call) (Expr, error) {
	if op, ok := AggregateOpFromName(call.Fn); ok {
		return r.resolveAggregate(op, call)
	}

	if call.Fn == "last_year" {
		return r.resolveLastYear(call)
	}

	return nil, ResolutionError{Kind: UnknownFunction, Name: call.Fn}
}

func (r *resolver) resolveAggregate(op AggregateOp, call ast.Call) (Expr, error) {
	if len(call.Args) == 0 {
		return nil, fmt.Errorf("%s requires an argument", call.Fn)
	}
	if len(call.Args) > 1 {
		return nil, fmt.Errorf("%s takes a single argument; extra arguments are reserved", call.Fn)
	}

	var input Expr
	if ref, ok := call.Args[0].(ast.AttrRef); ok && ref.Name == "*" {
		if op != AggCount {
			return nil, ResolutionError{Kind: UnsupportedSyntax, Name: "'*' outside count()"}
		}
		input = WildcardRef()
	} else {
		resolved, err := r.resolve(call.Args[0])
		if err != nil {
			return nil, err
		}
		input = resolved
	}

	return NewAggregate(op, input, op == AggCountDistinct)
}

// resolveLastYear handles the reserved special last_year(metric [, by
// attr]). Plan-level treatment as a Transform is deferred; the resolved
// form is a scalar function the executor evaluates to undefined.
func (r *resolver) resolveLastYear(call ast.Call) (Expr, error) {
	if len(call.Args) == 0 {
		return nil, fmt.Errorf("last_year requires a metric argument")
	}
	ref, ok := call.Args[0].(ast.MetricRef)
	if !ok {
		return nil, ResolutionError{Kind: UnsupportedSyntax, Name: "last_year requires a metric reference"}
	}

	if r.opts.StrictMode {
		return nil, ResolutionError{Kind: UnsupportedSyntax, Name: "last_year"}
	}

	args := make([]Expr, 0, len(call.Args))
	resolved, err := r.resolveMetric(ref.Name)
	if err != nil {
		return nil, err
	}
	args = append(args, resolved)

	for _, extra := range call.Args[1:] {
		arg, err := r.resolve(extra)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}

	return ScalarFunction{Fn: "last_year", Args: args, Type: metrics.TypeNumber}, nil
}

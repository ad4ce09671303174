package logical

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnyinglis/metricforge/metrics"
	"github.com/jnyinglis/metricforge/metrics/model"
	"github.com/jnyinglis/metricforge/metrics/parser"
)

func testModel(t *testing.T) *model.Model {
	t.Helper()

	sum, errs := parser.ParseMetricExpression("sum(amount)")
	require.Empty(t, errs)
	cnt, errs := parser.ParseMetricExpression("count(*)")
	require.Empty(t, errs)
	ratio, errs := parser.ParseMetricExpression("total_sales / order_count")
	require.Empty(t, errs)

	m, merrs := model.New(model.Input{
		Facts:      []model.Fact{{Name: "sales", Table: "sales"}},
		Dimensions: []model.Dimension{{Name: "regions", Table: "regions"}},
		Attributes: []model.Attribute{
			{Name: "amount", Table: "sales"},
			{Name: "region_name", Table: "regions", Column: "name"},
		},
		Joins: []model.JoinEdge{
			{Fact: "sales", Dimension: "regions", FactKey: "region_id", DimensionKey: "region_id"},
		},
		Metrics: []model.MetricDefinition{
			{Name: "total_sales", BaseFact: "sales", Expr: sum},
			{Name: "order_count", BaseFact: "sales", Expr: cnt},
			{Name: "avg_ticket", BaseFact: "sales", Expr: ratio},
		},
	})
	require.Empty(t, merrs)
	return m
}

func mustResolve(t *testing.T, m *model.Model, text string) Expr {
	t.Helper()
	syntax, errs := parser.ParseMetricExpression(text)
	require.Empty(t, errs)
	expr, err := Resolve(syntax, m, "sales", ResolveOptions{})
	require.NoError(t, err)
	return expr
}

func TestResolveLiteral(t *testing.T) {
	expr := mustResolve(t, testModel(t), "42")
	c, ok := expr.(Constant)
	require.True(t, ok)
	assert.Equal(t, 42.0, c.Value)
	assert.Equal(t, metrics.TypeNumber, c.DataType())
}

func TestResolveAttribute(t *testing.T) {
	m := testModel(t)

	expr := mustResolve(t, m, "amount")
	ref, ok := expr.(AttributeRef)
	require.True(t, ok)
	assert.Equal(t, "sales", ref.Table)
	assert.Equal(t, "amount", ref.Column)
	assert.Equal(t, SourceFact, ref.Source)

	expr = mustResolve(t, m, "region_name")
	ref, ok = expr.(AttributeRef)
	require.True(t, ok)
	assert.Equal(t, "regions", ref.Table)
	assert.Equal(t, "name", ref.Column)
	assert.Equal(t, SourceDimension, ref.Source)
}

func TestResolveMetricDisambiguation(t *testing.T) {
	// A bare identifier that is not an attribute resolves as a metric.
	expr := mustResolve(t, testModel(t), "total_sales")
	ref, ok := expr.(MetricRef)
	require.True(t, ok)
	assert.Equal(t, "total_sales", ref.Name)
	assert.Equal(t, "sales", ref.BaseFact)
}

func TestResolveUnknownAttribute(t *testing.T) {
	syntax, errs := parser.ParseMetricExpression("sum(ghost)")
	require.Empty(t, errs)

	_, err := Resolve(syntax, testModel(t), "sales", ResolveOptions{})
	require.Error(t, err)

	var rerr ResolutionError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, UnknownAttribute, rerr.Kind)
	assert.Contains(t, err.Error(), `Unknown attribute: "ghost"`)
}

func TestResolveUnknownFunction(t *testing.T) {
	syntax, errs := parser.ParseMetricExpression("median(amount)")
	require.Empty(t, errs)

	_, err := Resolve(syntax, testModel(t), "sales", ResolveOptions{})
	var rerr ResolutionError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, UnknownFunction, rerr.Kind)
}

func TestResolveAggregate(t *testing.T) {
	expr := mustResolve(t, testModel(t), "sum(amount)")
	agg, ok := expr.(Aggregate)
	require.True(t, ok)
	assert.Equal(t, AggSum, agg.Op)
	assert.False(t, agg.Distinct)
	assert.Equal(t, metrics.TypeNumber, agg.DataType())

	input, ok := agg.Input.(AttributeRef)
	require.True(t, ok)
	assert.Equal(t, "amount", input.AttributeID)
}

func TestResolveCountStar(t *testing.T) {
	expr := mustResolve(t, testModel(t), "count(*)")
	agg, ok := expr.(Aggregate)
	require.True(t, ok)
	assert.Equal(t, AggCount, agg.Op)

	ref, ok := agg.Input.(AttributeRef)
	require.True(t, ok)
	assert.True(t, ref.IsWildcard())
}

func TestResolveWildcardOutsideCount(t *testing.T) {
	syntax, errs := parser.ParseMetricExpression("sum(*)")
	require.Empty(t, errs)

	_, err := Resolve(syntax, testModel(t), "sales", ResolveOptions{})
	var rerr ResolutionError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, UnsupportedSyntax, rerr.Kind)
}

func TestResolveDivisionType(t *testing.T) {
	expr := mustResolve(t, testModel(t), "total_sales / order_count")
	op, ok := expr.(ScalarOp)
	require.True(t, ok)
	assert.Equal(t, metrics.TypeDecimal, op.DataType())

	expr = mustResolve(t, testModel(t), "amount + 1")
	op, ok = expr.(ScalarOp)
	require.True(t, ok)
	assert.Equal(t, metrics.TypeNumber, op.DataType())
}

func TestResolveCountDistinct(t *testing.T) {
	expr := mustResolve(t, testModel(t), "count_distinct(amount)")
	agg, ok := expr.(Aggregate)
	require.True(t, ok)
	assert.Equal(t, AggCountDistinct, agg.Op)
	assert.True(t, agg.Distinct)
}

func TestResolveLastYear(t *testing.T) {
	m := testModel(t)

	expr := mustResolve(t, m, "last_year(total_sales, by amount)")
	fn, ok := expr.(ScalarFunction)
	require.True(t, ok)
	assert.Equal(t, "last_year", fn.Fn)
	require.Len(t, fn.Args, 2)
	_, ok = fn.Args[0].(MetricRef)
	assert.True(t, ok)

	// Strict mode rejects the placeholder path.
	syntax, errs := parser.ParseMetricExpression("last_year(total_sales)")
	require.Empty(t, errs)
	_, err := Resolve(syntax, m, "sales", ResolveOptions{StrictMode: true})
	var rerr ResolutionError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, UnsupportedSyntax, rerr.Kind)
}

func TestNestedAggregateRejected(t *testing.T) {
	syntax, errs := parser.ParseMetricExpression("sum(sum(amount))")
	require.Empty(t, errs)

	_, err := Resolve(syntax, testModel(t), "sales", ResolveOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nested aggregate")
}

func TestWalkHelpers(t *testing.T) {
	m := testModel(t)

	expr := mustResolve(t, m, "total_sales / order_count + sum(amount)")
	assert.Equal(t, []string{"total_sales", "order_count"}, Dependencies(expr))
	assert.Equal(t, []string{"amount"}, RequiredAttributes(expr))
	assert.True(t, ContainsAggregate(expr))
	assert.True(t, ContainsMetricRef(expr))

	expr = mustResolve(t, m, "count(*)")
	assert.Empty(t, RequiredAttributes(expr))
	assert.False(t, ContainsMetricRef(expr))
}

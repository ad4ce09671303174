package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnyinglis/metricforge/metrics"
	"github.com/jnyinglis/metricforge/metrics/ast"
	"github.com/jnyinglis/metricforge/metrics/model"
	"github.com/jnyinglis/metricforge/metrics/parser"
	"github.com/jnyinglis/metricforge/metrics/planner"
)

func salesModel(t *testing.T) *model.Model {
	t.Helper()

	metricExprs := []struct{ name, text string }{
		{"total_revenue", "sum(amount)"},
		{"order_count", "count(*)"},
		{"avg_ticket", "total_revenue / order_count"},
		{"max_sale", "max(amount)"},
		{"avg_sale", "avg(amount)"},
		{"customer_count", "count_distinct(customer_id)"},
		{"broken_ratio", "total_revenue / zero"},
		{"zero", "sum(amount) - sum(amount)"},
	}

	input := model.Input{
		Facts:      []model.Fact{{Name: "sales", Table: "sales"}},
		Dimensions: []model.Dimension{{Name: "regions", Table: "regions"}},
		Attributes: []model.Attribute{
			{Name: "amount", Table: "sales"},
			{Name: "customer_id", Table: "sales"},
			{Name: "region_name", Table: "regions", Column: "name"},
		},
		Joins: []model.JoinEdge{
			{Fact: "sales", Dimension: "regions", FactKey: "region_id", DimensionKey: "region_id"},
		},
	}
	for _, def := range metricExprs {
		expr, errs := parser.ParseMetricExpression(def.text)
		require.Empty(t, errs)
		input.Metrics = append(input.Metrics, model.MetricDefinition{Name: def.name, BaseFact: "sales", Expr: expr})
	}

	m, errs := model.New(input)
	require.Empty(t, errs)
	return m
}

func salesTables() Tables {
	return Tables{
		"sales": {
			{"region_id": 1.0, "amount": 100.0, "customer_id": "c1"},
			{"region_id": 1.0, "amount": 50.0, "customer_id": "c2"},
			{"region_id": 2.0, "amount": 30.0, "customer_id": "c1"},
		},
		"regions": {
			{"region_id": 1.0, "name": "N"},
			{"region_id": 2.0, "name": "S"},
		},
	}
}

func TestEndToEndAggregation(t *testing.T) {
	result := RunQuery(planner.QuerySpec{
		Dimensions: []string{"region_name"},
		Metrics:    []string{"total_revenue"},
	}, salesTables(), salesModel(t), Options{})
	require.NoError(t, result.Err)

	assert.Equal(t, []string{"region_name", "total_revenue"}, result.Columns)
	require.Len(t, result.Rows, 2)

	// Group order follows first appearance in the input rows.
	assert.Equal(t, "N", result.Rows[0]["region_name"])
	assert.Equal(t, 150.0, result.Rows[0]["total_revenue"])
	assert.Equal(t, "S", result.Rows[1]["region_name"])
	assert.Equal(t, 30.0, result.Rows[1]["total_revenue"])
}

func TestPrePostFilters(t *testing.T) {
	// where keeps amounts 100 and 50 for N and drops S's 30; having
	// then keeps only N's sum of 150.
	result := RunQuery(planner.QuerySpec{
		Dimensions: []string{"region_name"},
		Metrics:    []string{"total_revenue"},
		Where:      ast.Comparison{Name: "amount", Op: metrics.OpGT, Value: 40.0},
		Having:     ast.Comparison{Name: "total_revenue", Op: metrics.OpGT, Value: 100.0},
	}, salesTables(), salesModel(t), Options{})
	require.NoError(t, result.Err)

	require.Len(t, result.Rows, 1)
	assert.Equal(t, "N", result.Rows[0]["region_name"])
	assert.Equal(t, 150.0, result.Rows[0]["total_revenue"])
}

func TestDerivedMetric(t *testing.T) {
	result := RunQuery(planner.QuerySpec{
		Dimensions: []string{"region_name"},
		Metrics:    []string{"total_revenue", "order_count", "avg_ticket"},
	}, salesTables(), salesModel(t), Options{})
	require.NoError(t, result.Err)

	require.Len(t, result.Rows, 2)
	n := result.Rows[0]
	assert.Equal(t, 150.0, n["total_revenue"])
	assert.Equal(t, 2.0, n["order_count"])
	assert.InDelta(t, 75.0, n["avg_ticket"].(float64), 1e-9)

	s := result.Rows[1]
	assert.InDelta(t, 30.0, s["avg_ticket"].(float64), 1e-9)
}

func TestEmptyDimensionsSingleRow(t *testing.T) {
	result := RunQuery(planner.QuerySpec{
		Metrics: []string{"total_revenue"},
	}, salesTables(), salesModel(t), Options{})
	require.NoError(t, result.Err)

	require.Len(t, result.Rows, 1)
	assert.Equal(t, 180.0, result.Rows[0]["total_revenue"])
	assert.Equal(t, []string{"total_revenue"}, result.Columns)
}

func TestEmptyRowsZeroResults(t *testing.T) {
	tables := Tables{"sales": {}, "regions": {}}
	result := RunQuery(planner.QuerySpec{
		Dimensions: []string{"region_name"},
		Metrics:    []string{"total_revenue"},
	}, tables, salesModel(t), Options{})
	require.NoError(t, result.Err)
	assert.Empty(t, result.Rows)
}

func TestCountStarCountsPostFilterRows(t *testing.T) {
	result := RunQuery(planner.QuerySpec{
		Dimensions: []string{"region_name"},
		Metrics:    []string{"order_count"},
		Where:      ast.Comparison{Name: "amount", Op: metrics.OpGT, Value: 40.0},
	}, salesTables(), salesModel(t), Options{})
	require.NoError(t, result.Err)

	require.Len(t, result.Rows, 1)
	assert.Equal(t, "N", result.Rows[0]["region_name"])
	assert.Equal(t, 2.0, result.Rows[0]["order_count"])
}

func TestCountDistinct(t *testing.T) {
	result := RunQuery(planner.QuerySpec{
		Metrics: []string{"customer_count"},
	}, salesTables(), salesModel(t), Options{})
	require.NoError(t, result.Err)

	require.Len(t, result.Rows, 1)
	assert.Equal(t, 2.0, result.Rows[0]["customer_count"])
}

func TestAvgOverNoNumericRowsUndefined(t *testing.T) {
	m := salesModel(t)
	tables := Tables{
		"sales": {
			{"region_id": 1.0, "amount": "n/a", "customer_id": "c1"},
		},
		"regions": {
			{"region_id": 1.0, "name": "N"},
		},
	}

	result := RunQuery(planner.QuerySpec{
		Dimensions: []string{"region_name"},
		Metrics:    []string{"avg_sale", "total_revenue"},
	}, tables, m, Options{})
	require.NoError(t, result.Err)

	// Aggregates over zero numeric inputs are undefined, surfaced as nil.
	require.Len(t, result.Rows, 1)
	assert.Nil(t, result.Rows[0]["avg_sale"])
	assert.Nil(t, result.Rows[0]["total_revenue"])
}

func TestDivisionByZeroUndefined(t *testing.T) {
	result := RunQuery(planner.QuerySpec{
		Dimensions: []string{"region_name"},
		Metrics:    []string{"broken_ratio"},
	}, salesTables(), salesModel(t), Options{})
	require.NoError(t, result.Err)

	// zero evaluates to 0 per group; the ratio is undefined, not
	// infinite, and does not abort the query.
	require.Len(t, result.Rows, 2)
	assert.Nil(t, result.Rows[0]["broken_ratio"])
	assert.Nil(t, result.Rows[1]["broken_ratio"])
}

func TestMissingMetricValueIsNil(t *testing.T) {
	m := salesModel(t)
	result := RunQuery(planner.QuerySpec{
		Dimensions: []string{"region_name"},
		Metrics:    []string{"max_sale"},
	}, Tables{
		"sales":   {{"region_id": 1.0, "amount": nil, "customer_id": "c1"}},
		"regions": {{"region_id": 1.0, "name": "N"}},
	}, m, Options{})
	require.NoError(t, result.Err)

	require.Len(t, result.Rows, 1)
	assert.Nil(t, result.Rows[0]["max_sale"])
}

func TestInnerJoinDropsUnmatchedRows(t *testing.T) {
	tables := salesTables()
	tables["sales"] = append(tables["sales"], Row{"region_id": 99.0, "amount": 1000.0})

	result := RunQuery(planner.QuerySpec{
		Dimensions: []string{"region_name"},
		Metrics:    []string{"total_revenue"},
	}, tables, salesModel(t), Options{})
	require.NoError(t, result.Err)

	require.Len(t, result.Rows, 2)
	assert.Equal(t, 150.0, result.Rows[0]["total_revenue"])
}

func TestExecutionDeterministic(t *testing.T) {
	m := salesModel(t)
	spec := planner.QuerySpec{
		Dimensions: []string{"region_name"},
		Metrics:    []string{"total_revenue", "avg_ticket"},
	}

	first := RunQuery(spec, salesTables(), m, Options{})
	require.NoError(t, first.Err)
	for i := 0; i < 5; i++ {
		again := RunQuery(spec, salesTables(), m, Options{})
		require.NoError(t, again.Err)
		assert.Equal(t, first.Rows, again.Rows)
		assert.Equal(t, first.Columns, again.Columns)
	}
}

func TestTableFormatter(t *testing.T) {
	result := RunQuery(planner.QuerySpec{
		Dimensions: []string{"region_name"},
		Metrics:    []string{"total_revenue"},
	}, salesTables(), salesModel(t), Options{})
	require.NoError(t, result.Err)

	out := NewTableFormatter().FormatResult(result)
	assert.Contains(t, out, "region_name")
	assert.Contains(t, out, "150")
	assert.Contains(t, out, "2 rows")

	empty := QueryResult{Columns: []string{"a"}}
	assert.Contains(t, NewTableFormatter().FormatResult(empty), "No rows")
}

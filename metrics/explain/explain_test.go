package explain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnyinglis/metricforge/metrics"
	"github.com/jnyinglis/metricforge/metrics/ast"
	"github.com/jnyinglis/metricforge/metrics/logical"
	"github.com/jnyinglis/metricforge/metrics/model"
	"github.com/jnyinglis/metricforge/metrics/parser"
	"github.com/jnyinglis/metricforge/metrics/planner"
)

func buildPlan(t *testing.T, spec planner.QuerySpec) *logical.QueryPlan {
	t.Helper()

	defs := []struct{ name, text string }{
		{"total_revenue", "sum(amount)"},
		{"order_count", "count(*)"},
		{"avg_ticket", "total_revenue / order_count"},
	}
	input := model.Input{
		Facts:      []model.Fact{{Name: "sales", Table: "sales"}},
		Dimensions: []model.Dimension{{Name: "regions", Table: "regions"}},
		Attributes: []model.Attribute{
			{Name: "amount", Table: "sales"},
			{Name: "region_name", Table: "regions", Column: "name"},
		},
		Joins: []model.JoinEdge{
			{Fact: "sales", Dimension: "regions", FactKey: "region_id", DimensionKey: "region_id"},
		},
	}
	for _, def := range defs {
		expr, errs := parser.ParseMetricExpression(def.text)
		require.Empty(t, errs)
		input.Metrics = append(input.Metrics, model.MetricDefinition{Name: def.name, BaseFact: "sales", Expr: expr})
	}
	m, errs := model.New(input)
	require.Empty(t, errs)

	plan, err := planner.BuildLogicalPlan(spec, m, planner.Options{})
	require.NoError(t, err)
	return plan
}

func querySpec() planner.QuerySpec {
	return planner.QuerySpec{
		Dimensions: []string{"region_name"},
		Metrics:    []string{"total_revenue", "avg_ticket"},
		Where:      ast.Comparison{Name: "amount", Op: metrics.OpGT, Value: 40.0},
		Having:     ast.Comparison{Name: "total_revenue", Op: metrics.OpGT, Value: 100.0},
	}
}

func TestExplainTree(t *testing.T) {
	out := Plan(buildPlan(t, querySpec()), Options{})

	// Depth-first from the root with indentation per level.
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.GreaterOrEqual(t, len(lines), 6)
	assert.Contains(t, lines[0], "Filter [filter_2]")
	assert.Contains(t, lines[1], "Aggregate [agg_1]")
	assert.True(t, strings.HasPrefix(lines[1], "  "))
	assert.Contains(t, out, "Filter [filter_1]")
	assert.Contains(t, out, "Join [join_1]")
	assert.Contains(t, out, "FactScan [fact_scan_1] sales")
	assert.Contains(t, out, "DimensionScan [dim_scan_1] regions")
}

func TestExplainDeterministic(t *testing.T) {
	// Rebuilding the same query yields byte-identical explain output.
	first := Plan(buildPlan(t, querySpec()), Options{Verbose: true, ShowExpressions: true})
	for i := 0; i < 3; i++ {
		assert.Equal(t, first, Plan(buildPlan(t, querySpec()), Options{Verbose: true, ShowExpressions: true}))
	}
}

func TestExplainOptions(t *testing.T) {
	plan := buildPlan(t, querySpec())

	plain := Plan(plan, Options{})
	assert.NotContains(t, plain, "cols=")
	assert.NotContains(t, plain, "Metrics:")

	verbose := Plan(plan, Options{Verbose: true, ShowExpressions: true})
	assert.Contains(t, verbose, "cols=")
	assert.Contains(t, verbose, "Metrics:")
	assert.Contains(t, verbose, "avg_ticket (phase 1) deps=[total_revenue, order_count]")
}

func TestExplainSharedNode(t *testing.T) {
	plan := buildPlan(t, querySpec())

	// Point a second filter at the shared aggregate to force DAG reuse.
	agg := ""
	for id, node := range plan.Nodes {
		if _, ok := node.(logical.AggregateNode); ok {
			agg = id
		}
	}
	require.NotEmpty(t, agg)
	root, _ := plan.Root()
	rootFilter := root.(logical.Filter)
	extra := logical.Filter{NodeID: "filter_9", Input: agg, Predicate: rootFilter.Predicate}
	plan.Nodes[extra.NodeID] = extra
	plan.Nodes["join_9"] = logical.Join{NodeID: "join_9", LeftInput: rootFilter.NodeID, RightInput: extra.NodeID}
	plan.RootID = "join_9"

	out := Plan(plan, Options{})
	assert.Contains(t, out, "(see above)")
}

func TestSQLEmitter(t *testing.T) {
	sql := SQL(buildPlan(t, querySpec()))

	assert.Contains(t, sql, "SELECT regions.name, SUM(sales.amount) AS \"total_revenue\"")
	assert.Contains(t, sql, "FROM sales")
	assert.Contains(t, sql, "JOIN regions ON sales.region_id = regions.region_id")
	assert.Contains(t, sql, "WHERE sales.amount > 40")
	assert.Contains(t, sql, "GROUP BY regions.name")
	assert.Contains(t, sql, "HAVING")

	// Derived metrics inline their dependencies.
	assert.Contains(t, sql, "(SUM(sales.amount)) / (COUNT(*))")
}

func TestSQLLiteralQuoting(t *testing.T) {
	plan := buildPlan(t, planner.QuerySpec{
		Dimensions: []string{"region_name"},
		Metrics:    []string{"total_revenue"},
		Where:      ast.Comparison{Name: "region_name", Op: metrics.OpNE, Value: "O'Brien"},
	})

	sql := SQL(plan)
	// Single quotes double; != renders as <>.
	assert.Contains(t, sql, "regions.name <> 'O''Brien'")
}

func TestSQLCaseAndNullForms(t *testing.T) {
	w := &sqlWriter{plan: &logical.QueryPlan{}}

	cond := logical.Conditional{
		When: logical.Comparison{Op: metrics.OpGT, Left: logical.NewConstant(1.0), Right: logical.NewConstant(0.0)},
		Then: logical.NewConstant("yes"),
		Else: logical.NewConstant("no"),
	}
	assert.Equal(t, "CASE WHEN 1 > 0 THEN 'yes' ELSE 'no' END", w.expr(cond))

	in := logical.InList{
		Input:   logical.NewConstant("x"),
		List:    []logical.Expr{logical.NewConstant("a"), logical.NewConstant("b")},
		Negated: true,
	}
	assert.Equal(t, "'x' NOT IN ('a', 'b')", w.expr(in))

	between := logical.Between{
		Input: logical.NewConstant(5.0),
		Low:   logical.NewConstant(1.0),
		High:  logical.NewConstant(10.0),
	}
	assert.Equal(t, "5 BETWEEN 1 AND 10", w.expr(between))

	isNull := logical.IsNull{Input: logical.NewConstant("x"), Negated: true}
	assert.Equal(t, "'x' IS NOT NULL", w.expr(isNull))
}

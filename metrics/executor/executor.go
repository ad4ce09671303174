package executor

import (
	"fmt"
	"time"

	"github.com/jnyinglis/metricforge/metrics"
	"github.com/jnyinglis/metricforge/metrics/annotations"
	"github.com/jnyinglis/metricforge/metrics/logical"
	"github.com/jnyinglis/metricforge/metrics/model"
	"github.com/jnyinglis/metricforge/metrics/planner"
)

// QueryResult is the output of running a plan: dimension columns
// followed by metric columns in declared order, one row per group.
// Missing metric values are nil. Err is set only when the pipeline
// itself fails; per-group evaluation problems surface as nil values.
type QueryResult struct {
	Columns         []string
	Rows            []Row
	ExecutionTimeMs float64
	Err             error
}

// Options configures execution.
type Options struct {
	Collector *annotations.Collector
}

type execution struct {
	plan      *logical.QueryPlan
	tables    Tables
	collector *annotations.Collector

	factTables map[string]string
}

// Execute runs a plan over in-memory tables. Plans hold no mutable
// state; the same plan may be executed repeatedly over different tables.
func Execute(plan *logical.QueryPlan, tables Tables, opts Options) QueryResult {
	start := time.Now()
	ex := &execution{
		plan:       plan,
		tables:     tables,
		collector:  opts.Collector,
		factTables: make(map[string]string),
	}

	columns, rows, err := ex.run()
	elapsed := time.Since(start)

	if ex.collector.Enabled() {
		ex.collector.AddTiming(annotations.QueryCompleted, start, map[string]interface{}{
			"rows": len(rows),
		})
	}

	return QueryResult{
		Columns:         columns,
		Rows:            rows,
		ExecutionTimeMs: float64(elapsed.Microseconds()) / 1000.0,
		Err:             err,
	}
}

// RunQuery plans and executes a query in one step. Plan-construction
// errors land in QueryResult.Err.
func RunQuery(spec planner.QuerySpec, tables Tables, m *model.Model, opts Options) QueryResult {
	start := time.Now()
	plan, err := planner.BuildLogicalPlan(spec, m, planner.Options{})
	if err != nil {
		return QueryResult{
			ExecutionTimeMs: float64(time.Since(start).Microseconds()) / 1000.0,
			Err:             err,
		}
	}
	result := Execute(plan, tables, opts)
	result.ExecutionTimeMs = float64(time.Since(start).Microseconds()) / 1000.0
	return result
}

func (ex *execution) run() ([]string, []Row, error) {
	aggNode, postFilters, err := ex.splitPlan()
	if err != nil {
		return nil, nil, err
	}

	joined, err := ex.materialize(aggNode.Input)
	if err != nil {
		return nil, nil, err
	}

	columns := ex.outputColumns()
	rows := ex.groupAndEvaluate(aggNode, joined)

	for _, pred := range postFilters {
		before := len(rows)
		kept := rows[:0:0]
		for _, row := range rows {
			if metrics.Truthy(ex.evalResult(pred, row)) {
				kept = append(kept, row)
			}
		}
		rows = kept
		if ex.collector.Enabled() {
			ex.collector.AddTiming(annotations.ExecFiltered, time.Now(), map[string]interface{}{
				"before": before,
				"after":  len(rows),
			})
		}
	}

	return columns, rows, nil
}

// splitPlan walks from the root through post-aggregate filters down to
// the Aggregate node. Filters collected above the aggregate apply to
// result rows.
func (ex *execution) splitPlan() (logical.AggregateNode, []logical.Expr, error) {
	var postFilters []logical.Expr
	id := ex.plan.RootID
	for {
		node, ok := ex.plan.Node(id)
		if !ok {
			return logical.AggregateNode{}, nil, fmt.Errorf("plan references missing node %q", id)
		}
		switch n := node.(type) {
		case logical.Filter:
			postFilters = append(postFilters, n.Predicate)
			id = n.Input
		case logical.AggregateNode:
			return n, postFilters, nil
		default:
			return logical.AggregateNode{}, nil, fmt.Errorf("unexpected %T above aggregate", node)
		}
	}
}

func (ex *execution) outputColumns() []string {
	columns := make([]string, 0, len(ex.plan.OutputGrain.Dimensions)+len(ex.plan.OutputMetrics))
	for _, dim := range ex.plan.OutputGrain.Dimensions {
		columns = append(columns, dim.AttributeID)
	}
	columns = append(columns, ex.plan.OutputMetrics...)
	return columns
}

// groupAndEvaluate groups the joined rows by the dimension tuple using
// the canonical key encoding, then evaluates the metric schedule per
// group with a fresh memo. Group order follows first appearance in the
// input rows.
func (ex *execution) groupAndEvaluate(aggNode logical.AggregateNode, joined []Row) []Row {
	dims := aggNode.GroupBy

	groupKeys := make([]string, 0)
	groups := make(map[string][]Row)
	for _, row := range joined {
		keyVals := make([]interface{}, len(dims))
		for i, dim := range dims {
			keyVals[i] = row[qualify(dim.Table, dim.Column)]
		}
		key := metrics.EncodeKey(keyVals)
		if _, ok := groups[key]; !ok {
			groupKeys = append(groupKeys, key)
		}
		groups[key] = append(groups[key], row)
	}

	if ex.collector.Enabled() {
		ex.collector.AddTiming(annotations.ExecGroups, time.Now(), map[string]interface{}{
			"groups": len(groupKeys),
		})
	}

	results := make([]Row, 0, len(groupKeys))
	for _, key := range groupKeys {
		groupRows := groups[key]
		ctx := newGroupContext(ex, groupRows)

		// Phase order guarantees dependencies are memoized before any
		// metric that reads them.
		for _, name := range ex.plan.MetricEvalOrder {
			ctx.evalMetric(name)
		}

		result := make(Row, len(dims)+len(ex.plan.OutputMetrics))
		for _, dim := range dims {
			result[dim.AttributeID] = groupRows[0][qualify(dim.Table, dim.Column)]
		}
		for _, name := range ex.plan.OutputMetrics {
			result[name] = ctx.memo[name]
		}
		results = append(results, result)
	}

	return results
}

// materialize executes the scan/join/filter chain below the aggregate,
// eagerly and in left-deep order.
func (ex *execution) materialize(id string) ([]Row, error) {
	node, ok := ex.plan.Node(id)
	if !ok {
		return nil, fmt.Errorf("plan references missing node %q", id)
	}

	switch n := node.(type) {
	case logical.FactScan:
		return ex.scan(n.Table, n.InlineFilters)

	case logical.DimensionScan:
		return ex.scan(n.Table, n.InlineFilters)

	case logical.Join:
		return ex.join(n)

	case logical.Filter:
		rows, err := ex.materialize(n.Input)
		if err != nil {
			return nil, err
		}
		before := len(rows)
		kept := rows[:0:0]
		for _, row := range rows {
			if metrics.Truthy(ex.evalScalar(n.Predicate, row)) {
				kept = append(kept, row)
			}
		}
		if ex.collector.Enabled() {
			ex.collector.AddTiming(annotations.ExecFiltered, time.Now(), map[string]interface{}{
				"before": before,
				"after":  len(kept),
			})
		}
		return kept, nil

	case logical.Project:
		rows, err := ex.materialize(n.Input)
		if err != nil {
			return nil, err
		}
		out := make([]Row, len(rows))
		for i, row := range rows {
			projected := make(Row, len(n.Outputs))
			for _, o := range n.Outputs {
				projected[o.Name] = ex.evalScalar(o.Expr, row)
			}
			out[i] = projected
		}
		return out, nil

	default:
		// Window and Transform carry no runtime semantics yet; refusing
		// them beats silently dropping them.
		return nil, fmt.Errorf("unsupported plan node %T (%s)", node, node.ID())
	}
}

func (ex *execution) scan(table string, inlineFilters []logical.Expr) ([]Row, error) {
	start := time.Now()
	raw := ex.tables[table]

	rows := make([]Row, 0, len(raw))
	for _, r := range raw {
		row := qualifyRow(table, r)
		keep := true
		for _, pred := range inlineFilters {
			if !metrics.Truthy(ex.evalScalar(pred, row)) {
				keep = false
				break
			}
		}
		if keep {
			rows = append(rows, row)
		}
	}

	if ex.collector.Enabled() {
		ex.collector.AddTiming(annotations.ExecScan, start, map[string]interface{}{
			"table": table,
			"rows":  len(rows),
		})
	}
	return rows, nil
}

// join performs a hash join: the right side (always a dimension scan in
// built plans) is hashed on its key columns with the canonical encoding,
// then the left stream probes it.
func (ex *execution) join(n logical.Join) ([]Row, error) {
	start := time.Now()

	left, err := ex.materialize(n.LeftInput)
	if err != nil {
		return nil, err
	}
	right, err := ex.materialize(n.RightInput)
	if err != nil {
		return nil, err
	}

	leftTable, err := ex.factTableOf(n.LeftInput)
	if err != nil {
		return nil, err
	}
	rightTable, err := ex.scanTableOf(n.RightInput)
	if err != nil {
		return nil, err
	}

	hash := make(map[string][]Row, len(right))
	for _, row := range right {
		keyVals := make([]interface{}, len(n.Keys))
		for i, k := range n.Keys {
			keyVals[i] = row[qualify(rightTable, k.RightColumn)]
		}
		key := metrics.EncodeKey(keyVals)
		hash[key] = append(hash[key], row)
	}

	var out []Row
	for _, row := range left {
		keyVals := make([]interface{}, len(n.Keys))
		for i, k := range n.Keys {
			keyVals[i] = row[qualify(leftTable, k.LeftColumn)]
		}
		matches := hash[metrics.EncodeKey(keyVals)]
		if len(matches) == 0 {
			if n.Type == logical.JoinLeft {
				out = append(out, row)
			}
			continue
		}
		for _, match := range matches {
			out = append(out, mergeRows(row, match))
		}
	}

	if ex.collector.Enabled() {
		ex.collector.AddTiming(annotations.ExecJoin, start, map[string]interface{}{
			"left_rows":  len(left),
			"right_rows": len(right),
			"rows":       len(out),
		})
	}
	return out, nil
}

// factTableOf finds the base fact table feeding a chain node; join keys
// on the left side always name fact columns.
func (ex *execution) factTableOf(id string) (string, error) {
	if table, ok := ex.factTables[id]; ok {
		return table, nil
	}
	node, ok := ex.plan.Node(id)
	if !ok {
		return "", fmt.Errorf("plan references missing node %q", id)
	}
	var table string
	var err error
	switch n := node.(type) {
	case logical.FactScan:
		table = n.Table
	case logical.Join:
		table, err = ex.factTableOf(n.LeftInput)
	case logical.Filter:
		table, err = ex.factTableOf(n.Input)
	default:
		err = fmt.Errorf("no fact scan beneath node %q", id)
	}
	if err != nil {
		return "", err
	}
	ex.factTables[id] = table
	return table, nil
}

func (ex *execution) scanTableOf(id string) (string, error) {
	node, ok := ex.plan.Node(id)
	if !ok {
		return "", fmt.Errorf("plan references missing node %q", id)
	}
	switch n := node.(type) {
	case logical.DimensionScan:
		return n.Table, nil
	case logical.FactScan:
		return n.Table, nil
	}
	return "", fmt.Errorf("join input %q is not a scan", id)
}

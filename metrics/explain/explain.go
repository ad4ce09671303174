// Package explain renders logical query plans: a human-readable EXPLAIN
// tree and a best-effort SQL string. The SQL targets a generic ANSI
// dialect; identifier quoting and function coverage make no
// dialect-specific claims.
package explain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jnyinglis/metricforge/metrics/logical"
)

// Options controls EXPLAIN rendering.
type Options struct {
	// Verbose includes attribute lists and column sets.
	Verbose bool
	// ShowExpressions appends per-metric dependency summaries.
	ShowExpressions bool
}

// Plan renders a plan as an indented tree walked depth-first from the
// root. Nodes already printed (DAG reuse) render as (see above).
func Plan(plan *logical.QueryPlan, opts Options) string {
	var sb strings.Builder
	visited := make(map[string]bool)
	writeNode(&sb, plan, plan.RootID, 0, visited, opts)

	if opts.ShowExpressions && len(plan.MetricEvalOrder) > 0 {
		sb.WriteString("\nMetrics:\n")
		for _, name := range plan.MetricEvalOrder {
			mp := plan.Metrics[name]
			if mp == nil {
				continue
			}
			fmt.Fprintf(&sb, "  %s (phase %d)", mp.Name, mp.ExecutionPhase)
			if len(mp.Dependencies) > 0 {
				fmt.Fprintf(&sb, " deps=[%s]", strings.Join(mp.Dependencies, ", "))
			}
			if opts.Verbose && len(mp.RequiredAttrs) > 0 {
				fmt.Fprintf(&sb, " attrs=[%s]", strings.Join(mp.RequiredAttrs, ", "))
			}
			fmt.Fprintf(&sb, " = %s\n", mp.Expr)
		}
	}

	return sb.String()
}

func writeNode(sb *strings.Builder, plan *logical.QueryPlan, id string, depth int, visited map[string]bool, opts Options) {
	indent := strings.Repeat("  ", depth)

	node, ok := plan.Node(id)
	if !ok {
		fmt.Fprintf(sb, "%s<missing node %s>\n", indent, id)
		return
	}

	if visited[id] {
		fmt.Fprintf(sb, "%s%s [%s] (see above)\n", indent, kindName(node), id)
		return
	}
	visited[id] = true

	fmt.Fprintf(sb, "%s%s [%s]%s\n", indent, kindName(node), id, details(node, opts))

	for _, input := range node.Inputs() {
		writeNode(sb, plan, input, depth+1, visited, opts)
	}
}

func kindName(node logical.PlanNode) string {
	switch node.(type) {
	case logical.FactScan:
		return "FactScan"
	case logical.DimensionScan:
		return "DimensionScan"
	case logical.Join:
		return "Join"
	case logical.Filter:
		return "Filter"
	case logical.AggregateNode:
		return "Aggregate"
	case logical.Window:
		return "Window"
	case logical.Transform:
		return "Transform"
	case logical.Project:
		return "Project"
	default:
		return fmt.Sprintf("%T", node)
	}
}

func details(node logical.PlanNode, opts Options) string {
	switch n := node.(type) {
	case logical.FactScan:
		return scanDetails(n.Table, n.RequiredColumns, n.InlineFilters, opts)

	case logical.DimensionScan:
		return scanDetails(n.Table, n.RequiredColumns, n.InlineFilters, opts)

	case logical.Join:
		keys := make([]string, len(n.Keys))
		for i, k := range n.Keys {
			keys[i] = k.LeftColumn + " = " + k.RightColumn
		}
		return fmt.Sprintf(" %s %s on %s", n.Type, n.Cardinality, strings.Join(keys, ", "))

	case logical.Filter:
		return fmt.Sprintf(" (%s)", n.Predicate)

	case logical.AggregateNode:
		groups := make([]string, len(n.GroupBy))
		for i, g := range n.GroupBy {
			groups[i] = g.AttributeID
		}
		aggs := make([]string, len(n.Aggregates))
		for i, a := range n.Aggregates {
			aggs[i] = a.OutputName + ": " + a.Expr.String()
		}
		out := fmt.Sprintf(" group by [%s]", strings.Join(groups, ", "))
		if len(aggs) > 0 {
			out += " " + strings.Join(aggs, ", ")
		}
		return out

	case logical.Window:
		return fmt.Sprintf(" frame=%s", n.Frame)

	case logical.Transform:
		return fmt.Sprintf(" %s %s (%s -> %s)", n.Kind, n.TransformID, n.InputAttr, n.OutputAttr)

	case logical.Project:
		names := make([]string, len(n.Outputs))
		for i, o := range n.Outputs {
			names[i] = o.Name
		}
		return " " + strings.Join(names, ", ")
	}

	return ""
}

func scanDetails(table string, columns []string, inline []logical.Expr, opts Options) string {
	out := " " + table
	if opts.Verbose && len(columns) > 0 {
		sorted := append([]string{}, columns...)
		sort.Strings(sorted)
		out += fmt.Sprintf(" cols=[%s]", strings.Join(sorted, ", "))
	}
	if len(inline) > 0 {
		preds := make([]string, len(inline))
		for i, p := range inline {
			preds[i] = p.String()
		}
		out += fmt.Sprintf(" filter=(%s)", strings.Join(preds, " and "))
	}
	return out
}

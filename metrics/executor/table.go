// Package executor runs logical query plans against in-memory tables:
// it materializes the scan/join chain, applies pre-aggregate filters,
// groups rows by the output grain, evaluates metrics per group in phase
// order with memoized dependencies, and applies post-aggregate filters.
package executor

import "sort"

// Row maps column names to values. Scan output uses physical-table
// qualified keys ("table.column"); result rows use attribute and metric
// names.
type Row map[string]interface{}

// Tables supplies the raw rows a plan executes over, keyed by physical
// table name. Row order is preserved and determines group order.
type Tables map[string][]Row

// TableNames returns the table names, sorted.
func (t Tables) TableNames() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// qualify builds the qualified row key for a physical column.
func qualify(table, column string) string {
	return table + "." + column
}

// qualifyRow copies a raw row into qualified keys.
func qualifyRow(table string, raw Row) Row {
	out := make(Row, len(raw))
	for col, val := range raw {
		out[qualify(table, col)] = val
	}
	return out
}

// mergeRows combines a left chain row with a qualified right row.
func mergeRows(left, right Row) Row {
	out := make(Row, len(left)+len(right))
	for k, v := range left {
		out[k] = v
	}
	for k, v := range right {
		out[k] = v
	}
	return out
}

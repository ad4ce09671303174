package executor

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

// TableFormatter renders query results as markdown tables.
type TableFormatter struct {
	// MaxWidth is the maximum width for a column
	MaxWidth int
	// TruncateString is the string to append when truncating
	TruncateString string
}

// NewTableFormatter creates a table formatter with default settings.
func NewTableFormatter() *TableFormatter {
	return &TableFormatter{
		MaxWidth:       50,
		TruncateString: "...",
	}
}

// FormatResult formats a QueryResult as a markdown table.
func (tf *TableFormatter) FormatResult(result QueryResult) string {
	if len(result.Rows) == 0 {
		return fmt.Sprintf("_Columns: %v_\n\n_No rows_", result.Columns)
	}

	tableString := &strings.Builder{}

	alignment := make([]tw.Align, len(result.Columns))
	for i := range alignment {
		alignment[i] = tw.AlignNone
	}

	table := tablewriter.NewTable(tableString,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)

	table.Header(result.Columns)

	for _, row := range result.Rows {
		cells := make([]string, len(result.Columns))
		for i, col := range result.Columns {
			cells[i] = tf.formatValue(row[col])
		}
		table.Append(cells)
	}

	table.Render()

	tableString.WriteString(fmt.Sprintf("\n_%d rows_\n", len(result.Rows)))
	return tableString.String()
}

// formatValue converts a value to its cell representation
func (tf *TableFormatter) formatValue(val interface{}) string {
	if val == nil {
		return "∅"
	}
	switch v := val.(type) {
	case string:
		return tf.truncate(v)
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%.4g", v)
	case bool:
		return fmt.Sprintf("%t", v)
	default:
		return tf.truncate(fmt.Sprintf("%v", v))
	}
}

func (tf *TableFormatter) truncate(s string) string {
	if tf.MaxWidth <= 0 || len(s) <= tf.MaxWidth {
		return s
	}
	return s[:tf.MaxWidth] + tf.TruncateString
}

// PrintResult prints a result table to stdout.
func PrintResult(result QueryResult) {
	fmt.Println(NewTableFormatter().FormatResult(result))
}

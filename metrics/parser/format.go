package parser

import "github.com/jnyinglis/metricforge/metrics/ast"

// FormatExpr renders an expression back to DSL text. Formatting then
// reparsing yields a structurally equivalent tree.
func FormatExpr(expr ast.Expr) string {
	if expr == nil {
		return ""
	}
	return expr.String()
}

// FormatDecl renders a metric declaration back to DSL text.
func FormatDecl(decl ast.MetricDecl) string {
	return decl.String()
}

// FormatFile renders a parsed file back to DSL text.
func FormatFile(file ast.File) string {
	return file.String()
}

// Package parser implements the metric DSL: a hand-written
// recursive-descent parser over a byte-position cursor, an expression
// formatter, and completion hints. Parse errors accumulate alongside the
// partial AST; they never abort parsing.
package parser

import (
	"fmt"
	"strconv"

	"github.com/jnyinglis/metricforge/metrics"
	"github.com/jnyinglis/metricforge/metrics/ast"
)

// AggregateFunctions lists the aggregate names the transformer accepts.
// They are not reserved words.
var AggregateFunctions = []string{"sum", "avg", "min", "max", "count", "count_distinct"}

// Keywords lists the reserved words of the DSL.
var Keywords = []string{
	"metric", "on", "query", "dimensions", "metrics",
	"where", "having", "and", "or", "not", "by", "true", "false",
}

type parser struct {
	*cursor
	errors []ParseError
}

func (p *parser) errorAt(offset int, format string, args ...interface{}) {
	line, col := lineCol(p.input, offset)
	p.errors = append(p.errors, ParseError{
		Message:  fmt.Sprintf(format, args...),
		Line:     line,
		Column:   col,
		Severity: SeverityError,
	})
}

// ParseFile parses a DSL file of metric and query declarations. The
// returned AST holds every declaration that parsed cleanly; errors carry
// 1-based line/column positions.
func ParseFile(input string) (ast.File, []ParseError) {
	p := &parser{cursor: newCursor(input)}
	var file ast.File

	for {
		p.skipSpace()
		if p.eof() {
			break
		}
		switch {
		case p.keyword("metric"):
			if decl, ok := p.parseMetricDecl(); ok {
				file.Metrics = append(file.Metrics, decl)
			} else {
				p.sync()
			}
		case p.keyword("query"):
			if decl, ok := p.parseQueryDecl(); ok {
				file.Queries = append(file.Queries, decl)
			} else {
				p.sync()
			}
		default:
			p.errorAt(p.pos, "expected metric or query declaration")
			p.sync()
		}
	}

	return file, p.errors
}

// sync skips ahead to the next top-level declaration keyword so one bad
// declaration does not swallow the rest of the file.
func (p *parser) sync() {
	for !p.eof() {
		save := p.pos
		if p.keyword("metric") || p.keyword("query") {
			p.pos = save
			return
		}
		p.pos = save
		p.advance()
		p.skipSpace()
	}
}

// ParseMetricExpression parses a standalone metric expression. The whole
// input must be consumed up to trailing whitespace; a residual suffix is
// reported as a single error at the residual offset.
func ParseMetricExpression(input string) (ast.Expr, []ParseError) {
	p := &parser{cursor: newCursor(input)}
	expr := p.parseExpr()
	p.skipSpace()
	if !p.eof() {
		p.errorAt(p.pos, "unexpected input after expression")
	}
	return expr, p.errors
}

func (p *parser) parseMetricDecl() (ast.MetricDecl, bool) {
	decl := ast.MetricDecl{}

	decl.Name = p.ident()
	if decl.Name == "" {
		p.errorAt(p.pos, "expected metric name")
		return decl, false
	}

	if p.keyword("on") {
		decl.BaseFact = p.ident()
		if decl.BaseFact == "" {
			p.errorAt(p.pos, "expected fact name after 'on'")
			return decl, false
		}
	}

	if !p.literal("=") {
		p.errorAt(p.pos, "expected '=' in metric declaration")
		return decl, false
	}

	before := len(p.errors)
	decl.Expr = p.parseExpr()
	return decl, len(p.errors) == before
}

func (p *parser) parseQueryDecl() (ast.QueryDecl, bool) {
	decl := ast.QueryDecl{}

	decl.Name = p.ident()
	if decl.Name == "" {
		p.errorAt(p.pos, "expected query name")
		return decl, false
	}

	if !p.literal("{") {
		p.errorAt(p.pos, "expected '{' after query name")
		return decl, false
	}

	for {
		p.skipSpace()
		if p.eof() {
			p.errorAt(p.pos, "unterminated query block")
			return decl, false
		}
		if p.literal("}") {
			return decl, true
		}

		switch {
		case p.keyword("dimensions"):
			names, ok := p.parseNameList()
			if !ok {
				return decl, false
			}
			decl.Dimensions = append(decl.Dimensions, names...)

		case p.keyword("metrics"):
			names, ok := p.parseNameList()
			if !ok {
				return decl, false
			}
			decl.Metrics = append(decl.Metrics, names...)

		case p.keyword("where"):
			if !p.literal(":") {
				p.errorAt(p.pos, "expected ':' after 'where'")
				return decl, false
			}
			before := len(p.errors)
			decl.Where = p.parseBoolExpr(false)
			if len(p.errors) != before {
				return decl, false
			}

		case p.keyword("having"):
			if !p.literal(":") {
				p.errorAt(p.pos, "expected ':' after 'having'")
				return decl, false
			}
			before := len(p.errors)
			decl.Having = p.parseBoolExpr(true)
			if len(p.errors) != before {
				return decl, false
			}

		default:
			p.errorAt(p.pos, "expected dimensions, metrics, where, or having")
			return decl, false
		}
	}
}

func (p *parser) parseNameList() ([]string, bool) {
	if !p.literal(":") {
		p.errorAt(p.pos, "expected ':' in query line")
		return nil, false
	}
	var names []string
	for {
		name := p.ident()
		if name == "" {
			p.errorAt(p.pos, "expected identifier")
			return nil, false
		}
		names = append(names, name)
		if !p.literal(",") {
			return names, true
		}
	}
}

// Expression grammar: additive over multiplicative over primary.

func (p *parser) parseExpr() ast.Expr {
	return p.parseAdditive()
}

func (p *parser) parseAdditive() ast.Expr {
	left := p.parseMultiplicative()
	for {
		p.skipSpace()
		var op string
		if p.literal("+") {
			op = "+"
		} else if p.literal("-") {
			op = "-"
		} else {
			return left
		}
		right := p.parseMultiplicative()
		left = ast.BinaryOp{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseMultiplicative() ast.Expr {
	left := p.parsePrimary()
	for {
		p.skipSpace()
		var op string
		if p.literal("*") {
			op = "*"
		} else if p.peek() == '/' && (p.pos+1 >= len(p.input) || p.input[p.pos+1] != '/') {
			p.advance()
			op = "/"
		} else {
			return left
		}
		right := p.parsePrimary()
		left = ast.BinaryOp{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parsePrimary() ast.Expr {
	p.skipSpace()

	if p.literal("(") {
		expr := p.parseExpr()
		if !p.literal(")") {
			p.errorAt(p.pos, "expected ')'")
		}
		return expr
	}

	if num := p.number(); num != "" {
		val, err := strconv.ParseFloat(num, 64)
		if err != nil {
			p.errorAt(p.pos, "invalid number: %s", num)
			return ast.Literal{}
		}
		return ast.Literal{Value: val}
	}

	name := p.ident()
	if name == "" {
		p.errorAt(p.pos, "expected expression")
		return ast.Literal{}
	}

	if p.literal("(") {
		return p.parseCall(name)
	}

	return ast.AttrRef{Name: name}
}

func (p *parser) parseCall(fn string) ast.Expr {
	if fn == "last_year" {
		return p.parseLastYear()
	}

	call := ast.Call{Fn: fn}

	p.skipSpace()
	if p.literal(")") {
		return call
	}

	if p.literal("*") {
		call.Args = append(call.Args, ast.AttrRef{Name: "*"})
	} else {
		for {
			call.Args = append(call.Args, p.parseExpr())
			if !p.literal(",") {
				break
			}
		}
	}

	if !p.literal(")") {
		p.errorAt(p.pos, "expected ')' in call to %s", fn)
	}
	return call
}

// parseLastYear handles the special form last_year(metric [, by attr]).
// It desugars to Call("last_year", [MetricRef, AttrRef?]).
func (p *parser) parseLastYear() ast.Expr {
	call := ast.Call{Fn: "last_year"}

	name := p.ident()
	if name == "" {
		p.errorAt(p.pos, "expected metric name in last_year")
		return call
	}
	call.Args = append(call.Args, ast.MetricRef{Name: name})

	if p.literal(",") {
		if !p.keyword("by") {
			p.errorAt(p.pos, "expected 'by' in last_year")
			return call
		}
		anchor := p.ident()
		if anchor == "" {
			p.errorAt(p.pos, "expected attribute name after 'by'")
			return call
		}
		call.Args = append(call.Args, ast.AttrRef{Name: anchor})
	}

	if !p.literal(")") {
		p.errorAt(p.pos, "expected ')' in last_year")
	}
	return call
}

// Predicate grammar: or over and over not over (parenthesized | leaf).
// In having position each leaf literal must be numeric.

func (p *parser) parseBoolExpr(having bool) ast.Predicate {
	left := p.parseBoolAnd(having)
	operands := []ast.Predicate{left}
	for p.keyword("or") {
		operands = append(operands, p.parseBoolAnd(having))
	}
	if len(operands) == 1 {
		return left
	}
	return ast.Logical{Op: ast.LogicalOr, Operands: operands}
}

func (p *parser) parseBoolAnd(having bool) ast.Predicate {
	left := p.parseBoolFactor(having)
	operands := []ast.Predicate{left}
	for p.keyword("and") {
		operands = append(operands, p.parseBoolFactor(having))
	}
	if len(operands) == 1 {
		return left
	}
	return ast.Logical{Op: ast.LogicalAnd, Operands: operands}
}

func (p *parser) parseBoolFactor(having bool) ast.Predicate {
	p.skipSpace()

	if p.keyword("not") {
		operand := p.parseBoolFactor(having)
		return ast.Logical{Op: ast.LogicalNot, Operands: []ast.Predicate{operand}}
	}

	if p.literal("(") {
		pred := p.parseBoolExpr(having)
		if !p.literal(")") {
			p.errorAt(p.pos, "expected ')' in condition")
		}
		return pred
	}

	return p.parseComparison(having)
}

func (p *parser) parseComparison(having bool) ast.Predicate {
	cmp := ast.Comparison{}

	cmp.Name = p.ident()
	if cmp.Name == "" {
		p.errorAt(p.pos, "expected identifier in condition")
		return cmp
	}

	op, ok := p.parseCompareOp()
	if !ok {
		p.errorAt(p.pos, "expected comparison operator")
		return cmp
	}
	cmp.Op = op

	p.skipSpace()
	start := p.pos

	if num := p.number(); num != "" {
		val, err := strconv.ParseFloat(num, 64)
		if err != nil {
			p.errorAt(start, "invalid number: %s", num)
			return cmp
		}
		cmp.Value = val
		return cmp
	}

	if having {
		p.errorAt(start, "having condition requires a numeric value")
		return cmp
	}

	if str, ok := p.stringLit(); ok {
		cmp.Value = str
		return cmp
	}
	if p.keyword("true") {
		cmp.Value = true
		return cmp
	}
	if p.keyword("false") {
		cmp.Value = false
		return cmp
	}

	p.errorAt(start, "expected number, string, or boolean")
	return cmp
}

func (p *parser) parseCompareOp() (metrics.CompareOp, bool) {
	p.skipSpace()
	switch {
	case p.literal(">="):
		return metrics.OpGTE, true
	case p.literal("<="):
		return metrics.OpLTE, true
	case p.literal("=="):
		return metrics.OpEQ, true
	case p.literal("!="):
		return metrics.OpNE, true
	case p.literal(">"):
		return metrics.OpGT, true
	case p.literal("<"):
		return metrics.OpLT, true
	}
	return metrics.OpEQ, false
}

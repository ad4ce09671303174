// Package model implements the semantic model: a passive registry of
// facts, dimensions, attributes, join edges, and named metric
// definitions. Models are built once, validated on construction, and
// read-only afterwards.
package model

import (
	"fmt"
	"sort"

	"github.com/jnyinglis/metricforge/metrics/ast"
	"github.com/jnyinglis/metricforge/metrics/parser"
)

// Attribute maps a logical name to a physical (table, column) pair.
type Attribute struct {
	Name   string
	Table  string
	Column string
}

// Fact names a physical table treated as a many-row base relation.
type Fact struct {
	Name  string
	Table string
}

// Dimension names a physical table treated as a lookup relation.
type Dimension struct {
	Name  string
	Table string
}

// JoinEdge is a directed fact→dimension edge with the join key columns.
type JoinEdge struct {
	Fact         string
	Dimension    string
	FactKey      string
	DimensionKey string
}

// MetricDefinition is a named metric with an optional base fact anchor
// and a syntax-level expression.
type MetricDefinition struct {
	Name     string
	BaseFact string
	Expr     ast.Expr
}

// Input collects the pieces a model is built from.
type Input struct {
	Attributes []Attribute
	Facts      []Fact
	Dimensions []Dimension
	Joins      []JoinEdge
	Metrics    []MetricDefinition
}

// Model is the validated registry. Zero-value lookups return the absent
// flag; the model never mutates after New.
type Model struct {
	attributes  map[string]Attribute
	facts       map[string]Fact
	dimensions  map[string]Dimension
	metrics     map[string]MetricDefinition
	joins       []JoinEdge
	joinsByFact map[string][]JoinEdge
}

// New builds a model from its parts. Violations of the registry
// invariants are returned as a list of errors rather than aborting; the
// model is usable only when the list is empty.
func New(input Input) (*Model, []error) {
	m := &Model{
		attributes:  make(map[string]Attribute),
		facts:       make(map[string]Fact),
		dimensions:  make(map[string]Dimension),
		metrics:     make(map[string]MetricDefinition),
		joinsByFact: make(map[string][]JoinEdge),
	}
	var errs []error

	for _, f := range input.Facts {
		if _, dup := m.facts[f.Name]; dup {
			errs = append(errs, fmt.Errorf("duplicate fact: %q", f.Name))
			continue
		}
		if f.Table == "" {
			f.Table = f.Name
		}
		m.facts[f.Name] = f
	}

	for _, d := range input.Dimensions {
		if _, dup := m.dimensions[d.Name]; dup {
			errs = append(errs, fmt.Errorf("duplicate dimension: %q", d.Name))
			continue
		}
		if d.Table == "" {
			d.Table = d.Name
		}
		m.dimensions[d.Name] = d
	}

	for _, a := range input.Attributes {
		if _, dup := m.attributes[a.Name]; dup {
			errs = append(errs, fmt.Errorf("duplicate attribute: %q", a.Name))
			continue
		}
		if a.Column == "" {
			a.Column = a.Name
		}
		if !m.knownTable(a.Table) {
			errs = append(errs, fmt.Errorf("attribute %q references unknown table %q", a.Name, a.Table))
			continue
		}
		m.attributes[a.Name] = a
	}

	for _, j := range input.Joins {
		if _, ok := m.facts[j.Fact]; !ok {
			errs = append(errs, fmt.Errorf("join references unknown fact: %q", j.Fact))
			continue
		}
		if _, ok := m.dimensions[j.Dimension]; !ok {
			errs = append(errs, fmt.Errorf("join references unknown dimension: %q", j.Dimension))
			continue
		}
		m.joins = append(m.joins, j)
		m.joinsByFact[j.Fact] = append(m.joinsByFact[j.Fact], j)
	}

	attrNames := make(map[string]bool, len(m.attributes))
	for name := range m.attributes {
		attrNames[name] = true
	}
	metricNames := make(map[string]bool, len(input.Metrics))
	for _, def := range input.Metrics {
		metricNames[def.Name] = true
	}

	for _, def := range input.Metrics {
		if _, dup := m.metrics[def.Name]; dup {
			errs = append(errs, fmt.Errorf("duplicate metric: %q", def.Name))
			continue
		}
		if def.BaseFact != "" {
			if _, ok := m.facts[def.BaseFact]; !ok {
				errs = append(errs, fmt.Errorf("metric %q anchored on unknown fact %q", def.Name, def.BaseFact))
				continue
			}
		}
		if def.Expr != nil {
			for _, err := range parser.ValidateMetricExpr(def.Expr, attrNames, metricNames) {
				errs = append(errs, fmt.Errorf("metric %q: %w", def.Name, err))
			}
		}
		m.metrics[def.Name] = def
	}

	return m, errs
}

func (m *Model) knownTable(table string) bool {
	for _, f := range m.facts {
		if f.Table == table {
			return true
		}
	}
	for _, d := range m.dimensions {
		if d.Table == table {
			return true
		}
	}
	return false
}

// Attribute looks up an attribute by logical name.
func (m *Model) Attribute(name string) (Attribute, bool) {
	a, ok := m.attributes[name]
	return a, ok
}

// Fact looks up a fact by name.
func (m *Model) Fact(name string) (Fact, bool) {
	f, ok := m.facts[name]
	return f, ok
}

// Dimension looks up a dimension by name.
func (m *Model) Dimension(name string) (Dimension, bool) {
	d, ok := m.dimensions[name]
	return d, ok
}

// Metric looks up a metric definition by name.
func (m *Model) Metric(name string) (MetricDefinition, bool) {
	def, ok := m.metrics[name]
	return def, ok
}

// JoinsByFact returns the join edges leaving a fact, in declaration order.
func (m *Model) JoinsByFact(factName string) []JoinEdge {
	return m.joinsByFact[factName]
}

// JoinBetween finds the edge connecting a fact table to a dimension
// table, matching on physical table names.
func (m *Model) JoinBetween(factTable, dimTable string) (JoinEdge, bool) {
	for _, j := range m.joins {
		f := m.facts[j.Fact]
		d := m.dimensions[j.Dimension]
		if f.Table == factTable && d.Table == dimTable {
			return j, true
		}
	}
	return JoinEdge{}, false
}

// FactByTable finds the fact owning a physical table.
func (m *Model) FactByTable(table string) (Fact, bool) {
	for _, f := range m.facts {
		if f.Table == table {
			return f, true
		}
	}
	return Fact{}, false
}

// DimensionByTable finds the dimension owning a physical table.
func (m *Model) DimensionByTable(table string) (Dimension, bool) {
	for _, d := range m.dimensions {
		if d.Table == table {
			return d, true
		}
	}
	return Dimension{}, false
}

// IsFactTable reports whether a physical table belongs to a fact.
func (m *Model) IsFactTable(table string) bool {
	_, ok := m.FactByTable(table)
	return ok
}

// AttributeNames returns all attribute names, sorted.
func (m *Model) AttributeNames() []string {
	return sortedKeys(m.attributes)
}

// MetricNames returns all metric names, sorted.
func (m *Model) MetricNames() []string {
	return sortedKeys(m.metrics)
}

// FactNames returns all fact names, sorted.
func (m *Model) FactNames() []string {
	return sortedKeys(m.facts)
}

// DimensionNames returns all dimension names, sorted.
func (m *Model) DimensionNames() []string {
	return sortedKeys(m.dimensions)
}

func sortedKeys[V any](in map[string]V) []string {
	out := make([]string, 0, len(in))
	for k := range in {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

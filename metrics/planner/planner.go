// Package planner builds logical query plans from query specs and a
// semantic model: it resolves the output shape, schedules metric
// dependencies into execution phases, infers the scan/join chain from
// the model's join edges, classifies filters around the aggregation
// boundary, and assembles the plan DAG.
package planner

import (
	"fmt"
	"strings"

	"github.com/jnyinglis/metricforge/metrics/ast"
	"github.com/jnyinglis/metricforge/metrics/logical"
	"github.com/jnyinglis/metricforge/metrics/model"
)

// QuerySpec is the resolved request a plan is built for.
type QuerySpec struct {
	Dimensions []string
	Metrics    []string
	Where      ast.Predicate
	Having     ast.Predicate
}

// FromQueryDecl converts a parsed query block into a QuerySpec.
func FromQueryDecl(decl ast.QueryDecl) QuerySpec {
	return QuerySpec{
		Dimensions: decl.Dimensions,
		Metrics:    decl.Metrics,
		Where:      decl.Where,
		Having:     decl.Having,
	}
}

// Options configures plan construction.
type Options struct {
	// PushDownFilters moves single-table pre-aggregate predicates into
	// scan inline filters instead of a Filter node.
	PushDownFilters bool
	// StrictMode propagates to expression resolution: unsupported
	// constructs fail instead of degrading to placeholders.
	StrictMode bool
}

// Builder constructs plans against one model. Node-id counters live on
// the builder, so concurrent builders never share them; each Build call
// resets the counters to keep plan ids deterministic.
type Builder struct {
	model    *model.Model
	opts     Options
	counters map[string]int
	nodes    map[string]logical.PlanNode
}

// NewBuilder creates a plan builder for a model.
func NewBuilder(m *model.Model, opts Options) *Builder {
	return &Builder{model: m, opts: opts}
}

// BuildLogicalPlan builds a plan with a fresh builder, giving every call
// a counter reset and byte-identical explain output for equal inputs.
func BuildLogicalPlan(spec QuerySpec, m *model.Model, opts Options) (*logical.QueryPlan, error) {
	return NewBuilder(m, opts).Build(spec)
}

func (b *Builder) nextID(prefix string) string {
	b.counters[prefix]++
	return fmt.Sprintf("%s_%d", prefix, b.counters[prefix])
}

func (b *Builder) add(node logical.PlanNode) string {
	b.nodes[node.ID()] = node
	return node.ID()
}

// Build runs the planning phases and returns the assembled plan. Any
// unknown name, missing join edge, or dependency cycle aborts with a
// descriptive error.
func (b *Builder) Build(spec QuerySpec) (*logical.QueryPlan, error) {
	b.counters = make(map[string]int)
	b.nodes = make(map[string]logical.PlanNode)

	shape, err := b.resolveShape(spec)
	if err != nil {
		return nil, err
	}

	graph := buildDepGraph(spec.Metrics, shape.exprs)
	if cycleErr := graph.detectCycle(); cycleErr != nil {
		return nil, cycleErr
	}
	phases := graph.assignPhases()
	evalOrder := graph.evalOrder(phases)

	if err := b.resolveExternalDeps(spec, shape); err != nil {
		return nil, err
	}

	factName, factTable, err := b.selectBaseFact(spec, shape)
	if err != nil {
		return nil, err
	}

	chain, err := b.buildScanChain(factName, factTable, shape)
	if err != nil {
		return nil, err
	}

	preAgg, postAgg := b.classifyFilters(shape)
	chain = b.applyPreFilters(chain, preAgg)
	chain = b.buildAggregate(chain, spec, shape, phases)
	chain = b.applyPostFilters(chain, postAgg)

	plan := &logical.QueryPlan{
		RootID:          chain,
		Nodes:           b.nodes,
		OutputGrain:     logical.Grain{Dimensions: shape.dims, GrainID: logical.GrainID(shape.dims)},
		OutputMetrics:   spec.Metrics,
		Metrics:         make(map[string]*logical.MetricPlan, len(shape.exprs)),
		MetricEvalOrder: evalOrder,
	}

	for name, expr := range shape.exprs {
		def := shape.defs[name]
		plan.Metrics[name] = &logical.MetricPlan{
			Name:           name,
			Expr:           expr,
			BaseFact:       def.BaseFact,
			Dependencies:   logical.Dependencies(expr),
			RequiredAttrs:  logical.RequiredAttributes(expr),
			ExecutionPhase: phases[name],
		}
	}

	return plan, nil
}

// queryShape carries the resolved output shape through the build phases.
type queryShape struct {
	dims         []logical.AttributeRef
	exprs        map[string]logical.Expr
	defs         map[string]model.MetricDefinition
	requiredRefs []logical.AttributeRef
	seenRefs     map[string]bool
	wherePred    logical.Expr
	havingPred   logical.Expr
}

// addRef records a required attribute, keeping first-appearance order.
func (s *queryShape) addRef(ref logical.AttributeRef) {
	if !ref.IsWildcard() && !s.seenRefs[ref.AttributeID] {
		s.seenRefs[ref.AttributeID] = true
		s.requiredRefs = append(s.requiredRefs, ref)
	}
}

// resolveShape resolves dimensions, metric expressions, and filter
// predicates, and gathers the required attribute set.
func (b *Builder) resolveShape(spec QuerySpec) (*queryShape, error) {
	shape := &queryShape{
		exprs:    make(map[string]logical.Expr, len(spec.Metrics)),
		defs:     make(map[string]model.MetricDefinition, len(spec.Metrics)),
		seenRefs: make(map[string]bool),
	}

	for _, name := range spec.Dimensions {
		attr, ok := b.model.Attribute(name)
		if !ok {
			return nil, logical.ResolutionError{Kind: logical.UnknownAttribute, Name: name}
		}
		ref := b.dimensionRef(attr)
		shape.dims = append(shape.dims, ref)
		shape.addRef(ref)
	}

	resolveOpts := logical.ResolveOptions{StrictMode: b.opts.StrictMode}
	for _, name := range spec.Metrics {
		def, ok := b.model.Metric(name)
		if !ok {
			return nil, logical.ResolutionError{Kind: logical.UnknownMetric, Name: name}
		}
		expr, err := logical.Resolve(def.Expr, b.model, def.BaseFact, resolveOpts)
		if err != nil {
			return nil, fmt.Errorf("metric %q: %w", name, err)
		}
		shape.exprs[name] = expr
		shape.defs[name] = def
		for _, ref := range logical.AttributeRefs(expr) {
			shape.addRef(ref)
		}
	}

	if spec.Where != nil {
		pred, err := resolvePredicate(spec.Where, b.model, false)
		if err != nil {
			return nil, fmt.Errorf("where: %w", err)
		}
		shape.wherePred = pred
		for _, ref := range logical.AttributeRefs(pred) {
			shape.addRef(ref)
		}
	}
	if spec.Having != nil {
		pred, err := resolvePredicate(spec.Having, b.model, true)
		if err != nil {
			return nil, fmt.Errorf("having: %w", err)
		}
		shape.havingPred = pred
	}

	return shape, nil
}

func (b *Builder) dimensionRef(attr model.Attribute) logical.AttributeRef {
	source := logical.SourceDimension
	if b.model.IsFactTable(attr.Table) {
		source = logical.SourceFact
	}
	return logical.AttributeRef{
		AttributeID: attr.Name,
		Table:       attr.Table,
		Column:      attr.Column,
		Source:      source,
	}
}

// resolveExternalDeps resolves metrics referenced by the query's metrics
// but not named in the query. They are excluded from scheduling and
// evaluated on demand by the executor's memoized resolver.
func (b *Builder) resolveExternalDeps(spec QuerySpec, shape *queryShape) error {
	resolveOpts := logical.ResolveOptions{StrictMode: b.opts.StrictMode}

	pending := make([]string, 0)
	for _, name := range spec.Metrics {
		pending = append(pending, logical.Dependencies(shape.exprs[name])...)
	}

	for len(pending) > 0 {
		name := pending[0]
		pending = pending[1:]
		if _, done := shape.exprs[name]; done {
			continue
		}
		def, ok := b.model.Metric(name)
		if !ok {
			return logical.ResolutionError{Kind: logical.UnknownMetric, Name: name}
		}
		expr, err := logical.Resolve(def.Expr, b.model, def.BaseFact, resolveOpts)
		if err != nil {
			return fmt.Errorf("metric %q: %w", name, err)
		}
		shape.exprs[name] = expr
		shape.defs[name] = def
		for _, ref := range logical.AttributeRefs(expr) {
			shape.addRef(ref)
		}
		pending = append(pending, logical.Dependencies(expr)...)
	}
	return nil
}

// selectBaseFact collects the anchor facts of the query's metrics. The
// builder plans exactly one base fact; zero or several is a structural
// error.
func (b *Builder) selectBaseFact(spec QuerySpec, shape *queryShape) (string, string, error) {
	var facts []string
	seen := make(map[string]bool)

	for _, name := range spec.Metrics {
		expr := shape.exprs[name]
		if !logical.ContainsAggregate(expr) && !logical.ContainsMetricRef(expr) {
			continue
		}
		base := shape.defs[name].BaseFact
		if base != "" && !seen[base] {
			seen[base] = true
			facts = append(facts, base)
		}
	}

	if len(facts) == 0 {
		for _, ref := range shape.requiredRefs {
			if fact, ok := b.model.FactByTable(ref.Table); ok {
				facts = append(facts, fact.Name)
				break
			}
		}
	}

	if len(facts) == 0 {
		return "", "", &StructuralError{Kind: NoBaseFact, Detail: "no metric anchors a fact and no required attribute belongs to one"}
	}
	if len(facts) > 1 {
		return "", "", &StructuralError{Kind: MultipleBaseFacts, Detail: strings.Join(facts, ", ")}
	}

	fact, _ := b.model.Fact(facts[0])
	return fact.Name, fact.Table, nil
}

// buildScanChain emits the fact scan and a left-deep chain of inner
// N:1 joins to every dimension table holding a required attribute.
func (b *Builder) buildScanChain(factName, factTable string, shape *queryShape) (string, error) {
	columnsByTable := make(map[string][]string)
	tableSeen := make(map[string]map[string]bool)
	addColumn := func(table, column string) {
		if tableSeen[table] == nil {
			tableSeen[table] = make(map[string]bool)
		}
		if !tableSeen[table][column] {
			tableSeen[table][column] = true
			columnsByTable[table] = append(columnsByTable[table], column)
		}
	}

	var dimTables []string
	dimTableSeen := make(map[string]bool)
	for _, ref := range shape.requiredRefs {
		addColumn(ref.Table, ref.Column)
		if ref.Table != factTable && !dimTableSeen[ref.Table] {
			dimTableSeen[ref.Table] = true
			dimTables = append(dimTables, ref.Table)
		}
	}

	type plannedJoin struct {
		table string
		edge  model.JoinEdge
	}
	joins := make([]plannedJoin, 0, len(dimTables))
	for _, dimTable := range dimTables {
		if _, ok := b.model.DimensionByTable(dimTable); !ok {
			return "", &StructuralError{
				Kind:   MissingJoinEdge,
				Detail: fmt.Sprintf("table %q is not a dimension reachable from fact %q", dimTable, factName),
			}
		}
		edge, ok := b.model.JoinBetween(factTable, dimTable)
		if !ok {
			return "", &StructuralError{
				Kind:   MissingJoinEdge,
				Detail: fmt.Sprintf("no join edge from fact %q to dimension table %q", factName, dimTable),
			}
		}
		addColumn(factTable, edge.FactKey)
		addColumn(dimTable, edge.DimensionKey)
		joins = append(joins, plannedJoin{table: dimTable, edge: edge})
	}

	chain := b.add(logical.FactScan{
		NodeID:          b.nextID("fact_scan"),
		Table:           factTable,
		RequiredColumns: columnsByTable[factTable],
	})

	for _, pj := range joins {
		dimScan := b.add(logical.DimensionScan{
			NodeID:          b.nextID("dim_scan"),
			Table:           pj.table,
			RequiredColumns: columnsByTable[pj.table],
		})
		chain = b.add(logical.Join{
			NodeID:      b.nextID("join"),
			Type:        logical.JoinInner,
			LeftInput:   chain,
			RightInput:  dimScan,
			Keys:        []logical.JoinKey{{LeftColumn: pj.edge.FactKey, RightColumn: pj.edge.DimensionKey}},
			Cardinality: logical.ManyToOne,
		})
	}

	return chain, nil
}

// classifyFilters splits the where predicate around the aggregation
// boundary. Having is always post-aggregate.
func (b *Builder) classifyFilters(shape *queryShape) (preAgg, postAgg []logical.Expr) {
	if shape.wherePred != nil {
		if isPostAggregate(shape.wherePred) {
			postAgg = append(postAgg, shape.wherePred)
		} else {
			preAgg = append(preAgg, shape.wherePred)
		}
	}
	if shape.havingPred != nil {
		postAgg = append(postAgg, shape.havingPred)
	}
	return preAgg, postAgg
}

// applyPreFilters inserts pre-aggregate predicates: pushed into a scan's
// inline filters when enabled and the predicate reads one table,
// otherwise as a Filter node over the join output.
func (b *Builder) applyPreFilters(chain string, preds []logical.Expr) string {
	for _, pred := range preds {
		if b.opts.PushDownFilters {
			if tables := predicateTables(pred); len(tables) == 1 && b.pushIntoScan(tables[0], pred) {
				continue
			}
		}
		chain = b.add(logical.Filter{
			NodeID:    b.nextID("filter"),
			Input:     chain,
			Predicate: pred,
		})
	}
	return chain
}

// pushIntoScan appends a predicate to the inline filters of the scan
// over the given table.
func (b *Builder) pushIntoScan(table string, pred logical.Expr) bool {
	for id, node := range b.nodes {
		switch scan := node.(type) {
		case logical.FactScan:
			if scan.Table == table {
				scan.InlineFilters = append(scan.InlineFilters, pred)
				b.nodes[id] = scan
				return true
			}
		case logical.DimensionScan:
			if scan.Table == table {
				scan.InlineFilters = append(scan.InlineFilters, pred)
				b.nodes[id] = scan
				return true
			}
		}
	}
	return false
}

// buildAggregate emits the Aggregate node: group-by in the query's
// lexical dimension order, aggregates drawn from the phase-0 metrics.
// Derived metrics stay out of the plan node; the executor computes them
// per group from the metric plans.
func (b *Builder) buildAggregate(chain string, spec QuerySpec, shape *queryShape, phases map[string]int) string {
	var aggs []logical.NamedAggregate
	for _, name := range spec.Metrics {
		if phases[name] != 0 {
			continue
		}
		expr := shape.exprs[name]
		if agg, ok := expr.(logical.Aggregate); ok {
			aggs = append(aggs, logical.NamedAggregate{OutputName: name, Expr: agg})
			continue
		}
		i := 0
		logical.Walk(expr, func(e logical.Expr) bool {
			if agg, ok := e.(logical.Aggregate); ok {
				i++
				aggs = append(aggs, logical.NamedAggregate{
					OutputName: fmt.Sprintf("%s_%d", name, i),
					Expr:       agg,
				})
				return false
			}
			return true
		})
	}

	return b.add(logical.AggregateNode{
		NodeID:     b.nextID("agg"),
		Input:      chain,
		GroupBy:    shape.dims,
		Aggregates: aggs,
	})
}

func (b *Builder) applyPostFilters(chain string, preds []logical.Expr) string {
	for _, pred := range preds {
		chain = b.add(logical.Filter{
			NodeID:    b.nextID("filter"),
			Input:     chain,
			Predicate: pred,
		})
	}
	return chain
}

package logical

import (
	"fmt"
	"sort"
	"strings"
)

// PlanNode is a node in the logical plan DAG. Nodes reference their
// inputs by id, never by pointer; the DAG lives in QueryPlan.Nodes.
type PlanNode interface {
	ID() string
	Inputs() []string
	String() string
	planNode()
}

// JoinType identifies the join variant.
type JoinType uint8

const (
	JoinInner JoinType = iota
	JoinLeft
	JoinRight
	JoinFull
)

// String returns the string representation of JoinType
func (t JoinType) String() string {
	switch t {
	case JoinInner:
		return "inner"
	case JoinLeft:
		return "left"
	case JoinRight:
		return "right"
	case JoinFull:
		return "full"
	default:
		return "unknown"
	}
}

// Cardinality describes the row multiplicity across a join.
type Cardinality uint8

const (
	OneToOne Cardinality = iota
	OneToMany
	ManyToOne
	ManyToMany
)

// String returns the string representation of Cardinality
func (c Cardinality) String() string {
	switch c {
	case OneToOne:
		return "1:1"
	case OneToMany:
		return "1:N"
	case ManyToOne:
		return "N:1"
	case ManyToMany:
		return "N:M"
	default:
		return "unknown"
	}
}

// JoinKey pairs the fact-side and dimension-side join columns.
type JoinKey struct {
	LeftColumn  string
	RightColumn string
}

// FactScan reads a fact table.
type FactScan struct {
	NodeID          string
	Table           string
	RequiredColumns []string
	InlineFilters   []Expr
}

func (FactScan) planNode() {}

func (s FactScan) ID() string { return s.NodeID }

func (FactScan) Inputs() []string { return nil }

func (s FactScan) String() string {
	return fmt.Sprintf("FactScan(%s)", s.Table)
}

// DimensionScan reads a dimension table.
type DimensionScan struct {
	NodeID          string
	Table           string
	RequiredColumns []string
	InlineFilters   []Expr
}

func (DimensionScan) planNode() {}

func (s DimensionScan) ID() string { return s.NodeID }

func (DimensionScan) Inputs() []string { return nil }

func (s DimensionScan) String() string {
	return fmt.Sprintf("DimensionScan(%s)", s.Table)
}

// Join combines two inputs on equality keys.
type Join struct {
	NodeID      string
	Type        JoinType
	LeftInput   string
	RightInput  string
	Keys        []JoinKey
	Cardinality Cardinality
}

func (Join) planNode() {}

func (j Join) ID() string { return j.NodeID }

func (j Join) Inputs() []string { return []string{j.LeftInput, j.RightInput} }

func (j Join) String() string {
	keys := make([]string, len(j.Keys))
	for i, k := range j.Keys {
		keys[i] = k.LeftColumn + " = " + k.RightColumn
	}
	return fmt.Sprintf("Join[%s, %s](%s)", j.Type, j.Cardinality, strings.Join(keys, ", "))
}

// Filter applies a predicate to its input rows.
type Filter struct {
	NodeID    string
	Input     string
	Predicate Expr
}

func (Filter) planNode() {}

func (f Filter) ID() string { return f.NodeID }

func (f Filter) Inputs() []string { return []string{f.Input} }

func (f Filter) String() string {
	return fmt.Sprintf("Filter(%s)", f.Predicate)
}

// NamedAggregate pairs an output column name with its aggregate.
type NamedAggregate struct {
	OutputName string
	Expr       Aggregate
}

// AggregateNode groups its input by dimensions and computes aggregates.
type AggregateNode struct {
	NodeID     string
	Input      string
	GroupBy    []AttributeRef
	Aggregates []NamedAggregate
}

func (AggregateNode) planNode() {}

func (a AggregateNode) ID() string { return a.NodeID }

func (a AggregateNode) Inputs() []string { return []string{a.Input} }

func (a AggregateNode) String() string {
	groups := make([]string, len(a.GroupBy))
	for i, g := range a.GroupBy {
		groups[i] = g.AttributeID
	}
	aggs := make([]string, len(a.Aggregates))
	for i, agg := range a.Aggregates {
		aggs[i] = agg.OutputName + ": " + agg.Expr.String()
	}
	return fmt.Sprintf("Aggregate(group by [%s]; %s)", strings.Join(groups, ", "), strings.Join(aggs, ", "))
}

// WindowFrameKind identifies the frame shape of a window node.
type WindowFrameKind uint8

const (
	FrameRolling WindowFrameKind = iota
	FrameCumulative
	FrameOffset
)

// String returns the string representation of WindowFrameKind
func (k WindowFrameKind) String() string {
	switch k {
	case FrameRolling:
		return "rolling"
	case FrameCumulative:
		return "cumulative"
	case FrameOffset:
		return "offset"
	default:
		return "unknown"
	}
}

// WindowFrame is rolling(n), cumulative, or offset(k).
type WindowFrame struct {
	Kind WindowFrameKind
	N    int
}

// String returns the string representation of WindowFrame
func (f WindowFrame) String() string {
	switch f.Kind {
	case FrameCumulative:
		return "cumulative"
	default:
		return fmt.Sprintf("%s(%d)", f.Kind, f.N)
	}
}

// Window is a forward-compatible window operator. The current builder
// never emits it, and the executor rejects it as an unsupported node.
type Window struct {
	NodeID          string
	Input           string
	PartitionBy     []AttributeRef
	OrderBy         []AttributeRef
	Frame           WindowFrame
	WindowFunctions []NamedAggregate
}

func (Window) planNode() {}

func (w Window) ID() string { return w.NodeID }

func (w Window) Inputs() []string { return []string{w.Input} }

func (w Window) String() string {
	return fmt.Sprintf("Window(%s)", w.Frame)
}

// TransformKind identifies the shape of a transform.
type TransformKind uint8

const (
	TransformRowset TransformKind = iota
	TransformTable
)

// String returns the string representation of TransformKind
func (k TransformKind) String() string {
	if k == TransformTable {
		return "table"
	}
	return "rowset"
}

// Transform is a forward-compatible rowset/table transform operator.
type Transform struct {
	NodeID      string
	Input       string
	Kind        TransformKind
	TransformID string
	InputAttr   string
	OutputAttr  string
}

func (Transform) planNode() {}

func (t Transform) ID() string { return t.NodeID }

func (t Transform) Inputs() []string { return []string{t.Input} }

func (t Transform) String() string {
	return fmt.Sprintf("Transform[%s](%s)", t.Kind, t.TransformID)
}

// NamedExpr pairs an output name with an expression.
type NamedExpr struct {
	Name string
	Expr Expr
}

// Project computes named output expressions over its input.
type Project struct {
	NodeID  string
	Input   string
	Outputs []NamedExpr
}

func (Project) planNode() {}

func (p Project) ID() string { return p.NodeID }

func (p Project) Inputs() []string { return []string{p.Input} }

func (p Project) String() string {
	names := make([]string, len(p.Outputs))
	for i, out := range p.Outputs {
		names[i] = out.Name
	}
	return fmt.Sprintf("Project(%s)", strings.Join(names, ", "))
}

// Grain is the dimensional resolution of a plan's output.
type Grain struct {
	Dimensions []AttributeRef
	GrainID    string
}

// GrainID computes the canonical grain identifier: the lowercased,
// alphabetically sorted, comma-joined attribute IDs.
func GrainID(dims []AttributeRef) string {
	ids := make([]string, len(dims))
	for i, d := range dims {
		ids[i] = strings.ToLower(d.AttributeID)
	}
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

// MetricPlan is the per-metric slice of a query plan.
type MetricPlan struct {
	Name           string
	Expr           Expr
	BaseFact       string
	Dependencies   []string
	RequiredAttrs  []string
	ExecutionPhase int
}

// QueryPlan is the logical plan DAG plus the metric schedule.
type QueryPlan struct {
	RootID          string
	Nodes           map[string]PlanNode
	OutputGrain     Grain
	OutputMetrics   []string
	Metrics         map[string]*MetricPlan
	MetricEvalOrder []string
}

// Node resolves a node id.
func (p *QueryPlan) Node(id string) (PlanNode, bool) {
	n, ok := p.Nodes[id]
	return n, ok
}

// Root returns the root node.
func (p *QueryPlan) Root() (PlanNode, bool) {
	return p.Node(p.RootID)
}

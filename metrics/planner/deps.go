package planner

import (
	"github.com/jnyinglis/metricforge/metrics/logical"
)

// depColor is the DFS coloring state used for cycle detection.
type depColor uint8

const (
	white depColor = iota // unvisited
	gray                  // on the current DFS stack
	black                 // fully explored
)

// depGraph is the metric dependency graph induced on a query's metric
// list. Edges point from a metric to the metrics it references; deps
// outside the query list are dropped for scheduling.
type depGraph struct {
	order []string
	edges map[string][]string
}

// buildDepGraph walks each resolved metric expression and restricts the
// referenced metrics to the query's own list.
func buildDepGraph(names []string, exprs map[string]logical.Expr) *depGraph {
	inQuery := make(map[string]bool, len(names))
	for _, name := range names {
		inQuery[name] = true
	}

	g := &depGraph{edges: make(map[string][]string, len(names))}
	for _, name := range names {
		g.order = append(g.order, name)
		var deps []string
		for _, dep := range logical.Dependencies(exprs[name]) {
			if inQuery[dep] {
				deps = append(deps, dep)
			}
		}
		g.edges[name] = deps
	}
	return g
}

// detectCycle runs DFS coloring over the graph. A back-edge to a gray
// node yields the minimal cycle path.
func (g *depGraph) detectCycle() *CycleError {
	colors := make(map[string]depColor, len(g.order))
	var stack []string

	var visit func(name string) *CycleError
	visit = func(name string) *CycleError {
		colors[name] = gray
		stack = append(stack, name)

		for _, dep := range g.edges[name] {
			switch colors[dep] {
			case gray:
				// Back-edge: slice the stack from the first occurrence
				// of dep to close the cycle.
				for i, entry := range stack {
					if entry == dep {
						cycle := append([]string{}, stack[i:]...)
						cycle = append(cycle, dep)
						return &CycleError{Cycle: cycle}
					}
				}
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		stack = stack[:len(stack)-1]
		colors[name] = black
		return nil
	}

	for _, name := range g.order {
		if colors[name] == white {
			if err := visit(name); err != nil {
				return err
			}
		}
	}
	return nil
}

// assignPhases peels the graph iteratively: phase 0 holds metrics with no
// in-graph dependencies, phase k+1 holds metrics whose dependencies all
// sit in phases <= k. Input order is preserved within a phase. The caller
// must have run detectCycle first; peeling does not terminate on cycles.
func (g *depGraph) assignPhases() map[string]int {
	phases := make(map[string]int, len(g.order))
	assigned := make(map[string]bool, len(g.order))

	for phase := 0; len(assigned) < len(g.order); phase++ {
		var ready []string
		for _, name := range g.order {
			if assigned[name] {
				continue
			}
			ok := true
			for _, dep := range g.edges[name] {
				if !assigned[dep] {
					ok = false
					break
				}
			}
			if ok {
				ready = append(ready, name)
			}
		}
		for _, name := range ready {
			phases[name] = phase
			assigned[name] = true
		}
	}
	return phases
}

// evalOrder concatenates the phases in ascending order, preserving input
// order within each phase.
func (g *depGraph) evalOrder(phases map[string]int) []string {
	maxPhase := 0
	for _, p := range phases {
		if p > maxPhase {
			maxPhase = p
		}
	}
	var order []string
	for phase := 0; phase <= maxPhase; phase++ {
		for _, name := range g.order {
			if phases[name] == phase {
				order = append(order, name)
			}
		}
	}
	return order
}

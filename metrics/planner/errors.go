package planner

import (
	"fmt"
	"strings"
)

// CycleError reports a circular metric dependency. Cycle is the minimal
// closed path, starting and ending at the same metric.
type CycleError struct {
	Cycle []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return fmt.Sprintf("circular metric dependency: %s", strings.Join(e.Cycle, " -> "))
}

// StructuralErrorKind classifies a plan-construction failure.
type StructuralErrorKind uint8

const (
	NoBaseFact StructuralErrorKind = iota
	MissingJoinEdge
	MultipleBaseFacts
)

// StructuralError reports a query the builder cannot plan.
type StructuralError struct {
	Kind   StructuralErrorKind
	Detail string
}

// Error implements the error interface.
func (e *StructuralError) Error() string {
	switch e.Kind {
	case NoBaseFact:
		return fmt.Sprintf("no base fact: %s", e.Detail)
	case MissingJoinEdge:
		return fmt.Sprintf("missing join edge: %s", e.Detail)
	case MultipleBaseFacts:
		return fmt.Sprintf("multiple base facts: %s", e.Detail)
	default:
		return fmt.Sprintf("structural error: %s", e.Detail)
	}
}

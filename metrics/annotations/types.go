// Package annotations provides a low-overhead event system for tracking
// query planning and execution. A nil handler disables collection
// entirely; the core pipeline stays silent unless a caller attaches one.
package annotations

import "time"

// Event name constants following hierarchical naming pattern
const (
	// Query lifecycle
	QueryParsed    = "query/parsed"
	QueryCompleted = "query/completed"

	// Planning
	PlanCreated = "plan/created"
	PlanPhases  = "plan/phases"

	// Execution
	ExecScan     = "exec/scan"
	ExecJoin     = "exec/join"
	ExecFiltered = "exec/filtered"
	ExecGroups   = "exec/groups"

	// Errors
	ErrorParsing  = "error/query.parsing"
	ErrorPlanning = "error/query.planning"
)

// Event is a single annotation emitted during query processing.
type Event struct {
	Name    string
	Start   time.Time
	End     time.Time
	Latency time.Duration
	Data    map[string]interface{}
}

// Handler processes annotation events as they occur.
type Handler func(event Event)

// Collector accumulates events during query execution.
type Collector struct {
	enabled bool
	handler Handler
	events  []Event
}

// NewCollector creates a collector. A nil handler produces a disabled
// collector whose methods are no-ops.
func NewCollector(handler Handler) *Collector {
	return &Collector{
		enabled: handler != nil,
		handler: handler,
		events:  make([]Event, 0, 16),
	}
}

// Enabled reports whether events are being recorded.
func (c *Collector) Enabled() bool {
	return c != nil && c.enabled
}

// Add records an event and forwards it to the handler.
func (c *Collector) Add(event Event) {
	if !c.Enabled() {
		return
	}
	if event.Latency == 0 && !event.End.IsZero() {
		event.Latency = event.End.Sub(event.Start)
	}
	c.events = append(c.events, event)
	c.handler(event)
}

// AddTiming records a named event measured from start to now.
func (c *Collector) AddTiming(name string, start time.Time, data map[string]interface{}) {
	if !c.Enabled() {
		return
	}
	now := time.Now()
	c.Add(Event{
		Name:    name,
		Start:   start,
		End:     now,
		Latency: now.Sub(start),
		Data:    data,
	})
}

// Events returns the recorded events in order.
func (c *Collector) Events() []Event {
	if c == nil {
		return nil
	}
	return c.events
}

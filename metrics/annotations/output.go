package annotations

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
)

// OutputFormatter renders events for human-readable display.
type OutputFormatter struct {
	useColor bool
	writer   io.Writer
}

// NewOutputFormatter creates a formatter with color support detection.
func NewOutputFormatter(w io.Writer) *OutputFormatter {
	if w == nil {
		w = os.Stdout
	}
	// color.NoColor carries fatih/color's own terminal detection; only
	// real terminal files get colored output.
	useColor := false
	if _, ok := w.(*os.File); ok {
		useColor = !color.NoColor
	}
	return &OutputFormatter{useColor: useColor, writer: w}
}

// Handle implements the Handler signature; it prints events as they
// occur.
func (f *OutputFormatter) Handle(event Event) {
	if output := f.Format(event); output != "" {
		fmt.Fprintln(f.writer, output)
	}
}

// Format converts an event to a human-readable line.
func (f *OutputFormatter) Format(event Event) string {
	latency := f.formatLatency(event.Latency)

	switch event.Name {
	case QueryParsed:
		return fmt.Sprintf("%s %s %v", latency, f.colorize("parsed", color.FgGreen), event.Data["query"])

	case PlanCreated:
		return fmt.Sprintf("%s %s root=%v nodes=%v", latency,
			f.colorize("plan", color.FgCyan), event.Data["root"], event.Data["node_count"])

	case PlanPhases:
		return fmt.Sprintf("%s %s order=%v", latency,
			f.colorize("phases", color.FgCyan), event.Data["eval_order"])

	case ExecScan:
		return fmt.Sprintf("%s %s %v (%v rows)", latency,
			f.colorize("scan", color.FgBlue), event.Data["table"], event.Data["rows"])

	case ExecJoin:
		return fmt.Sprintf("%s %s %v ⋈ %v → %v rows", latency,
			f.colorize("join", color.FgBlue), event.Data["left_rows"], event.Data["right_rows"], event.Data["rows"])

	case ExecFiltered:
		return fmt.Sprintf("%s %s %v → %v rows", latency,
			f.colorize("filter", color.FgYellow), event.Data["before"], event.Data["after"])

	case ExecGroups:
		return fmt.Sprintf("%s %s %v groups", latency,
			f.colorize("group", color.FgMagenta), event.Data["groups"])

	case QueryCompleted:
		return fmt.Sprintf("%s %s %v rows", latency,
			f.colorize("done", color.FgGreen), event.Data["rows"])

	case ErrorParsing, ErrorPlanning:
		return fmt.Sprintf("%s %s %v", latency,
			f.colorize("✗", color.FgRed), event.Data["error"])
	}

	return fmt.Sprintf("%s %s", latency, event.Name)
}

func (f *OutputFormatter) formatLatency(d time.Duration) string {
	text := fmt.Sprintf("[%8s]", d.Round(time.Microsecond))
	if f.useColor {
		return color.HiBlackString(text)
	}
	return text
}

func (f *OutputFormatter) colorize(text string, attr color.Attribute) string {
	if !f.useColor {
		return text
	}
	return color.New(attr).Sprint(text)
}

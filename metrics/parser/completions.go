package parser

import "sort"

// CompletionContext carries the declared names an editor can offer.
type CompletionContext struct {
	Attributes []string
	Metrics    []string
	Facts      []string
	Dimensions []string
}

// Completions returns candidate tokens for the given cursor position: the
// union of DSL keywords, aggregate function names, and declared
// identifiers. No contextual filtering is applied; the position exists so
// editors can call this uniformly while typing.
func Completions(input string, pos int, ctx CompletionContext) []string {
	_ = input
	_ = pos

	seen := make(map[string]bool)
	var out []string
	add := func(names []string) {
		for _, name := range names {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}

	add(Keywords)
	add(AggregateFunctions)
	add([]string{"last_year"})
	add(ctx.Attributes)
	add(ctx.Metrics)
	add(ctx.Facts)
	add(ctx.Dimensions)

	sort.Strings(out)
	return out
}

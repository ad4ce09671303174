package executor

import (
	"github.com/jnyinglis/metricforge/metrics"
	"github.com/jnyinglis/metricforge/metrics/logical"
)

// computeAggregate evaluates one aggregate over a group's rows. The
// input expression is evaluated per row in scalar context; non-numeric
// values are skipped by sum/avg/min/max. Undefined results are nil.
func (ex *execution) computeAggregate(agg logical.Aggregate, rows []Row) interface{} {
	if ref, ok := agg.Input.(logical.AttributeRef); ok && ref.IsWildcard() {
		// count(*) counts rows surviving the pre-aggregate filters.
		if agg.Op == logical.AggCount {
			return float64(len(rows))
		}
		return nil
	}

	switch agg.Op {
	case logical.AggCount:
		n := 0
		for _, row := range rows {
			if v := ex.evalScalar(agg.Input, row); !metrics.IsNull(v) {
				n++
			}
		}
		return float64(n)

	case logical.AggCountDistinct:
		seen := make(map[string]bool)
		for _, row := range rows {
			v := ex.evalScalar(agg.Input, row)
			if metrics.IsNull(v) {
				continue
			}
			seen[metrics.EncodeKey([]interface{}{v})] = true
		}
		return float64(len(seen))

	case logical.AggSum:
		sum, any := 0.0, false
		for _, n := range ex.numericInputs(agg.Input, rows) {
			sum += n
			any = true
		}
		if !any {
			return nil
		}
		return sum

	case logical.AggAvg:
		sum, count := 0.0, 0
		for _, n := range ex.numericInputs(agg.Input, rows) {
			sum += n
			count++
		}
		if count == 0 {
			return nil
		}
		// avg divides through decimal like the / operator.
		v, ok := metrics.Divide(sum, float64(count))
		if !ok {
			return nil
		}
		return v

	case logical.AggMin:
		var best interface{}
		for _, n := range ex.numericInputs(agg.Input, rows) {
			if best == nil || n < best.(float64) {
				best = n
			}
		}
		return best

	case logical.AggMax:
		var best interface{}
		for _, n := range ex.numericInputs(agg.Input, rows) {
			if best == nil || n > best.(float64) {
				best = n
			}
		}
		return best
	}

	return nil
}

// numericInputs evaluates the input expression per row and keeps the
// numeric subset.
func (ex *execution) numericInputs(input logical.Expr, rows []Row) []float64 {
	out := make([]float64, 0, len(rows))
	for _, row := range rows {
		v := ex.evalScalar(input, row)
		if n, ok := metrics.ToNumber(v); ok {
			out = append(out, n)
		}
	}
	return out
}

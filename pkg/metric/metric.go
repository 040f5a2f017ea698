// Package metric defines the evaluation-metric capability consumed by the plot
// calculator, the aggregable Stats value and a set of built-in metrics.
//
// A metric is either additive (its Stats over a document range is the sum of
// the Stats over any partition of that range) or non-additive (it needs the
// complete prediction vector in one call). The two kinds are distinguished by
// tags, not by type hierarchy.
package metric

import (
	"github.com/Sumatoshi-tech/metricplot/pkg/pool"
)

// ErrorType tells whether a metric is computed per document or per pair.
type ErrorType int

const (
	// PerObject metrics sum a contribution from every document.
	PerObject ErrorType = iota
	// Pairwise metrics sum a contribution from every ranking pair.
	Pairwise
)

// String implements fmt.Stringer.
func (t ErrorType) String() string {
	switch t {
	case PerObject:
		return "PerObject"
	case Pairwise:
		return "Pairwise"
	default:
		return "Unknown"
	}
}

// Stats is the aggregable intermediate value of a metric: a weighted error sum
// and the total weight. Combining is associative.
type Stats struct {
	Error  float64 `json:"error"`
	Weight float64 `json:"weight"`
}

// Add combines other into s.
func (s *Stats) Add(other Stats) {
	s.Error += other.Error
	s.Weight += other.Weight
}

// Mean returns Error/Weight, or 0 when no weight was accumulated.
func (s Stats) Mean() float64 {
	if s.Weight == 0 {
		return 0
	}

	return s.Error / s.Weight
}

// Input is the read-only data a metric is evaluated on.
//
// Approx is indexed [dimension][document]. For per-object metrics Begin and
// End bound the documents evaluated. For pairwise metrics they bound the
// winner index of the pairs evaluated, so a document partition also
// partitions the pairs.
type Input struct {
	Approx [][]float64
	Target []float32
	Weight []float32
	Pairs  []pool.Pair
	Begin  int
	End    int
}

// DocCount returns the number of documents in Target.
func (in Input) DocCount() int {
	return len(in.Target)
}

// Metric is an evaluation metric capability.
type Metric interface {
	// Description is the metric's display name, including parameters.
	Description() string
	// IsAdditive reports whether Accumulate results may be summed across
	// document ranges and batches.
	IsAdditive() bool
	// ErrorType tells whether the metric needs documents or pairs.
	ErrorType() ErrorType
	// Accumulate evaluates the metric over in.Begin..in.End.
	Accumulate(in Input) Stats
	// EvaluateFull evaluates the metric over every document or pair in in.
	EvaluateFull(in Input) Stats
	// Finalize reduces accumulated Stats to the reported score.
	Finalize(s Stats) float64
}

// HigherIsBetter reports whether larger scores of m are better. Metrics that
// do not say so are minimized.
func HigherIsBetter(m Metric) bool {
	d, ok := m.(interface{ HigherIsBetter() bool })

	return ok && d.HigherIsBetter()
}

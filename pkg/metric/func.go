package metric

import (
	"github.com/Sumatoshi-tech/metricplot/pkg/pool"
)

// DocFunc returns the weighted error and weight contributed by one document.
type DocFunc func(in Input, doc int) (errSum, weight float64)

// PairFunc returns the weighted error and weight contributed by one pair.
type PairFunc func(in Input, pair pool.Pair) (errSum, weight float64)

// FinalFunc reduces Stats to a score.
type FinalFunc func(s Stats) float64

// Func is a Metric assembled from pure functions. Exactly one of Doc or Pair
// is used, selected by Type.
type Func struct {
	Name     string
	Additive bool
	Type     ErrorType
	// Maximize marks metrics where a larger score is better.
	Maximize bool
	Doc      DocFunc
	Pair     PairFunc
	Final    FinalFunc
}

var _ Metric = (*Func)(nil)

// Description implements Metric.
func (f *Func) Description() string { return f.Name }

// IsAdditive implements Metric.
func (f *Func) IsAdditive() bool { return f.Additive }

// ErrorType implements Metric.
func (f *Func) ErrorType() ErrorType { return f.Type }

// Accumulate implements Metric.
func (f *Func) Accumulate(in Input) Stats {
	if f.Type == Pairwise {
		return f.sumPairs(in, in.Begin, in.End)
	}

	return f.sumDocs(in, in.Begin, in.End)
}

// EvaluateFull implements Metric.
func (f *Func) EvaluateFull(in Input) Stats {
	if f.Type == Pairwise {
		return f.sumPairs(in, 0, in.DocCount())
	}

	return f.sumDocs(in, 0, in.DocCount())
}

// HigherIsBetter reports whether a larger score is better.
func (f *Func) HigherIsBetter() bool { return f.Maximize }

// Finalize implements Metric. Without a FinalFunc the weighted mean is used.
func (f *Func) Finalize(s Stats) float64 {
	if f.Final == nil {
		return s.Mean()
	}

	return f.Final(s)
}

func (f *Func) sumDocs(in Input, begin, end int) Stats {
	var s Stats

	if f.Doc == nil {
		return s
	}

	for doc := begin; doc < end; doc++ {
		e, w := f.Doc(in, doc)
		s.Error += e
		s.Weight += w
	}

	return s
}

func (f *Func) sumPairs(in Input, begin, end int) Stats {
	var s Stats

	if f.Pair == nil {
		return s
	}

	for _, pair := range in.Pairs {
		if pair.Winner < begin || pair.Winner >= end {
			continue
		}

		e, w := f.Pair(in, pair)
		s.Error += e
		s.Weight += w
	}

	return s
}

// Package report writes the outputs of a metric trajectory evaluation: TSV
// tables, a JSON event log, run metadata, a learning-curve page and a
// reloadable result snapshot.
package report

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/montanaflynn/stats"

	"github.com/Sumatoshi-tech/metricplot/pkg/metric"
)

// ErrShape is returned when a result's tables disagree on their dimensions.
var ErrShape = errors.New("result tables have mismatched shapes")

// Result is the complete outcome of one evaluation.
type Result struct {
	// Metrics holds metric descriptions in score-table order.
	Metrics []string
	// Maximize tells, per metric, whether a larger score is better.
	Maximize []bool
	// Iterations is the model iteration of every checkpoint.
	Iterations []int
	// Scores is indexed [metric][checkpoint].
	Scores [][]float64
	// Stats is indexed [metric][checkpoint].
	Stats [][]metric.Stats
}

// NewResult assembles a Result from the calculator's metric set and tables.
func NewResult(metrics []metric.Metric, iterations []int, scores [][]float64, partial [][]metric.Stats) (*Result, error) {
	res := &Result{
		Metrics:    make([]string, len(metrics)),
		Maximize:   make([]bool, len(metrics)),
		Iterations: slices.Clone(iterations),
		Scores:     scores,
		Stats:      partial,
	}

	for i, m := range metrics {
		res.Metrics[i] = m.Description()
		res.Maximize[i] = metric.HigherIsBetter(m)
	}

	err := res.Validate()
	if err != nil {
		return nil, err
	}

	return res, nil
}

// Validate checks that every table has one row per metric and one column per
// checkpoint.
func (r *Result) Validate() error {
	n := len(r.Metrics)
	if len(r.Maximize) != n || len(r.Scores) != n || len(r.Stats) != n {
		return fmt.Errorf("%w: %d metrics, %d directions, %d score rows, %d stat rows",
			ErrShape, n, len(r.Maximize), len(r.Scores), len(r.Stats))
	}

	for i := range n {
		if len(r.Scores[i]) != len(r.Iterations) || len(r.Stats[i]) != len(r.Iterations) {
			return fmt.Errorf("%w: %s has %d scores and %d stats for %d checkpoints",
				ErrShape, r.Metrics[i], len(r.Scores[i]), len(r.Stats[i]), len(r.Iterations))
		}
	}

	return nil
}

// Summary describes one metric's trajectory.
type Summary struct {
	Metric string
	// Best is the best finite score and BestIteration the model iteration
	// where it was first reached. BestIteration is -1 when no score is finite.
	Best          float64
	BestIteration int
	Mean          float64
	StdDev        float64
	Final         float64
}

// Summarize computes a Summary per metric.
func (r *Result) Summarize() []Summary {
	out := make([]Summary, len(r.Metrics))

	for i, name := range r.Metrics {
		out[i] = summarize(name, r.Maximize[i], r.Iterations, r.Scores[i])
	}

	return out
}

func summarize(name string, maximize bool, iterations []int, scores []float64) Summary {
	s := Summary{Metric: name, BestIteration: -1, Final: math.NaN()}

	if len(scores) > 0 {
		s.Final = scores[len(scores)-1]
	}

	finite := make(stats.Float64Data, 0, len(scores))
	for _, v := range scores {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}

	if len(finite) == 0 {
		s.Mean, s.StdDev = math.NaN(), math.NaN()

		return s
	}

	best, _ := finite.Min()
	if maximize {
		best, _ = finite.Max()
	}

	s.Best = best
	s.Mean, _ = finite.Mean()
	s.StdDev, _ = finite.StandardDeviation()

	for k, v := range scores {
		if v == best {
			s.BestIteration = iterations[k]

			break
		}
	}

	return s
}

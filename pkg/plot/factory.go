package plot

import (
	"github.com/Sumatoshi-tech/metricplot/pkg/metric"
)

// ResolveEnd maps a requested end iteration onto a model with treeCount
// iterations: 0 means all of them, and anything beyond is clamped.
func ResolveEnd(treeCount, end int) int {
	if end == 0 || end > treeCount {
		return treeCount
	}

	return end
}

// NewForModel creates a calculator over [begin, end) of model, where end is
// resolved with ResolveEnd. The range and step in opts are replaced.
func NewForModel(model Model, metrics []metric.Metric, begin, end, step int, opts Options) (*Calculator, error) {
	opts.First = begin
	opts.Last = ResolveEnd(model.TreeCount(), end)
	opts.Step = step

	return New(model, metrics, opts)
}

package report

import (
	"github.com/Sumatoshi-tech/metricplot/pkg/persist"
)

// LaunchModeEval marks metadata written by an evaluation run.
const LaunchModeEval = "Eval"

// MetricMeta is the per-metric entry of EvalMeta.
type MetricMeta struct {
	Name string `json:"name"`
	// BestValue is nil when the metric never produced a finite score.
	BestValue *float64 `json:"best_value,omitempty"`
	// BestIteration is the model iteration of the best value, or -1.
	BestIteration int `json:"best_iteration"`
}

// EvalMeta is the run metadata stored as eval.json.
type EvalMeta struct {
	IterationCount int          `json:"iteration_count"`
	LaunchMode     string       `json:"launch_mode"`
	Metrics        []MetricMeta `json:"metrics"`
	Tokens         []string     `json:"tokens"`
	Iterations     []int        `json:"iterations"`
}

var (
	metaPersister   = persist.NewPersister[EvalMeta]("eval", persist.NewJSONCodec())
	resultPersister = persist.NewPersister[Result]("result", persist.NewGobCodec())
)

// MetaFile is the name of the run metadata file.
func MetaFile() string { return metaPersister.Filename() }

// ResultFile is the name of the reloadable result snapshot.
func ResultFile() string { return resultPersister.Filename() }

// Meta builds the run metadata for r.
func (r *Result) Meta() *EvalMeta {
	meta := &EvalMeta{
		LaunchMode: LaunchModeEval,
		Metrics:    make([]MetricMeta, 0, len(r.Metrics)),
		Tokens:     []string{"eval_dataset"},
		Iterations: r.Iterations,
	}

	if n := len(r.Iterations); n > 0 {
		meta.IterationCount = r.Iterations[n-1] + 1
	}

	for _, s := range r.Summarize() {
		entry := MetricMeta{Name: s.Metric, BestIteration: s.BestIteration}
		if s.BestIteration >= 0 {
			best := s.Best
			entry.BestValue = &best
		}

		meta.Metrics = append(meta.Metrics, entry)
	}

	return meta
}

// LoadMeta reads eval.json from dir.
func LoadMeta(dir string) (*EvalMeta, error) {
	return metaPersister.Load(dir)
}

// Load reads the result snapshot written by Save from dir.
func Load(dir string) (*Result, error) {
	res, err := resultPersister.Load(dir)
	if err != nil {
		return nil, err
	}

	err = res.Validate()
	if err != nil {
		return nil, err
	}

	return res, nil
}

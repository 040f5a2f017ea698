// Package plot computes the trajectory of evaluation metrics over a range of
// model iterations.
//
// A Calculator walks the iteration range in steps, keeping a cursor of
// cumulative predictions. Additive metrics are accumulated at every checkpoint
// while the cursor is live. Non-additive metrics need the complete prediction
// vector, so each checkpoint's cursor is spilled to a spillstore.Store and
// evaluated in one deferred pass when Scores is first called.
package plot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/metricplot/pkg/executor"
	"github.com/Sumatoshi-tech/metricplot/pkg/metric"
	"github.com/Sumatoshi-tech/metricplot/pkg/observability"
	"github.com/Sumatoshi-tech/metricplot/pkg/pool"
	"github.com/Sumatoshi-tech/metricplot/pkg/spillstore"
)

// Sentinel errors returned by the calculator.
var (
	ErrInvalidStep       = errors.New("step must be positive")
	ErrUnsupportedMetric = errors.New("non-additive metric must be pairwise")
	ErrNoPairs           = errors.New("pairwise metric requires a non-empty pair list")
	ErrInvariant         = errors.New("plot invariant violated")
	ErrNoData            = errors.New("no dataset processed")
	ErrClosed            = errors.New("calculator is closed")
	ErrFailed            = errors.New("calculator failed earlier")
)

const tracerName = "metricplot"

// Model produces raw predictions for a contiguous range of its iterations.
type Model interface {
	// TreeCount is the number of iterations the model has.
	TreeCount() int
	// ApproxDimension is the number of prediction values per document.
	ApproxDimension() int
	// Apply returns the [dimension][document] contribution of iterations
	// [begin, end) for every document of p.
	Apply(ctx context.Context, exec *executor.Executor, p *pool.Pool, begin, end int) ([][]float64, error)
}

// Options configures a Calculator.
type Options struct {
	// First and Last bound the iteration range [First, Last).
	First int
	Last  int
	// Step is the number of iterations applied between checkpoints.
	Step int

	// Spill configures the store opened for non-additive metrics.
	Spill spillstore.Options
	// Store, when set, is used instead of opening one from Spill.
	// The calculator takes ownership and closes it.
	Store *spillstore.Store

	// Executor runs the data-parallel loops. Nil means one worker per CPU.
	Executor *executor.Executor

	Logger *slog.Logger
	// Tracer is the OTel tracer for calculator spans.
	// When nil, falls back to otel.Tracer("metricplot").
	Tracer    trace.Tracer
	Telemetry *observability.CalcMetrics
}

// Calculator accumulates per-checkpoint metric statistics for one model and
// a fixed set of metrics.
type Calculator struct {
	mu sync.Mutex

	model   Model
	metrics []metric.Metric
	first   int
	last    int
	step    int

	exec      *executor.Executor
	store     *spillstore.Store
	logger    *slog.Logger
	tracer    trace.Tracer
	telemetry *observability.CalcMetrics

	deferred   bool
	iterations []int
	// stats is indexed [metric][checkpoint ordinal].
	stats  [][]metric.Stats
	parts  int
	scores [][]float64
	closed bool
	// err is the first scan or deferred-pass failure. The trajectory is
	// invalid from then on.
	err error
}

// New creates a calculator over [opts.First, opts.Last) evaluating metrics.
// The metric set is fixed for the calculator's lifetime.
func New(model Model, metrics []metric.Metric, opts Options) (*Calculator, error) {
	if opts.Step <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidStep, opts.Step)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	exec := opts.Executor
	if exec == nil {
		exec = executor.New(0)
	}

	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	c := &Calculator{
		model:     model,
		metrics:   slices.Clone(metrics),
		first:     opts.First,
		last:      opts.Last,
		step:      opts.Step,
		exec:      exec,
		logger:    logger,
		tracer:    tracer,
		telemetry: opts.Telemetry,
		stats:     make([][]metric.Stats, len(metrics)),
	}

	c.deferred = slices.ContainsFunc(c.metrics, func(m metric.Metric) bool { return !m.IsAdditive() })

	if c.deferred {
		store := opts.Store
		if store == nil {
			spill := opts.Spill
			if spill.Logger == nil {
				spill.Logger = logger
			}

			var err error

			store, err = spillstore.Open(spill)
			if err != nil {
				return nil, fmt.Errorf("open spill store: %w", err)
			}
		}

		c.store = store
	} else if opts.Store != nil {
		c.store = opts.Store
	}

	return c, nil
}

// First returns the first model iteration of the range.
func (c *Calculator) First() int { return c.first }

// Last returns the end of the iteration range.
func (c *Calculator) Last() int { return c.last }

// Step returns the number of iterations between checkpoints.
func (c *Calculator) Step() int { return c.step }

// Metrics returns the evaluated metrics in score-table order.
func (c *Calculator) Metrics() []metric.Metric {
	return slices.Clone(c.metrics)
}

// Iterations returns the model iteration recorded for every checkpoint ordinal.
func (c *Calculator) Iterations() []int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return slices.Clone(c.iterations)
}

// PartialStats returns a copy of the accumulated [metric][checkpoint] stats.
// Stats of non-additive metrics are filled in once Scores has run.
func (c *Calculator) PartialStats() [][]metric.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([][]metric.Stats, len(c.stats))
	for i, row := range c.stats {
		out[i] = slices.Clone(row)
	}

	return out
}

// Close releases the spill store. Safe to call more than once.
func (c *Calculator) Close() error {
	c.mu.Lock()
	store := c.store
	c.store = nil
	c.closed = true
	c.mu.Unlock()

	if store == nil {
		return nil
	}

	err := store.Close()
	if err != nil {
		return fmt.Errorf("close spill store: %w", err)
	}

	return nil
}

// checkMetrics rejects metric kinds the deferred pass cannot evaluate.
func (c *Calculator) checkMetrics() error {
	for _, m := range c.metrics {
		if !m.IsAdditive() && m.ErrorType() != metric.Pairwise {
			return fmt.Errorf("%w: %s is %s", ErrUnsupportedMetric, m.Description(), m.ErrorType())
		}
	}

	return nil
}

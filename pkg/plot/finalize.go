package plot

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/metricplot/pkg/metric"
	"github.com/Sumatoshi-tech/metricplot/pkg/observability"
)

// Scores returns the score table indexed [metric][checkpoint ordinal].
//
// The first call evaluates non-additive metrics over every spilled snapshot,
// then finalizes all stats. Later calls return the cached table until
// another dataset part is processed.
func (c *Calculator) Scores(ctx context.Context) ([][]float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	if c.err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailed, c.err)
	}

	if c.parts == 0 || len(c.iterations) == 0 {
		return nil, ErrNoData
	}

	if c.scores == nil {
		if c.deferred {
			err := c.deferredPass(ctx)
			if err != nil {
				c.err = err

				return nil, err
			}
		}

		scores, err := c.finalize()
		if err != nil {
			return nil, err
		}

		c.scores = scores
	}

	out := make([][]float64, len(c.scores))
	for i, row := range c.scores {
		out[i] = slices.Clone(row)
	}

	return out, nil
}

// deferredPass reads every checkpoint's snapshot back in order and evaluates
// the non-additive metrics over the full document range.
func (c *Calculator) deferredPass(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "metricplot.plot.deferred",
		trace.WithAttributes(
			attribute.Int("plot.checkpoints", len(c.iterations)),
			attribute.Int("plot.docs", c.store.DocCount()),
		))
	defer span.End()

	start := time.Now()

	err := c.evaluateDeferred(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return err
	}

	duration := time.Since(start)

	c.telemetry.RecordPass(ctx, observability.PassStats{
		Pass:        observability.PassDeferred,
		Checkpoints: len(c.iterations),
		Duration:    duration,
	})

	c.logger.InfoContext(ctx, "plot: deferred pass done",
		"checkpoints", len(c.iterations),
		"docs", c.store.DocCount(),
		"duration", duration.Round(time.Millisecond),
	)

	return nil
}

func (c *Calculator) evaluateDeferred(ctx context.Context) error {
	pairs := c.store.Pairs()

	for _, m := range c.metrics {
		if !m.IsAdditive() && m.ErrorType() == metric.Pairwise && len(pairs) == 0 {
			return fmt.Errorf("%w: %s", ErrNoPairs, m.Description())
		}
	}

	dimension := c.model.ApproxDimension()

	for ordinal := range c.iterations {
		err := ctx.Err()
		if err != nil {
			return fmt.Errorf("deferred checkpoint %d: %w", ordinal, err)
		}

		approx, err := c.store.Read(ordinal, dimension)
		if err != nil {
			return fmt.Errorf("deferred checkpoint %d: %w", ordinal, err)
		}

		in := metric.Input{
			Approx: approx,
			Target: c.store.Target(),
			Weight: c.store.Weight(),
			Pairs:  pairs,
			Begin:  0,
			End:    c.store.DocCount(),
		}

		for i, m := range c.metrics {
			if m.IsAdditive() {
				continue
			}

			c.stats[i][ordinal] = m.EvaluateFull(in)
		}
	}

	return nil
}

// finalize reduces every (metric, checkpoint) stat to a score.
func (c *Calculator) finalize() ([][]float64, error) {
	scores := make([][]float64, len(c.metrics))

	for i, m := range c.metrics {
		if len(c.stats[i]) != len(c.iterations) {
			return nil, fmt.Errorf("%w: %s has %d checkpoints, plot has %d",
				ErrInvariant, m.Description(), len(c.stats[i]), len(c.iterations))
		}

		scores[i] = make([]float64, len(c.iterations))
		for k, s := range c.stats[i] {
			scores[i][k] = m.Finalize(s)
		}
	}

	return scores, nil
}

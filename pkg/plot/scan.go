package plot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/metricplot/pkg/executor"
	"github.com/Sumatoshi-tech/metricplot/pkg/metric"
	"github.com/Sumatoshi-tech/metricplot/pkg/observability"
	"github.com/Sumatoshi-tech/metricplot/pkg/pool"
	"github.com/Sumatoshi-tech/metricplot/pkg/safeconv"
)

// ProcessDataset scans the iteration range over p, accumulating additive
// metrics at every checkpoint and spilling the cursor for non-additive ones.
//
// It may be called again with further parts of the same dataset: additive
// stats are summed per checkpoint and spilled snapshots are extended, so the
// result equals a single call over the concatenated parts.
//
// Any failure leaves the calculator failed: later ProcessDataset and Scores
// calls return ErrFailed wrapping the first error.
func (c *Calculator) ProcessDataset(ctx context.Context, p *pool.Pool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return fmt.Errorf("%w: %w", ErrFailed, c.err)
	}

	ctx = observability.WithPart(ctx, c.parts)

	ctx, span := c.tracer.Start(ctx, "metricplot.plot.scan",
		trace.WithAttributes(
			attribute.Int("plot.docs", p.DocCount()),
			attribute.Int("plot.first", c.first),
			attribute.Int("plot.last", c.last),
			attribute.Int("plot.step", c.step),
			attribute.Int("plot.part", c.parts),
		))
	defer span.End()

	start := time.Now()

	written, checkpoints, err := c.scan(ctx, p)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		if !errors.Is(err, ErrClosed) {
			c.err = err
		}

		return err
	}

	c.parts++
	c.scores = nil

	duration := time.Since(start)
	span.SetAttributes(attribute.Int("plot.checkpoints", checkpoints))

	c.telemetry.RecordPass(ctx, observability.PassStats{
		Pass:        observability.PassScan,
		Checkpoints: checkpoints,
		SpillBytes:  written,
		Duration:    duration,
	})

	c.logger.InfoContext(ctx, "plot: dataset processed",
		"docs", p.DocCount(),
		"checkpoints", checkpoints,
		"spilled", humanize.Bytes(safeconv.MustInt64ToUint64(written)),
		"duration", duration.Round(time.Millisecond),
	)

	return nil
}

// scan runs the batch loop and returns the spilled byte count and the number
// of checkpoints emitted.
func (c *Calculator) scan(ctx context.Context, p *pool.Pool) (int64, int, error) {
	if c.closed {
		return 0, 0, ErrClosed
	}

	err := c.checkMetrics()
	if err != nil {
		return 0, 0, err
	}

	docCount := p.DocCount()

	cursor := make([][]float64, c.model.ApproxDimension())
	for dim := range cursor {
		cursor[dim] = make([]float64, docCount)
	}

	var written int64

	ordinal := 0
	iteration := c.first

	emit := func() error {
		err := ctx.Err()
		if err != nil {
			return fmt.Errorf("checkpoint %d: %w", ordinal, err)
		}

		n, err := c.checkpoint(ctx, ordinal, iteration, cursor, p)
		written += n

		return err
	}

	for batchStart := c.first; batchStart < c.last; {
		batchEnd := batchStart + min(c.step, c.last-batchStart)

		err = emit()
		if err != nil {
			return written, ordinal, err
		}

		var contribution [][]float64

		contribution, err = c.model.Apply(ctx, c.exec, p, batchStart, batchEnd)
		if err != nil {
			return written, ordinal, fmt.Errorf("apply model [%d, %d): %w", batchStart, batchEnd, err)
		}

		err = addInto(ctx, c.exec, cursor, contribution)
		if err != nil {
			return written, ordinal, err
		}

		iteration = batchEnd
		ordinal++
		batchStart = batchEnd
	}

	err = emit()
	if err != nil {
		return written, ordinal, err
	}

	if ordinal+1 != len(c.iterations) {
		return written, ordinal + 1, fmt.Errorf("%w: part produced %d checkpoints, plot has %d",
			ErrInvariant, ordinal+1, len(c.iterations))
	}

	return written, ordinal + 1, nil
}

// checkpoint records the iteration for ordinal, accumulates every additive
// metric over the cursor and spills the cursor when a deferred pass is needed.
func (c *Calculator) checkpoint(ctx context.Context, ordinal, iteration int, cursor [][]float64, p *pool.Pool) (int64, error) {
	err := c.recordIteration(ordinal, iteration)
	if err != nil {
		return 0, err
	}

	in := metric.Input{
		Approx: cursor,
		Target: p.Target,
		Weight: p.Weight,
		Pairs:  p.Pairs,
		Begin:  0,
		End:    p.DocCount(),
	}

	for i, m := range c.metrics {
		if !m.IsAdditive() {
			continue
		}

		if m.ErrorType() == metric.Pairwise && len(p.Pairs) == 0 {
			return 0, fmt.Errorf("%w: %s", ErrNoPairs, m.Description())
		}

		s, err := accumulate(ctx, c.exec, m, in)
		if err != nil {
			return 0, fmt.Errorf("accumulate %s at checkpoint %d: %w", m.Description(), ordinal, err)
		}

		c.stats[i][ordinal].Add(s)
	}

	if !c.deferred {
		return 0, nil
	}

	if ordinal == 0 {
		c.store.Capture(p.Target, p.Weight, p.Pairs)
	}

	n, err := c.store.Write(ordinal, cursor)
	if err != nil {
		return n, fmt.Errorf("spill checkpoint %d: %w", ordinal, err)
	}

	return n, nil
}

// recordIteration appends a checkpoint slot on the first part and checks that
// later parts see the same iteration at the same ordinal.
func (c *Calculator) recordIteration(ordinal, iteration int) error {
	switch {
	case ordinal == len(c.iterations) && c.parts == 0:
		c.iterations = append(c.iterations, iteration)

		for i := range c.stats {
			c.stats[i] = append(c.stats[i], metric.Stats{})
		}

		return nil
	case ordinal < len(c.iterations) && c.iterations[ordinal] == iteration:
		return nil
	case ordinal < len(c.iterations):
		return fmt.Errorf("%w: checkpoint %d is iteration %d, previously %d",
			ErrInvariant, ordinal, iteration, c.iterations[ordinal])
	default:
		return fmt.Errorf("%w: checkpoint %d beyond plot size %d", ErrInvariant, ordinal, len(c.iterations))
	}
}

// accumulate evaluates an additive metric as partial sums over document
// blocks, combined in block order.
func accumulate(ctx context.Context, exec *executor.Executor, m metric.Metric, in metric.Input) (metric.Stats, error) {
	blockSize := exec.BlockSize()
	partials := make([]metric.Stats, executor.Blocks(in.Begin, in.End, blockSize))

	err := exec.ExecRange(ctx, in.Begin, in.End, blockSize, func(_ context.Context, blockBegin, blockEnd int) error {
		block := in
		block.Begin, block.End = blockBegin, blockEnd
		partials[(blockBegin-in.Begin)/blockSize] = m.Accumulate(block)

		return nil
	})
	if err != nil {
		return metric.Stats{}, err
	}

	var total metric.Stats
	for _, s := range partials {
		total.Add(s)
	}

	return total, nil
}

// addInto adds contribution into cursor element-wise, in parallel over
// documents.
func addInto(ctx context.Context, exec *executor.Executor, cursor, contribution [][]float64) error {
	if len(contribution) != len(cursor) {
		return fmt.Errorf("%w: contribution dimension %d, cursor %d", ErrInvariant, len(contribution), len(cursor))
	}

	for dim := range cursor {
		if len(contribution[dim]) != len(cursor[dim]) {
			return fmt.Errorf("%w: contribution has %d documents, cursor %d",
				ErrInvariant, len(contribution[dim]), len(cursor[dim]))
		}
	}

	if len(cursor) == 0 {
		return nil
	}

	return exec.ParallelFor(ctx, 0, len(cursor[0]), func(doc int) {
		for dim := range cursor {
			cursor[dim][doc] += contribution[dim][doc]
		}
	})
}

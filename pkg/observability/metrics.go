package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricCheckpointsTotal = "metricplot.checkpoints.total"
	metricSpillBytesTotal  = "metricplot.spill.bytes.total"
	metricPassDuration     = "metricplot.pass.duration.seconds"

	attrPass = "pass"

	// PassScan labels the forward checkpoint scan.
	PassScan = "scan"
	// PassDeferred labels the deferred full-vector pass.
	PassDeferred = "deferred"
)

// durationBucketBoundaries covers 1ms to 600s, from toy datasets to
// multi-million document evaluations.
var durationBucketBoundaries = []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600}

// CalcMetrics holds OTel instruments for the plot calculator.
type CalcMetrics struct {
	checkpointsTotal metric.Int64Counter
	spillBytesTotal  metric.Int64Counter
	passDuration     metric.Float64Histogram
}

// PassStats describes one completed calculator pass.
type PassStats struct {
	Pass        string
	Checkpoints int
	SpillBytes  int64
	Duration    time.Duration
}

// NewCalcMetrics creates calculator instruments from the given meter.
func NewCalcMetrics(mt metric.Meter) (*CalcMetrics, error) {
	checkpoints, err := mt.Int64Counter(metricCheckpointsTotal,
		metric.WithDescription("Checkpoints evaluated"),
		metric.WithUnit("{checkpoint}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricCheckpointsTotal, err)
	}

	spillBytes, err := mt.Int64Counter(metricSpillBytesTotal,
		metric.WithDescription("Bytes written to the spill store"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricSpillBytesTotal, err)
	}

	passDur, err := mt.Float64Histogram(metricPassDuration,
		metric.WithDescription("Calculator pass duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricPassDuration, err)
	}

	return &CalcMetrics{
		checkpointsTotal: checkpoints,
		spillBytesTotal:  spillBytes,
		passDuration:     passDur,
	}, nil
}

// RecordPass records statistics for a completed pass.
// Safe to call on a nil receiver (no-op).
func (cm *CalcMetrics) RecordPass(ctx context.Context, stats PassStats) {
	if cm == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(attrPass, stats.Pass))

	cm.checkpointsTotal.Add(ctx, int64(stats.Checkpoints), attrs)
	cm.passDuration.Record(ctx, stats.Duration.Seconds(), attrs)

	if stats.SpillBytes > 0 {
		cm.spillBytesTotal.Add(ctx, stats.SpillBytes)
	}
}

package plot_test

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Sumatoshi-tech/metricplot/pkg/executor"
	"github.com/Sumatoshi-tech/metricplot/pkg/metric"
	"github.com/Sumatoshi-tech/metricplot/pkg/observability"
	"github.com/Sumatoshi-tech/metricplot/pkg/plot"
	"github.com/Sumatoshi-tech/metricplot/pkg/pool"
	"github.com/Sumatoshi-tech/metricplot/pkg/spillstore"
)

const (
	tolerance = 1e-9
	idColumn  = "id"
)

// tableModel adds trees[t][dim][id] to the document whose id feature is id.
type tableModel struct {
	trees [][][]float64
}

func (m *tableModel) TreeCount() int { return len(m.trees) }

func (m *tableModel) ApproxDimension() int { return len(m.trees[0]) }

func (m *tableModel) Apply(_ context.Context, _ *executor.Executor, p *pool.Pool, begin, end int) ([][]float64, error) {
	ids := p.Features[idColumn]

	out := make([][]float64, m.ApproxDimension())
	for dim := range out {
		out[dim] = make([]float64, p.DocCount())
		for doc := range out[dim] {
			for t := begin; t < end; t++ {
				out[dim][doc] += m.trees[t][dim][int(ids[doc])]
			}
		}
	}

	return out, nil
}

// newTableModel builds treeCount trees over docs documents with deterministic
// pseudo-random leaf values.
// failingModel fails Apply for pools of failDocs documents once the batch
// reaches failAt.
type failingModel struct {
	*tableModel
	failDocs int
	failAt   int
}

var errApply = errors.New("apply failed")

func (m *failingModel) Apply(ctx context.Context, exec *executor.Executor, p *pool.Pool, begin, end int) ([][]float64, error) {
	if p.DocCount() == m.failDocs && begin >= m.failAt {
		return nil, errApply
	}

	return m.tableModel.Apply(ctx, exec, p, begin, end)
}

func newTableModel(treeCount, dimension, docs int) *tableModel {
	trees := make([][][]float64, treeCount)
	for t := range trees {
		trees[t] = make([][]float64, dimension)
		for dim := range trees[t] {
			trees[t][dim] = make([]float64, docs)
			for doc := range trees[t][dim] {
				trees[t][dim][doc] = math.Sin(float64(t*31+dim*7+doc*3)) / 4
			}
		}
	}

	return &tableModel{trees: trees}
}

func newPool(target []float32) *pool.Pool {
	p := pool.New(target)

	ids := make([]float32, len(target))
	for i := range ids {
		ids[i] = float32(i)
	}

	p.Features[idColumn] = ids

	return p
}

func binaryPool(docs int) *pool.Pool {
	target := make([]float32, docs)
	for i := range target {
		target[i] = float32(i % 2)
	}

	p := newPool(target)
	for i := range p.Weight {
		p.Weight[i] = float32(1 + i%3)
	}

	for i := 0; i+1 < docs; i += 2 {
		p.Pairs = append(p.Pairs, pool.Pair{Winner: i + 1, Loser: i, Weight: 1})
	}

	return p
}

func memoryOptions(first, last, step int) plot.Options {
	return plot.Options{
		First:    first,
		Last:     last,
		Step:     step,
		Spill:    spillstore.Options{Backend: spillstore.BackendMemory},
		Executor: executor.New(3).WithBlockSize(2),
	}
}

func run(t *testing.T, m plot.Model, metrics []metric.Metric, opts plot.Options, parts ...*pool.Pool) (*plot.Calculator, [][]float64) {
	t.Helper()

	calc, err := plot.New(m, metrics, opts)
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, calc.Close()) })

	for _, p := range parts {
		require.NoError(t, calc.ProcessDataset(context.Background(), p))
	}

	scores, err := calc.Scores(context.Background())
	require.NoError(t, err)

	return calc, scores
}

func TestEndToEnd_MAE(t *testing.T) {
	t.Parallel()

	target := []float32{1, 0, 1, 0}
	trees := make([][][]float64, 10)

	for i := range trees {
		trees[i] = [][]float64{{0.1, 0, 0.1, 0}}
	}

	calc, scores := run(t, &tableModel{trees: trees}, []metric.Metric{metric.NewMAE()},
		memoryOptions(0, 10, 5), newPool(target))

	assert.Equal(t, []int{0, 5, 10}, calc.Iterations())
	require.Len(t, scores, 1)
	assert.InDeltaSlice(t, []float64{0.5, 0.25, 0}, scores[0], tolerance)

	stats := calc.PartialStats()
	assert.InDelta(t, 2.0, stats[0][0].Error, tolerance)
	assert.InDelta(t, 4.0, stats[0][0].Weight, tolerance)
}

func TestCheckpointCount(t *testing.T) {
	t.Parallel()

	m := newTableModel(12, 1, 3)

	tests := []struct {
		first, last, step int
		want              []int
	}{
		{first: 0, last: 10, step: 1, want: []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}},
		{first: 0, last: 10, step: 3, want: []int{0, 3, 6, 9, 10}},
		{first: 0, last: 10, step: 4, want: []int{0, 4, 8, 10}},
		{first: 0, last: 10, step: 10, want: []int{0, 10}},
		{first: 0, last: 10, step: 11, want: []int{0, 10}},
		{first: 2, last: 7, step: 2, want: []int{2, 4, 6, 7}},
		{first: 5, last: 5, step: 1, want: []int{5}},
		{first: 6, last: 3, step: 2, want: []int{6}},
		{first: 0, last: 10, step: math.MaxInt, want: []int{0, 10}},
		{first: 3, last: 10, step: math.MaxInt - 1, want: []int{3, 10}},
	}

	for _, tt := range tests {
		calc, scores := run(t, m, []metric.Metric{metric.NewRMSE()},
			memoryOptions(tt.first, tt.last, tt.step), newPool([]float32{1, 2, 3}))

		assert.Equal(t, tt.want, calc.Iterations(), "first=%d last=%d step=%d", tt.first, tt.last, tt.step)
		assert.Len(t, scores[0], len(tt.want))

		if tt.first == 0 {
			assert.Len(t, tt.want, (tt.last+tt.step-1)/tt.step+1)
		}
	}
}

func TestAdditiveEquivalenceAcrossSteps(t *testing.T) {
	t.Parallel()

	const docs = 9

	m := newTableModel(10, 1, docs)
	p := binaryPool(docs)
	metrics := []metric.Metric{metric.NewRMSE(), metric.NewLogloss(), metric.NewPairLogit()}

	baseCalc, base := run(t, m, metrics, memoryOptions(0, 10, 1), p)
	byIteration := make(map[int]int)

	for ordinal, iteration := range baseCalc.Iterations() {
		byIteration[iteration] = ordinal
	}

	for _, step := range []int{2, 3, 5, 10} {
		calc, scores := run(t, m, metrics, memoryOptions(0, 10, step), p)

		for ordinal, iteration := range calc.Iterations() {
			baseOrdinal := byIteration[iteration]

			for i := range metrics {
				assert.InDelta(t, base[i][baseOrdinal], scores[i][ordinal], tolerance,
					"%s step=%d iteration=%d", metrics[i].Description(), step, iteration)
			}
		}
	}
}

func TestNonAdditiveDeferral(t *testing.T) {
	t.Parallel()

	const docs = 8

	m := newTableModel(6, 1, docs)
	p := binaryPool(docs)
	p.Pairs = append(p.Pairs, pool.Pair{Winner: 0, Loser: 7, Weight: 2}, pool.Pair{Winner: 5, Loser: 2, Weight: 0.5})

	pairAccuracy := metric.NewPairAccuracy()

	for _, backend := range []string{spillstore.BackendMemory, spillstore.BackendFile, spillstore.BackendBadger} {
		opts := memoryOptions(0, 6, 2)
		opts.Spill = spillstore.Options{Backend: backend, Dir: filepath.Join(t.TempDir(), "spill"), Compress: backend == spillstore.BackendFile}

		calc, scores := run(t, m, []metric.Metric{metric.NewMAE(), pairAccuracy}, opts, p)

		for ordinal, iteration := range calc.Iterations() {
			approx, err := m.Apply(context.Background(), nil, p, 0, iteration)
			require.NoError(t, err)

			want := pairAccuracy.Finalize(pairAccuracy.EvaluateFull(metric.Input{
				Approx: approx,
				Target: p.Target,
				Weight: p.Weight,
				Pairs:  p.Pairs,
				End:    docs,
			}))

			assert.InDelta(t, want, scores[1][ordinal], tolerance, "%s iteration %d", backend, iteration)
		}

		again, err := calc.Scores(context.Background())
		require.NoError(t, err)
		assert.Equal(t, scores, again)
	}
}

func TestMultiPartEqualsSinglePass(t *testing.T) {
	t.Parallel()

	const docs = 10

	m := newTableModel(7, 2, docs)
	p := binaryPool(docs)

	metrics := []metric.Metric{metric.NewMultiClass(), metric.NewAccuracy(metric.DefaultAccuracyBorder), metric.NewPairAccuracy()}

	_, whole := run(t, m, metrics, memoryOptions(0, 7, 3), p)

	parts, dropped, err := p.Split(4)
	require.NoError(t, err)
	require.Len(t, parts, 3)
	assert.Equal(t, 0, dropped)

	calc, split := run(t, m, metrics, memoryOptions(0, 7, 3), parts...)

	assert.Equal(t, []int{0, 3, 6, 7}, calc.Iterations())

	for i := range metrics {
		assert.InDeltaSlice(t, whole[i], split[i], tolerance, metrics[i].Description())
	}
}

func TestPairwiseWithoutPairs(t *testing.T) {
	t.Parallel()

	m := newTableModel(4, 1, 3)
	p := newPool([]float32{0, 1, 0})

	calc, err := plot.New(m, []metric.Metric{metric.NewPairAccuracy()}, memoryOptions(0, 4, 2))
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, calc.Close()) })

	require.NoError(t, calc.ProcessDataset(context.Background(), p))

	_, err = calc.Scores(context.Background())
	require.ErrorIs(t, err, plot.ErrNoPairs)

	additive, err := plot.New(m, []metric.Metric{metric.NewPairLogit()}, memoryOptions(0, 4, 2))
	require.NoError(t, err)

	err = additive.ProcessDataset(context.Background(), p)
	require.ErrorIs(t, err, plot.ErrNoPairs)
	require.NoError(t, additive.Close())
}

func TestUnsupportedMetric(t *testing.T) {
	t.Parallel()

	perObject := &metric.Func{
		Name:     "Median",
		Additive: false,
		Type:     metric.PerObject,
		Doc:      func(metric.Input, int) (float64, float64) { return 0, 1 },
	}

	calc, err := plot.New(newTableModel(2, 1, 2), []metric.Metric{perObject}, memoryOptions(0, 2, 1))
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, calc.Close()) })

	err = calc.ProcessDataset(context.Background(), newPool([]float32{0, 1}))
	require.ErrorIs(t, err, plot.ErrUnsupportedMetric)
}

func TestNew_InvalidStep(t *testing.T) {
	t.Parallel()

	for _, step := range []int{0, -3} {
		_, err := plot.New(newTableModel(2, 1, 2), []metric.Metric{metric.NewMAE()}, memoryOptions(0, 2, step))
		require.ErrorIs(t, err, plot.ErrInvalidStep)
	}
}

func TestScores_Errors(t *testing.T) {
	t.Parallel()

	calc, err := plot.New(newTableModel(2, 1, 2), []metric.Metric{metric.NewMAE()}, memoryOptions(0, 2, 1))
	require.NoError(t, err)

	_, err = calc.Scores(context.Background())
	require.ErrorIs(t, err, plot.ErrNoData)

	require.NoError(t, calc.Close())
	require.NoError(t, calc.Close())

	_, err = calc.Scores(context.Background())
	require.ErrorIs(t, err, plot.ErrClosed)

	err = calc.ProcessDataset(context.Background(), newPool([]float32{0, 1}))
	require.ErrorIs(t, err, plot.ErrClosed)
}

func TestProcessDataset_Cancelled(t *testing.T) {
	t.Parallel()

	calc, err := plot.New(newTableModel(2, 1, 2), []metric.Metric{metric.NewMAE()}, memoryOptions(0, 2, 1))
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, calc.Close()) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = calc.ProcessDataset(ctx, newPool([]float32{0, 1}))
	require.ErrorIs(t, err, context.Canceled)
}

func TestProcessDataset_FailedPartInvalidatesTrajectory(t *testing.T) {
	t.Parallel()

	m := &failingModel{tableModel: newTableModel(4, 1, 3), failDocs: 3, failAt: 2}
	metrics := []metric.Metric{metric.NewMAE(), metric.NewPairAccuracy()}

	calc, err := plot.New(m, metrics, memoryOptions(0, 4, 1))
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, calc.Close()) })

	ctx := context.Background()

	require.NoError(t, calc.ProcessDataset(ctx, binaryPool(2)))

	err = calc.ProcessDataset(ctx, binaryPool(3))
	require.ErrorIs(t, err, errApply)

	scores, err := calc.Scores(ctx)
	require.ErrorIs(t, err, plot.ErrFailed)
	require.ErrorIs(t, err, errApply)
	assert.Nil(t, scores)

	err = calc.ProcessDataset(ctx, binaryPool(2))
	require.ErrorIs(t, err, plot.ErrFailed)

	_, err = calc.Scores(ctx)
	require.ErrorIs(t, err, plot.ErrFailed)
}

func TestScores_DeferredFailureIsSticky(t *testing.T) {
	t.Parallel()

	calc, err := plot.New(newTableModel(2, 1, 2), []metric.Metric{metric.NewPairAccuracy()}, memoryOptions(0, 2, 1))
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, calc.Close()) })

	require.NoError(t, calc.ProcessDataset(context.Background(), newPool([]float32{0, 1})))

	_, err = calc.Scores(context.Background())
	require.ErrorIs(t, err, plot.ErrNoPairs)

	_, err = calc.Scores(context.Background())
	require.ErrorIs(t, err, plot.ErrFailed)
	require.ErrorIs(t, err, plot.ErrNoPairs)
}

func TestResolveEnd(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 10, plot.ResolveEnd(10, 0))
	assert.Equal(t, 10, plot.ResolveEnd(10, 25))
	assert.Equal(t, 4, plot.ResolveEnd(10, 4))
	assert.Equal(t, 10, plot.ResolveEnd(10, 10))
}

func TestNewForModel(t *testing.T) {
	t.Parallel()

	m := newTableModel(6, 1, 2)

	calc, err := plot.NewForModel(m, []metric.Metric{metric.NewMAE()}, 1, 0, 2, memoryOptions(0, 0, 0))
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, calc.Close()) })

	assert.Equal(t, 1, calc.First())
	assert.Equal(t, 6, calc.Last())
	assert.Equal(t, 2, calc.Step())

	require.NoError(t, calc.ProcessDataset(context.Background(), newPool([]float32{0, 1})))
	assert.Equal(t, []int{1, 3, 5, 6}, calc.Iterations())

	_, err = plot.NewForModel(m, nil, 0, 0, 0, plot.Options{})
	require.ErrorIs(t, err, plot.ErrInvalidStep)
}

func TestTelemetry(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	cm, err := observability.NewCalcMetrics(mp.Meter("test"))
	require.NoError(t, err)

	opts := memoryOptions(0, 4, 2)
	opts.Telemetry = cm

	p := binaryPool(4)
	run(t, newTableModel(4, 1, 4), []metric.Metric{metric.NewPairAccuracy()}, opts, p)

	var rm metricdata.ResourceMetrics

	require.NoError(t, reader.Collect(context.Background(), &rm))

	var checkpoints, spilled int64

	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			sum, ok := md.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}

			for _, dp := range sum.DataPoints {
				switch md.Name {
				case "metricplot.checkpoints.total":
					checkpoints += dp.Value
				case "metricplot.spill.bytes.total":
					spilled += dp.Value
				}
			}
		}
	}

	assert.Equal(t, int64(6), checkpoints)
	assert.Equal(t, int64(3*4*8), spilled)
}

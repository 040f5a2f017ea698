package metric_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/metricplot/pkg/metric"
	"github.com/Sumatoshi-tech/metricplot/pkg/pool"
)

const tolerance = 1e-9

func input(approx []float64, target []float32) metric.Input {
	weight := make([]float32, len(target))
	for i := range weight {
		weight[i] = 1
	}

	return metric.Input{
		Approx: [][]float64{approx},
		Target: target,
		Weight: weight,
		Begin:  0,
		End:    len(target),
	}
}

func TestStats_Add(t *testing.T) {
	t.Parallel()

	s := metric.Stats{Error: 1, Weight: 2}
	s.Add(metric.Stats{Error: 3, Weight: 4})

	assert.Equal(t, metric.Stats{Error: 4, Weight: 6}, s)
	assert.InDelta(t, 4.0/6.0, s.Mean(), tolerance)
	assert.Zero(t, metric.Stats{}.Mean())
}

func TestMAE(t *testing.T) {
	t.Parallel()

	m := metric.NewMAE()
	in := input([]float64{0.5, 0.5, 2, 0}, []float32{1, 0, 1, 0})

	s := m.Accumulate(in)
	assert.InDelta(t, 2.0, s.Error, tolerance)
	assert.InDelta(t, 4.0, s.Weight, tolerance)
	assert.InDelta(t, 0.5, m.Finalize(s), tolerance)
	assert.True(t, m.IsAdditive())
	assert.Equal(t, metric.PerObject, m.ErrorType())
}

func TestRMSE(t *testing.T) {
	t.Parallel()

	m := metric.NewRMSE()
	in := input([]float64{1, 3}, []float32{0, 0})

	assert.InDelta(t, math.Sqrt(5), m.Finalize(m.EvaluateFull(in)), tolerance)
}

func TestLogloss(t *testing.T) {
	t.Parallel()

	m := metric.NewLogloss()
	in := input([]float64{0, 0}, []float32{1, 0})

	assert.InDelta(t, math.Log(2), m.Finalize(m.Accumulate(in)), tolerance)
}

func TestAccuracy(t *testing.T) {
	t.Parallel()

	binary := metric.NewAccuracy(metric.DefaultAccuracyBorder)
	in := input([]float64{2, -2, -1, 1}, []float32{1, 0, 1, 1})
	assert.InDelta(t, 0.75, binary.Finalize(binary.Accumulate(in)), tolerance)
	assert.Equal(t, "Accuracy", binary.Description())

	multi := metric.NewAccuracy(metric.DefaultAccuracyBorder)
	multiIn := metric.Input{
		Approx: [][]float64{{1, 0}, {0, 1}, {-1, 0.5}},
		Target: []float32{0, 2},
		Weight: []float32{1, 3},
		End:    2,
	}
	assert.InDelta(t, 0.25, multi.Finalize(multi.Accumulate(multiIn)), tolerance)
}

func TestMultiClass(t *testing.T) {
	t.Parallel()

	m := metric.NewMultiClass()
	in := metric.Input{
		Approx: [][]float64{{0}, {0}},
		Target: []float32{1},
		Weight: []float32{1},
		End:    1,
	}

	assert.InDelta(t, math.Log(2), m.Finalize(m.Accumulate(in)), tolerance)
}

func TestPairMetrics(t *testing.T) {
	t.Parallel()

	in := input([]float64{2, 1, 0}, []float32{0, 0, 0})
	in.Pairs = []pool.Pair{
		{Winner: 0, Loser: 1, Weight: 1},
		{Winner: 2, Loser: 1, Weight: 1},
	}

	acc := metric.NewPairAccuracy()
	assert.False(t, acc.IsAdditive())
	assert.Equal(t, metric.Pairwise, acc.ErrorType())
	assert.InDelta(t, 0.5, acc.Finalize(acc.EvaluateFull(in)), tolerance)

	logit := metric.NewPairLogit()
	expected := (math.Log1p(math.Exp(-1)) + math.Log1p(math.Exp(1))) / 2
	assert.InDelta(t, expected, logit.Finalize(logit.Accumulate(in)), tolerance)
}

func TestAccumulate_PartitionEqualsWhole(t *testing.T) {
	t.Parallel()

	approx := []float64{0.1, -0.4, 1.3, 2.2, -1.1, 0.7, 0.05}
	target := []float32{0, 1, 1, 0, 1, 0, 1}

	for _, m := range []metric.Metric{metric.NewRMSE(), metric.NewMAE(), metric.NewLogloss()} {
		whole := m.Accumulate(input(approx, target))

		var combined metric.Stats

		for _, bounds := range [][2]int{{0, 2}, {2, 3}, {3, 7}} {
			in := input(approx, target)
			in.Begin, in.End = bounds[0], bounds[1]
			combined.Add(m.Accumulate(in))
		}

		assert.InDelta(t, whole.Error, combined.Error, tolerance, m.Description())
		assert.InDelta(t, whole.Weight, combined.Weight, tolerance, m.Description())
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		desc     string
		wantName string
		wantErr  error
	}{
		{desc: "RMSE", wantName: "RMSE"},
		{desc: " MAE ", wantName: "MAE"},
		{desc: "Accuracy:border=0.7", wantName: "Accuracy:border=0.7"},
		{desc: "Accuracy", wantName: "Accuracy"},
		{desc: "PairAccuracy", wantName: "PairAccuracy"},
		{desc: "NDCG", wantErr: metric.ErrUnknownMetric},
		{desc: "RMSE:border=1", wantErr: metric.ErrInvalidParam},
		{desc: "Accuracy:border=abc", wantErr: metric.ErrInvalidParam},
		{desc: "Accuracy:border", wantErr: metric.ErrInvalidParam},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			t.Parallel()

			m, err := metric.Parse(tt.desc)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantName, m.Description())
		})
	}
}

func TestParseAll(t *testing.T) {
	t.Parallel()

	metrics, err := metric.ParseAll([]string{"RMSE", "PairLogit"})
	require.NoError(t, err)
	require.Len(t, metrics, 2)

	_, err = metric.ParseAll([]string{"RMSE", "Nope"})
	require.ErrorIs(t, err, metric.ErrUnknownMetric)
}

func TestErrorType_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "PerObject", metric.PerObject.String())
	assert.Equal(t, "Pairwise", metric.Pairwise.String())
	assert.Equal(t, "Unknown", metric.ErrorType(7).String())
}

func TestHigherIsBetter(t *testing.T) {
	t.Parallel()

	assert.True(t, metric.HigherIsBetter(metric.NewAccuracy(metric.DefaultAccuracyBorder)))
	assert.True(t, metric.HigherIsBetter(metric.NewPairAccuracy()))
	assert.False(t, metric.HigherIsBetter(metric.NewRMSE()))
	assert.False(t, metric.HigherIsBetter(metric.NewPairLogit()))
}

package executor_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/metricplot/pkg/executor"
)

var errBlock = errors.New("block failed")

func TestParallelFor_VisitsEveryIndex(t *testing.T) {
	t.Parallel()

	for _, workers := range []int{1, 2, 8} {
		exec := executor.New(workers).WithBlockSize(3)
		visited := make([]int32, 100)

		err := exec.ParallelFor(context.Background(), 0, len(visited), func(i int) {
			atomic.AddInt32(&visited[i], 1)
		})
		require.NoError(t, err)

		for i, v := range visited {
			assert.Equal(t, int32(1), v, "index %d with %d workers", i, workers)
		}
	}
}

func TestParallelFor_EmptyRange(t *testing.T) {
	t.Parallel()

	called := false

	err := executor.New(4).ParallelFor(context.Background(), 5, 5, func(int) { called = true })
	require.NoError(t, err)
	assert.False(t, called)
}

func TestExecRange_Blocks(t *testing.T) {
	t.Parallel()

	var (
		count atomic.Int32
		total atomic.Int64
	)

	err := executor.New(4).ExecRange(context.Background(), 2, 12, 4,
		func(_ context.Context, b, e int) error {
			count.Add(1)
			total.Add(int64(e - b))

			return nil
		})
	require.NoError(t, err)

	assert.Equal(t, int32(3), count.Load())
	assert.Equal(t, int64(10), total.Load())
	assert.Equal(t, 3, executor.Blocks(2, 12, 4))
	assert.Equal(t, 0, executor.Blocks(3, 3, 4))
}

func TestExecRange_PropagatesError(t *testing.T) {
	t.Parallel()

	for _, workers := range []int{1, 4} {
		err := executor.New(workers).ExecRange(context.Background(), 0, 100, 10,
			func(_ context.Context, b, _ int) error {
				if b == 50 {
					return errBlock
				}

				return nil
			})
		require.ErrorIs(t, err, errBlock)
	}
}

func TestNew_DefaultWorkers(t *testing.T) {
	t.Parallel()

	exec := executor.New(0)
	assert.Positive(t, exec.Workers())
	assert.Equal(t, executor.DefaultBlockSize, exec.BlockSize())
}

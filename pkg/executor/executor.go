// Package executor provides a bounded fork-join executor for data-parallel loops
// over index ranges.
package executor

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// DefaultBlockSize is the number of indices handed to one task when the caller
// does not choose a block size.
const DefaultBlockSize = 4096

// Executor runs loop bodies on at most Workers goroutines at a time.
// The zero value is not usable; create one with New.
type Executor struct {
	workers   int
	blockSize int
}

// New creates an executor. workers <= 0 means one worker per CPU.
func New(workers int) *Executor {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	return &Executor{
		workers:   workers,
		blockSize: DefaultBlockSize,
	}
}

// WithBlockSize sets the default block size used by ParallelFor.
func (e *Executor) WithBlockSize(size int) *Executor {
	if size > 0 {
		e.blockSize = size
	}

	return e
}

// Workers returns the concurrency limit.
func (e *Executor) Workers() int {
	return e.workers
}

// BlockSize returns the default block size.
func (e *Executor) BlockSize() int {
	return e.blockSize
}

// Blocks returns the number of blocks [begin, end) is split into.
func Blocks(begin, end, blockSize int) int {
	if end <= begin {
		return 0
	}

	return (end - begin + blockSize - 1) / blockSize
}

// ExecRange splits [begin, end) into blocks of blockSize and runs fn on every
// block. It blocks until all blocks complete. The first error cancels the
// remaining blocks and is returned. blockSize <= 0 uses the executor default.
func (e *Executor) ExecRange(
	ctx context.Context,
	begin, end, blockSize int,
	fn func(ctx context.Context, blockBegin, blockEnd int) error,
) error {
	if end <= begin {
		return nil
	}

	if blockSize <= 0 {
		blockSize = e.blockSize
	}

	if e.workers == 1 || end-begin <= blockSize {
		for b := begin; b < end; b += blockSize {
			err := fn(ctx, b, min(end, b+blockSize))
			if err != nil {
				return err
			}
		}

		return nil
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for b := begin; b < end; b += blockSize {
		blockBegin, blockEnd := b, min(end, b+blockSize)

		g.Go(func() error {
			if gCtx.Err() != nil {
				return gCtx.Err()
			}

			return fn(gCtx, blockBegin, blockEnd)
		})
	}

	err := g.Wait()
	if err != nil {
		return fmt.Errorf("parallel range [%d, %d): %w", begin, end, err)
	}

	return nil
}

// ParallelFor calls fn once for every index in [begin, end).
// Indices are grouped into blocks of the executor's block size.
func (e *Executor) ParallelFor(ctx context.Context, begin, end int, fn func(i int)) error {
	return e.ExecRange(ctx, begin, end, 0, func(_ context.Context, blockBegin, blockEnd int) error {
		for i := blockBegin; i < blockEnd; i++ {
			fn(i)
		}

		return nil
	})
}

package concurrency

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"

	"cloudmedia/internal/common"
)

// OptimalWorkerCount determines the worker count for a batch of n items
func OptimalWorkerCount(n int) int {
	workers := runtime.NumCPU()
	if workers > common.MaxConcurrencyLimit {
		workers = common.MaxConcurrencyLimit
	}
	if n > 0 && n < workers {
		workers = n
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}

// TaskFunc processes item i of a batch.
type TaskFunc[T any] func(ctx context.Context, i int) (T, error)

// Map runs task for every index in [0, n) on a bounded ants pool and returns
// the results in input order. The first error cancels the remaining tasks.
func Map[T any](ctx context.Context, n int, task TaskFunc[T]) ([]T, error) {
	results := make([]T, n)
	if n == 0 {
		return results, nil
	}

	pool, err := ants.NewPool(OptimalWorkerCount(n))
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	for i := 0; i < n; i++ {
		index := i
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			res, err := task(ctx, index)
			if err != nil {
				fail(err)
				return
			}
			results[index] = res
		})
		if err != nil {
			wg.Done() // Submit failed, the task never runs
			fail(fmt.Errorf("failed to submit task: %w", err))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := parent.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

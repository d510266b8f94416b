// Package parallel runs independent per-index jobs on a bounded worker pool.
// Jobs share no state; the first error cancels the remaining work.
package parallel

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ForEach invokes fn for every index in [0, n) using at most workers
// goroutines. A workers value below 1 runs the jobs sequentially. The first
// error cancels the group context and is returned after all started jobs
// finish.
func ForEach(ctx context.Context, workers, n int, fn func(ctx context.Context, i int) error) error {
	if workers < 1 {
		workers = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			return fn(ctx, i)
		})
	}
	return g.Wait()
}

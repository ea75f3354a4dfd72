package perf

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// BatchOptions controls BatchProcess. Zero fields take the optimizer's
// defaults; a negative Delay disables the pause between batches.
type BatchOptions struct {
	Size  int
	Delay time.Duration
}

func (o *Optimizer) batchOptions(opts BatchOptions) BatchOptions {
	if opts.Size <= 0 {
		opts.Size = o.batch.Size
	}
	if opts.Size <= 0 {
		opts.Size = DefaultBatchSize
	}
	if opts.Delay == 0 {
		opts.Delay = o.batch.Delay
	}
	if opts.Delay < 0 {
		opts.Delay = 0
	}
	return opts
}

// BatchProcess applies fn to every item, running each batch of opts.Size items
// concurrently and the batches one after another with opts.Delay between them.
// Results keep input order. The first error aborts the remaining work; callers
// wanting per-item isolation should fold failures into R.
func BatchProcess[T, R any](ctx context.Context, o *Optimizer, items []T, fn func(ctx context.Context, item T) (R, error), opts BatchOptions) ([]R, error) {
	opts = o.batchOptions(opts)
	results := make([]R, len(items))

	for start := 0; start < len(items); start += opts.Size {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + opts.Size
		if end > len(items) {
			end = len(items)
		}

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			g.Go(func() error {
				r, err := fn(gctx, items[i])
				if err != nil {
					return err
				}
				results[i] = r
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		if end < len(items) && opts.Delay > 0 {
			if err := o.sleep(ctx, opts.Delay); err != nil {
				return nil, err
			}
		}
	}
	return results, nil
}

// MeasureTime runs op and reports how long it took.
func MeasureTime[T any](op func() (T, error)) (T, time.Duration, error) {
	start := time.Now()
	v, err := op()
	return v, time.Since(start), err
}

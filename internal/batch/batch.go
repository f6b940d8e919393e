package batch

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultConcurrency = 3
	MaxConcurrency     = 8
	maxErrorSamples    = 20
)

// ItemError ties a failure to the item position it came from.
type ItemError struct {
	Index int
	Err   error
}

func (e ItemError) Error() string {
	return e.Err.Error()
}

func (e ItemError) Unwrap() error {
	return e.Err
}

// Result counts per-item outcomes. Errors holds at most a small sample.
type Result struct {
	Succeeded int
	Failed    int
	Errors    []ItemError
}

// Run calls fn for every item with at most limit calls in flight. A failing
// item never cancels its siblings; it is counted and sampled. Run only
// returns early when ctx is done, leaving unstarted items uncounted.
func Run[T any](ctx context.Context, items []T, limit int, fn func(ctx context.Context, item T) error) Result {
	var (
		mu     sync.Mutex
		result Result
	)
	if len(items) == 0 {
		return result
	}

	g := new(errgroup.Group)
	g.SetLimit(ClampConcurrency(limit))

	for i, item := range items {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			err := ctx.Err()
			if err == nil {
				err = fn(ctx, item)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				if len(result.Errors) < maxErrorSamples {
					result.Errors = append(result.Errors, ItemError{Index: i, Err: err})
				}
				return nil
			}
			result.Succeeded++
			return nil
		})
	}
	_ = g.Wait()
	return result
}

// ClampConcurrency maps any requested worker count onto [1, MaxConcurrency],
// with non-positive values meaning the default.
func ClampConcurrency(n int) int {
	if n <= 0 {
		return DefaultConcurrency
	}
	return min(n, MaxConcurrency)
}

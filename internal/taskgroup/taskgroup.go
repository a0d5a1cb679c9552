// Package taskgroup runs bounded batches of independent units of work.
package taskgroup

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Result is the outcome of one submitted unit.
type Result[T any] struct {
	Value T
	Err   error
}

// Run calls fn once per input with at most limit calls in flight and waits for
// all of them. Results are returned in input order regardless of completion
// order. A failing unit does not cancel its siblings. limit <= 0 means one
// goroutine per input.
func Run[In, Out any](
	ctx context.Context,
	limit int,
	inputs []In,
	fn func(ctx context.Context, idx int, in In) (Out, error),
) []Result[Out] {
	results := make([]Result[Out], len(inputs))
	if len(inputs) == 0 {
		return results
	}

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, in := range inputs {
		g.Go(func() error {
			results[i] = call(ctx, i, in, fn)
			return nil
		})
	}
	_ = g.Wait() // units never return errors to the group
	return results
}

func call[In, Out any](
	ctx context.Context,
	idx int,
	in In,
	fn func(ctx context.Context, idx int, in In) (Out, error),
) (res Result[Out]) {
	defer func() {
		if r := recover(); r != nil {
			res = Result[Out]{Err: fmt.Errorf("task %d panicked: %v", idx, r)}
		}
	}()
	v, err := fn(ctx, idx, in)
	return Result[Out]{Value: v, Err: err}
}

// Values returns the successful values in order and the failures with their index.
func Values[T any](results []Result[T]) ([]T, map[int]error) {
	values := make([]T, 0, len(results))
	var failed map[int]error
	for i, r := range results {
		if r.Err != nil {
			if failed == nil {
				failed = make(map[int]error)
			}
			failed[i] = r.Err
			continue
		}
		values = append(values, r.Value)
	}
	return values, failed
}

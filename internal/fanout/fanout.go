// Package fanout runs independent units of work concurrently and combines their
// outcomes. Call sites choose the tolerance policy explicitly: SettleAll keeps
// every outcome, All fails fast on the first error.
package fanout

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Task is one unit of work.
type Task[T any] func(ctx context.Context) (T, error)

// Result is the outcome of one Task: a value or a failure reason.
type Result[T any] struct {
	Value T
	Err   error
}

// OK reports whether the task succeeded.
func (r Result[T]) OK() bool {
	return r.Err == nil
}

type options struct {
	limit int
}

// Option configures a fan-out.
type Option func(*options)

// WithLimit bounds the number of tasks running at once. n <= 0 means no bound.
func WithLimit(n int) Option {
	return func(o *options) {
		o.limit = n
	}
}

// SettleAll runs all tasks and waits for every one of them. Results are in
// task order. A failing or panicking task never cancels the others.
func SettleAll[T any](ctx context.Context, tasks []Task[T], opts ...Option) []Result[T] {
	o := apply(opts)
	results := make([]Result[T], len(tasks))

	var g errgroup.Group
	if o.limit > 0 {
		g.SetLimit(o.limit)
	}

	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			v, err := safeRun(ctx, task)
			results[i] = Result[T]{Value: v, Err: err}
			return nil // never fail the group
		})
	}

	_ = g.Wait()
	return results
}

// All runs all tasks and returns their values in task order. The first error
// cancels the context handed to the remaining tasks and is returned; partial
// values are discarded.
func All[T any](ctx context.Context, tasks []Task[T], opts ...Option) ([]T, error) {
	o := apply(opts)
	values := make([]T, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	if o.limit > 0 {
		g.SetLimit(o.limit)
	}

	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			v, err := safeRun(gctx, task)
			if err != nil {
				return err
			}
			values[i] = v
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return values, nil
}

// Failed returns the errors of the failed results.
func Failed[T any](results []Result[T]) []error {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errs
}

func apply(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func safeRun[T any](ctx context.Context, task Task[T]) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task(ctx)
}

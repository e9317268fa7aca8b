// Package xtask provides a small builder over xretry.Retryer for the
// "retry with timeout and external abort" shape used throughout the
// coordination primitives: Task captures a function plus its retry and
// cancellation policy once, then exposes a blocking Run and a detached
// Detach that returns a future-like thunk.
package xtask

import (
	"context"
	"errors"
	"time"

	"github.com/coordkit/coordkit/pkg/resilience/xretry"
)

// ErrNilFunc is returned when a Task is built without a function to run.
var ErrNilFunc = errors.New("xtask: fn must not be nil")

// Task captures a retryable operation together with its timeout and
// external abort signal. Zero value is not usable; build one with New.
type Task[T any] struct {
	fn      func(ctx context.Context) (T, error)
	retry   *xretry.Retryer
	timeout time.Duration
	abort   context.Context
}

// Option configures a Task.
type Option[T any] func(*Task[T])

// WithRetryer sets the retry engine driving re-invocation. Defaults to
// xretry.NewRetryer() (FixedRetry(3) + ExponentialBackoff) when omitted.
func WithRetryer[T any](r *xretry.Retryer) Option[T] {
	return func(t *Task[T]) {
		if r != nil {
			t.retry = r
		}
	}
}

// WithTimeout bounds each Run call's total duration, including retries.
// A non-positive value means no timeout.
func WithTimeout[T any](d time.Duration) Option[T] {
	return func(t *Task[T]) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithAbort binds an external context whose cancellation aborts the task
// even mid-backoff, independent of the ctx passed to Run.
func WithAbort[T any](abort context.Context) Option[T] {
	return func(t *Task[T]) {
		if abort != nil {
			t.abort = abort
		}
	}
}

// New builds a Task around fn. fn receives the merged context (caller ctx +
// timeout + abort signal) on every attempt.
func New[T any](fn func(ctx context.Context) (T, error), opts ...Option[T]) *Task[T] {
	t := &Task[T]{fn: fn, retry: xretry.NewRetryer()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run executes the task synchronously against ctx, honoring the task's
// timeout and abort signal, and returns once retries are exhausted, the
// function succeeds, or the task is aborted.
func (t *Task[T]) Run(ctx context.Context) (T, error) {
	var zero T
	if t == nil || t.fn == nil {
		return zero, ErrNilFunc
	}
	if ctx == nil {
		ctx = context.Background()
	}

	runCtx, cancel := t.boundContext(ctx)
	defer cancel()

	return xretry.DoWithResult(runCtx, t.retry, t.fn)
}

// Detach starts the task in a new goroutine against ctx and returns a
// thunk that blocks until the result is available. Calling the thunk more
// than once returns the same cached result.
func (t *Task[T]) Detach(ctx context.Context) func() (T, error) {
	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)

	go func() {
		val, err := t.Run(ctx)
		done <- result{val: val, err: err}
	}()

	var cached *result
	return func() (T, error) {
		if cached == nil {
			r := <-done
			cached = &r
		}
		return cached.val, cached.err
	}
}

// boundContext merges the caller context with the task's timeout and
// abort signal: whichever of the three fires first cancels runCtx.
func (t *Task[T]) boundContext(ctx context.Context) (context.Context, context.CancelFunc) {
	cancels := make([]context.CancelFunc, 0, 2)

	runCtx := ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, t.timeout)
		cancels = append(cancels, cancel)
	}
	if t.abort != nil {
		mergedCtx, cancel := context.WithCancel(runCtx)
		cancels = append(cancels, cancel)
		go func() {
			select {
			case <-t.abort.Done():
				cancel()
			case <-mergedCtx.Done():
			}
		}()
		runCtx = mergedCtx
	}

	return runCtx, func() {
		for _, c := range cancels {
			c()
		}
	}
}

// Package gather waits for a batch of independent operations.
//
// Every operation runs to completion; none is cancelled because a sibling
// failed. Each failure is logged exactly once as it happens, and the
// caller receives either all results (in operation order) or the first
// failure by completion time wrapped in a *FirstError.
package gather

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/yndnr/converge/internal/core/domain"
)

// Op is one operation of a batch.
type Op[T any] func(ctx context.Context) (T, error)

// FirstError is the first failure observed in a batch. It matches
// domain.ErrAggregateFailure and the operation's own error.
type FirstError struct {
	Index int
	Err   error
}

func (e *FirstError) Error() string {
	return fmt.Sprintf("%s: operation %d: %v", domain.ErrAggregateFailure.Error(), e.Index, e.Err)
}

func (e *FirstError) Unwrap() []error {
	return []error{domain.ErrAggregateFailure, e.Err}
}

// Gather runs ops concurrently and waits for all of them.
func Gather[T any](ctx context.Context, logger *slog.Logger, ops ...Op[T]) ([]T, error) {
	if logger == nil {
		logger = slog.Default()
	}

	results := make([]T, len(ops))
	var g errgroup.Group
	for i, op := range ops {
		g.Go(func() error {
			v, err := op(ctx)
			if err != nil {
				logger.Error("operation failed", "index", i, "error", err)
				return &FirstError{Index: i, Err: err}
			}
			results[i] = v
			return nil
		})
	}

	// errgroup keeps the first error returned, which is the first
	// failure to complete.
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Background runs Gather in a new goroutine and reports the outcome to
// done, which may be nil. It is used where the caller must not block on
// the batch, such as inside a protocol responder.
func Background[T any](ctx context.Context, logger *slog.Logger, done func([]T, error), ops ...Op[T]) {
	go func() {
		results, err := Gather(ctx, logger, ops...)
		if done != nil {
			done(results, err)
		}
	}()
}

package remparo

import (
	"context"
	"errors"
	"time"
)

// WithTimeout races op against a wall-clock deadline. If the deadline
// elapses first the derived context is cancelled and ErrTimeout is returned;
// op keeps running on its goroutine but can never block the guard's return
// because the result channel is buffered. Side effects op committed before
// cancellation are not rolled back.
func WithTimeout[T any](ctx context.Context, d time.Duration, op func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		value, err := op(ctx)
		done <- outcome{value: value, err: err}
	}()

	select {
	case out := <-done:
		return out.value, out.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, ErrTimeout
		}
		return zero, ctx.Err()
	}
}

// RunWithTimeout is the error-only form of WithTimeout.
func RunWithTimeout(ctx context.Context, d time.Duration, op func(context.Context) error) error {
	_, err := WithTimeout(ctx, d, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

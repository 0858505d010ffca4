package resilience

import (
	"context"
	"fmt"
	"time"
)

// WithTimeout runs fn under a deadline. fn keeps running in the background
// after the deadline if it ignores its context; its result is discarded.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeoutCause(ctx, timeout, fmt.Errorf("exceeded %v: %w", timeout, context.DeadlineExceeded))
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- fn(ctx)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", name, context.Cause(ctx))
	}
}

package resilientcache

import (
	"context"
	"time"
)

// runWithTimeout races fn against a hard deadline. Whichever finishes first
// wins; the timer is released in every outcome. When the budget expires the
// caller gets a timeout fault immediately, but fn's goroutine is left to run
// to completion: the in-flight network operation belongs to the driver and is
// not forcibly aborted. Its eventual result is discarded.
func runWithTimeout(ctx context.Context, op string, budget time.Duration, fn func(ctx context.Context) error) error {
	if budget <= 0 {
		return fn(ctx)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	// Buffered so the late finisher never blocks after a timeout.
	done := make(chan error, 1)
	go func() {
		done <- fn(timeoutCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			// Caller's own context expired or was canceled first.
			return ctx.Err()
		}
		return newTimeoutError(op, budget)
	}
}

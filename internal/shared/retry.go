package shared

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetryPolicy bounds RetryOnConflict.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy retries three times starting at 50ms (50ms, 100ms).
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, BaseDelay: 50 * time.Millisecond}

// RetryOnConflict runs fn, retrying with exponential backoff while it fails
// with a SQLite busy or locked error. Other errors are returned immediately.
func RetryOnConflict(ctx context.Context, policy RetryPolicy, op string, fn func() error) error {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	var err error
	for i := 0; i < policy.MaxAttempts; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !IsSQLiteConflictError(err) || i == policy.MaxAttempts-1 {
			break
		}
		delay := policy.BaseDelay * time.Duration(1<<i)
		slog.Debug("SQLite conflict, retrying", "op", op, "attempt", i+1, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
	}
	if IsSQLiteConflictError(err) {
		return fmt.Errorf("%s after %d attempts: %w", op, policy.MaxAttempts, err)
	}
	return err
}

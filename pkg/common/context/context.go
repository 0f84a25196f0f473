// Package context provides helpers for the cooperative time budgets that
// workers hand to capabilities.
package context

import (
	"context"
	"errors"
	"time"
)

// WithBudget derives a context bounded by timeout. A zero or negative
// timeout means no budget: the returned context only follows the parent.
func WithBudget(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}

// IsCanceled returns true if the context has been canceled or has expired.
func IsCanceled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// IsTimedOut returns true if the context was canceled due to a deadline.
func IsTimedOut(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.DeadlineExceeded)
}

// Remaining returns the time left before the context deadline and whether
// a deadline is set at all.
func Remaining(ctx context.Context) (time.Duration, bool) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0, false
	}
	return time.Until(deadline), true
}

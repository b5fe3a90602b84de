// Package guardrails holds cross cutting safety helpers for the harvest loop
package guardrails

import (
	"context"
	"time"
)

// Timeouts is an optional budget bundle for a harvest run.
// Zero values mean no extra timeout at that level
type Timeouts struct {
	// Run is the overall budget for the fetch loop; when it expires the loop stops like a cancel
	Run time.Duration

	// Fetch caps one period request including reading the body
	Fetch time.Duration
}

// WithRun returns a context limited by the run budget without extending any parent deadline
func WithRun(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, t.Run)
}

// ForFetch returns the context for a single period fetch.
// Cancelling parent does not interrupt a request already in flight; only Fetch bounds it
func ForFetch(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return withChildTimeout(context.WithoutCancel(parent), t.Fetch)
}

// Remaining returns the time until the deadline on ctx or zero when none is set or already expired
func Remaining(ctx context.Context) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 {
			return d
		}
	}
	return 0
}

// withChildTimeout chooses the tighter of the requested duration and any parent remainder.
// When d is zero it returns a simple cancelable child inheriting the parent deadline
func withChildTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	if rem := Remaining(parent); rem > 0 && rem < d {
		return context.WithTimeout(parent, rem)
	}
	return context.WithTimeout(parent, d)
}

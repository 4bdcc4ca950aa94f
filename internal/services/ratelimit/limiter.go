package ratelimit

import (
	"context"
	"time"
)

// Limiter admits at most Limit requests per key in each fixed window.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the time until the current window closes, rounded up to a
// whole second and never below one.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	if wait <= 0 {
		return time.Second
	}
	return ((wait + time.Second - 1) / time.Second) * time.Second
}

// Clock returns the current time. Tests swap it for a manual clock.
type Clock func() time.Time

func windowStart(now time.Time, window time.Duration) time.Time {
	return now.Truncate(window)
}

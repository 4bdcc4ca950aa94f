package ratelimit

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	start time.Time
	count int
}

// MemoryLimiter keeps one fixed-window counter per key in process memory.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   int
	window  time.Duration
	now     Clock
}

func NewMemoryLimiter(limit int, window time.Duration, clock Clock) *MemoryLimiter {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryLimiter{
		buckets: make(map[string]*bucket),
		limit:   limit,
		window:  window,
		now:     clock,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	now := l.now()
	start := windowStart(now, l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || !b.start.Equal(start) {
		b = &bucket{start: start}
		l.buckets[key] = b
	}

	d := Decision{
		Limit:   l.limit,
		ResetAt: start.Add(l.window),
	}
	if b.count >= l.limit {
		return d, nil
	}

	b.count++
	d.Allowed = true
	d.Remaining = l.limit - b.count
	return d, nil
}

// Sweep drops counters whose window has closed and returns how many it removed.
func (l *MemoryLimiter) Sweep() int {
	current := windowStart(l.now(), l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, b := range l.buckets {
		if b.start.Before(current) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Len is the number of keys currently tracked.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Package batch orchestrates classification runs over the recipe backlog:
// rate governance, retry with backoff, per-recipe state tracking, and the
// run report. The only shared mutable state is the per-key token bucket,
// owned by a single Limiter instance with atomic acquire.
package batch

import (
	"context"
	"sync"
	"time"
)

// Clock abstracts time so tests can drive the orchestrator
// deterministically instead of sleeping on the wall clock.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// realClock is the production clock.
type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

// Budget is the request budget for one rate-limit key. LLM providers
// typically cap both dimensions, and the daily cap is the one that hurts:
// blocking before issue beats burning it on rejected calls.
type Budget struct {
	PerMinute int
	PerDay    int
}

// Limiter is a token-bucket rate limiter enforcing a per-minute and a
// per-day budget for one rate-limit key. Acquire blocks until a slot in
// both windows is free. Decrement-on-issue happens under one lock so
// concurrent callers can never over-issue against the provider's cap.
type Limiter struct {
	mu     sync.Mutex
	budget Budget
	clock  Clock

	minuteStart time.Time
	minuteUsed  int
	dayStart    time.Time
	dayUsed     int
}

// NewLimiter creates a limiter for one key. Zero or negative budget
// dimensions mean unlimited on that dimension.
func NewLimiter(budget Budget, clock Clock) *Limiter {
	if clock == nil {
		clock = RealClock()
	}
	return &Limiter{budget: budget, clock: clock}
}

// Acquire blocks until a request slot is available in both windows, then
// consumes one from each. Returns early only on context cancellation.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		wait, ok := l.tryAcquire()
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.clock.After(wait):
		}
	}
}

// tryAcquire consumes a slot if one is free, otherwise returns how long
// until the blocking window rolls over.
func (l *Limiter) tryAcquire() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()

	if l.minuteStart.IsZero() || now.Sub(l.minuteStart) >= time.Minute {
		l.minuteStart = now
		l.minuteUsed = 0
	}
	if l.dayStart.IsZero() || now.Sub(l.dayStart) >= 24*time.Hour {
		l.dayStart = now
		l.dayUsed = 0
	}

	if l.budget.PerDay > 0 && l.dayUsed >= l.budget.PerDay {
		return 24*time.Hour - now.Sub(l.dayStart), false
	}
	if l.budget.PerMinute > 0 && l.minuteUsed >= l.budget.PerMinute {
		return time.Minute - now.Sub(l.minuteStart), false
	}

	l.minuteUsed++
	l.dayUsed++
	return 0, true
}

package api

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Clock abstracts time for the limiter and backoff sleeps.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }

// Sleep waits for d or until ctx is done.
func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Limiter enforces a minimum interval between requests. It is safe for
// concurrent use; concurrent callers are spaced one interval apart in
// reservation order.
type Limiter struct {
	lim      *rate.Limiter
	clock    Clock
	interval time.Duration
}

// NewLimiter returns a limiter that admits one request per interval.
// The first request is admitted immediately.
func NewLimiter(interval time.Duration, clock Clock) *Limiter {
	if clock == nil {
		clock = SystemClock{}
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Limiter{
		lim:      rate.NewLimiter(limit, 1),
		clock:    clock,
		interval: interval,
	}
}

// Interval returns the minimum spacing between requests.
func (l *Limiter) Interval() time.Duration { return l.interval }

// Wait blocks until the next request slot. On cancellation the slot is
// returned to the limiter.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := l.clock.Now()
	r := l.lim.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	if delay <= 0 {
		return nil
	}
	if err := l.clock.Sleep(ctx, delay); err != nil {
		r.CancelAt(l.clock.Now())
		return err
	}
	return nil
}

package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter enforces a minimum spacing between requests.
// It is safe for concurrent use, so several crawls can share one instance.
//
// Design decision: Wait reserves a slot under the mutex and sleeps outside
// of it. Reservations are taken on a monotonic cursor so a caller arriving
// later can never be scheduled ahead of a caller that is already waiting.
type Limiter struct {
	// limiter is nil when rate limiting is disabled (rps <= 0).
	limiter *rate.Limiter

	// interval is the spacing derived from rps.
	interval time.Duration

	// now returns the current time.
	now func() time.Time

	// sleep blocks for d or until ctx is done.
	sleep func(ctx context.Context, d time.Duration) error

	mu sync.Mutex

	// cursor is the time of the latest reservation.
	cursor time.Time

	// last is the time at which the latest caller was released.
	last time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// WithSleep replaces the blocking sleep. Intended for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(l *Limiter) {
		l.sleep = sleep
	}
}

// New creates a Limiter allowing rps requests per second with a burst of one.
// A non-positive rps disables spacing; Crawl-delay floors still apply.
func New(rps float64, opts ...Option) *Limiter {
	l := &Limiter{
		now:   time.Now,
		sleep: Sleep,
	}
	if rps > 0 {
		l.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		l.interval = time.Duration(float64(time.Second) / rps)
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Interval returns the configured spacing, or zero when disabled.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// Wait blocks until the caller may send the next request.
// floor is an extra minimum spacing since the previous request, typically a
// robots.txt Crawl-delay; zero means none. It returns ctx.Err() if the
// context ends first. A cancelled wait still consumes its slot.
func (l *Limiter) Wait(ctx context.Context, floor time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	delay := l.reserve(floor)
	if delay <= 0 {
		return nil
	}
	return l.sleep(ctx, delay)
}

// reserve books the next slot and returns how long the caller must wait.
func (l *Limiter) reserve(floor time.Duration) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	at := now
	if at.Before(l.cursor) {
		at = l.cursor
	}
	if floor > 0 && !l.last.IsZero() {
		if f := l.last.Add(floor); f.After(at) {
			at = f
		}
	}

	release := at
	if l.limiter != nil {
		r := l.limiter.ReserveN(at, 1)
		release = at.Add(r.DelayFrom(at))
	}

	l.cursor = at
	l.last = release
	return release.Sub(now)
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

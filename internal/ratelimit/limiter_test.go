package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeClock is a manual clock whose sleep advances time instead of blocking.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

func newTestLimiter(rps float64, clock *fakeClock) *Limiter {
	return New(rps, WithClock(clock.Now), WithSleep(clock.Sleep))
}

func equalDurations(a, b []time.Duration) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// TestLimiterSpacing tests the spacing derived from requests per second.
func TestLimiterSpacing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rps  float64
		want []time.Duration
	}{
		{"one per second", 1, []time.Duration{time.Second, time.Second}},
		{"two per second", 2, []time.Duration{500 * time.Millisecond, 500 * time.Millisecond}},
		{"disabled", 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			clock := newFakeClock()
			l := newTestLimiter(tt.rps, clock)

			for range 3 {
				if err := l.Wait(context.Background(), 0); err != nil {
					t.Fatalf("Wait failed: %v", err)
				}
			}

			if got := clock.Sleeps(); !equalDurations(got, tt.want) {
				t.Errorf("sleeps = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestLimiterElapsedTimeCounts tests that time already passed is not waited again.
func TestLimiterElapsedTimeCounts(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := newTestLimiter(1, clock)

	if err := l.Wait(context.Background(), 0); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	clock.Advance(5 * time.Second)
	if err := l.Wait(context.Background(), 0); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	if got := clock.Sleeps(); len(got) != 0 {
		t.Errorf("expected no sleeps, got %v", got)
	}
}

// TestLimiterFloor tests that a crawl-delay floor extends the spacing.
func TestLimiterFloor(t *testing.T) {
	t.Parallel()

	t.Run("floor longer than interval", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock()
		l := newTestLimiter(1, clock)

		for range 3 {
			if err := l.Wait(context.Background(), 3*time.Second); err != nil {
				t.Fatalf("Wait failed: %v", err)
			}
		}

		want := []time.Duration{3 * time.Second, 3 * time.Second}
		if got := clock.Sleeps(); !equalDurations(got, want) {
			t.Errorf("sleeps = %v, want %v", got, want)
		}
	})

	t.Run("floor shorter than interval", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock()
		l := newTestLimiter(1, clock)

		for range 2 {
			if err := l.Wait(context.Background(), 500*time.Millisecond); err != nil {
				t.Fatalf("Wait failed: %v", err)
			}
		}

		want := []time.Duration{time.Second}
		if got := clock.Sleeps(); !equalDurations(got, want) {
			t.Errorf("sleeps = %v, want %v", got, want)
		}
	})

	t.Run("floor applies when rate is disabled", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock()
		l := newTestLimiter(0, clock)

		for range 2 {
			if err := l.Wait(context.Background(), 2*time.Second); err != nil {
				t.Fatalf("Wait failed: %v", err)
			}
		}

		want := []time.Duration{2 * time.Second}
		if got := clock.Sleeps(); !equalDurations(got, want) {
			t.Errorf("sleeps = %v, want %v", got, want)
		}
	})

	t.Run("interval resumes after floor", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock()
		l := newTestLimiter(1, clock)

		_ = l.Wait(context.Background(), 0)
		_ = l.Wait(context.Background(), 4*time.Second)
		_ = l.Wait(context.Background(), 0)

		want := []time.Duration{4 * time.Second, time.Second}
		if got := clock.Sleeps(); !equalDurations(got, want) {
			t.Errorf("sleeps = %v, want %v", got, want)
		}
	})
}

// TestLimiterCancelled tests context handling.
func TestLimiterCancelled(t *testing.T) {
	t.Parallel()

	t.Run("already cancelled", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock()
		l := newTestLimiter(1, clock)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if err := l.Wait(ctx, 0); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("cancelled while sleeping", func(t *testing.T) {
		t.Parallel()

		l := New(0.001)
		_ = l.Wait(context.Background(), 0)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		start := time.Now()
		err := l.Wait(ctx, 0)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected DeadlineExceeded, got %v", err)
		}
		if time.Since(start) > 5*time.Second {
			t.Error("Wait did not return promptly on cancellation")
		}
	})
}

// TestLimiterInterval tests the reported interval.
func TestLimiterInterval(t *testing.T) {
	t.Parallel()

	if got := New(4).Interval(); got != 250*time.Millisecond {
		t.Errorf("Interval() = %v, want 250ms", got)
	}
	if got := New(0).Interval(); got != 0 {
		t.Errorf("Interval() = %v, want 0", got)
	}
}

// TestLimiterConcurrentCallersAreSerialized tests that shared use keeps spacing.
func TestLimiterConcurrentCallersAreSerialized(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := New(1, WithClock(clock.Now), WithSleep(func(context.Context, time.Duration) error { return nil }))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		releases []time.Duration
	)
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d := l.reserve(0)
			mu.Lock()
			releases = append(releases, d)
			mu.Unlock()
		}()
	}
	wg.Wait()

	seen := make(map[time.Duration]bool)
	for _, d := range releases {
		if seen[d] {
			t.Fatalf("two callers released at the same offset %v: %v", d, releases)
		}
		seen[d] = true
	}
	for i := range 5 {
		if !seen[time.Duration(i)*time.Second] {
			t.Errorf("missing release at %ds: %v", i, releases)
		}
	}
}

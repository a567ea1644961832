package retry

import (
	"context"
	"time"

	"github.com/nao1215/sitecrawl/internal/event"
	"github.com/nao1215/sitecrawl/internal/model"
)

// Default retry settings.
const (
	DefaultAttempts = 3
	DefaultBase     = 750 * time.Millisecond
)

// DefaultStatuses are the HTTP statuses treated as transient.
var DefaultStatuses = []int{429, 500, 502, 503, 504}

// AttemptFunc performs one request and returns its HTTP status.
// A non-nil error means no response was received.
type AttemptFunc func(ctx context.Context) (status int, err error)

// Controller runs attempts under the retry policy.
// A Controller holds no per-request state and may be shared.
type Controller struct {
	// attempts is the number of retries after the first request.
	attempts int

	// base is the delay before the first retry.
	base time.Duration

	// statuses is the set of transient HTTP statuses.
	statuses map[int]struct{}

	// sleep blocks between attempts.
	sleep func(ctx context.Context, d time.Duration) error

	// emitter receives one retry event per scheduled retry.
	emitter event.Emitter
}

// Option configures a Controller.
type Option func(*Controller)

// WithAttempts sets the number of retries after the first request.
// Negative values are treated as zero.
func WithAttempts(n int) Option {
	return func(c *Controller) {
		c.attempts = max(n, 0)
	}
}

// WithBase sets the backoff base delay.
func WithBase(d time.Duration) Option {
	return func(c *Controller) {
		c.base = d
	}
}

// WithStatuses replaces the set of transient HTTP statuses.
func WithStatuses(statuses []int) Option {
	return func(c *Controller) {
		c.statuses = make(map[int]struct{}, len(statuses))
		for _, s := range statuses {
			c.statuses[s] = struct{}{}
		}
	}
}

// WithSleep replaces the wait between attempts. Tests use it to run
// retry scenarios without wall-clock delay.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Controller) {
		c.sleep = sleep
	}
}

// WithEmitter sets the emitter for retry events.
func WithEmitter(e event.Emitter) Option {
	return func(c *Controller) {
		if e != nil {
			c.emitter = e
		}
	}
}

// New creates a Controller with the default policy.
func New(opts ...Option) *Controller {
	c := &Controller{
		attempts: DefaultAttempts,
		base:     DefaultBase,
		sleep:    sleepContext,
		emitter:  event.Discard,
	}
	WithStatuses(DefaultStatuses)(c)

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Backoff returns the delay before retry k (0-based).
func (c *Controller) Backoff(k int) time.Duration {
	return c.base * time.Duration(1<<k)
}

// Do calls fn until it returns a 2xx status or a terminal failure.
//
// It returns nil on success, ctx.Err() if the context ends, and a
// *FetchError otherwise. A cancelled context is never retried.
func (c *Controller) Do(ctx context.Context, url string, fn AttemptFunc) error {
	for attempt := 0; ; attempt++ {
		status, err := fn(ctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		retry := event.New(event.TypeRetry, url).With("attempt", attempt+1)
		switch {
		case err != nil:
			if !IsTransientError(err) || attempt >= c.attempts {
				return &FetchError{URL: url, Cause: model.CauseNetwork, Attempts: attempt + 1, Err: err}
			}
			retry = retry.With("error", err.Error())

		case status >= 200 && status < 300:
			return nil

		case c.isTransientStatus(status):
			if attempt >= c.attempts {
				return &FetchError{URL: url, Cause: model.CauseExhausted, Status: status, Attempts: attempt + 1}
			}
			retry = retry.With("status", status)

		default:
			return &FetchError{URL: url, Cause: model.CauseStatus, Status: status, Attempts: attempt + 1}
		}

		backoff := c.Backoff(attempt)
		c.emitter.Emit(retry.With("backoff", backoff.Seconds()))

		if err := c.sleep(ctx, backoff); err != nil {
			return err
		}
	}
}

func (c *Controller) isTransientStatus(status int) bool {
	_, ok := c.statuses[status]
	return ok
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/nao1215/sitecrawl/internal/event"
	"github.com/nao1215/sitecrawl/internal/model"
)

type result struct {
	status int
	err    error
}

// scripted returns an AttemptFunc that replays results in order and then
// keeps repeating the last one.
func scripted(results ...result) (AttemptFunc, *int) {
	calls := 0
	return func(context.Context) (int, error) {
		r := results[min(calls, len(results)-1)]
		calls++
		return r.status, r.err
	}, &calls
}

type sleepRecorder struct {
	slept []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.slept = append(s.slept, d)
	return nil
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// TestControllerRetriesTransientStatus checks the 503, 503, 503, 200 scenario.
func TestControllerRetriesTransientStatus(t *testing.T) {
	t.Parallel()

	rec := &event.Recorder{}
	sr := &sleepRecorder{}
	c := New(WithSleep(sr.sleep), WithEmitter(rec))

	fn, calls := scripted(result{status: 503}, result{status: 503}, result{status: 503}, result{status: 200})

	if err := c.Do(context.Background(), "https://example.com/", fn); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if *calls != 4 {
		t.Errorf("calls = %d, want 4", *calls)
	}

	retries := rec.OfType(event.TypeRetry)
	if len(retries) != 3 {
		t.Fatalf("retry events = %d, want 3", len(retries))
	}
	wantBackoff := []float64{0.75, 1.5, 3.0}
	for i, ev := range retries {
		if ev.Attr("backoff") != wantBackoff[i] {
			t.Errorf("retry %d backoff = %v, want %v", i, ev.Attr("backoff"), wantBackoff[i])
		}
		if ev.Attr("attempt") != i+1 {
			t.Errorf("retry %d attempt = %v, want %d", i, ev.Attr("attempt"), i+1)
		}
		if ev.Attr("status") != 503 {
			t.Errorf("retry %d status = %v, want 503", i, ev.Attr("status"))
		}
	}

	want := []time.Duration{750 * time.Millisecond, 1500 * time.Millisecond, 3 * time.Second}
	if fmt.Sprint(sr.slept) != fmt.Sprint(want) {
		t.Errorf("slept %v, want %v", sr.slept, want)
	}
}

// TestControllerTerminalCauses tests cause attribution of terminal failures.
func TestControllerTerminalCauses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		results   []result
		wantCause model.FetchCause
		wantCalls int
		wantEvts  int
	}{
		{
			name:      "non-transient status is terminal at once",
			results:   []result{{status: 404}},
			wantCause: model.CauseStatus,
			wantCalls: 1,
		},
		{
			name:      "403 is terminal",
			results:   []result{{status: 403}},
			wantCause: model.CauseStatus,
			wantCalls: 1,
		},
		{
			name:      "transient status exhausted",
			results:   []result{{status: 500}},
			wantCause: model.CauseExhausted,
			wantCalls: 4,
			wantEvts:  3,
		},
		{
			name:      "network timeout exhausted",
			results:   []result{{err: timeoutError{}}},
			wantCause: model.CauseNetwork,
			wantCalls: 4,
			wantEvts:  3,
		},
		{
			name:      "non-transient network error",
			results:   []result{{err: errors.New("x509: certificate signed by unknown authority")}},
			wantCause: model.CauseNetwork,
			wantCalls: 1,
		},
		{
			name:      "status after network retries",
			results:   []result{{err: io.ErrUnexpectedEOF}, {status: 410}},
			wantCause: model.CauseStatus,
			wantCalls: 2,
			wantEvts:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := &event.Recorder{}
			sr := &sleepRecorder{}
			c := New(WithSleep(sr.sleep), WithEmitter(rec))
			fn, calls := scripted(tt.results...)

			err := c.Do(context.Background(), "https://example.com/x", fn)
			if !errors.Is(err, ErrFetchFailed) {
				t.Fatalf("expected ErrFetchFailed, got %v", err)
			}
			var fe *FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("expected *FetchError, got %T", err)
			}
			if fe.Cause != tt.wantCause {
				t.Errorf("cause = %v, want %v", fe.Cause, tt.wantCause)
			}
			if *calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", *calls, tt.wantCalls)
			}
			if fe.Attempts != tt.wantCalls {
				t.Errorf("Attempts = %d, want %d", fe.Attempts, tt.wantCalls)
			}
			if got := rec.Count(event.TypeRetry); got != tt.wantEvts {
				t.Errorf("retry events = %d, want %d", got, tt.wantEvts)
			}
		})
	}
}

// TestControllerNetworkErrorEvent tests the retry event for a network error.
func TestControllerNetworkErrorEvent(t *testing.T) {
	t.Parallel()

	rec := &event.Recorder{}
	sr := &sleepRecorder{}
	c := New(WithSleep(sr.sleep), WithEmitter(rec))
	fn, _ := scripted(result{err: syscall.ECONNRESET}, result{status: 200})

	if err := c.Do(context.Background(), "https://example.com/", fn); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	retries := rec.OfType(event.TypeRetry)
	if len(retries) != 1 {
		t.Fatalf("retry events = %d, want 1", len(retries))
	}
	if retries[0].Attr("error") == nil {
		t.Error("retry event for a network error should carry an error attribute")
	}
	if retries[0].Attr("status") != nil {
		t.Error("retry event for a network error should not carry a status")
	}
}

// TestControllerCustomPolicy tests option overrides.
func TestControllerCustomPolicy(t *testing.T) {
	t.Parallel()

	sr := &sleepRecorder{}
	c := New(
		WithSleep(sr.sleep),
		WithAttempts(1),
		WithBase(100*time.Millisecond),
		WithStatuses([]int{418}),
	)

	fn, calls := scripted(result{status: 418})
	err := c.Do(context.Background(), "https://example.com/", fn)

	var fe *FetchError
	if !errors.As(err, &fe) || fe.Cause != model.CauseExhausted {
		t.Fatalf("expected exhausted FetchError, got %v", err)
	}
	if *calls != 2 {
		t.Errorf("calls = %d, want 2", *calls)
	}
	if len(sr.slept) != 1 || sr.slept[0] != 100*time.Millisecond {
		t.Errorf("slept %v, want [100ms]", sr.slept)
	}

	// 503 is no longer transient under this policy.
	fn, calls = scripted(result{status: 503})
	err = c.Do(context.Background(), "https://example.com/", fn)
	if !errors.As(err, &fe) || fe.Cause != model.CauseStatus || *calls != 1 {
		t.Errorf("expected immediate status failure, got %v after %d calls", err, *calls)
	}
}

// TestControllerContextCancelled tests that cancellation is never retried.
func TestControllerContextCancelled(t *testing.T) {
	t.Parallel()

	t.Run("cancelled during attempt", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		c := New(WithSleep((&sleepRecorder{}).sleep))

		calls := 0
		err := c.Do(ctx, "https://example.com/", func(context.Context) (int, error) {
			calls++
			cancel()
			return 0, context.Canceled
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if errors.Is(err, ErrFetchFailed) {
			t.Error("cancellation must not be reported as a fetch failure")
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})

	t.Run("cancelled during backoff", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		c := New(WithSleep(func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		}))
		fn, calls := scripted(result{status: 503})

		err := c.Do(ctx, "https://example.com/", fn)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if *calls != 1 {
			t.Errorf("calls = %d, want 1", *calls)
		}
	})
}

// TestIsTransientError tests network error classification.
func TestIsTransientError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout", timeoutError{}, true},
		{"wrapped timeout", fmt.Errorf("get: %w", timeoutError{}), true},
		{"connection refused", &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, true},
		{"connection reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"unexpected EOF", io.ErrUnexpectedEOF, true},
		{"dns not found", &net.DNSError{Err: "no such host", Name: "nope.invalid", IsNotFound: true}, false},
		{"dns temporary", &net.DNSError{Err: "server misbehaving", Name: "example.com", IsTemporary: true}, true},
		{"plain error", errors.New("bad certificate"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsTransientError(tt.err); got != tt.want {
				t.Errorf("IsTransientError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

// TestFetchErrorMessage tests the error text.
func TestFetchErrorMessage(t *testing.T) {
	t.Parallel()

	err := &FetchError{URL: "https://example.com/", Cause: model.CauseExhausted, Status: 503, Attempts: 4}
	want := "fetch https://example.com/ failed after 4 attempt(s) (exhausted): HTTP 503"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

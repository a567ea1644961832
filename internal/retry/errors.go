package retry

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"github.com/nao1215/sitecrawl/internal/model"
)

// ErrFetchFailed is matched by every terminal *FetchError.
var ErrFetchFailed = errors.New("fetch failed")

// FetchError describes a fetch that will not be retried any further.
type FetchError struct {
	// URL is the requested URL.
	URL string

	// Cause tells why the fetch failed.
	Cause model.FetchCause

	// Status is the last HTTP status seen, or 0 for network failures.
	Status int

	// Attempts is the number of requests that were made.
	Attempts int

	// Err is the last network error, if any.
	Err error
}

// Error implements error.
func (e *FetchError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("fetch %s failed after %d attempt(s) (%s): %v", e.URL, e.Attempts, e.Cause, e.Err)
	default:
		return fmt.Sprintf("fetch %s failed after %d attempt(s) (%s): HTTP %d", e.URL, e.Attempts, e.Cause, e.Status)
	}
}

// Unwrap exposes ErrFetchFailed and the underlying network error.
func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrFetchFailed}
	}
	return []error{ErrFetchFailed, e.Err}
}

// IsTransientError reports whether a network error is worth retrying:
// timeouts, refused or reset connections and truncated responses.
// DNS lookups that definitively found no host are not retried.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTimeout || dnsErr.IsTemporary
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF):
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}

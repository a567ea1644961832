package model

// FetchCause classifies why a fetch ended in a terminal failure.
// It lets stats and events attribute errors without string matching.
type FetchCause int

const (
	// CauseNone means the fetch did not fail.
	CauseNone FetchCause = iota

	// CauseNetwork means the last attempt failed at the network level
	// (timeout, refused or reset connection, unreadable body).
	CauseNetwork

	// CauseExhausted means every attempt returned a transient status
	// such as 503 and the retry budget ran out.
	CauseExhausted

	// CauseStatus means the server answered with a non-transient error
	// status (for example 404), which is never retried.
	CauseStatus
)

// String returns the name used in events and logs.
func (c FetchCause) String() string {
	switch c {
	case CauseNone:
		return "none"
	case CauseNetwork:
		return "network"
	case CauseExhausted:
		return "exhausted"
	case CauseStatus:
		return "status"
	default:
		return "unknown"
	}
}

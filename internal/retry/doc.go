// Package retry wraps a single fetch with a bounded retry policy.
//
// Transient failures (configured HTTP statuses, network timeouts and
// dropped connections) are retried with exponential backoff and no jitter:
// the delay before retry k (0-based) is base * 2^k. Every other failure is
// terminal at once. Terminal failures are reported as *FetchError, whose
// Cause tells stats attribution apart.
package retry

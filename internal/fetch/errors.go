package fetch

import "errors"

var (
	// ErrInvalidProxyAddress is returned when the proxy address is not in
	// "host:port" format.
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")

	// ErrTooManyRedirects is returned when a redirect chain is longer than
	// MaxRedirects.
	ErrTooManyRedirects = errors.New("too many redirects")
)

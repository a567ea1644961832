// Package log provides the slog setup used by sitecrawl, with automatic
// redaction of credentials in log output.
//
// Crawls often run with per-site cookies and Authorization headers, and
// crawled URLs sometimes carry access tokens in their query string. The
// RedactingHandler keeps those values out of logs:
//   - attributes whose key names a secret (cookie, authorization, token, ...)
//   - values that look like credentials (JWTs, Bearer and Basic schemes, AWS keys)
//   - token-like query parameters inside URL values, leaving the rest of the URL readable
//
// # Usage
//
//	logger := log.NewRedactingLogger(os.Stderr, verbose)
//	logger.Warn("fetch failed",
//	    "url", "https://example.com/a?access_token=abc", // logged as access_token=***REDACTED***
//	    "cookie", "session=abc123",                      // logged as ***REDACTED***
//	)
//	slog.SetDefault(logger)
package log

package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and provide specific
// information about what is wrong with the configuration.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling while still providing
// human-readable messages.
var (
	// ErrNoSeed is returned when no seed URL is given.
	ErrNoSeed = errors.New("no seed specified: provide at least one URL")

	// ErrInvalidMaxDepth is returned when the maximum depth is negative.
	ErrInvalidMaxDepth = errors.New("invalid max depth: must be non-negative")

	// ErrInvalidMaxPages is returned when the page cap is below one.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be at least 1")

	// ErrInvalidMaxLinks is returned when the per-page link cap is negative.
	// Use 0 for no cap.
	ErrInvalidMaxLinks = errors.New("invalid max links: must be non-negative")

	// ErrInvalidRPS is returned when the request rate is negative.
	// Use 0 to disable rate limiting.
	ErrInvalidRPS = errors.New("invalid rps: must be non-negative")

	// ErrInvalidRetryAttempts is returned when the retry count is negative.
	ErrInvalidRetryAttempts = errors.New("invalid retry attempts: must be non-negative")

	// ErrInvalidRetryBase is returned when the first backoff delay is not positive.
	ErrInvalidRetryBase = errors.New("invalid retry base delay: must be positive")

	// ErrInvalidRetryStatus is returned when a retry status is not an HTTP status code.
	ErrInvalidRetryStatus = errors.New("invalid retry status: must be between 100 and 599")

	// ErrInvalidMaxHTMLBytes is returned when the HTML size limit is negative.
	// Use 0 to disable the limit.
	ErrInvalidMaxHTMLBytes = errors.New("invalid max HTML bytes: must be non-negative")

	// ErrInvalidRobotsFailure is returned for an unknown robots.txt failure policy.
	ErrInvalidRobotsFailure = errors.New(`invalid robots failure policy: must be "allow" or "deny"`)

	// ErrInvalidTimeout is returned when the timeout is not positive.
	// A timeout of zero or negative would cause immediate request failures.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one summary format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrNoDBDir is returned when saving is requested without a database directory.
	ErrNoDBDir = errors.New("no database directory: --save requires --db-dir")
)

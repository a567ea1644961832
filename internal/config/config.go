package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
// The crawl bounds match a small documentation site; larger sites are
// expected to raise them explicitly.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "sitecrawl"

	// DefaultMaxDepth of 2 reaches pages two clicks away from the seed,
	// which covers the navigation tree of most small sites.
	DefaultMaxDepth = 2

	// DefaultMaxPages is the maximum number of page records per seed.
	DefaultMaxPages = 50

	// DefaultMaxLinks is the number of links per page that are enqueued,
	// after sorting. It keeps link-heavy index pages from flooding the frontier.
	DefaultMaxLinks = 25

	// DefaultRPS is the global request rate. One request per second is a
	// conservative rate that no reasonable site operator objects to.
	DefaultRPS = 1.0

	// DefaultRetryAttempts is the number of retries after the first try.
	DefaultRetryAttempts = 3

	// DefaultRetryBase is the first backoff delay; later delays double.
	DefaultRetryBase = 750 * time.Millisecond

	// DefaultMaxHTMLBytes skips pages whose raw HTML is larger than this.
	DefaultMaxHTMLBytes = 800000

	// DefaultTimeout bounds one HTTP request including redirects.
	DefaultTimeout = 15 * time.Second

	// DefaultMaxBodySize limits how much of a response body is read.
	// 10MB is far above DefaultMaxHTMLBytes so truncation only happens on
	// responses that would be skipped anyway.
	DefaultMaxBodySize = 10 * 1024 * 1024 // 10MB

	// DefaultBatchSize of 1 crawls seeds one after another, which keeps the
	// output order of a multi-seed run reproducible.
	DefaultBatchSize = 1

	// DefaultRobotsFailure is the policy applied when robots.txt cannot be
	// fetched.
	DefaultRobotsFailure = "allow"

	// DefaultUserAgent identifies sitecrawl in HTTP requests and selects
	// the "sitecrawl" group in robots.txt.
	DefaultUserAgent = "sitecrawl/0.1 (+https://github.com/nao1215/sitecrawl)"
)

// DefaultRetryStatuses are the HTTP statuses retried by default.
var DefaultRetryStatuses = []int{429, 500, 502, 503, 504}

// Config holds all configuration options for sitecrawl.
// It is populated from CLI flags and the optional site file, then passed
// down explicitly; nothing reads it from global state.
//
// Design decision: We use a single flat struct instead of nested structs
// (e.g., CrawlConfig, OutputConfig) for simplicity. Every field maps to
// exactly one CLI flag, so a flat struct keeps that mapping obvious.
type Config struct {
	// Seeds are the start URLs. Each seed is crawled as its own run.
	Seeds []string

	// MaxDepth is the maximum number of links followed from a seed.
	// Depth 0 means only the seed page is fetched.
	MaxDepth int

	// MaxPages is the maximum number of page records per seed.
	MaxPages int

	// MaxLinks caps the links enqueued per page. 0 means no cap.
	MaxLinks int

	// RPS is the global request rate shared by all seeds.
	// 0 disables rate limiting; robots.txt Crawl-delay still applies.
	RPS float64

	// RetryAttempts is the number of retries after a transient failure.
	RetryAttempts int

	// RetryBase is the first backoff delay.
	RetryBase time.Duration

	// RetryStatuses are the HTTP statuses treated as transient.
	RetryStatuses []int

	// MaxHTMLBytes skips pages with a larger raw body. 0 disables the check.
	MaxHTMLBytes int

	// ContentDedup suppresses pages whose cleaned text was already emitted.
	ContentDedup bool

	// RobotsFailure is "allow" or "deny": what to do when robots.txt cannot
	// be fetched after retries.
	RobotsFailure string

	// ExtraHosts are hosts crawled in addition to the seed's registrable
	// domain, together with their subdomains.
	ExtraHosts []string

	// TrackingParams replaces the default set of query parameters removed
	// during canonicalization. Empty means the default set.
	TrackingParams []string

	// UserAgent is the User-Agent header. Its product token also selects the
	// robots.txt group.
	UserAgent string

	// Timeout bounds one HTTP request.
	Timeout time.Duration

	// MaxBodySize is the maximum response body size in bytes to read.
	// Responses larger than this are truncated and then skipped as too large.
	MaxBodySize int64

	// BrowserHeaders adds browser-like Accept and Accept-Language headers.
	BrowserHeaders bool

	// ProxyAddress is an optional SOCKS5 proxy in "host:port" format.
	ProxyAddress string

	// BatchSize is the number of seeds crawled concurrently.
	// All seeds share one rate limiter regardless of this value.
	BatchSize int

	// Verbose enables detailed log output using slog.LevelDebug.
	// When false, only warnings and errors are logged.
	Verbose bool

	// JSONLogs switches the log format from text to JSON.
	JSONLogs bool

	// OutputFile is where page records are written as JSON lines.
	// Empty means stdout.
	OutputFile string

	// EventsFile is where crawl events are written as JSON lines.
	// Empty disables the event log.
	EventsFile string

	// Stats prints a stats summary to stderr after the crawl.
	Stats bool

	// JSONReport formats the stats summary as JSON.
	// Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport formats the stats summary as GitHub Flavored Markdown.
	// Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile writes the stats summary to this file instead of stderr.
	ReportFile string

	// ConfigFilePath is the path to the site file.
	// If empty, the tool searches for .sitecrawl in the current directory
	// and then in the user's home directory.
	ConfigFilePath string

	// SiteConfigs holds site-specific configurations loaded from the site file.
	SiteConfigs *File

	// DBDir is the directory of the SQLite history database.
	// Defaults to the XDG data directory (~/.local/share/sitecrawl on Linux).
	DBDir string

	// SaveToDB records every run in the history database.
	SaveToDB bool
}

// NewConfig creates a new Config with default values.
//
// Design decision: We use a constructor function instead of relying on
// zero values because many defaults are non-zero (e.g., rate, timeout).
// This also serves as documentation of what the defaults are.
func NewConfig() *Config {
	return &Config{
		MaxDepth:      DefaultMaxDepth,
		MaxPages:      DefaultMaxPages,
		MaxLinks:      DefaultMaxLinks,
		RPS:           DefaultRPS,
		RetryAttempts: DefaultRetryAttempts,
		RetryBase:     DefaultRetryBase,
		RetryStatuses: append([]int(nil), DefaultRetryStatuses...),
		MaxHTMLBytes:  DefaultMaxHTMLBytes,
		ContentDedup:  true,
		RobotsFailure: DefaultRobotsFailure,
		UserAgent:     DefaultUserAgent,
		Timeout:       DefaultTimeout,
		MaxBodySize:   DefaultMaxBodySize,
		BatchSize:     DefaultBatchSize,
		DBDir:         XDGDataDir(),
	}
}

// XDGDataDir returns the XDG data directory for sitecrawl.
// On Linux: ~/.local/share/sitecrawl
// On macOS: ~/Library/Application Support/sitecrawl
// On Windows: %LOCALAPPDATA%\sitecrawl
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for sitecrawl.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns a specific error describing what is invalid.
//
// Design decision: We validate at the config level rather than at each
// point of use to fail fast and provide clear error messages upfront.
// The first error found is returned because fixing one often makes
// others irrelevant.
func (c *Config) Validate() error {
	if len(c.Seeds) == 0 {
		return ErrNoSeed
	}

	if c.MaxDepth < 0 {
		return ErrInvalidMaxDepth
	}

	if c.MaxPages < 1 {
		return ErrInvalidMaxPages
	}

	if c.MaxLinks < 0 {
		return ErrInvalidMaxLinks
	}

	if c.RPS < 0 {
		return ErrInvalidRPS
	}

	if c.RetryAttempts < 0 {
		return ErrInvalidRetryAttempts
	}

	if c.RetryBase <= 0 {
		return ErrInvalidRetryBase
	}

	for _, status := range c.RetryStatuses {
		if status < 100 || status > 599 {
			return ErrInvalidRetryStatus
		}
	}

	if c.MaxHTMLBytes < 0 {
		return ErrInvalidMaxHTMLBytes
	}

	if c.RobotsFailure != "allow" && c.RobotsFailure != "deny" {
		return ErrInvalidRobotsFailure
	}

	// Timeout must be positive; zero timeout would cause immediate failures
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}

	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	if c.SaveToDB && c.DBDir == "" {
		return ErrNoDBDir
	}

	return nil
}

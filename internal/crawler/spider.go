package crawler

import (
	"context"
	"log/slog"

	"github.com/nao1215/sitecrawl/internal/event"
	"github.com/nao1215/sitecrawl/internal/fetch"
	"github.com/nao1215/sitecrawl/internal/model"
	"github.com/nao1215/sitecrawl/internal/ratelimit"
	"github.com/nao1215/sitecrawl/internal/retry"
	"github.com/nao1215/sitecrawl/internal/robots"
	"github.com/nao1215/sitecrawl/internal/urlcanon"
)

// Defaults for Spider options.
const (
	DefaultMaxDepth     = 2
	DefaultMaxPages     = 50
	DefaultMaxLinks     = 25
	DefaultMaxHTMLBytes = 800000
)

// Spider crawls one site breadth-first and yields its pages in a
// deterministic order.
//
// Design decision: We call it "Spider" rather than "Crawler" because:
//  1. "Spider" is the traditional term for web crawlers
//  2. Distinguishes the component from the package name
//  3. Clearer in code: crawler.NewSpider() vs crawler.NewCrawler()
//
// A Spider holds configuration only. Each Crawl call starts a Run with its
// own frontier, dedup store, robots cache and stats, so one Spider can crawl
// several seeds, even concurrently. The rate limiter is the only state
// shared between runs.
type Spider struct {
	// fetcher performs HTTP requests.
	fetcher fetch.Fetcher

	// extractor finds title, text and links in HTML.
	extractor Extractor

	// limiter spaces every outbound request, robots.txt included.
	limiter *ratelimit.Limiter

	// retry wraps each request with the transient-failure policy.
	retry *retry.Controller

	// emitter receives crawl events.
	emitter event.Emitter

	// logger receives run-level log lines.
	logger *slog.Logger

	// canon normalizes URLs.
	canon *urlcanon.Canonicalizer

	// maxDepth limits how many links away from the seed the crawl goes.
	// 0 means only the seed.
	maxDepth int

	// maxPages limits the number of emitted pages.
	maxPages int

	// maxLinks caps how many links of one page are enqueued; 0 means no cap.
	maxLinks int

	// maxHTMLBytes skips pages with a larger body; 0 disables the check.
	maxHTMLBytes int

	// contentDedup suppresses pages whose text was already emitted.
	contentDedup bool

	// paths filters discovered links by path glob patterns.
	paths pathFilter

	// extraHosts are accepted in scope in addition to the seed's domain.
	extraHosts []string

	// userAgent selects robots.txt groups.
	userAgent string

	// robotsFailure decides hosts whose robots.txt cannot be fetched.
	robotsFailure robots.FailurePolicy
}

// SpiderOption configures a Spider.
type SpiderOption func(*Spider)

// WithMaxDepth sets the maximum crawl depth.
// 0 = only the starting page, 1 = starting page plus linked pages, etc.
func WithMaxDepth(depth int) SpiderOption {
	return func(s *Spider) {
		s.maxDepth = max(depth, 0)
	}
}

// WithMaxPages sets the maximum number of pages to emit. Values below 1 are
// raised to 1.
func WithMaxPages(maxPages int) SpiderOption {
	return func(s *Spider) {
		s.maxPages = max(maxPages, 1)
	}
}

// WithMaxLinks sets how many links per page are enqueued, after sorting.
// 0 or less removes the cap.
func WithMaxLinks(n int) SpiderOption {
	return func(s *Spider) {
		s.maxLinks = max(n, 0)
	}
}

// WithMaxHTMLBytes skips pages whose raw body is larger than n bytes.
// 0 or less disables the check.
func WithMaxHTMLBytes(n int) SpiderOption {
	return func(s *Spider) {
		s.maxHTMLBytes = max(n, 0)
	}
}

// WithContentDedup enables or disables suppression of pages whose cleaned
// text was already emitted.
func WithContentDedup(enabled bool) SpiderOption {
	return func(s *Spider) {
		s.contentDedup = enabled
	}
}

// WithIgnorePatterns sets URL path patterns to skip during crawling.
// Patterns use glob syntax (e.g., "/admin/*", "*.pdf", "/logout*").
func WithIgnorePatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.paths.ignore = patterns
	}
}

// WithFollowPatterns sets URL path patterns to follow during crawling.
// If set, only links matching at least one pattern are enqueued.
func WithFollowPatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.paths.follow = patterns
	}
}

// WithExtraScopeHosts accepts these hosts and their subdomains in addition to
// the seed's registrable domain.
func WithExtraScopeHosts(hosts []string) SpiderOption {
	return func(s *Spider) {
		s.extraHosts = hosts
	}
}

// WithUserAgent sets the User-Agent whose product token selects robots.txt
// groups. It should match the fetcher's User-Agent.
func WithUserAgent(ua string) SpiderOption {
	return func(s *Spider) {
		if ua != "" {
			s.userAgent = ua
		}
	}
}

// WithRobotsFailurePolicy sets what happens when robots.txt cannot be fetched.
func WithRobotsFailurePolicy(p robots.FailurePolicy) SpiderOption {
	return func(s *Spider) {
		s.robotsFailure = p
	}
}

// WithExtractor replaces the HTML extractor.
func WithExtractor(x Extractor) SpiderOption {
	return func(s *Spider) {
		if x != nil {
			s.extractor = x
		}
	}
}

// WithLimiter sets the rate limiter. Share one limiter between spiders to
// keep a global request rate.
func WithLimiter(l *ratelimit.Limiter) SpiderOption {
	return func(s *Spider) {
		if l != nil {
			s.limiter = l
		}
	}
}

// WithRetry sets the retry controller.
func WithRetry(c *retry.Controller) SpiderOption {
	return func(s *Spider) {
		if c != nil {
			s.retry = c
		}
	}
}

// WithEmitter sets the event emitter.
func WithEmitter(e event.Emitter) SpiderOption {
	return func(s *Spider) {
		if e != nil {
			s.emitter = e
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) SpiderOption {
	return func(s *Spider) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCanonicalizer replaces the URL canonicalizer.
func WithCanonicalizer(c *urlcanon.Canonicalizer) SpiderOption {
	return func(s *Spider) {
		if c != nil {
			s.canon = c
		}
	}
}

// NewSpider creates a Spider fetching through f.
//
// Without WithLimiter the spider allows one request per second. Without
// WithRetry it uses the default retry policy, reporting to the spider's
// emitter.
func NewSpider(f fetch.Fetcher, opts ...SpiderOption) *Spider {
	s := &Spider{
		fetcher:      f,
		extractor:    NewHTMLExtractor(),
		emitter:      event.Discard,
		logger:       slog.Default(),
		canon:        urlcanon.New(),
		maxDepth:     DefaultMaxDepth,
		maxPages:     DefaultMaxPages,
		maxLinks:     DefaultMaxLinks,
		maxHTMLBytes: DefaultMaxHTMLBytes,
		contentDedup: true,
		userAgent:    fetch.DefaultUserAgent,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.limiter == nil {
		s.limiter = ratelimit.New(1)
	}
	if s.retry == nil {
		s.retry = retry.New(retry.WithEmitter(s.emitter))
	}

	return s
}

// Crawl prepares a run starting at seed. Nothing is fetched until the
// run's page sequence is iterated.
func (s *Spider) Crawl(seed string) *Run {
	return &Run{spider: s, seed: seed}
}

// CrawlAll crawls seed to completion and returns every page with the final
// stats. The error is non-nil only if ctx ended the run early; the pages
// collected up to that point are still returned.
func (s *Spider) CrawlAll(ctx context.Context, seed string) ([]model.PageRecord, model.CrawlStats, error) {
	run := s.Crawl(seed)

	pages := make([]model.PageRecord, 0)
	for page := range run.Pages(ctx) {
		pages = append(pages, page)
	}
	return pages, run.Stats(), run.Err()
}

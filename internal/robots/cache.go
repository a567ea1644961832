package robots

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nao1215/sitecrawl/internal/event"
	"github.com/nao1215/sitecrawl/internal/fetch"
	"github.com/nao1215/sitecrawl/internal/ratelimit"
	"github.com/nao1215/sitecrawl/internal/retry"
)

// FailurePolicy decides what a host's policy is when robots.txt cannot be
// fetched.
type FailurePolicy int

const (
	// AllowOnFailure treats an unreachable robots.txt as "allow all".
	AllowOnFailure FailurePolicy = iota

	// DenyOnFailure treats an unreachable robots.txt as "disallow all".
	DenyOnFailure
)

// String returns "allow" or "deny".
func (p FailurePolicy) String() string {
	if p == DenyOnFailure {
		return "deny"
	}
	return "allow"
}

// ParseFailurePolicy parses "allow" or "deny" (case-insensitive).
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "allow", "":
		return AllowOnFailure, nil
	case "deny":
		return DenyOnFailure, nil
	default:
		return AllowOnFailure, fmt.Errorf("unknown robots failure policy %q: want allow or deny", s)
	}
}

// Policy is the cached ruleset of one host.
type Policy struct {
	// Host is the cache key, the URL host including a non-default port.
	Host string

	// Rules apply to the crawler's user agent.
	Rules []Rule

	// CrawlDelay is the requested spacing between requests, zero if none.
	CrawlDelay time.Duration

	// Sitemaps lists Sitemap URLs found in the file.
	Sitemaps []string

	// Status is the HTTP status of the robots.txt response, 0 if none.
	Status int

	// Fallback is true when robots.txt could not be fetched and the
	// failure policy decided the outcome.
	Fallback bool

	// DenyAll is true when the failure policy is DenyOnFailure.
	DenyAll bool
}

// Allowed reports whether path (with query) may be fetched.
func (p *Policy) Allowed(path string) bool {
	if p.DenyAll {
		return false
	}
	allowed, _ := Decide(p.Rules, path)
	return allowed
}

// Decision is the answer for one URL.
type Decision struct {
	Allowed    bool
	CrawlDelay time.Duration

	// Fallback is copied from the host's Policy.
	Fallback bool
}

// Cache fetches and memoizes robots policies per host.
//
// Design decision: The cache never expires entries. A crawl run is short and
// re-reading robots.txt mid-run could change which URLs are visited, which
// would make two runs over the same content diverge.
type Cache struct {
	fetcher fetch.Fetcher
	retry   *retry.Controller
	limiter *ratelimit.Limiter
	emitter event.Emitter
	logger  *slog.Logger

	token     string
	onFailure FailurePolicy

	mu       sync.Mutex
	policies map[string]*Policy
	loads    singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithRetry sets the retry controller used for robots.txt requests.
func WithRetry(c *retry.Controller) Option {
	return func(rc *Cache) {
		rc.retry = c
	}
}

// WithLimiter sets the rate limiter used for robots.txt requests.
// Without one, robots.txt requests are not spaced.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(rc *Cache) {
		rc.limiter = l
	}
}

// WithEmitter sets the emitter for robots_fallback events.
func WithEmitter(e event.Emitter) Option {
	return func(rc *Cache) {
		if e != nil {
			rc.emitter = e
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(rc *Cache) {
		if l != nil {
			rc.logger = l
		}
	}
}

// WithUserAgent sets the User-Agent whose product token selects rule groups.
func WithUserAgent(ua string) Option {
	return func(rc *Cache) {
		rc.token = ProductToken(ua)
	}
}

// WithFailurePolicy sets the outcome for hosts whose robots.txt cannot be fetched.
func WithFailurePolicy(p FailurePolicy) Option {
	return func(rc *Cache) {
		rc.onFailure = p
	}
}

// NewCache creates an empty Cache fetching through f.
func NewCache(f fetch.Fetcher, opts ...Option) *Cache {
	c := &Cache{
		fetcher:  f,
		emitter:  event.Discard,
		logger:   slog.Default(),
		token:    ProductToken(fetch.DefaultUserAgent),
		policies: make(map[string]*Policy),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.retry == nil {
		c.retry = retry.New(retry.WithEmitter(c.emitter))
	}
	return c
}

// Allowed decides whether rawURL may be fetched, loading the host's policy
// on first use. The error is non-nil only for an unparseable URL or when ctx
// ends while the policy is loading.
func (c *Cache) Allowed(ctx context.Context, rawURL string) (Decision, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return Decision{}, fmt.Errorf("robots: invalid URL %q", rawURL)
	}

	p, err := c.policy(ctx, u)
	if err != nil {
		return Decision{}, err
	}

	return Decision{
		Allowed:    p.Allowed(requestPath(u)),
		CrawlDelay: p.CrawlDelay,
		Fallback:   p.Fallback,
	}, nil
}

// Policy returns the cached policy of host, if loaded.
func (c *Cache) Policy(host string) (*Policy, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.policies[strings.ToLower(host)]
	return p, ok
}

func (c *Cache) policy(ctx context.Context, u *url.URL) (*Policy, error) {
	host := strings.ToLower(u.Host)
	if p, ok := c.Policy(host); ok {
		return p, nil
	}

	v, err, _ := c.loads.Do(host, func() (any, error) {
		if p, ok := c.Policy(host); ok {
			return p, nil
		}
		p, err := c.load(ctx, u.Scheme, host)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.policies[host] = p
		c.mu.Unlock()
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Policy), nil
}

// load fetches and parses robots.txt for host. Only context errors are
// returned; every other failure becomes a policy.
func (c *Cache) load(ctx context.Context, scheme, host string) (*Policy, error) {
	robotsURL := scheme + "://" + host + "/robots.txt"

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, 0); err != nil {
			return nil, err
		}
	}

	var resp *fetch.Response
	err := c.retry.Do(ctx, robotsURL, func(ctx context.Context) (int, error) {
		r, err := c.fetcher.Fetch(ctx, robotsURL)
		if err != nil {
			return 0, err
		}
		resp = r
		return r.StatusCode, nil
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	if err == nil {
		if looksLikeHTML(resp.Body) {
			c.logger.Debug("robots.txt is an HTML page, ignoring", "url", robotsURL)
			return &Policy{Host: host, Status: resp.StatusCode}, nil
		}
		parsed := Parse(resp.Body)
		rules, delay := parsed.Select(c.token)
		return &Policy{
			Host:       host,
			Rules:      rules,
			CrawlDelay: delay,
			Sitemaps:   parsed.Sitemaps,
			Status:     resp.StatusCode,
		}, nil
	}

	var fe *retry.FetchError
	if errors.As(err, &fe) && fe.Status >= 400 && fe.Status < 500 && fe.Status != 429 {
		// A missing or forbidden robots.txt places no restriction.
		return &Policy{Host: host, Status: fe.Status}, nil
	}

	p := &Policy{Host: host, Fallback: true, DenyAll: c.onFailure == DenyOnFailure}
	if fe != nil {
		p.Status = fe.Status
	}
	c.logger.Warn("robots.txt unavailable, applying failure policy",
		"url", robotsURL, "policy", c.onFailure.String(), "error", err)
	c.emitter.Emit(event.New(event.TypeRobotsFallback, robotsURL).
		With("host", host).
		With("policy", c.onFailure.String()).
		With("error", err.Error()))
	return p, nil
}

// requestPath is the part of u matched against rules.
func requestPath(u *url.URL) string {
	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	return p
}

// looksLikeHTML reports whether a robots.txt body is an HTML page without
// any User-agent line, as served by some sites for every unknown path.
func looksLikeHTML(body []byte) bool {
	lower := bytes.ToLower(body)
	if bytes.Contains(lower, []byte("user-agent:")) {
		return false
	}
	for _, hint := range [][]byte{[]byte("<!doctype html"), []byte("<html"), []byte("<head"), []byte("<body")} {
		if bytes.Contains(lower, hint) {
			return true
		}
	}
	return false
}

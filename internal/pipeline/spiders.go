package pipeline

import (
	"errors"
	"log/slog"
	"slices"

	"github.com/nao1215/sitecrawl/internal/config"
	"github.com/nao1215/sitecrawl/internal/crawler"
	"github.com/nao1215/sitecrawl/internal/event"
	"github.com/nao1215/sitecrawl/internal/fetch"
	"github.com/nao1215/sitecrawl/internal/ratelimit"
	"github.com/nao1215/sitecrawl/internal/retry"
	"github.com/nao1215/sitecrawl/internal/robots"
	"github.com/nao1215/sitecrawl/internal/urlcanon"
)

// SpiderFactory creates the spider that crawls one job.
type SpiderFactory func(job Job) (*crawler.Spider, error)

// Shared holds the components every spider of a batch uses.
// The limiter in particular must be shared: it is what keeps the request
// rate global across concurrently crawled seeds.
type Shared struct {
	// Fetcher performs HTTP requests. Required.
	Fetcher fetch.Fetcher

	// Limiter spaces requests. Nil means one built from the config's RPS.
	Limiter *ratelimit.Limiter

	// Retry is the retry policy. Nil means one built from the config.
	Retry *retry.Controller

	// Emitter receives crawl events. Nil means events are discarded.
	Emitter event.Emitter

	// Logger is passed to every spider. Nil means slog.Default().
	Logger *slog.Logger
}

// NewSpiderFactory returns a factory that configures spiders from cfg.
//
// Settings from the site file apply per seed: the seed's host selects the
// site entry, whose depth overrides cfg.MaxDepth and whose patterns filter
// links. Everything else comes from cfg and is the same for every seed.
func NewSpiderFactory(cfg *config.Config, shared Shared) (SpiderFactory, error) {
	if shared.Fetcher == nil {
		return nil, errors.New("spider factory: fetcher is required")
	}

	policy, err := robots.ParseFailurePolicy(cfg.RobotsFailure)
	if err != nil {
		return nil, err
	}

	emitter := shared.Emitter
	if emitter == nil {
		emitter = event.Discard
	}
	logger := shared.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limiter := shared.Limiter
	if limiter == nil {
		limiter = ratelimit.New(cfg.RPS)
	}
	retrier := shared.Retry
	if retrier == nil {
		retrier = retry.New(
			retry.WithAttempts(cfg.RetryAttempts),
			retry.WithBase(cfg.RetryBase),
			retry.WithStatuses(cfg.RetryStatuses),
			retry.WithEmitter(emitter),
		)
	}

	var canonOpts []urlcanon.Option
	if len(cfg.TrackingParams) > 0 {
		canonOpts = append(canonOpts, urlcanon.WithTrackingParams(cfg.TrackingParams))
	}
	canon := urlcanon.New(canonOpts...)

	return func(job Job) (*crawler.Spider, error) {
		depth := cfg.MaxDepth
		var site config.SiteConfig
		if cfg.SiteConfigs != nil {
			site = cfg.SiteConfigs.GetSiteConfig(urlcanon.Host(job.Seed))
			if site.Depth > 0 {
				depth = site.Depth
			}
		}

		logger.Debug("configuring spider",
			"seed", job.Seed,
			"max_depth", depth,
			"ignore_patterns", len(site.IgnorePatterns),
			"follow_patterns", len(site.FollowPatterns),
		)

		return crawler.NewSpider(shared.Fetcher,
			crawler.WithMaxDepth(depth),
			crawler.WithMaxPages(cfg.MaxPages),
			crawler.WithMaxLinks(cfg.MaxLinks),
			crawler.WithMaxHTMLBytes(cfg.MaxHTMLBytes),
			crawler.WithContentDedup(cfg.ContentDedup),
			crawler.WithIgnorePatterns(site.IgnorePatterns),
			crawler.WithFollowPatterns(site.FollowPatterns),
			crawler.WithExtraScopeHosts(cfg.ExtraHosts),
			crawler.WithUserAgent(cfg.UserAgent),
			crawler.WithRobotsFailurePolicy(policy),
			crawler.WithCanonicalizer(canon),
			crawler.WithLimiter(limiter),
			crawler.WithRetry(retrier),
			crawler.WithEmitter(emitter),
			crawler.WithLogger(logger),
		), nil
	}, nil
}

// SiteAuth extracts the per-host cookies and headers of a site file for
// the HTTP fetcher. It covers every host with a site entry and the hosts of
// the seeds, which get the defaults when they have no entry of their own.
func SiteAuth(file *config.File, seeds []string) map[string]fetch.SiteAuth {
	if file == nil {
		return nil
	}
	hosts := file.Hosts()
	for _, seed := range seeds {
		if host := urlcanon.Host(seed); host != "" && !slices.Contains(hosts, host) {
			hosts = append(hosts, host)
		}
	}

	auth := make(map[string]fetch.SiteAuth, len(hosts))
	for _, host := range hosts {
		site := file.GetSiteConfig(host)
		if site.Cookie == "" && len(site.Headers) == 0 {
			continue
		}
		auth[host] = fetch.SiteAuth{Cookie: site.Cookie, Headers: site.Headers}
	}
	return auth
}

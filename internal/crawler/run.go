package crawler

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/nao1215/sitecrawl/internal/dedup"
	"github.com/nao1215/sitecrawl/internal/event"
	"github.com/nao1215/sitecrawl/internal/fetch"
	"github.com/nao1215/sitecrawl/internal/model"
	"github.com/nao1215/sitecrawl/internal/retry"
	"github.com/nao1215/sitecrawl/internal/robots"
	"github.com/nao1215/sitecrawl/internal/urlcanon"
)

// Run is one crawl of one seed.
// Its page sequence can be iterated once; Stats and Err may be read at any
// time, also from other goroutines.
type Run struct {
	spider *Spider
	seed   string

	// started guards the single iteration of Pages.
	started atomic.Bool

	mu    sync.Mutex
	stats model.CrawlStats
	err   error
}

// Seed returns the seed URL as given to Crawl.
func (r *Run) Seed() string {
	return r.seed
}

// Stats returns a snapshot of the run's counters.
func (r *Run) Stats() model.CrawlStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Err returns the context error that ended the run early, or nil.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Pages returns the ordered sequence of page records.
//
// The crawl happens while the sequence is iterated: breaking out of the loop
// stops it. The sequence is single-use; iterating it a second time, or
// iterating a second sequence of the same Run, yields nothing. Cancelling ctx
// ends the sequence after the current page and sets Err.
func (r *Run) Pages(ctx context.Context) iter.Seq[model.PageRecord] {
	return func(yield func(model.PageRecord) bool) {
		if !r.started.CompareAndSwap(false, true) {
			return
		}
		r.crawl(ctx, yield)
	}
}

// state is the per-run mutable state owned by the crawl loop.
type state struct {
	frontier *frontier
	seen     *dedup.Store
	robots   *robots.Cache
	scope    *urlcanon.Scope

	// offScope holds the off-scope links already counted.
	offScope map[string]struct{}
}

// visit is the outcome of processing one frontier entry.
type visit struct {
	record *model.PageRecord
	links  []string
	base   string
}

func (r *Run) crawl(ctx context.Context, yield func(model.PageRecord) bool) {
	s := r.spider

	seed, err := s.canon.Canonicalize(r.seed)
	if err != nil {
		r.bump(func(st *model.CrawlStats) { st.ErrorsMalformed++ })
		s.emitter.Emit(event.New(event.TypeMalformed, r.seed).With("error", err.Error()))
		s.logger.Warn("seed URL is malformed", "url", r.seed, "error", err)
		return
	}
	scope, err := urlcanon.NewScope(seed, s.extraHosts...)
	if err != nil {
		r.bump(func(st *model.CrawlStats) { st.ErrorsMalformed++ })
		return
	}

	st := &state{
		frontier: newFrontier(),
		seen:     dedup.NewStore(),
		robots: robots.NewCache(s.fetcher,
			robots.WithRetry(s.retry),
			robots.WithLimiter(s.limiter),
			robots.WithEmitter(s.emitter),
			robots.WithLogger(s.logger),
			robots.WithUserAgent(s.userAgent),
			robots.WithFailurePolicy(s.robotsFailure),
		),
		scope:    scope,
		offScope: make(map[string]struct{}),
	}
	st.frontier.push(entry{url: seed})

	s.logger.Debug("crawl started", "seed", seed, "scope", scope.Root(),
		"max_depth", s.maxDepth, "max_pages", s.maxPages)
	defer func() {
		s.logger.Info("crawl finished", "seed", seed, "fetched_ok", r.Stats().FetchedOK,
			"pending", st.frontier.len())
	}()

	for {
		if r.Stats().FetchedOK >= s.maxPages {
			return
		}
		if err := ctx.Err(); err != nil {
			r.fail(err)
			return
		}
		e, ok := st.frontier.pop()
		if !ok {
			return
		}

		v, err := r.process(ctx, st, e)
		if err != nil {
			r.fail(err)
			return
		}
		if v == nil {
			continue
		}

		if v.record != nil && !yield(*v.record) {
			return
		}
		if e.depth < s.maxDepth {
			r.enqueue(st, v.links, v.base, e.depth+1)
		}
	}
}

// process runs the fetch pipeline for one entry. It returns nil when the
// entry was skipped; the returned error is always a context error.
// A non-nil visit without a record means the page produced no output but
// its links should still be followed.
func (r *Run) process(ctx context.Context, st *state, e entry) (*visit, error) {
	s := r.spider

	canonical, err := s.canon.Canonicalize(e.url)
	if err != nil {
		r.skip(event.New(event.TypeMalformed, e.url).With("error", err.Error()),
			func(c *model.CrawlStats) { c.ErrorsMalformed++ })
		return nil, nil
	}

	if st.seen.SeenURL(canonical) {
		r.skip(event.New(event.TypeDuplicate, canonical), func(c *model.CrawlStats) { c.Duplicates++ })
		return nil, nil
	}

	if !st.scope.InScope(canonical) {
		r.skip(event.New(event.TypeOffScope, canonical), func(c *model.CrawlStats) { c.SkippedOffScope++ })
		return nil, nil
	}

	decision, err := st.robots.Allowed(ctx, canonical)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.skip(event.New(event.TypeMalformed, canonical).With("error", err.Error()),
			func(c *model.CrawlStats) { c.ErrorsMalformed++ })
		return nil, nil
	}
	if !decision.Allowed {
		r.skip(event.New(event.TypeRobotsSkip, canonical).With("fallback", decision.Fallback),
			func(c *model.CrawlStats) { c.SkippedRobots++ })
		return nil, nil
	}

	if err := s.limiter.Wait(ctx, decision.CrawlDelay); err != nil {
		return nil, err
	}

	resp, err := r.fetchPage(ctx, canonical)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	st.seen.MarkURL(canonical)
	if err != nil {
		ev := event.New(event.TypeError, canonical).With("phase", "fetch").With("error", err.Error())
		var fe *retry.FetchError
		if errors.As(err, &fe) {
			ev = ev.With("cause", fe.Cause.String())
			if fe.Status != 0 {
				ev = ev.With("status", fe.Status)
			}
		}
		r.skip(ev, func(c *model.CrawlStats) { c.ErrorsFetch++ })
		return nil, nil
	}

	final := canonical
	if resp.Redirected() {
		final, err = s.canon.Canonicalize(resp.FinalURL)
		if err != nil {
			r.skip(event.New(event.TypeMalformed, resp.FinalURL).With("from", canonical).With("error", err.Error()),
				func(c *model.CrawlStats) { c.ErrorsMalformed++ })
			return nil, nil
		}
		if !st.scope.InScope(final) {
			r.skip(event.New(event.TypeOffScope, canonical).With("final", final),
				func(c *model.CrawlStats) { c.SkippedOffScope++ })
			return nil, nil
		}
		if final != canonical && !st.seen.MarkURL(final) {
			r.skip(event.New(event.TypeDuplicate, final).With("from", canonical),
				func(c *model.CrawlStats) { c.Duplicates++ })
			return nil, nil
		}
	}

	if !resp.IsHTML() {
		r.skip(event.New(event.TypeNonHTML, final).With("content_type", resp.ContentType()),
			func(c *model.CrawlStats) { c.SkippedNonHTML++ })
		return nil, nil
	}

	if resp.Truncated || (s.maxHTMLBytes > 0 && len(resp.Body) > s.maxHTMLBytes) {
		r.skip(event.New(event.TypeTooLarge, final).With("bytes", len(resp.Body)).With("truncated", resp.Truncated),
			func(c *model.CrawlStats) { c.SkippedTooLarge++ })
		return nil, nil
	}

	extracted, err := s.extractor.Extract(resp.FinalURL, resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		r.skip(event.New(event.TypeMalformed, final).With("phase", "extract").With("error", err.Error()),
			func(c *model.CrawlStats) { c.ErrorsMalformed++ })
		return nil, nil
	}

	v := &visit{links: extracted.Links, base: final}

	if extracted.Text == "" {
		r.skip(event.New(event.TypeEmptyText, final), func(c *model.CrawlStats) { c.SkippedEmpty++ })
		return v, nil
	}

	if s.contentDedup && !st.seen.MarkContent(dedup.ContentHash(extracted.Text)) {
		r.skip(event.New(event.TypeDuplicateContent, final), func(c *model.CrawlStats) { c.DuplicatesContent++ })
		return nil, nil
	}

	record := model.NewPageRecord(final, extracted.Title, extracted.Text, e.depth, e.parent)
	v.record = &record
	r.bump(func(c *model.CrawlStats) { c.FetchedOK++ })
	s.emitter.Emit(event.New(event.TypeFetched, final).
		With("depth", e.depth).
		With("title_len", utf8.RuneCountInString(extracted.Title)).
		With("text_len", utf8.RuneCountInString(extracted.Text)))

	return v, nil
}

// fetchPage downloads url under the retry policy.
func (r *Run) fetchPage(ctx context.Context, url string) (*fetch.Response, error) {
	var resp *fetch.Response
	err := r.spider.retry.Do(ctx, url, func(ctx context.Context) (int, error) {
		res, err := r.spider.fetcher.Fetch(ctx, url)
		if err != nil {
			return 0, err
		}
		resp = res
		return res.StatusCode, nil
	})
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("fetch %s: no response", url)
	}
	return resp, nil
}

// enqueue canonicalizes, filters, sorts and caps links found on parent, then
// pushes the survivors at depth.
//
// Scope and path filtering happen before the cap, so the cap keeps the
// lexicographically first in-scope links. An off-scope link is counted the
// first time it is found and never enqueued.
func (r *Run) enqueue(st *state, links []string, parent string, depth int) {
	s := r.spider

	candidates := make([]string, 0, len(links))
	unique := make(map[string]struct{}, len(links))
	for _, link := range links {
		c, err := s.canon.Canonicalize(link)
		if err != nil {
			continue
		}
		if !st.scope.InScope(c) {
			if _, counted := st.offScope[c]; !counted {
				st.offScope[c] = struct{}{}
				r.skip(event.New(event.TypeOffScope, c).With("parent", parent),
					func(cs *model.CrawlStats) { cs.SkippedOffScope++ })
			}
			continue
		}
		if !s.paths.allows(c) {
			continue
		}
		if _, dup := unique[c]; dup {
			continue
		}
		unique[c] = struct{}{}
		candidates = append(candidates, c)
	}

	slices.Sort(candidates)
	if s.maxLinks > 0 && len(candidates) > s.maxLinks {
		candidates = candidates[:s.maxLinks]
	}

	for _, c := range candidates {
		if st.frontier.wasQueued(c) || st.seen.SeenURL(c) {
			r.skip(event.New(event.TypeDuplicate, c).With("parent", parent),
				func(cs *model.CrawlStats) { cs.Duplicates++ })
			continue
		}
		st.frontier.push(entry{url: c, depth: depth, parent: parent})
		r.bump(func(cs *model.CrawlStats) { cs.Enqueued++ })
		s.emitter.Emit(event.New(event.TypeEnqueued, c).With("parent", parent).With("depth", depth))
	}
}

// skip records a skipped entry: it updates stats and emits ev.
func (r *Run) skip(ev event.Event, update func(*model.CrawlStats)) {
	r.bump(update)
	r.spider.emitter.Emit(ev)
}

func (r *Run) bump(update func(*model.CrawlStats)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	update(&r.stats)
}

func (r *Run) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err == nil {
		r.err = err
	}
}

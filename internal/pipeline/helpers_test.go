package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nao1215/sitecrawl/internal/config"
	"github.com/nao1215/sitecrawl/internal/fetch"
	"github.com/nao1215/sitecrawl/internal/model"
	"github.com/nao1215/sitecrawl/internal/ratelimit"
	"github.com/nao1215/sitecrawl/internal/retry"
)

// siteFetcher serves HTML pages from memory. Unknown URLs answer 404, so
// robots.txt is missing and everything is allowed.
type siteFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	calls int
}

func newSiteFetcher() *siteFetcher {
	return &siteFetcher{pages: make(map[string]string)}
}

// page registers an HTML page whose text is derived from its URL.
func (f *siteFetcher) page(url string, links ...string) *siteFetcher {
	var b strings.Builder
	b.WriteString("<html><head><title>" + url + "</title></head><body><nav>")
	for _, l := range links {
		b.WriteString(`<a href="` + l + `">link</a>`)
	}
	b.WriteString("</nav><main><p>content of " + url + "</p></main></body></html>")

	f.mu.Lock()
	f.pages[url] = b.String()
	f.mu.Unlock()
	return f
}

func (f *siteFetcher) Fetch(ctx context.Context, url string) (*fetch.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.calls++
	body, ok := f.pages[url]
	f.mu.Unlock()

	if !ok {
		return &fetch.Response{
			URL:        url,
			FinalURL:   url,
			StatusCode: http.StatusNotFound,
			Header:     http.Header{"Content-Type": {"text/plain"}},
		}, nil
	}
	return &fetch.Response{
		URL:        url,
		FinalURL:   url,
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"text/html; charset=utf-8"}},
		Body:       []byte(body),
	}, nil
}

func (f *siteFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func noSleep(context.Context, time.Duration) error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testShared returns components that never wait.
func testShared(f fetch.Fetcher) Shared {
	return Shared{
		Fetcher: f,
		Limiter: ratelimit.New(0),
		Retry:   retry.New(retry.WithSleep(noSleep)),
		Logger:  discardLogger(),
	}
}

// testFactory builds spiders for f from a default config.
func testFactory(f fetch.Fetcher, cfg *config.Config) SpiderFactory {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	factory, err := NewSpiderFactory(cfg, testShared(f))
	if err != nil {
		panic(err)
	}
	return factory
}

// collectSink records every call it receives.
type collectSink struct {
	name string

	mu      sync.Mutex
	calls   []string
	records map[int][]model.PageRecord
	ends    map[int]model.SeedSummary

	// failOn makes the named stage fail.
	failOn string
}

func newCollectSink(name string) *collectSink {
	return &collectSink{
		name:    name,
		records: make(map[int][]model.PageRecord),
		ends:    make(map[int]model.SeedSummary),
	}
}

var errSink = errors.New("sink failed")

func (s *collectSink) Name() string { return s.name }

func (s *collectSink) Begin(_ context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, fmt.Sprintf("begin %d", job.Index))
	if s.failOn == "begin" {
		return errSink
	}
	return nil
}

func (s *collectSink) Consume(_ context.Context, job Job, rec model.PageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, fmt.Sprintf("consume %d %s", job.Index, rec.URL))
	if s.failOn == "consume" {
		return errSink
	}
	s.records[job.Index] = append(s.records[job.Index], rec)
	return nil
}

func (s *collectSink) End(_ context.Context, job Job, summary model.SeedSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, fmt.Sprintf("end %d", job.Index))
	s.ends[job.Index] = summary
	if s.failOn == "end" {
		return errSink
	}
	return nil
}

func (s *collectSink) callLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *collectSink) urls(index int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	urls := make([]string, 0, len(s.records[index]))
	for _, r := range s.records[index] {
		urls = append(urls, r.URL)
	}
	return urls
}

// stepClock advances one second per call.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

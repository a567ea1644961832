package fetch

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/proxy"
	"golang.org/x/net/publicsuffix"
)

// Defaults for HTTPFetcher.
const (
	DefaultUserAgent   = "sitecrawl/0.1 (+https://github.com/nao1215/sitecrawl)"
	DefaultTimeout     = 15 * time.Second
	DefaultMaxBodySize = 10 * 1024 * 1024 // 10MB
	MaxRedirects       = 10
)

// Fetcher downloads a URL. It is the capability the crawl engine and the
// robots cache depend on; tests substitute in-memory implementations.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Response, error)
}

// SiteAuth holds credentials injected into every request to one host.
type SiteAuth struct {
	// Cookie is a raw cookie string, e.g. "session_id=abc123".
	Cookie string

	// Headers are set on every request.
	Headers map[string]string
}

// HTTPFetcher implements Fetcher with net/http.
type HTTPFetcher struct {
	client         *http.Client
	userAgent      string
	timeout        time.Duration
	maxBodySize    int64
	browserHeaders bool
	proxyAddress   string
	sites          map[string]SiteAuth
}

// Option configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *HTTPFetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithTimeout sets the per-request timeout, redirects included.
func WithTimeout(d time.Duration) Option {
	return func(f *HTTPFetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithMaxBodySize limits how many decoded body bytes are kept.
func WithMaxBodySize(size int64) Option {
	return func(f *HTTPFetcher) {
		if size > 0 {
			f.maxBodySize = size
		}
	}
}

// WithBrowserHeaders sends browser-like Accept and Accept-Language headers.
// Some sites answer bare clients with error pages.
func WithBrowserHeaders(enabled bool) Option {
	return func(f *HTTPFetcher) {
		f.browserHeaders = enabled
	}
}

// WithProxy routes all connections through a SOCKS5 proxy at "host:port".
// An empty address disables the proxy.
func WithProxy(address string) Option {
	return func(f *HTTPFetcher) {
		f.proxyAddress = address
	}
}

// WithSites sets per-host cookies and headers, keyed by lowercase hostname.
func WithSites(sites map[string]SiteAuth) Option {
	return func(f *HTTPFetcher) {
		f.sites = make(map[string]SiteAuth, len(sites))
		for host, auth := range sites {
			f.sites[strings.ToLower(host)] = auth
		}
	}
}

// WithHTTPClient replaces the underlying client. The proxy and site options
// are ignored when a client is supplied.
func WithHTTPClient(c *http.Client) Option {
	return func(f *HTTPFetcher) {
		f.client = c
	}
}

// NewHTTPFetcher creates a fetcher.
//
// Design decision: Compression is negotiated and decoded here rather than by
// net/http, so that brotli is accepted too and the size limit applies to the
// decoded bytes a parser will actually see.
func NewHTTPFetcher(opts ...Option) (*HTTPFetcher, error) {
	f := &HTTPFetcher{
		userAgent:   DefaultUserAgent,
		timeout:     DefaultTimeout,
		maxBodySize: DefaultMaxBodySize,
	}

	for _, opt := range opts {
		opt(f)
	}

	if f.client != nil {
		return f, nil
	}

	client, err := f.newHTTPClient()
	if err != nil {
		return nil, err
	}
	f.client = client
	return f, nil
}

func (f *HTTPFetcher) newHTTPClient() (*http.Client, error) {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		DisableCompression:    true,
	}

	if f.proxyAddress != "" {
		if !isValidProxyAddress(f.proxyAddress) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidProxyAddress, f.proxyAddress)
		}
		dialer, err := proxy.SOCKS5("tcp", f.proxyAddress, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		transport.Proxy = nil
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			transport.DialContext = cd.DialContext
		} else {
			transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	var rt http.RoundTripper = transport
	if len(f.sites) > 0 {
		rt = &siteHeaderTransport{base: transport, sites: f.sites}
	}

	return &http.Client{
		Transport: rt,
		Timeout:   f.timeout,
		Jar:       jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= MaxRedirects {
				return ErrTooManyRedirects
			}
			return nil
		},
	}, nil
}

// isValidProxyAddress checks for a non-empty host and a port in 1..65535.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return false
	}
	return n >= 1 && n <= 65535
}

// Fetch downloads rawURL. A non-2xx status is not an error; the caller
// decides what to do with it.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	if f.browserHeaders {
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, truncated, err := f.readBody(resp)
	if err != nil {
		return nil, err
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Response{
		URL:        rawURL,
		FinalURL:   finalURL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
		Truncated:  truncated,
	}, nil
}

// readBody decodes the body according to Content-Encoding and reads at
// most maxBodySize bytes of it.
func (f *HTTPFetcher) readBody(resp *http.Response) ([]byte, bool, error) {
	var reader io.Reader = resp.Body

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, false, fmt.Errorf("gzip decode: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		fl := flate.NewReader(resp.Body)
		defer fl.Close()
		reader = fl
	case "br":
		reader = brotli.NewReader(resp.Body)
	}

	body, err := io.ReadAll(io.LimitReader(reader, f.maxBodySize+1))
	if err != nil {
		return nil, false, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBodySize {
		return body[:f.maxBodySize], true, nil
	}
	return body, false, nil
}

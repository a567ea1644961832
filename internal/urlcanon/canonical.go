package urlcanon

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// ErrMalformedURL is returned when a string cannot be parsed into an
// http(s) URL with a host. Callers skip such URLs; it never aborts a crawl.
var ErrMalformedURL = errors.New("malformed URL")

// DefaultTrackingParams are the query parameters removed by default.
// Matching is case-insensitive on the decoded parameter name.
var DefaultTrackingParams = []string{
	"utm_source",
	"utm_medium",
	"utm_campaign",
	"utm_term",
	"utm_content",
	"ref",
	"ref_src",
	"gclid",
}

// defaultPorts maps schemes to the port that is implied when none is given.
var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// Canonicalizer normalizes URLs. The zero value removes no query parameters;
// use New to get the default tracking parameter set.
type Canonicalizer struct {
	// tracking holds lowercased parameter names to drop.
	tracking map[string]struct{}
}

// Option configures a Canonicalizer.
type Option func(*Canonicalizer)

// WithTrackingParams replaces the set of query parameters to remove.
func WithTrackingParams(params []string) Option {
	return func(c *Canonicalizer) {
		c.tracking = make(map[string]struct{}, len(params))
		for _, p := range params {
			p = strings.ToLower(strings.TrimSpace(p))
			if p != "" {
				c.tracking[p] = struct{}{}
			}
		}
	}
}

// New creates a Canonicalizer that removes DefaultTrackingParams.
func New(opts ...Option) *Canonicalizer {
	c := &Canonicalizer{}
	WithTrackingParams(DefaultTrackingParams)(c)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Canonicalize returns the canonical form of rawURL.
// It fails with an error wrapping ErrMalformedURL when rawURL has no
// scheme or host, or uses a scheme other than http and https.
func (c *Canonicalizer) Canonicalize(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrMalformedURL, rawURL, err)
	}
	return c.canonicalize(u, rawURL)
}

// Resolve resolves href against base and canonicalizes the result.
// It is used for relative links found on a page.
func (c *Canonicalizer) Resolve(base, href string) (string, error) {
	b, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("%w: base %q: %v", ErrMalformedURL, base, err)
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrMalformedURL, href, err)
	}
	return c.canonicalize(b.ResolveReference(ref), href)
}

func (c *Canonicalizer) canonicalize(u *url.URL, raw string) (string, error) {
	scheme := strings.ToLower(u.Scheme)
	if scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %q: missing scheme or host", ErrMalformedURL, raw)
	}
	if _, ok := defaultPorts[scheme]; !ok {
		return "", fmt.Errorf("%w: %q: unsupported scheme %q", ErrMalformedURL, raw, scheme)
	}

	host, err := normalizeHost(u.Hostname())
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrMalformedURL, raw, err)
	}
	if port := u.Port(); port != "" && port != defaultPorts[scheme] {
		host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	if u.User != nil {
		b.WriteString(u.User.String())
		b.WriteByte('@')
	}
	b.WriteString(host)
	b.WriteString(normalizePath(u.EscapedPath()))
	if q := c.filterQuery(u.RawQuery); q != "" {
		b.WriteByte('?')
		b.WriteString(q)
	}
	return b.String(), nil
}

// normalizeHost lowercases the host and converts IDNs to punycode.
// Hosts that IDNA rejects (underscores, for example) are only lowercased.
func normalizeHost(host string) (string, error) {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" {
		return "", errors.New("empty host")
	}
	if net.ParseIP(host) != nil {
		return host, nil
	}
	if ascii, err := idna.Lookup.ToASCII(host); err == nil && ascii != "" {
		return ascii, nil
	}
	return host, nil
}

// normalizePath strips trailing slashes from non-root paths.
func normalizePath(p string) string {
	p = strings.TrimRight(p, "/")
	if p == "" {
		return "/"
	}
	return p
}

// filterQuery drops tracking parameters and empty segments while keeping
// every other parameter verbatim and in order.
func (c *Canonicalizer) filterQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	kept := make([]string, 0, strings.Count(rawQuery, "&")+1)
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		key, _, _ := strings.Cut(pair, "=")
		if decoded, err := url.QueryUnescape(key); err == nil {
			key = decoded
		}
		if _, drop := c.tracking[strings.ToLower(key)]; drop {
			continue
		}
		kept = append(kept, pair)
	}
	return strings.Join(kept, "&")
}

// Host returns the lowercased hostname (without port) of a URL string,
// or an empty string when it cannot be parsed.
func Host(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

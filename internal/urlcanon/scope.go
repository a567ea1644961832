package urlcanon

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Scope decides whether a URL belongs to the crawl.
// A URL is in scope when its host equals the seed's registrable domain or is
// a subdomain of it, or likewise for one of the extra hosts.
type Scope struct {
	// root is the registrable domain of the seed.
	root string

	// extra are additional hosts accepted with their subdomains.
	extra []string
}

// NewScope builds the scope for a seed URL.
// The seed must already be canonical or at least parseable with a host.
func NewScope(seed string, extraHosts ...string) (*Scope, error) {
	u, err := url.Parse(seed)
	if err != nil || u.Hostname() == "" {
		return nil, fmt.Errorf("%w: seed %q", ErrMalformedURL, seed)
	}

	s := &Scope{root: RegistrableDomain(u.Hostname())}
	for _, h := range extraHosts {
		h = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(h)), ".")
		if h != "" {
			s.extra = append(s.extra, h)
		}
	}
	return s, nil
}

// Root returns the registrable domain used for scope comparison.
func (s *Scope) Root() string {
	return s.root
}

// InScope reports whether rawURL is inside the scope.
func (s *Scope) InScope(rawURL string) bool {
	host := Host(rawURL)
	if host == "" {
		return false
	}
	if hostWithin(host, s.root) {
		return true
	}
	for _, h := range s.extra {
		if hostWithin(host, h) {
			return true
		}
	}
	return false
}

// hostWithin compares on label boundaries, not raw string suffixes,
// so "evilexample.com" is not within "example.com".
func hostWithin(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// RegistrableDomain returns the eTLD+1 of host.
// IP literals and hosts without a registrable domain (localhost, a bare
// public suffix) are returned unchanged.
func RegistrableDomain(host string) string {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if net.ParseIP(host) != nil {
		return host
	}
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return d
}

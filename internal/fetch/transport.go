package fetch

import (
	"net/http"
	"strings"
)

// siteHeaderTransport injects the configured cookie and headers of the
// request's host. Redirects to another host get that host's values, or none.
type siteHeaderTransport struct {
	base  http.RoundTripper
	sites map[string]SiteAuth
}

// RoundTrip implements http.RoundTripper.
func (t *siteHeaderTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	auth, ok := t.sites[strings.ToLower(req.URL.Hostname())]
	if !ok {
		return t.base.RoundTrip(req)
	}

	clone := req.Clone(req.Context())
	if auth.Cookie != "" {
		if existing := clone.Header.Get("Cookie"); existing != "" {
			clone.Header.Set("Cookie", existing+"; "+auth.Cookie)
		} else {
			clone.Header.Set("Cookie", auth.Cookie)
		}
	}
	for key, value := range auth.Headers {
		clone.Header.Set(key, value)
	}

	return t.base.RoundTrip(clone)
}

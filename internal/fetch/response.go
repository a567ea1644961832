package fetch

import (
	"mime"
	"net/http"
	"strings"
)

// Response is a completed HTTP exchange.
type Response struct {
	// URL is the requested URL.
	URL string

	// FinalURL is the URL after following redirects.
	FinalURL string

	// StatusCode is the HTTP status of the final response.
	StatusCode int

	// Header holds the final response headers.
	Header http.Header

	// Body is the decoded response body, at most the fetcher's MaxBodySize.
	Body []byte

	// Truncated is true when the body was longer than MaxBodySize.
	Truncated bool
}

// ContentType returns the lowercased media type without parameters,
// or an empty string when the header is missing.
func (r *Response) ContentType() string {
	raw := r.Header.Get("Content-Type")
	if raw == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		mediaType, _, _ = strings.Cut(raw, ";")
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

// IsHTML reports whether the response declares an HTML media type.
func (r *Response) IsHTML() bool {
	switch r.ContentType() {
	case "text/html", "application/xhtml+xml":
		return true
	default:
		return false
	}
}

// Redirected reports whether the final URL differs from the requested one.
func (r *Response) Redirected() bool {
	return r.FinalURL != "" && r.FinalURL != r.URL
}

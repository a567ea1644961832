package fetch

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
)

func newTestFetcher(t *testing.T, opts ...Option) *HTTPFetcher {
	t.Helper()

	f, err := NewHTTPFetcher(opts...)
	if err != nil {
		t.Fatalf("NewHTTPFetcher failed: %v", err)
	}
	return f
}

// TestFetchBasic tests a plain HTML fetch.
func TestFetchBasic(t *testing.T) {
	t.Parallel()

	var gotUA, gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><title>ok</title></html>"))
	}))
	defer server.Close()

	f := newTestFetcher(t, WithUserAgent("test-agent/1.0"))
	resp, err := f.Fetch(context.Background(), server.URL+"/")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if !resp.IsHTML() {
		t.Errorf("expected HTML, content type %q", resp.ContentType())
	}
	if string(resp.Body) != "<html><title>ok</title></html>" {
		t.Errorf("unexpected body %q", resp.Body)
	}
	if resp.Redirected() {
		t.Error("response should not be marked redirected")
	}
	if gotUA != "test-agent/1.0" {
		t.Errorf("User-Agent = %q", gotUA)
	}
	if gotAccept != "" {
		t.Errorf("Accept should not be sent without browser headers, got %q", gotAccept)
	}
}

// TestFetchBrowserHeaders tests the optional browser-like headers.
func TestFetchBrowserHeaders(t *testing.T) {
	t.Parallel()

	var gotAccept, gotLang string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		gotLang = r.Header.Get("Accept-Language")
	}))
	defer server.Close()

	f := newTestFetcher(t, WithBrowserHeaders(true))
	if _, err := f.Fetch(context.Background(), server.URL); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if !strings.Contains(gotAccept, "text/html") {
		t.Errorf("Accept = %q", gotAccept)
	}
	if gotLang == "" {
		t.Error("Accept-Language not sent")
	}
}

// TestFetchDecodesContentEncoding tests gzip, deflate and brotli decoding.
func TestFetchDecodesContentEncoding(t *testing.T) {
	t.Parallel()

	const payload = "<html><body>compressed content</body></html>"

	encoders := map[string]func([]byte) []byte{
		"gzip": func(b []byte) []byte {
			var buf bytes.Buffer
			w := gzip.NewWriter(&buf)
			_, _ = w.Write(b)
			_ = w.Close()
			return buf.Bytes()
		},
		"deflate": func(b []byte) []byte {
			var buf bytes.Buffer
			w, _ := flate.NewWriter(&buf, flate.DefaultCompression)
			_, _ = w.Write(b)
			_ = w.Close()
			return buf.Bytes()
		},
		"br": func(b []byte) []byte {
			var buf bytes.Buffer
			w := brotli.NewWriter(&buf)
			_, _ = w.Write(b)
			_ = w.Close()
			return buf.Bytes()
		},
	}

	for encoding, encode := range encoders {
		t.Run(encoding, func(t *testing.T) {
			t.Parallel()

			body := encode([]byte(payload))
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if !strings.Contains(r.Header.Get("Accept-Encoding"), encoding) {
					t.Errorf("Accept-Encoding %q does not offer %s", r.Header.Get("Accept-Encoding"), encoding)
				}
				w.Header().Set("Content-Encoding", encoding)
				w.Header().Set("Content-Type", "text/html")
				_, _ = w.Write(body)
			}))
			defer server.Close()

			resp, err := newTestFetcher(t).Fetch(context.Background(), server.URL)
			if err != nil {
				t.Fatalf("Fetch failed: %v", err)
			}
			if string(resp.Body) != payload {
				t.Errorf("decoded body = %q, want %q", resp.Body, payload)
			}
		})
	}
}

// TestFetchTruncatesLargeBodies tests MaxBodySize.
func TestFetchTruncatesLargeBodies(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 100)))
	}))
	t.Cleanup(server.Close)

	t.Run("over the limit", func(t *testing.T) {
		t.Parallel()

		resp, err := newTestFetcher(t, WithMaxBodySize(10)).Fetch(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("Fetch failed: %v", err)
		}
		if !resp.Truncated {
			t.Error("expected Truncated")
		}
		if len(resp.Body) != 10 {
			t.Errorf("body length = %d, want 10", len(resp.Body))
		}
	})

	t.Run("exactly the limit", func(t *testing.T) {
		t.Parallel()

		resp, err := newTestFetcher(t, WithMaxBodySize(100)).Fetch(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("Fetch failed: %v", err)
		}
		if resp.Truncated {
			t.Error("body at the limit should not be truncated")
		}
	})
}

// TestFetchRedirects tests final URL tracking and the redirect limit.
func TestFetchRedirects(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("new"))
	})
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	f := newTestFetcher(t)

	resp, err := f.Fetch(context.Background(), server.URL+"/old")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if resp.FinalURL != server.URL+"/new" {
		t.Errorf("FinalURL = %q, want %q", resp.FinalURL, server.URL+"/new")
	}
	if !resp.Redirected() {
		t.Error("expected Redirected")
	}

	_, err = f.Fetch(context.Background(), server.URL+"/loop")
	if !errors.Is(err, ErrTooManyRedirects) {
		t.Errorf("expected ErrTooManyRedirects, got %v", err)
	}
}

// TestFetchNonSuccessStatus tests that HTTP errors are returned as responses.
func TestFetchNonSuccessStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	resp, err := newTestFetcher(t).Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want 503", resp.StatusCode)
	}
}

// TestFetchSiteAuth tests per-host cookie and header injection.
func TestFetchSiteAuth(t *testing.T) {
	t.Parallel()

	var gotCookie, gotToken string
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		gotToken = r.Header.Get("X-Token")
	}))
	defer server.Close()

	f := newTestFetcher(t, WithSites(map[string]SiteAuth{
		"127.0.0.1": {Cookie: "session=abc", Headers: map[string]string{"X-Token": "secret"}},
	}))
	if _, err := f.Fetch(context.Background(), server.URL); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if gotCookie != "session=abc" {
		t.Errorf("Cookie = %q, want session=abc", gotCookie)
	}
	if gotToken != "secret" {
		t.Errorf("X-Token = %q, want secret", gotToken)
	}
}

// TestFetchSiteAuthOtherHost tests that credentials stay with their host.
func TestFetchSiteAuthOtherHost(t *testing.T) {
	t.Parallel()

	var gotCookie string
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
	}))
	defer server.Close()

	f := newTestFetcher(t, WithSites(map[string]SiteAuth{
		"intranet.example.com": {Cookie: "session=abc"},
	}))
	if _, err := f.Fetch(context.Background(), server.URL); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if gotCookie != "" {
		t.Errorf("cookie leaked to another host: %q", gotCookie)
	}
}

// TestNewHTTPFetcherProxy tests proxy address validation.
func TestNewHTTPFetcherProxy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		address string
		wantErr bool
	}{
		{"127.0.0.1:1080", false},
		{"localhost:9050", false},
		{"", false},
		{"127.0.0.1", true},
		{":1080", true},
		{"127.0.0.1:0", true},
		{"127.0.0.1:70000", true},
		{"127.0.0.1:abc", true},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			t.Parallel()

			_, err := NewHTTPFetcher(WithProxy(tt.address))
			if tt.wantErr && !errors.Is(err, ErrInvalidProxyAddress) {
				t.Errorf("expected ErrInvalidProxyAddress, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

// TestResponseContentType tests media type parsing.
func TestResponseContentType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		header   string
		wantType string
		wantHTML bool
	}{
		{"text/html; charset=utf-8", "text/html", true},
		{"TEXT/HTML", "text/html", true},
		{"application/xhtml+xml", "application/xhtml+xml", true},
		{"application/pdf", "application/pdf", false},
		{"text/plain", "text/plain", false},
		{"", "", false},
		{"text/html; charset", "text/html", true},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			t.Parallel()

			r := &Response{Header: http.Header{}}
			if tt.header != "" {
				r.Header.Set("Content-Type", tt.header)
			}
			if got := r.ContentType(); got != tt.wantType {
				t.Errorf("ContentType() = %q, want %q", got, tt.wantType)
			}
			if got := r.IsHTML(); got != tt.wantHTML {
				t.Errorf("IsHTML() = %v, want %v", got, tt.wantHTML)
			}
		})
	}
}

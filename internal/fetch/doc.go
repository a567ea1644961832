// Package fetch performs the HTTP requests of a crawl.
//
// HTTPFetcher downloads one URL, follows redirects and returns the fully
// read (and decoded) body together with the final URL. It does not retry
// and does not rate limit; those policies live in the retry and ratelimit
// packages so that page and robots.txt fetches share them.
//
// Requests can optionally be routed through a SOCKS5 proxy, and per-host
// cookies or headers can be injected for sites that need authentication:
//
//	f, err := fetch.NewHTTPFetcher(
//		fetch.WithUserAgent("sitecrawl/0.1"),
//		fetch.WithProxy("127.0.0.1:1080"),
//		fetch.WithSites(map[string]fetch.SiteAuth{
//			"intranet.example.com": {Cookie: "session=abc"},
//		}),
//	)
package fetch

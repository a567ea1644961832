// Package ratelimit spaces outbound requests with one global limiter.
//
// Every fetch of a crawl, robots.txt included, passes through the same
// Limiter. A robots.txt Crawl-delay is honored as a per-call floor on the
// spacing since the previous request, never as a replacement for it.
package ratelimit

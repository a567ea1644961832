// Package robots answers whether the crawler may fetch a URL.
//
// A Cache fetches, parses and keeps one Policy per host for the lifetime of a
// crawl run. The robots.txt request goes through the same retry controller
// and rate limiter as page requests. Concurrent lookups for a host that is
// still loading share the single in-flight fetch.
//
// Only User-agent, Allow, Disallow, Crawl-delay and Sitemap lines are
// understood. Wildcards ('*' and '$' inside paths) have no special meaning.
//
// Rule selection:
//   - The groups naming the crawler's product token apply; otherwise the '*'
//     groups apply; otherwise everything is allowed.
//   - The rule with the longest matching path prefix decides.
//   - On equal length, Allow wins.
package robots

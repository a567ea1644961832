// Package urlcanon maps URL strings to canonical keys and decides whether a
// URL belongs to the crawl scope.
//
// A canonical URL is the deduplication key of the crawler: two spellings of
// the same resource must produce byte-identical canonical strings, and
// canonicalizing a canonical URL must return it unchanged.
//
// # Rules
//
//   - Scheme and host are lowercased; the host is converted to its ASCII
//     (punycode) form and a trailing dot is dropped
//   - Default ports (http:80, https:443) are removed
//   - The fragment is removed
//   - Tracking query parameters are removed; the remaining parameters keep
//     their original order and encoding
//   - Trailing slashes are removed from non-root paths; an empty path becomes "/"
//
// Path case is preserved because servers may treat paths case-sensitively.
//
// # Scope
//
// Scope is decided against the seed's registrable domain (eTLD+1, taken from
// the public suffix list), so https://docs.example.com/ puts www.example.com
// in scope while evilexample.com stays out.
package urlcanon

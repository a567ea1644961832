// Package dedup tracks what a crawl has already seen.
//
// A Store holds canonical URLs and, when content deduplication is enabled,
// hashes of cleaned page text. It lives for one crawl run and is never
// evicted.
package dedup

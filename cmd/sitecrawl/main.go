// Package main provides the entry point for the sitecrawl CLI.
//
// sitecrawl is a polite, deterministic web crawler. Given seed URLs it
// writes one JSON object per crawled page, honoring robots.txt, a global
// request rate and a retry policy for transient failures.
//
// Usage:
//
//	sitecrawl crawl <seed-url>
//	sitecrawl crawl --list <file>
//	sitecrawl history <seed-url>
//
// See --help for all available options.
package main

// main is the entry point for sitecrawl.
func main() {
	Execute()
}

// Package crawler implements the breadth-first crawl engine.
//
// # Architecture
//
// A Spider holds the crawl configuration and its collaborators: a
// fetch.Fetcher for HTTP, an Extractor for HTML, a shared rate limiter and a
// retry controller. Spider.Crawl returns a Run whose Pages method yields
// model.PageRecord values lazily while the crawl proceeds.
//
// Every dequeued URL goes through the same steps: canonicalize, skip if
// already fetched, skip if out of scope, consult robots.txt, wait for the
// rate limiter, fetch with retries, check redirect target, content type and
// size, deduplicate content, emit the record and finally enqueue the page's
// links. Each skip increments one model.CrawlStats counter and emits one
// event.
//
// # Determinism
//
// The engine runs a single sequential worker. The frontier is FIFO, so it
// is ordered by depth, and the links of a page are sorted before the
// per-page cap is applied and before they are enqueued. Two runs against
// the same content therefore produce the same records in the same order.
//
// # Politeness
//
//   - robots.txt is honored per host, including Crawl-delay
//   - one global rate limiter spaces all requests
//   - transient failures are retried with exponential backoff
//   - depth, page count and links per page are bounded
//
// # Usage
//
//	spider := crawler.NewSpider(fetcher, crawler.WithMaxDepth(1))
//	run := spider.Crawl("https://example.com/")
//	for page := range run.Pages(ctx) {
//		fmt.Println(page.URL)
//	}
//	fmt.Println(run.Stats().FetchedOK)
package crawler

// Package pipeline delivers the page records of crawl runs to their
// destinations and runs several seeds as one batch.
//
// A crawl run produces an ordered sequence of records. The Pipeline fans
// every record out to a list of sinks: the JSON lines output, an echo to the
// terminal, the run history database. Each sink sees the records of one seed
// bracketed by Begin and End.
//
// Design decision: We use a sink pipeline instead of writing records directly
// in the command because:
// 1. It allows easy addition/removal of destinations without modifying the crawl loop
// 2. It provides consistent error handling and logging across destinations
// 3. It keeps the crawl engine free of any output concerns
//
// The BatchProcessor crawls multiple seeds with concurrency control using
// errgroup. All seeds share one rate limiter, so the request rate stays
// global however many seeds run at once.
package pipeline

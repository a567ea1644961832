package model

// CrawlStats holds the counters of a single crawl run.
// Only the crawl engine mutates it; consumers receive copies.
type CrawlStats struct {
	FetchedOK         int `json:"fetched_ok"`
	SkippedRobots     int `json:"skipped_robots"`
	SkippedOffScope   int `json:"skipped_off_scope"`
	SkippedNonHTML    int `json:"skipped_non_html"`
	ErrorsFetch       int `json:"errors_fetch"`
	Duplicates        int `json:"duplicates"`
	DuplicatesContent int `json:"duplicates_content"`
	SkippedTooLarge   int `json:"skipped_too_large"`
	Enqueued          int `json:"enqueued"`

	// ErrorsMalformed counts URLs that could not be canonicalized.
	ErrorsMalformed int `json:"errors_malformed"`

	// SkippedEmpty counts pages whose cleaned text was empty.
	SkippedEmpty int `json:"skipped_empty"`
}

// StatNames lists the counter names in a stable display order.
var StatNames = []string{
	"fetched_ok",
	"enqueued",
	"duplicates",
	"duplicates_content",
	"skipped_robots",
	"skipped_off_scope",
	"skipped_non_html",
	"skipped_too_large",
	"skipped_empty",
	"errors_fetch",
	"errors_malformed",
}

// Map returns the counters keyed by their JSON names.
func (s CrawlStats) Map() map[string]int {
	return map[string]int{
		"fetched_ok":         s.FetchedOK,
		"skipped_robots":     s.SkippedRobots,
		"skipped_off_scope":  s.SkippedOffScope,
		"skipped_non_html":   s.SkippedNonHTML,
		"errors_fetch":       s.ErrorsFetch,
		"duplicates":         s.Duplicates,
		"duplicates_content": s.DuplicatesContent,
		"skipped_too_large":  s.SkippedTooLarge,
		"enqueued":           s.Enqueued,
		"errors_malformed":   s.ErrorsMalformed,
		"skipped_empty":      s.SkippedEmpty,
	}
}

// Add returns the element-wise sum of two stats values.
// The batch runner uses it to build a total across seeds.
func (s CrawlStats) Add(o CrawlStats) CrawlStats {
	return CrawlStats{
		FetchedOK:         s.FetchedOK + o.FetchedOK,
		SkippedRobots:     s.SkippedRobots + o.SkippedRobots,
		SkippedOffScope:   s.SkippedOffScope + o.SkippedOffScope,
		SkippedNonHTML:    s.SkippedNonHTML + o.SkippedNonHTML,
		ErrorsFetch:       s.ErrorsFetch + o.ErrorsFetch,
		Duplicates:        s.Duplicates + o.Duplicates,
		DuplicatesContent: s.DuplicatesContent + o.DuplicatesContent,
		SkippedTooLarge:   s.SkippedTooLarge + o.SkippedTooLarge,
		Enqueued:          s.Enqueued + o.Enqueued,
		ErrorsMalformed:   s.ErrorsMalformed + o.ErrorsMalformed,
		SkippedEmpty:      s.SkippedEmpty + o.SkippedEmpty,
	}
}

// Skipped returns the number of dequeued entries that were not emitted.
func (s CrawlStats) Skipped() int {
	return s.SkippedRobots + s.SkippedOffScope + s.SkippedNonHTML +
		s.SkippedTooLarge + s.SkippedEmpty + s.DuplicatesContent
}

package model

import "time"

// SeedSummary is the outcome of crawling one seed.
type SeedSummary struct {
	// Seed is the seed URL as given by the user.
	Seed string `json:"seed"`

	// Stats is the final counter snapshot of the run.
	Stats CrawlStats `json:"stats"`

	// Duration is the wall time of the run.
	Duration time.Duration `json:"duration_ns"`

	// Error is set when the run ended early, typically on interrupt.
	Error string `json:"error,omitempty"`
}

// RunSummary aggregates every seed of one invocation.
// Summary writers in the report package render it.
type RunSummary struct {
	// Started is when the first seed started.
	Started time.Time `json:"started"`

	// Finished is when the last seed finished.
	Finished time.Time `json:"finished"`

	// Seeds holds one entry per seed in input order.
	Seeds []SeedSummary `json:"seeds"`
}

// Total returns the element-wise sum of all seed stats.
func (r *RunSummary) Total() CrawlStats {
	var total CrawlStats
	for _, s := range r.Seeds {
		total = total.Add(s.Stats)
	}
	return total
}

// Interrupted reports whether any seed ended early.
func (r *RunSummary) Interrupted() bool {
	for _, s := range r.Seeds {
		if s.Error != "" {
			return true
		}
	}
	return false
}

// Duration returns the wall time of the whole invocation.
func (r *RunSummary) Duration() time.Duration {
	if r.Finished.Before(r.Started) {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

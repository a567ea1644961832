// Package model defines the core data structures shared by the crawler and
// its consumers.
//
// This package contains the following main types:
//   - PageRecord: One successfully fetched, in-scope page
//   - CrawlStats: Counters describing what happened during a run
//   - FetchCause: Why a fetch ended in a terminal failure
//
// Design decision: We separate models into their own package to avoid circular
// dependencies. The crawler, report, pipeline, and database packages all need
// these types, so centralizing them prevents import cycles.
//
// The models are designed to be serializable to JSON for the record stream,
// the stats summary, and database storage.
package model

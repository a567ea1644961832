// Package event carries crawl observations to interested observers.
//
// The crawl engine reports every decision it makes (a page fetched, a link
// enqueued, a retry scheduled, a URL skipped) as an Event. Emitters are
// passive: they never influence the crawl, and a failing emitter never
// stops it.
//
// Events serialize to one flat JSON object, so a JSONLEmitter produces a
// log that can be processed line by line:
//
//	{"attempt":1,"backoff":0.75,"status":503,"type":"retry","url":"https://example.com/a"}
package event

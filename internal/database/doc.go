// Package database provides SQLite-based run history for sitecrawl.
//
// Every saved crawl becomes a row in the runs table with its final stats,
// and every emitted page record becomes a row in the pages table with a
// hash of its text. The history command lists runs and diffs two runs of
// the same seed: pages added, removed and changed.
//
// The history is written for reporting only. A crawl never reads it, so
// every run still starts from an empty frontier.
//
// Design decision: We use SQLite (via modernc.org/sqlite) instead of other
// databases because:
// 1. No external dependencies - the database is a single file
// 2. CGO-free implementation allows easy cross-compilation
// 3. Sufficient performance for our use case
// 4. WAL mode lets the history command read while a crawl writes
package database

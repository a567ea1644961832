package report

import (
	"io"

	"github.com/nao1215/sitecrawl/internal/model"
)

// Writer defines the interface for stats summary output.
//
// Design decision: We use an interface to allow different output formats
// and destinations. This enables writing to files, stderr, or both with
// the same API.
type Writer interface {
	// Write outputs the summary to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(summary *model.RunSummary) (int, error)
}

// MultiWriter writes to multiple Writers in order.
//
// Design decision: We implement this as a separate type rather than
// using io.MultiWriter because each destination may use a different
// format, so the fan-out has to happen before rendering.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the summary to all configured Writers.
// Returns the total bytes written across all writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(summary *model.RunSummary) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(summary)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for summary writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// statRow is one counter with its display label.
type statRow struct {
	name  string
	label string
	value int
}

// statLabels are the human-readable names of the counters.
var statLabels = map[string]string{
	"fetched_ok":         "Fetched",
	"enqueued":           "Enqueued",
	"duplicates":         "Duplicate URLs",
	"duplicates_content": "Duplicate content",
	"skipped_robots":     "Blocked by robots.txt",
	"skipped_off_scope":  "Off scope",
	"skipped_non_html":   "Not HTML",
	"skipped_too_large":  "Too large",
	"skipped_empty":      "Empty text",
	"errors_fetch":       "Fetch errors",
	"errors_malformed":   "Malformed URLs",
}

// statRows returns the counters of s in model.StatNames order.
func statRows(s model.CrawlStats) []statRow {
	values := s.Map()
	rows := make([]statRow, 0, len(model.StatNames))
	for _, name := range model.StatNames {
		rows = append(rows, statRow{name: name, label: statLabels[name], value: values[name]})
	}
	return rows
}

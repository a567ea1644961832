package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/sitecrawl/internal/model"
)

// SimpleWriter outputs human-readable text summaries.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors because the summary usually goes to stderr next to piped
// JSON lines, and escape codes would end up in log files.
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether zero counters are listed.
	showEmpty bool

	// verbose lists every seed, not only the total.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to list counters that are zero.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose adds a section per seed even for single-seed runs.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the summary in human-readable format.
func (w *SimpleWriter) Write(summary *model.RunSummary) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, summary)
	w.writeStats(&sb, "TOTAL", summary.Total())

	if w.verbose || len(summary.Seeds) > 1 {
		for _, seed := range summary.Seeds {
			w.writeStats(&sb, "SEED "+seed.Seed, seed.Stats)
			if seed.Error != "" {
				fmt.Fprintf(&sb, "  Stopped early: %s\n\n", seed.Error)
			}
		}
	}

	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")

	return w.output.Write([]byte(sb.String()))
}

// writeHeader writes the summary header with run information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, summary *model.RunSummary) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                        SITECRAWL SUMMARY\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Seeds:     %d\n", len(summary.Seeds))
	fmt.Fprintf(sb, "Started:   %s\n", summary.Started.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Duration:  %s\n", summary.Duration().Round(time.Millisecond))

	if summary.Interrupted() {
		sb.WriteString("Status:    INTERRUPTED (partial results)\n")
	} else {
		sb.WriteString("Status:    Complete\n")
	}
	sb.WriteString("\n")
}

// writeStats writes one block of counters.
func (w *SimpleWriter) writeStats(sb *strings.Builder, title string, stats model.CrawlStats) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	for _, row := range statRows(stats) {
		if row.value == 0 && !w.showEmpty && row.name != "fetched_ok" {
			continue
		}
		fmt.Fprintf(sb, "  %-22s %d\n", row.label+":", row.value)
	}
	sb.WriteString("\n")
}

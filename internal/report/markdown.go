package report

import (
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/nao1215/sitecrawl/internal/model"
)

// MarkdownWriter outputs summaries in Markdown format.
// This format is designed for pasting into issues and CI job summaries.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides:
// 1. Type-safe markdown generation
// 2. Tables and GitHub-flavored alerts
// 3. Mermaid pie charts for the outcome distribution
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the summary in Markdown format.
func (w *MarkdownWriter) Write(summary *model.RunSummary) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, summary)
	w.writeTotals(md, summary)
	w.writeSeeds(md, summary)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the summary header with run information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, summary *model.RunSummary) {
	md.H1("Crawl Summary")
	md.PlainText("")

	status := "✅ Complete"
	if summary.Interrupted() {
		status = "⚠️ Interrupted (partial results)"
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Seeds", strconv.Itoa(len(summary.Seeds))},
			{"Started", summary.Started.Format("2006-01-02 15:04:05 MST")},
			{"Duration", summary.Duration().Round(time.Millisecond).String()},
			{"Status", status},
		},
	})
	md.PlainText("")
}

// writeTotals writes the aggregated counters, a pie chart and an alert.
func (w *MarkdownWriter) writeTotals(md *markdown.Markdown, summary *model.RunSummary) {
	total := summary.Total()

	md.H2("Totals")
	md.PlainText("")

	rows := make([][]string, 0, len(model.StatNames))
	for _, row := range statRows(total) {
		rows = append(rows, []string{row.label, "`" + row.name + "`", strconv.Itoa(row.value)})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Outcome", "Counter", "Count"},
		Rows:   rows,
	})
	md.PlainText("")

	w.writePieChart(md, total)
	w.writeAlert(md, total)
}

// writePieChart writes a mermaid pie chart of what happened to dequeued URLs.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, total model.CrawlStats) {
	if total.FetchedOK+total.Skipped()+total.ErrorsFetch == 0 {
		return
	}

	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Page Outcomes"),
		piechart.WithShowData(true),
	)

	for _, row := range statRows(total) {
		// Enqueued and duplicates overlap with the other outcomes.
		if row.name == "enqueued" || row.name == "duplicates" || row.value == 0 {
			continue
		}
		chart.LabelAndIntValue(row.label, uint64(row.value))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an alert that points at the most relevant problem.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, total model.CrawlStats) {
	switch {
	case total.FetchedOK == 0:
		md.Cautionf("No pages were fetched. %d fetch error(s), %d blocked by robots.txt.",
			total.ErrorsFetch, total.SkippedRobots)
	case total.ErrorsFetch > 0:
		md.Warningf("%d page(s) could not be fetched after retries.", total.ErrorsFetch)
	case total.SkippedRobots > 0:
		md.Importantf("%d page(s) were skipped because robots.txt disallows them.", total.SkippedRobots)
	default:
		md.Tip("All reachable pages were fetched.")
	}
	md.PlainText("")
}

// writeSeeds writes one row per seed.
func (w *MarkdownWriter) writeSeeds(md *markdown.Markdown, summary *model.RunSummary) {
	if len(summary.Seeds) == 0 {
		return
	}

	md.H2("Seeds")
	md.PlainText("")

	rows := make([][]string, len(summary.Seeds))
	for i, s := range summary.Seeds {
		status := "complete"
		if s.Error != "" {
			status = truncateString(s.Error, 40)
		}
		rows[i] = []string{
			"`" + truncateString(s.Seed, 60) + "`",
			strconv.Itoa(s.Stats.FetchedOK),
			strconv.Itoa(s.Stats.Skipped()),
			strconv.Itoa(s.Stats.ErrorsFetch + s.Stats.ErrorsMalformed),
			status,
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"Seed", "Fetched", "Skipped", "Errors", "Status"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFooter writes the summary footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Generated by [sitecrawl](https://github.com/nao1215/sitecrawl)*")
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// Package report writes crawl output.
//
// RecordWriter streams page records as JSON lines. The summary writers
// render a model.RunSummary after the crawl:
//   - SimpleWriter: human-readable text for the terminal
//   - JSONWriter: structured JSON for tool integration
//   - MarkdownWriter: GitHub Flavored Markdown with a Mermaid pie chart
//
// Summary writers implement the Writer interface, allowing them to be used
// interchangeably and composed with MultiWriter.
package report

package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/nao1215/sitecrawl/internal/model"
)

// JSONWriter outputs summaries in JSON format.
// This format is designed for tool integration and programmatic processing.
//
// Design decision: We use standard encoding/json rather than a third-party
// JSON library because the summary is small and flat, and the stats field
// names are already fixed by struct tags in the model package.
type JSONWriter struct {
	baseWriter

	// version is written into the summary so results can be traced to a build.
	version string

	// indent enables pretty-printed JSON output.
	// When false, output is compact (no extra whitespace).
	indent bool

	// indentPrefix is the prefix for each line in indented output.
	indentPrefix string

	// indentString is the indentation string (typically "  " or "\t").
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with default indentation.
// This is a convenience wrapper for WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// WithVersion sets the version string included in the output.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// jsonSummary is the wire shape of a RunSummary.
type jsonSummary struct {
	Version         string              `json:"version,omitempty"`
	Started         time.Time           `json:"started"`
	Finished        time.Time           `json:"finished"`
	DurationSeconds float64             `json:"duration_seconds"`
	Interrupted     bool                `json:"interrupted"`
	Total           model.CrawlStats    `json:"total"`
	Seeds           []model.SeedSummary `json:"seeds"`
}

// Write outputs the summary in JSON format.
func (w *JSONWriter) Write(summary *model.RunSummary) (int, error) {
	seeds := summary.Seeds
	if seeds == nil {
		seeds = []model.SeedSummary{}
	}
	return w.writeJSON(jsonSummary{
		Version:         w.version,
		Started:         summary.Started,
		Finished:        summary.Finished,
		DurationSeconds: summary.Duration().Seconds(),
		Interrupted:     summary.Interrupted(),
		Total:           summary.Total(),
		Seeds:           seeds,
	})
}

// writeJSON marshals the given value to JSON and writes it to the output.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var data []byte
	var err error

	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}

	if err != nil {
		return 0, err
	}

	// Add trailing newline for better terminal output
	data = append(data, '\n')

	return w.output.Write(data)
}

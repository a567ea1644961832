package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/nao1215/sitecrawl/internal/model"
)

// RecordWriter writes page records as JSON lines, one object per line.
// It is safe for concurrent use, so seeds crawled in parallel can share it.
//
// Design decision: HTML escaping is disabled. Records carry page text that
// routinely contains "<" and "&", and escaping them would make the output
// harder to read for downstream tools without making it safer.
type RecordWriter struct {
	mu    sync.Mutex
	buf   *bufio.Writer
	enc   *json.Encoder
	count int
}

// NewRecordWriter creates a RecordWriter on w. Call Flush when done.
func NewRecordWriter(w io.Writer) *RecordWriter {
	buf := bufio.NewWriter(w)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	return &RecordWriter{buf: buf, enc: enc}
}

// Write appends one record.
func (w *RecordWriter) Write(rec model.PageRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("failed to write record %s: %w", rec.URL, err)
	}
	w.count++
	return nil
}

// Flush writes buffered records to the underlying writer.
func (w *RecordWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Flush()
}

// Count returns the number of records written so far.
func (w *RecordWriter) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// ReadRecords decodes a JSON lines stream written by RecordWriter.
func ReadRecords(r io.Reader) ([]model.PageRecord, error) {
	dec := json.NewDecoder(r)
	records := make([]model.PageRecord, 0)
	for {
		var rec model.PageRecord
		err := dec.Decode(&rec)
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return records, fmt.Errorf("record %d: %w", len(records)+1, err)
		}
		records = append(records, rec)
	}
}

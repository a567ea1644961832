package event

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"sync"
)

// Emitter receives crawl events.
// Implementations must be safe for concurrent use; batch crawls share one
// emitter across seeds.
type Emitter interface {
	Emit(e Event)
}

// Discard is an Emitter that drops every event.
var Discard Emitter = discard{}

type discard struct{}

func (discard) Emit(Event) {}

// JSONLEmitter writes each event as one JSON line.
type JSONLEmitter struct {
	mu  sync.Mutex
	w   io.Writer
	err error
}

// NewJSONLEmitter creates an emitter writing to w.
func NewJSONLEmitter(w io.Writer) *JSONLEmitter {
	return &JSONLEmitter{w: w}
}

// Emit writes e followed by a newline. After the first write error further
// events are dropped; the error is available from Err.
func (j *JSONLEmitter) Emit(e Event) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.err != nil {
		return
	}
	data, err := json.Marshal(e)
	if err != nil {
		j.err = fmt.Errorf("failed to encode %s event: %w", e.Type, err)
		return
	}
	data = append(data, '\n')
	if _, err := j.w.Write(data); err != nil {
		j.err = fmt.Errorf("failed to write event: %w", err)
	}
}

// Err returns the first error encountered while writing.
func (j *JSONLEmitter) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// LogEmitter forwards events to a structured logger at debug level.
type LogEmitter struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLogEmitter creates an emitter logging through logger.
// A nil logger uses slog.Default().
func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger, level: slog.LevelDebug}
}

// Emit logs e with its attributes in key order.
func (l *LogEmitter) Emit(e Event) {
	ctx := context.Background()
	if !l.logger.Enabled(ctx, l.level) {
		return
	}

	attrs := make([]slog.Attr, 0, len(e.Attrs)+1)
	if e.URL != "" {
		attrs = append(attrs, slog.String("url", e.URL))
	}
	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, e.Attrs[k]))
	}

	l.logger.LogAttrs(ctx, l.level, string(e.Type), attrs...)
}

// Multi fans an event out to several emitters in order.
type Multi []Emitter

// NewMulti creates a Multi, skipping nil emitters.
func NewMulti(emitters ...Emitter) Multi {
	m := make(Multi, 0, len(emitters))
	for _, e := range emitters {
		if e != nil {
			m = append(m, e)
		}
	}
	return m
}

// Emit forwards e to every emitter.
func (m Multi) Emit(e Event) {
	for _, em := range m {
		em.Emit(e)
	}
}

// Recorder keeps every event in memory. It is used by tests and by callers
// that want to inspect the event stream after a run.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit stores e.
func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of all recorded events in emission order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// OfType returns the recorded events of type t in emission order.
func (r *Recorder) OfType(t Type) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Count returns how many events of type t were recorded.
func (r *Recorder) Count(t Type) int {
	return len(r.OfType(t))
}

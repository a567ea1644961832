package event

import (
	"encoding/json"
	"maps"
)

// Type names the kind of an Event.
type Type string

// Event types emitted by the crawl engine.
const (
	TypeFetched          Type = "fetched"
	TypeEnqueued         Type = "enqueued"
	TypeRetry            Type = "retry"
	TypeDuplicate        Type = "duplicate"
	TypeDuplicateContent Type = "duplicate_content"
	TypeRobotsSkip       Type = "robots_skip"
	TypeRobotsFallback   Type = "robots_fallback"
	TypeOffScope         Type = "off_scope"
	TypeNonHTML          Type = "non_html"
	TypeTooLarge         Type = "too_large"
	TypeEmptyText        Type = "empty_text"
	TypeMalformed        Type = "malformed"
	TypeError            Type = "error"
)

// Event is a single crawl observation.
// Attrs holds the type-specific fields; it is flattened next to "type" and
// "url" when marshaled. The keys "type" and "url" in Attrs are ignored.
type Event struct {
	Type  Type
	URL   string
	Attrs map[string]any
}

// New creates an Event without attributes.
func New(t Type, url string) Event {
	return Event{Type: t, URL: url}
}

// With returns a copy of e with key set to value.
// The receiver is not modified, so a base event can be reused.
func (e Event) With(key string, value any) Event {
	attrs := make(map[string]any, len(e.Attrs)+1)
	maps.Copy(attrs, e.Attrs)
	attrs[key] = value
	e.Attrs = attrs
	return e
}

// Attr returns the attribute stored under key, or nil.
func (e Event) Attr(key string) any {
	return e.Attrs[key]
}

// MarshalJSON encodes the event as one flat object with sorted keys.
func (e Event) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(e.Attrs)+2)
	maps.Copy(flat, e.Attrs)
	flat["type"] = string(e.Type)
	if e.URL != "" {
		flat["url"] = e.URL
	} else {
		delete(flat, "url")
	}
	return json.Marshal(flat)
}

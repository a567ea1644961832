package model

// PageRecord represents one successfully fetched, in-scope page.
// Records are created once per successful fetch and never mutated after
// they are emitted downstream.
//
// The JSON field names are part of the output contract and must not change.
type PageRecord struct {
	// URL is the canonical URL of the page.
	URL string `json:"url"`

	// Title is the page title extracted from the <title> tag.
	Title string `json:"title"`

	// Text is the cleaned page text with boilerplate removed.
	Text string `json:"text"`

	// Depth is the number of links followed from the seed.
	// The seed itself has depth 0.
	Depth int `json:"depth"`

	// DiscoveredFrom is the canonical URL of the page that linked here.
	// It is nil only for the seed and encodes as JSON null.
	DiscoveredFrom *string `json:"discoveredFrom"`
}

// NewPageRecord creates a PageRecord. An empty parent means the page is the
// seed, so DiscoveredFrom stays nil.
func NewPageRecord(url, title, text string, depth int, parent string) PageRecord {
	rec := PageRecord{
		URL:   url,
		Title: title,
		Text:  text,
		Depth: depth,
	}
	if parent != "" {
		p := parent
		rec.DiscoveredFrom = &p
	}
	return rec
}

// Parent returns the discovering URL, or an empty string for the seed.
func (r PageRecord) Parent() string {
	if r.DiscoveredFrom == nil {
		return ""
	}
	return *r.DiscoveredFrom
}

// IsSeed reports whether the record is the crawl seed.
func (r PageRecord) IsSeed() bool {
	return r.DiscoveredFrom == nil
}

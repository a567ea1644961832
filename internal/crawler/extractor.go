package crawler

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// MaxTitleLength is the maximum number of characters kept from <title>.
const MaxTitleLength = 300

// boilerplateSelector matches elements whose text is not page content.
const boilerplateSelector = "script, style, noscript, template, " +
	"header, nav, footer, aside, " +
	"[role=navigation], [role=banner], [role=contentinfo], " +
	".cookie, .cookies, .banner, .modal, .sidebar, .hero"

// Extraction is what an Extractor finds in one HTML document.
type Extraction struct {
	// Title is the whitespace-collapsed <title>, at most MaxTitleLength characters.
	Title string

	// Text is the whitespace-collapsed body text without boilerplate.
	Text string

	// Links are absolute URLs of <a href> elements in document order.
	Links []string
}

// Extractor turns a raw HTML document into title, text and links.
type Extractor interface {
	Extract(baseURL string, body []byte, contentType string) (*Extraction, error)
}

// HTMLExtractor is the default Extractor.
//
// Design decision: Links are collected before boilerplate is removed.
// Navigation menus are where most internal links live, so stripping them
// first would starve the frontier.
type HTMLExtractor struct{}

// NewHTMLExtractor creates an HTMLExtractor.
func NewHTMLExtractor() *HTMLExtractor {
	return &HTMLExtractor{}
}

// Extract parses body, decoding it from the charset declared in
// contentType or in the document itself.
func (x *HTMLExtractor) Extract(baseURL string, body []byte, contentType string) (*Extraction, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}

	var reader io.Reader = bytes.NewReader(body)
	if decoded, err := charset.NewReader(reader, contentType); err == nil {
		reader = decoded
	} else {
		reader = bytes.NewReader(body)
	}

	root, err := html.Parse(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	doc := goquery.NewDocumentFromNode(root)

	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if u, err := url.Parse(strings.TrimSpace(href)); err == nil {
			base = base.ResolveReference(u)
		}
	}

	result := &Extraction{
		Title: truncateRunes(collapseSpace(doc.Find("title").First().Text()), MaxTitleLength),
		Links: make([]string, 0),
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if link := resolveURL(base, href); link != "" {
			result.Links = append(result.Links, link)
		}
	})

	doc.Find(boilerplateSelector).Remove()

	var text strings.Builder
	for _, n := range doc.Find("body").Nodes {
		collectText(n, &text)
	}
	result.Text = collapseSpace(text.String())

	return result, nil
}

// resolveURL resolves href against base. Non-navigational references
// (javascript:, mailto:, tel:, data: and bare fragments) yield "".
func resolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}

	lower := strings.ToLower(href)
	for _, scheme := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, scheme) {
			return ""
		}
	}

	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(u).String()
}

// collectText appends the text nodes below n, separated by spaces.
func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		b.WriteByte(' ')
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}

// collapseSpace trims s and replaces every whitespace run with one space.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncateRunes shortens s to at most n characters.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

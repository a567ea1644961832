package robots

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"
	"time"
)

// Rule is one Allow or Disallow line.
type Rule struct {
	// Path is the path prefix the rule applies to.
	Path string

	// Allow is true for Allow lines and false for Disallow lines.
	Allow bool
}

// Group is a set of rules shared by one or more user agents.
type Group struct {
	// Agents are the lowercased User-agent values of the group.
	Agents []string

	// Rules are the group's Allow and Disallow lines in file order.
	Rules []Rule

	// CrawlDelay is the requested delay between requests, zero if absent.
	CrawlDelay time.Duration
}

// Robots is a parsed robots.txt file.
type Robots struct {
	Groups   []Group
	Sitemaps []string
}

// Parse parses a robots.txt body. It never fails: unknown or malformed
// lines are skipped.
func Parse(data []byte) *Robots {
	r := &Robots{}

	var (
		current  *Group
		inAgents bool
	)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "user-agent":
			if !inAgents || current == nil {
				r.Groups = append(r.Groups, Group{})
				current = &r.Groups[len(r.Groups)-1]
				inAgents = true
			}
			if value != "" {
				current.Agents = append(current.Agents, strings.ToLower(value))
			}

		case "allow", "disallow":
			inAgents = false
			if current == nil || value == "" {
				// An empty Disallow allows everything, which is the default.
				continue
			}
			current.Rules = append(current.Rules, Rule{Path: value, Allow: key == "allow"})

		case "crawl-delay":
			inAgents = false
			if current == nil {
				continue
			}
			seconds, err := strconv.ParseFloat(value, 64)
			if err != nil || seconds < 0 {
				continue
			}
			current.CrawlDelay = time.Duration(seconds * float64(time.Second))

		case "sitemap":
			if value != "" {
				r.Sitemaps = append(r.Sitemaps, value)
			}
		}
	}

	return r
}

// ProductToken returns the lowercased product name of a User-Agent string,
// e.g. "sitecrawl" for "sitecrawl/0.1 (+https://example.com)".
func ProductToken(userAgent string) string {
	token := strings.TrimSpace(userAgent)
	if i := strings.IndexAny(token, "/ "); i >= 0 {
		token = token[:i]
	}
	return strings.ToLower(token)
}

// Select returns the rules and crawl delay that apply to the product token.
// Groups naming the token take precedence over '*' groups; several matching
// groups are merged.
func (r *Robots) Select(token string) ([]Rule, time.Duration) {
	token = strings.ToLower(token)

	specific := r.collect(func(agent string) bool {
		return agent != "*" && token != "" && strings.Contains(token, agent)
	})
	if specific != nil {
		return specific.Rules, specific.CrawlDelay
	}

	wildcard := r.collect(func(agent string) bool { return agent == "*" })
	if wildcard != nil {
		return wildcard.Rules, wildcard.CrawlDelay
	}
	return nil, 0
}

// collect merges every group with an agent accepted by match, or returns nil.
func (r *Robots) collect(match func(agent string) bool) *Group {
	var merged *Group
	for _, g := range r.Groups {
		for _, agent := range g.Agents {
			if !match(agent) {
				continue
			}
			if merged == nil {
				merged = &Group{}
			}
			merged.Rules = append(merged.Rules, g.Rules...)
			merged.CrawlDelay = max(merged.CrawlDelay, g.CrawlDelay)
			break
		}
	}
	return merged
}

// Decide applies rules to a path (with its query, if any).
// It returns whether the path is allowed and the deciding rule, or nil when
// no rule matched.
func Decide(rules []Rule, path string) (bool, *Rule) {
	var best *Rule
	for i := range rules {
		rule := &rules[i]
		if !strings.HasPrefix(path, rule.Path) {
			continue
		}
		switch {
		case best == nil, len(rule.Path) > len(best.Path):
			best = rule
		case len(rule.Path) == len(best.Path) && rule.Allow:
			best = rule
		}
	}
	if best == nil {
		return true, nil
	}
	return best.Allow, best
}

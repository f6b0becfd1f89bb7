package discovery

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pevans/presswatch/dates"
	"github.com/pevans/presswatch/release"
)

// articleTypes are the schema.org types treated as press releases.
var articleTypes = map[string]bool{
	"NewsArticle":  true,
	"Article":      true,
	"Report":       true,
	"BlogPosting":  true,
	"PressRelease": true,
}

// collectionFields hold nested articles inside a container object.
var collectionFields = []string{"itemListElement", "hasPart", "about", "mainEntity", "@graph"}

// EmbeddedStrategy reads schema.org JSON-LD blocks inlined in the page.
type EmbeddedStrategy struct{}

// NewEmbeddedStrategy creates the JSON-LD strategy.
func NewEmbeddedStrategy() *EmbeddedStrategy {
	return &EmbeddedStrategy{}
}

func (e *EmbeddedStrategy) Name() string {
	return "jsonld"
}

// Extract returns article-like objects found in JSON-LD blocks, deduplicated
// by (title, link). Blocks that are not valid JSON are skipped.
func (e *EmbeddedStrategy) Extract(_ context.Context, listingURL, markup string) ([]release.Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, eris.Wrap(err, "jsonld: parse html")
	}

	var items []release.Candidate
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}

		var data any
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			zap.L().Debug("jsonld: skipping malformed block", zap.String("url", listingURL), zap.Error(err))
			return
		}

		walkJSONLD(data, 0, func(obj map[string]any) {
			if item, ok := jsonLDArticle(obj, listingURL); ok {
				items = append(items, item)
			}
		})
	})

	return dedupeFirst(items), nil
}

// walkJSONLD visits top-level objects and objects nested in collection
// fields. Depth is bounded to keep hostile documents cheap.
func walkJSONLD(node any, depth int, visit func(map[string]any)) {
	if depth > 6 {
		return
	}

	switch v := node.(type) {
	case []any:
		for _, child := range v {
			walkJSONLD(child, depth+1, visit)
		}
	case map[string]any:
		visit(v)
		for _, field := range collectionFields {
			if child, ok := v[field]; ok {
				walkJSONLD(child, depth+1, visit)
			}
		}
		// ListItem wraps the article under "item"
		if hasType(v, "ListItem") {
			if child, ok := v["item"]; ok {
				walkJSONLD(child, depth+1, visit)
			}
		}
	}
}

func jsonLDArticle(obj map[string]any, listingURL string) (release.Candidate, bool) {
	if !isArticle(obj) {
		return release.Candidate{}, false
	}

	title := release.CleanText(firstString(obj, "headline", "name"))
	if title == "" {
		return release.Candidate{}, false
	}

	link := release.ResolveLink(listingURL, firstString(obj, "url", "mainEntityOfPage"))
	if link == "" {
		return release.Candidate{}, false
	}

	return release.Candidate{
		Title: title,
		Link:  link,
		Date:  dates.Parse(firstString(obj, "datePublished", "dateModified")),
	}, true
}

func isArticle(obj map[string]any) bool {
	for t := range articleTypes {
		if hasType(obj, t) {
			return true
		}
	}
	return false
}

// hasType handles @type given as a string or a list of strings.
func hasType(obj map[string]any, want string) bool {
	switch t := obj["@type"].(type) {
	case string:
		return t == want
	case []any:
		for _, v := range t {
			if s, ok := v.(string); ok && s == want {
				return true
			}
		}
	}
	return false
}

// firstString returns the first non-empty string among keys. Objects with an
// "@id" (mainEntityOfPage) yield that id.
func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := obj[k].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return v
			}
		case map[string]any:
			if id, ok := v["@id"].(string); ok && strings.TrimSpace(id) != "" {
				return id
			}
		}
	}
	return ""
}

// dedupeFirst keeps the first record per (title, link).
func dedupeFirst(items []release.Candidate) []release.Candidate {
	seen := make(map[release.Key]bool, len(items))
	out := make([]release.Candidate, 0, len(items))
	for _, it := range items {
		if seen[it.Key()] {
			continue
		}
		seen[it.Key()] = true
		out = append(out, it)
	}
	return out
}

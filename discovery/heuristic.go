package discovery

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pevans/presswatch/dates"
	"github.com/pevans/presswatch/release"
	"github.com/pevans/presswatch/scraper"
)

// navClassHints mark containers that belong to site chrome rather than the
// listing.
var navClassHints = []string{"nav", "menu", "breadcrumb", "footer", "header"}

// HeuristicStrategy scans listing markup with ordered selector sets.
type HeuristicStrategy struct {
	name string
	sets []scraper.SelectorSet
}

// NewHeuristicStrategy creates a scanner over sets, tried in order. With no
// sets it uses the generic candidates.
func NewHeuristicStrategy(name string, sets ...scraper.SelectorSet) *HeuristicStrategy {
	if len(sets) == 0 {
		sets = []scraper.SelectorSet{scraper.DefaultSelectors()}
	}
	return &HeuristicStrategy{name: name, sets: sets}
}

func (h *HeuristicStrategy) Name() string {
	return h.name
}

// Extract parses markup and returns items from the first selector set that
// yields any.
func (h *HeuristicStrategy) Extract(_ context.Context, listingURL, markup string) ([]release.Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, eris.Wrap(err, "heuristic: parse html")
	}
	return h.ExtractDocument(doc, listingURL), nil
}

// ExtractDocument is Extract over an already parsed document.
func (h *HeuristicStrategy) ExtractDocument(doc *goquery.Document, listingURL string) []release.Candidate {
	for _, set := range h.sets {
		if items := ScanSelectors(doc, listingURL, set); len(items) > 0 {
			return items
		}
	}
	return nil
}

// ScanSelectors walks the set's container candidates in order. The first
// container selector producing any item is used; its items are post-filtered
// and returned.
func ScanSelectors(doc *goquery.Document, listingURL string, set scraper.SelectorSet) []release.Candidate {
	var pattern *regexp.Regexp
	if set.DatePattern != "" {
		p, err := regexp.Compile(set.DatePattern)
		if err != nil {
			zap.L().Warn("invalid date pattern", zap.String("pattern", set.DatePattern), zap.Error(err))
		} else {
			pattern = p
		}
	}

	for _, containerSel := range set.Containers {
		var items []release.Candidate
		doc.Find(containerSel).Each(func(_ int, s *goquery.Selection) {
			if isChrome(s) {
				return
			}
			if item, ok := scanItem(s, listingURL, set, pattern); ok {
				items = append(items, item)
			}
		})
		if len(items) > 0 {
			return postFilter(items)
		}
	}
	return nil
}

// isChrome reports whether s sits in navigation, header or footer.
func isChrome(s *goquery.Selection) bool {
	if s.ParentsFiltered("nav, header, footer").Length() > 0 {
		return true
	}
	class := strings.ToLower(s.AttrOr("class", ""))
	for _, hint := range navClassHints {
		if strings.Contains(class, hint) {
			return true
		}
	}
	return false
}

// scanItem pulls one record out of a container. It reports false when the
// container lacks a usable link or title.
func scanItem(s *goquery.Selection, listingURL string, set scraper.SelectorSet, pattern *regexp.Regexp) (release.Candidate, bool) {
	anchor := findLink(s, set)
	if anchor == nil {
		return release.Candidate{}, false
	}

	link := release.ResolveLink(listingURL, anchor.AttrOr("href", ""))
	if link == "" {
		return release.Candidate{}, false
	}

	title := ""
	if el := firstWithText(s, set.Titles); el != nil {
		title = release.CleanText(el.Text())
	}
	if title == "" {
		title = release.CleanText(anchor.Text())
	}
	if lower := strings.ToLower(title); title == "" || lower == "learn more" || lower == "read more" {
		if attr := release.CleanText(anchor.AttrOr("title", "")); attr != "" {
			title = attr
		}
	}
	if title == "" {
		return release.Candidate{}, false
	}

	return release.Candidate{
		Title: title,
		Link:  link,
		Date:  scanDate(s, set.Dates, pattern),
	}, true
}

// findLink returns the anchor for a container: the enclosing anchor when
// configured, the container itself when it is a link, then the link
// candidates.
func findLink(s *goquery.Selection, set scraper.SelectorSet) *goquery.Selection {
	if set.LinkFromParent {
		if parent := s.ParentsFiltered("a[href]").First(); parent.Length() > 0 {
			return parent
		}
	}
	if s.Is("a[href]") {
		return s
	}
	for _, sel := range set.Links {
		if a := s.Find(sel).FilterFunction(func(_ int, a *goquery.Selection) bool {
			_, ok := a.Attr("href")
			return ok
		}).First(); a.Length() > 0 {
			return a
		}
	}
	return nil
}

// firstWithText returns the first element matched by selectors, in selector
// order, that has non-empty text.
func firstWithText(s *goquery.Selection, selectors []string) *goquery.Selection {
	for _, sel := range selectors {
		var found *goquery.Selection
		s.Find(sel).EachWithBreak(func(_ int, el *goquery.Selection) bool {
			if strings.TrimSpace(el.Text()) != "" {
				found = el
				return false
			}
			return true
		})
		if found != nil {
			return found
		}
	}
	return nil
}

// scanDate resolves the container's date from the first date candidate that
// normalizes, reading datetime and content attributes before text.
func scanDate(s *goquery.Selection, selectors []string, pattern *regexp.Regexp) *time.Time {
	for _, sel := range selectors {
		var found *time.Time
		s.Find(sel).EachWithBreak(func(_ int, el *goquery.Selection) bool {
			for _, raw := range dateTexts(el) {
				if pattern != nil {
					raw = pattern.FindString(raw)
				}
				if d := dates.Parse(raw); d != nil {
					found = d
					return false
				}
			}
			return true
		})
		if found != nil {
			return found
		}
	}
	return nil
}

func dateTexts(el *goquery.Selection) []string {
	var texts []string
	for _, attr := range []string{"datetime", "content", "data-date"} {
		if v, ok := el.Attr(attr); ok && strings.TrimSpace(v) != "" {
			texts = append(texts, v)
		}
	}
	return append(texts, release.CleanText(el.Text()))
}

// postFilter drops short and single-word titles and exact duplicates.
func postFilter(items []release.Candidate) []release.Candidate {
	seen := make(map[release.Key]bool, len(items))
	kept := make([]release.Candidate, 0, len(items))
	for _, it := range items {
		if len([]rune(it.Title)) < 4 {
			continue
		}
		if len(strings.Fields(it.Title)) == 1 {
			continue
		}
		if seen[it.Key()] {
			continue
		}
		seen[it.Key()] = true
		kept = append(kept, it)
	}
	return kept
}

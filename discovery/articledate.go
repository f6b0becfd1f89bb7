package discovery

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/pevans/presswatch/dates"
	"github.com/pevans/presswatch/fetch"
	"github.com/pevans/presswatch/release"
)

// articleMetaSelectors are read in order from an article page's head.
var articleMetaSelectors = []string{
	`meta[property="article:published_time"]`,
	`meta[name="article:published_time"]`,
	`meta[name="date"]`,
	`meta[name="publish-date"]`,
	`meta[name="pubdate"]`,
	`meta[itemprop="datePublished"]`,
}

var articleDateFields = []string{"datePublished", "dateCreated", "dateModified"}

var bodyMonthDate = regexp.MustCompile(`\b(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Sept|Oct|Nov|Dec)\w*\s+\d{1,2},\s+\d{4}\b`)

// ArticleDater recovers publication dates from individual article pages.
type ArticleDater struct {
	fetcher fetch.Fetcher
	pacer   *fetch.Pacer
}

// NewArticleDater creates a dater that fetches with fetcher, spacing requests
// by delay.
func NewArticleDater(fetcher fetch.Fetcher, delay time.Duration) *ArticleDater {
	return &ArticleDater{fetcher: fetcher, pacer: fetch.NewPacer(delay)}
}

// Enrich fills in dates for undated items, fetching at most limit article
// pages. Items whose page cannot be fetched or dated stay undated.
func (a *ArticleDater) Enrich(ctx context.Context, items []release.Candidate, limit int) []release.Candidate {
	out := make([]release.Candidate, len(items))
	copy(out, items)

	fetched := 0
	for i := range out {
		if out[i].Dated() {
			continue
		}
		if limit > 0 && fetched >= limit {
			break
		}
		if err := a.pacer.Wait(ctx); err != nil {
			break
		}
		fetched++

		markup, err := a.fetcher.Fetch(ctx, out[i].Link)
		if err != nil {
			zap.L().Debug("article date: fetch failed", zap.String("url", out[i].Link), zap.Error(err))
			continue
		}
		out[i].Date = ArticleDate(markup)
	}

	return out
}

// ArticleDate reads the publication date of an article page from its meta
// tags, JSON-LD, time elements, and finally its text.
func ArticleDate(markup string) *time.Time {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil
	}

	for _, sel := range articleMetaSelectors {
		if d := dates.Parse(doc.Find(sel).First().AttrOr("content", "")); d != nil {
			return d
		}
	}

	var found *time.Time
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var data any
		if err := json.Unmarshal([]byte(strings.TrimSpace(s.Text())), &data); err != nil {
			return true
		}
		walkJSONLD(data, 0, func(obj map[string]any) {
			if found != nil {
				return
			}
			for _, field := range articleDateFields {
				if raw, ok := obj[field].(string); ok {
					if d := dates.Parse(raw); d != nil {
						found = d
						return
					}
				}
			}
		})
		return found == nil
	})
	if found != nil {
		return found
	}

	if d := dates.Parse(doc.Find("time[datetime]").First().AttrOr("datetime", "")); d != nil {
		return d
	}

	return dates.Parse(bodyMonthDate.FindString(doc.Text()))
}

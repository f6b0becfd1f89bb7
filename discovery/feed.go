package discovery

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pevans/presswatch/dates"
	"github.com/pevans/presswatch/fetch"
	"github.com/pevans/presswatch/release"
)

// feedLinkSelector finds advertised RSS and Atom feeds.
const feedLinkSelector = `link[rel~="alternate"][type*="rss"], link[rel~="alternate"][type*="atom"]`

// FeedStrategy follows a listing page's advertised syndication feed.
type FeedStrategy struct {
	fetcher fetch.Fetcher
}

// NewFeedStrategy creates a feed strategy that downloads feeds with fetcher.
func NewFeedStrategy(fetcher fetch.Fetcher) *FeedStrategy {
	return &FeedStrategy{fetcher: fetcher}
}

func (f *FeedStrategy) Name() string {
	return "feed"
}

// Extract returns the entries of the first advertised feed that has any. It
// returns nothing without fetching when the page advertises no feed.
func (f *FeedStrategy) Extract(ctx context.Context, listingURL, markup string) ([]release.Candidate, error) {
	feedURLs, err := FeedLinks(listingURL, markup)
	if err != nil {
		return nil, err
	}
	if len(feedURLs) == 0 || f.fetcher == nil {
		return nil, nil
	}

	parser := gofeed.NewParser()
	for _, feedURL := range feedURLs {
		body, err := f.fetcher.Fetch(ctx, feedURL)
		if err != nil {
			zap.L().Debug("feed: fetch failed", zap.String("feed", feedURL), zap.Error(err))
			continue
		}

		feed, err := parser.ParseString(body)
		if err != nil {
			zap.L().Debug("feed: parse failed", zap.String("feed", feedURL), zap.Error(err))
			continue
		}

		if items := FeedItems(feedURL, feed); len(items) > 0 {
			return items, nil
		}
	}

	return nil, nil
}

// FeedLinks returns the absolute URLs of feeds advertised in markup.
func FeedLinks(listingURL, markup string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, eris.Wrap(err, "feed: parse html")
	}

	var urls []string
	seen := map[string]bool{}
	doc.Find(feedLinkSelector).Each(func(_ int, s *goquery.Selection) {
		link := release.ResolveLink(listingURL, s.AttrOr("href", ""))
		if link == "" || seen[link] {
			return
		}
		seen[link] = true
		urls = append(urls, link)
	})
	return urls, nil
}

// FeedItems maps feed entries to candidates, taking the first available of
// the published and updated dates.
func FeedItems(feedURL string, feed *gofeed.Feed) []release.Candidate {
	if feed == nil {
		return nil
	}

	items := make([]release.Candidate, 0, len(feed.Items))
	for _, it := range feed.Items {
		if it == nil {
			continue
		}
		title := release.CleanText(it.Title)
		link := release.ResolveLink(feedURL, it.Link)
		if title == "" || link == "" {
			continue
		}
		items = append(items, release.Candidate{
			Title: title,
			Link:  link,
			Date:  feedItemDate(it),
		})
	}
	return items
}

func feedItemDate(it *gofeed.Item) *time.Time {
	for _, parsed := range []*time.Time{it.PublishedParsed, it.UpdatedParsed} {
		if parsed != nil {
			d := dates.Day(*parsed)
			return &d
		}
	}
	for _, raw := range []string{it.Published, it.Updated} {
		if d := dates.Parse(raw); d != nil {
			return d
		}
	}
	return nil
}

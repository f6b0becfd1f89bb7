package discovery

import (
	"context"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pevans/presswatch/dates"
	"github.com/pevans/presswatch/release"
	"github.com/pevans/presswatch/scraper"
)

const listingURL = "https://example.test/newsroom"

func parseDoc(t *testing.T, markup string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	require.NoError(t, err)
	return doc
}

// candidates builds undated records from title, path pairs.
func candidates(pairs ...string) []release.Candidate {
	out := make([]release.Candidate, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, release.Candidate{
			Title: pairs[i],
			Link:  release.ResolveLink(listingURL, pairs[i+1]),
		})
	}
	return out
}

// dated builds a record dated day (YYYY-MM-DD).
func dated(title, link, day string) release.Candidate {
	return release.Candidate{
		Title: title,
		Link:  release.ResolveLink(listingURL, link),
		Date:  dates.Parse(day),
	}
}

// TestHeuristicStrategy_GenericListing verifies extraction with the generic
// candidates, including chrome skipping, post-filters and link resolution.
func TestHeuristicStrategy_GenericListing(t *testing.T) {
	markup := `<html><body>
<nav><article><h2>Products and services menu</h2><a href="/menu">Menu</a></article></nav>
<article class="news"><h2>Bell launches fibre in Halifax</h2><time datetime="2025-03-24">March 24</time><a href="/news/fibre#top">Read</a></article>
<article><h3>Q4 results</h3><span class="date">24 March 2025</span><a href="https://other.test/q4">x</a></article>
<article><h2>News</h2><a href="/news/short">x</a></article>
<article><a href="/news/5g" title="Rogers expands 5G coverage">Read more</a></article>
<article class="menu-item"><h2>Another menu entry here</h2><a href="/m2">x</a></article>
<article><h2>Bell launches fibre in Halifax</h2><a href="/news/fibre">dup</a></article>
<footer><article><h2>Contact the media team</h2><a href="/contact">x</a></article></footer>
</body></html>`

	items, err := NewHeuristicStrategy("heuristic").Extract(context.Background(), listingURL, markup)
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, "Bell launches fibre in Halifax", items[0].Title)
	assert.Equal(t, "https://example.test/news/fibre", items[0].Link)
	assert.Equal(t, "2025-03-24", dates.Format(items[0].Date))

	assert.Equal(t, "Q4 results", items[1].Title)
	assert.Equal(t, "https://other.test/q4", items[1].Link)
	assert.Equal(t, "2025-03-24", dates.Format(items[1].Date))

	assert.Equal(t, "Rogers expands 5G coverage", items[2].Title)
	assert.Equal(t, "https://example.test/news/5g", items[2].Link)
	assert.Nil(t, items[2].Date)
}

// TestHeuristicStrategy_EmptyPage verifies that a page without listing items
// is a miss rather than an error.
func TestHeuristicStrategy_EmptyPage(t *testing.T) {
	items, err := NewHeuristicStrategy("heuristic").Extract(context.Background(), listingURL,
		`<html><body><p>Nothing to see</p></body></html>`)

	require.NoError(t, err)
	assert.Empty(t, items)
}

// TestHeuristicStrategy_ContainerOrder verifies that the first container
// selector producing items is used and later ones are ignored.
func TestHeuristicStrategy_ContainerOrder(t *testing.T) {
	markup := `<html><body>
<div class="news-item"><h3>Eastlink expands internet service</h3><small>January 9, 2025</small><a href="/n/1">x</a></div>
<div class="views-row"><h3>Should not be picked up</h3><a href="/n/2">x</a></div>
</body></html>`

	set := scraper.SelectorSet{
		Containers: []string{"div.missing", "div.news-item", "div.views-row"},
		Dates:      []string{"small"},
	}.WithDefaults()

	items := ScanSelectors(parseDoc(t, markup), listingURL, set)

	require.Len(t, items, 1)
	assert.Equal(t, "Eastlink expands internet service", items[0].Title)
	assert.Equal(t, "2025-01-09", dates.Format(items[0].Date))
}

// TestScanSelectors_LinkFromParent verifies links taken from an enclosing
// anchor.
func TestScanSelectors_LinkFromParent(t *testing.T) {
	markup := `<html><body><div>
<a href="/global/about/news/20250203.html"><dd class="item-txt"><h4 class="ellipsis-3">ZTE unveils new home router</h4><span class="date">2025-02-03</span></dd></a>
</div></body></html>`

	known := scraper.KnownProfiles()["zte"]
	items := ScanSelectors(parseDoc(t, markup), "https://www.zte.com/global/about/news.html", known.Selectors[0])

	require.Len(t, items, 1)
	assert.Equal(t, "ZTE unveils new home router", items[0].Title)
	assert.Equal(t, "https://www.zte.com/global/about/news/20250203.html", items[0].Link)
	assert.Equal(t, "2025-02-03", dates.Format(items[0].Date))
}

// TestScanSelectors_DatePattern verifies that a date pattern isolates the
// date inside longer card text.
func TestScanSelectors_DatePattern(t *testing.T) {
	markup := `<html><body>
<div class="cmp-card">
  <span class="cmp-card__title"><a href="/en/press/2025/01/growth.html">Calix reports record growth</a></span>
  <div class="cmp-card__info">Press Release | January 15, 2025 | 3 min read</div>
</div>
</body></html>`

	known := scraper.KnownProfiles()["calix"]
	items := ScanSelectors(parseDoc(t, markup), "https://www.calix.com/en/press.html", known.Selectors[0])

	require.Len(t, items, 1)
	assert.Equal(t, "Calix reports record growth", items[0].Title)
	assert.Equal(t, "https://www.calix.com/en/press/2025/01/growth.html", items[0].Link)
	assert.Equal(t, "2025-01-15", dates.Format(items[0].Date))
}

// TestScanSelectors_SkipsBrokenContainers verifies that containers without a
// link or title are skipped while scanning continues.
func TestScanSelectors_SkipsBrokenContainers(t *testing.T) {
	markup := `<html><body>
<div class="story"><h2>Story without any link</h2></div>
<div class="story"><h2></h2><a href="/s/empty"></a></div>
<div class="story"><h2>Bruce Telecom opens new office</h2><time datetime="2025-05-02">May 2</time><a href="/s/office">More</a></div>
</body></html>`

	items := ScanSelectors(parseDoc(t, markup), listingURL, scraper.NewSelectorSet("div.story"))

	require.Len(t, items, 1)
	assert.Equal(t, "Bruce Telecom opens new office", items[0].Title)
}

// TestPostFilter verifies the short, single-word and duplicate filters.
func TestPostFilter(t *testing.T) {
	items := postFilter(candidates(
		"abc", "/a",
		"Newsroom", "/b",
		"Two words", "/c",
		"Two words", "/c",
		"Two words", "/d",
	))

	require.Len(t, items, 2)
	assert.Equal(t, "https://example.test/c", items[0].Link)
	assert.Equal(t, "https://example.test/d", items[1].Link)
}

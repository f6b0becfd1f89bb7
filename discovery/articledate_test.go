package discovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pevans/presswatch/dates"
)

// TestArticleDate verifies each fallback source in order.
func TestArticleDate(t *testing.T) {
	tests := []struct {
		name   string
		markup string
		want   string
	}{
		{
			name: "published time meta wins",
			markup: `<html><head>
<meta name="date" content="2025-01-01">
<meta property="article:published_time" content="2025-02-10T10:00:00Z">
</head></html>`,
			want: "2025-02-10",
		},
		{
			name:   "itemprop meta",
			markup: `<html><head><meta itemprop="datePublished" content="2025-03-05"></head></html>`,
			want:   "2025-03-05",
		},
		{
			name: "json-ld",
			markup: `<html><head><script type="application/ld+json">
{"@graph":[{"@type":"WebPage"},{"@type":"NewsArticle","dateCreated":"2025-04-07"}]}
</script></head></html>`,
			want: "2025-04-07",
		},
		{
			name:   "time element",
			markup: `<html><body><time datetime="2025-05-09T12:00:00">May 9</time></body></html>`,
			want:   "2025-05-09",
		},
		{
			name:   "body text",
			markup: `<html><body><p>OTTAWA, June 11, 2025 /CNW/ - Northwestel announced</p></body></html>`,
			want:   "2025-06-11",
		},
		{
			name:   "nothing",
			markup: `<html><body><p>No date anywhere</p></body></html>`,
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, dates.Format(ArticleDate(tt.markup)))
		})
	}
}

// TestArticleDater_Enrich verifies that only undated items are fetched, up
// to the limit, and that failures leave items undated.
func TestArticleDater_Enrich(t *testing.T) {
	fetcher := &countingFetcher{pages: map[string]string{
		"https://example.test/u1": `<meta name="pubdate" content="2025-02-02">`,
		"https://example.test/u3": `<meta name="pubdate" content="2025-03-03">`,
	}}
	items := append(candidates("Undated one here", "/u1", "Undated two here", "/u2"),
		dated("Dated release here", "/d", "2025-01-05"))
	items = append(items, candidates("Undated three here", "/u3")...)

	out := NewArticleDater(fetcher, 0).Enrich(context.Background(), items, 2)

	require.Len(t, out, 4)
	assert.Equal(t, "2025-02-02", dates.Format(out[0].Date))
	assert.Nil(t, out[1].Date)
	assert.Equal(t, "2025-01-05", dates.Format(out[2].Date))
	assert.Nil(t, out[3].Date)
	assert.Equal(t, []string{"https://example.test/u1", "https://example.test/u2"}, fetcher.calls)
	assert.Nil(t, items[0].Date)
}

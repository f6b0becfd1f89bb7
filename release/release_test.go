package release

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

// TestMerge_DatePresenceWins verifies a dated duplicate replaces an undated
// one regardless of order.
func TestMerge_DatePresenceWins(t *testing.T) {
	records := []Candidate{
		{Title: "A", Link: "L"},
		{Title: "A", Link: "L", Date: day(2025, 1, 1)},
	}

	merged := Merge(records)

	require.Len(t, merged, 1)
	require.NotNil(t, merged[0].Date)
	assert.Equal(t, "2025-01-01", merged[0].Date.Format("2006-01-02"))
}

// TestMerge_FirstWinsWhenBothDated verifies the first of two dated duplicates
// is kept.
func TestMerge_FirstWinsWhenBothDated(t *testing.T) {
	records := []Candidate{
		{Title: "A", Link: "L", Date: day(2025, 2, 1)},
		{Title: "A", Link: "L", Date: day(2025, 3, 1)},
	}

	merged := Merge(records)

	require.Len(t, merged, 1)
	assert.Equal(t, day(2025, 2, 1), merged[0].Date)
}

// TestMerge_FirstWinsWhenNeitherDated verifies undated duplicates keep the
// first record.
func TestMerge_FirstWinsWhenNeitherDated(t *testing.T) {
	records := []Candidate{
		{Title: "A", Link: "L"},
		{Title: "A", Link: "L"},
		{Title: "B", Link: "L"},
	}

	merged := Merge(records)

	require.Len(t, merged, 2)
	assert.Equal(t, "A", merged[0].Title)
	assert.Equal(t, "B", merged[1].Title)
}

// TestMerge_DistinctLinks verifies the same title under different links is
// not a collision.
func TestMerge_DistinctLinks(t *testing.T) {
	records := []Candidate{
		{Title: "A", Link: "https://x.test/1"},
		{Title: "A", Link: "https://x.test/2"},
	}

	assert.Len(t, Merge(records), 2)
}

// TestMerge_Idempotent verifies merging a merged list changes nothing.
func TestMerge_Idempotent(t *testing.T) {
	records := []Candidate{
		{Title: "A", Link: "L"},
		{Title: "B", Link: "M", Date: day(2025, 5, 1)},
		{Title: "A", Link: "L", Date: day(2025, 4, 1)},
	}

	once := Merge(records)
	twice := Merge(once)

	assert.Equal(t, once, twice)
}

// TestMerge_Empty verifies an empty input yields an empty output.
func TestMerge_Empty(t *testing.T) {
	assert.Empty(t, Merge(nil))
}

// TestResolveLink verifies link resolution and fragment stripping.
func TestResolveLink(t *testing.T) {
	tests := []struct {
		name string
		base string
		href string
		want string
	}{
		{
			name: "relative path",
			base: "https://example.com/news/",
			href: "/news/2025/launch",
			want: "https://example.com/news/2025/launch",
		},
		{
			name: "relative to directory",
			base: "https://example.com/news/",
			href: "launch",
			want: "https://example.com/news/launch",
		},
		{
			name: "absolute with fragment",
			base: "https://example.com/",
			href: "https://other.com/a#top",
			want: "https://other.com/a",
		},
		{
			name: "fragment only",
			base: "https://example.com/",
			href: "#section",
			want: "",
		},
		{
			name: "javascript",
			base: "https://example.com/",
			href: "javascript:void(0)",
			want: "",
		},
		{
			name: "empty",
			base: "https://example.com/",
			href: "  ",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveLink(tt.base, tt.href))
		})
	}
}

// TestCleanText verifies whitespace collapsing.
func TestCleanText(t *testing.T) {
	assert.Equal(t, "Bell announces results", CleanText("  Bell\n\tannounces   results "))
	assert.Equal(t, "", CleanText(" \n "))
}

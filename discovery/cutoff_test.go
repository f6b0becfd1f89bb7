package discovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pevans/presswatch/dates"
	"github.com/pevans/presswatch/release"
	"github.com/pevans/presswatch/scraper"
)

var testCutoff = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// TestCutoffController_Filter verifies that old items are dropped and undated
// and boundary items kept.
func TestCutoffController_Filter(t *testing.T) {
	ctrl := NewCutoffController(testCutoff, "", false)

	kept := ctrl.Filter([]release.Candidate{
		dated("Current release one", "/a", "2025-02-01"),
		dated("Boundary release one", "/b", "2025-01-01"),
		dated("Old release number one", "/c", "2024-12-31"),
		candidates("Undated release here", "/d")[0],
	})

	require.Len(t, kept, 3)
	assert.Equal(t, "Current release one", kept[0].Title)
	assert.Equal(t, "Boundary release one", kept[1].Title)
	assert.Equal(t, "Undated release here", kept[2].Title)

	require.NotNil(t, ctrl.OldestSeen())
	assert.Equal(t, "2024-12-31", dates.Format(ctrl.OldestSeen()))
	assert.Equal(t, Running, ctrl.State())
}

// TestCutoffController_Observe verifies the transitions for each policy.
func TestCutoffController_Observe(t *testing.T) {
	mixed := []release.Candidate{
		dated("Pinned old release", "/pinned", "2023-05-01"),
		dated("New release today", "/new", "2025-03-01"),
	}
	allOld := []release.Candidate{
		dated("Old release one", "/o1", "2024-06-01"),
		dated("Old release two", "/o2", "2024-05-01"),
		candidates("Undated release", "/u")[0],
	}
	fresh := []release.Candidate{
		dated("New release today", "/new", "2025-03-01"),
		candidates("Undated release", "/u")[0],
	}
	undated := candidates("Undated release", "/u", "Another undated one", "/v")

	tests := []struct {
		name   string
		policy string
		items  []release.Candidate
		want   CutoffState
	}{
		{"any stops on one old item", scraper.StopOnAny, mixed, Stopped},
		{"all ignores pinned old item", scraper.StopOnAll, mixed, Running},
		{"all stops when every dated item is old", scraper.StopOnAll, allOld, Stopped},
		{"fresh page keeps running", scraper.StopOnAny, fresh, Running},
		{"undated page keeps running", scraper.StopOnAll, undated, Running},
		{"default policy is any", "", mixed, Stopped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := NewCutoffController(testCutoff, tt.policy, false)
			assert.Equal(t, tt.want, ctrl.Observe(tt.items))
		})
	}
}

// TestCutoffController_URLYearSignal verifies the structural stop signal.
func TestCutoffController_URLYearSignal(t *testing.T) {
	items := candidates(
		"Calix launches platform", "/en/press/2025/02/platform.html",
		"Calix older release", "/en/press/2024/11/older.html",
	)

	off := NewCutoffController(testCutoff, scraper.StopOnAny, false)
	assert.Equal(t, Running, off.Observe(items))

	on := NewCutoffController(testCutoff, scraper.StopOnAny, true)
	assert.Equal(t, Stopped, on.Observe(items))
}

// TestCutoffController_Sticky verifies that a stopped controller never
// resumes.
func TestCutoffController_Sticky(t *testing.T) {
	ctrl := NewCutoffController(testCutoff, scraper.StopOnAny, false)

	assert.Equal(t, Stopped, ctrl.Observe([]release.Candidate{dated("Old release one", "/o", "2024-01-01")}))
	assert.Equal(t, Stopped, ctrl.Observe([]release.Candidate{dated("New release one", "/n", "2025-05-01")}))
	assert.True(t, ctrl.Stopped())
}

// TestCutoffController_Deterministic verifies that replaying the same page
// sequence stops at the same page.
func TestCutoffController_Deterministic(t *testing.T) {
	pages := [][]release.Candidate{
		{dated("Release one title", "/1", "2025-06-01"), dated("Release two title", "/2", "2025-05-01")},
		{dated("Release three title", "/3", "2025-02-01"), candidates("Undated release", "/u")[0]},
		{dated("Release four title", "/4", "2024-12-15")},
		{dated("Release five title", "/5", "2024-10-01")},
	}

	stopAt := func() int {
		ctrl := NewCutoffController(testCutoff, scraper.StopOnAny, false)
		for i, page := range pages {
			ctrl.Filter(page)
			if ctrl.Observe(page) == Stopped {
				return i + 1
			}
		}
		return 0
	}

	first := stopAt()
	assert.Equal(t, 3, first)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, stopAt())
	}
}

// TestCutoffController_PastCutoffIsReadOnly verifies that PastCutoff does
// not change state.
func TestCutoffController_PastCutoffIsReadOnly(t *testing.T) {
	ctrl := NewCutoffController(testCutoff, scraper.StopOnAny, false)

	assert.True(t, ctrl.PastCutoff([]release.Candidate{dated("Old release one", "/o", "2024-01-01")}))
	assert.Equal(t, Running, ctrl.State())
	assert.Equal(t, "running", ctrl.State().String())
}

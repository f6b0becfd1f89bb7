package dates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNormalize_FormatInvariance verifies that every supported rendering of
// the same day resolves to the same date.
func TestNormalize_FormatInvariance(t *testing.T) {
	want := time.Date(2025, 3, 24, 0, 0, 0, 0, time.UTC)

	inputs := []string{
		"2025-03-24",
		"2025/03/24",
		"March 24, 2025",
		"24 March 2025",
		"Mar 24, 2025",
		"march 24, 2025",
		"MARCH 24 2025",
		"24/03/2025",
		"24.03.2025",
		"2025-03-24T09:15:00-04:00",
		"Monday, March 24, 2025",
		"24th of March 2025",
		"March 24th, 2025 10:30 AM",
		"  24 March 2025 ",
		"lundi 24 mars 2025",
		"24 mars 2025 à 14h30",
		"Published on March 24, 2025",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			got, ok := Normalize(in)
			require.True(t, ok, "should resolve %q", in)
			assert.Equal(t, want, got)
		})
	}
}

// TestNormalize_French verifies accented and abbreviated French months.
func TestNormalize_French(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"lundi 22 septembre 2025", "2025-09-22"},
		{"1er février 2025", "2025-02-01"},
		{"12 août 2025", "2025-08-12"},
		{"3 déc. 2025", "2025-12-03"},
		{"15 janv. 2025", "2025-01-15"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := Normalize(tt.in)
			require.True(t, ok)
			assert.Equal(t, tt.want, got.Format(Layout))
		})
	}
}

// TestNormalize_DayFirst verifies ambiguous numeric dates resolve day-first
// and fall back to month-first only when day-first is impossible.
func TestNormalize_DayFirst(t *testing.T) {
	got, ok := Normalize("05/04/2025")
	require.True(t, ok)
	assert.Equal(t, "2025-04-05", got.Format(Layout))

	got, ok = Normalize("04/25/2025")
	require.True(t, ok)
	assert.Equal(t, "2025-04-25", got.Format(Layout))
}

// TestNormalize_Unresolved verifies malformed input yields no date.
func TestNormalize_Unresolved(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"not a date",
		"24/03/25",
		"March 24",
		"Read more",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			assert.NotPanics(t, func() {
				_, ok := Normalize(in)
				assert.False(t, ok, "%q should be unresolved", in)
			})
		})
	}
}

// TestParse verifies the pointer form.
func TestParse(t *testing.T) {
	assert.Nil(t, Parse("nope"))

	d := Parse("Jan 2, 2025")
	require.NotNil(t, d)
	assert.Equal(t, "2025-01-02", Format(d))
	assert.Equal(t, "", Format(nil))
}

// TestBefore verifies calendar-day comparison ignores time of day.
func TestBefore(t *testing.T) {
	cutoff := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.True(t, Before(time.Date(2024, 12, 31, 23, 59, 0, 0, time.UTC), cutoff))
	assert.False(t, Before(time.Date(2025, 1, 1, 18, 0, 0, 0, time.UTC), cutoff))
	assert.False(t, Before(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), cutoff))
}

// Package dates turns the date strings found on newsroom pages into
// calendar dates.
package dates

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/araddon/dateparse"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Layout is the canonical rendering of a normalized date.
const Layout = "2006-01-02"

// exactLayouts are tried verbatim before any cleanup.
var exactLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

// fuzzyLayouts are tried on the cleaned input, day-first before month-first.
var fuzzyLayouts = []string{
	"2 January 2006",
	"2 Jan 2006",
	"January 2 2006",
	"Jan 2 2006",
	"2/1/2006",
	"2.1.2006",
	"2-1-2006",
	"1/2/2006",
	"2006-1-2",
	"2006/1/2",
	"2006.1.2",
}

var (
	isoPrefix    = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})(?:[T ]|$)`)
	fullYear     = regexp.MustCompile(`(?:^|\D)(19|20|21)\d{2}(?:\D|$)`)
	ordinal      = regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th|er|re|e)\b`)
	trailingTime = regexp.MustCompile(`\s+(?:at\s+|a\s+)?\d{1,2}\s?(?::|h)\s?\d{2}.*$`)
	separators   = regexp.MustCompile(`[,|]+`)
)

// frenchMonths maps accent-free French month names and abbreviations to
// English ones Go's time package understands.
var frenchMonths = map[string]string{
	"janvier":   "january",
	"janv":      "january",
	"fevrier":   "february",
	"fevr":      "february",
	"fev":       "february",
	"mars":      "march",
	"avril":     "april",
	"avr":       "april",
	"mai":       "may",
	"juin":      "june",
	"juillet":   "july",
	"juil":      "july",
	"aout":      "august",
	"septembre": "september",
	"sept":      "september",
	"octobre":   "october",
	"novembre":  "november",
	"decembre":  "december",
}

// fillerWords are dropped from the input before fuzzy parsing.
var fillerWords = map[string]bool{
	// weekdays
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
	"friday": true, "saturday": true, "sunday": true,
	"mon": true, "tue": true, "tues": true, "wed": true, "thu": true,
	"thur": true, "thurs": true, "fri": true, "sat": true, "sun": true,
	"lundi": true, "mardi": true, "mercredi": true, "jeudi": true,
	"vendredi": true, "samedi": true, "dimanche": true,
	// joining words
	"of": true, "the": true, "on": true, "le": true, "du": true,
	"published": true, "posted": true, "updated": true, "date": true,
	"publie": true, "mis": true, "en": true, "ligne": true,
}

// Normalize parses raw into a calendar date at midnight UTC. It reports false
// when the input cannot be resolved; it never fails loudly.
func Normalize(raw string) (time.Time, bool) {
	s := collapse(raw)
	if s == "" {
		return time.Time{}, false
	}

	// Exact layouts first
	for _, layout := range exactLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return plausible(t)
		}
	}

	// ISO timestamps from feeds and meta tags
	if m := isoPrefix.FindStringSubmatch(s); m != nil {
		if t, err := time.Parse(Layout, m[1]); err == nil {
			return plausible(t)
		}
	}

	// Everything below needs a four-digit year somewhere in the input
	if !fullYear.MatchString(s) {
		return time.Time{}, false
	}

	cleaned := clean(s)
	for _, layout := range fuzzyLayouts {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return plausible(t)
		}
	}

	for _, candidate := range []string{s, cleaned} {
		if t, ok := fuzzy(candidate); ok {
			return plausible(t)
		}
	}

	return time.Time{}, false
}

// fuzzy runs the general-purpose parser, which has been known to panic on
// odd input.
func fuzzy(s string) (t time.Time, ok bool) {
	defer func() {
		if recover() != nil {
			t, ok = time.Time{}, false
		}
	}()
	parsed, err := dateparse.ParseIn(s, time.UTC, dateparse.PreferMonthFirst(false))
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

// Parse is Normalize returning a pointer, nil when unresolved.
func Parse(raw string) *time.Time {
	t, ok := Normalize(raw)
	if !ok {
		return nil
	}
	return &t
}

// Format renders t as YYYY-MM-DD, or "" for a nil date.
func Format(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(Layout)
}

// Before reports whether d falls strictly before cutoff, comparing calendar
// dates only.
func Before(d, cutoff time.Time) bool {
	return Day(d).Before(Day(cutoff))
}

// Day truncates t to its calendar date in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func plausible(t time.Time) (time.Time, bool) {
	if t.Year() < 1990 || t.Year() > 2100 {
		return time.Time{}, false
	}
	return Day(t), true
}

// collapse trims and collapses whitespace, including non-breaking spaces.
func collapse(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '\u00a0' || r == '\u202f' || r == '\u2009' {
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// clean lowercases, strips accents and filler, and maps French months.
func clean(s string) string {
	s = stripAccents(strings.ToLower(s))
	s = trailingTime.ReplaceAllString(s, "")
	s = separators.ReplaceAllString(s, " ")
	s = ordinal.ReplaceAllString(s, "$1")

	var out []string
	for _, tok := range strings.Fields(s) {
		tok = strings.TrimSuffix(tok, ".")
		if fillerWords[tok] {
			continue
		}
		if en, ok := frenchMonths[tok]; ok {
			tok = en
		}
		out = append(out, tok)
	}
	return strings.Join(out, " ")
}

func stripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

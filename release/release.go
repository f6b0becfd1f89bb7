// Package release holds the press-release record produced by extraction and
// the rules for merging duplicates.
package release

import (
	"net/url"
	"strings"
	"time"
)

// Candidate is a press release found on a listing page before it is
// persisted. Date is nil when no date could be resolved.
type Candidate struct {
	Title string     `json:"title"`
	Link  string     `json:"link"`
	Date  *time.Time `json:"date,omitempty"`
}

// Key identifies a candidate for deduplication.
type Key struct {
	Title string
	Link  string
}

// Key returns the (title, link) identity of c.
func (c Candidate) Key() Key {
	return Key{Title: c.Title, Link: c.Link}
}

// Dated reports whether c carries a resolved date.
func (c Candidate) Dated() bool {
	return c.Date != nil
}

// Merge collapses candidates sharing a (title, link) pair. A dated record
// replaces an undated one; otherwise the first one seen wins. Output keeps
// first-seen order.
func Merge(records []Candidate) []Candidate {
	index := make(map[Key]int, len(records))
	merged := make([]Candidate, 0, len(records))

	for _, r := range records {
		k := r.Key()
		i, seen := index[k]
		if !seen {
			index[k] = len(merged)
			merged = append(merged, r)
			continue
		}

		// Only upgrade an undated entry
		if !merged[i].Dated() && r.Dated() {
			merged[i] = r
		}
	}

	return merged
}

// CleanText collapses runs of whitespace and trims the result.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ResolveLink makes href absolute against base and drops any fragment. It
// returns "" for links that cannot be followed.
func ResolveLink(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}

	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") {
		return ""
	}

	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}

	if base != "" {
		baseURL, err := url.Parse(base)
		if err == nil {
			ref = baseURL.ResolveReference(ref)
		}
	}

	if !ref.IsAbs() {
		return ""
	}

	ref.Fragment = ""
	ref.RawFragment = ""
	return ref.String()
}

// Package scraper holds the declarative description of newsroom listing
// pages: which selectors find items, how pages advance, and how a rendered
// page is expanded.
package scraper

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/rotisserie/eris"
)

// ErrInvalidProfile is the cause of every validation failure.
var ErrInvalidProfile = errors.New("invalid scraper profile")

// Stop policies for the cutoff controller.
const (
	StopOnAny = "any"
	StopOnAll = "all"
)

// SelectorSet defines how to pull press releases out of a listing page. Each
// list is ordered; the first selector producing content wins.
type SelectorSet struct {
	Containers []string `yaml:"containers" json:"containers"`
	Titles     []string `yaml:"titles,omitempty" json:"titles,omitempty"`
	Dates      []string `yaml:"dates,omitempty" json:"dates,omitempty"`
	Links      []string `yaml:"links,omitempty" json:"links,omitempty"`
	// LinkFromParent takes the link from the nearest enclosing anchor when
	// the container sits inside one.
	LinkFromParent bool `yaml:"link_from_parent,omitempty" json:"link_from_parent,omitempty"`
	// DatePattern, when set, is matched against the date element's text and
	// the first match is normalized.
	DatePattern string `yaml:"date_pattern,omitempty" json:"date_pattern,omitempty"`
}

// Profile is the per-site configuration layered on the generic pipeline.
type Profile struct {
	// Hosts the profile applies to, matched as host suffixes.
	Hosts     []string      `yaml:"hosts,omitempty" json:"hosts,omitempty"`
	Selectors []SelectorSet `yaml:"selectors,omitempty" json:"selectors,omitempty"`
	// PageTemplate replaces query-parameter pagination; "{page}" is
	// substituted with the page number.
	PageTemplate string   `yaml:"page_template,omitempty" json:"page_template,omitempty"`
	ClickLabels  []string `yaml:"click_labels,omitempty" json:"click_labels,omitempty"`
	MaxClicks    int      `yaml:"max_clicks,omitempty" json:"max_clicks,omitempty"`
	// URLYearSignal stops paging once item links carry a year before the
	// cutoff year.
	URLYearSignal bool   `yaml:"url_year_signal,omitempty" json:"url_year_signal,omitempty"`
	StopPolicy    string `yaml:"stop_policy,omitempty" json:"stop_policy,omitempty"`
}

// NewSelectorSet creates a selector set for a single container selector,
// leaving the generic title, date and link candidates in place.
func NewSelectorSet(container string) SelectorSet {
	def := DefaultSelectors()
	return SelectorSet{
		Containers: []string{container},
		Titles:     def.Titles,
		Dates:      def.Dates,
		Links:      def.Links,
	}
}

// WithDefaults fills empty title, date and link lists from the generic
// candidates.
func (s SelectorSet) WithDefaults() SelectorSet {
	def := DefaultSelectors()
	if len(s.Titles) == 0 {
		s.Titles = def.Titles
	}
	if len(s.Dates) == 0 {
		s.Dates = def.Dates
	}
	if len(s.Links) == 0 {
		s.Links = def.Links
	}
	return s
}

// Validate checks that every selector compiles and the date pattern is a
// valid regular expression.
func (s SelectorSet) Validate() error {
	if len(s.Containers) == 0 {
		return eris.Wrap(ErrInvalidProfile, "at least one container selector is required")
	}

	groups := map[string][]string{
		"container": s.Containers,
		"title":     s.Titles,
		"date":      s.Dates,
		"link":      s.Links,
	}
	for kind, selectors := range groups {
		for _, sel := range selectors {
			if _, err := cascadia.Compile(sel); err != nil {
				return eris.Wrapf(ErrInvalidProfile, "invalid %s selector %q: %v", kind, sel, err)
			}
		}
	}

	if s.DatePattern != "" {
		if _, err := regexp.Compile(s.DatePattern); err != nil {
			return eris.Wrapf(ErrInvalidProfile, "invalid date pattern %q: %v", s.DatePattern, err)
		}
	}

	return nil
}

// Validate checks the profile's selectors, template and stop policy.
func (p Profile) Validate() error {
	for i, set := range p.Selectors {
		if err := set.Validate(); err != nil {
			return eris.Wrapf(err, "selector set %d", i)
		}
	}

	if p.PageTemplate != "" && !strings.Contains(p.PageTemplate, "{page}") {
		return eris.Wrap(ErrInvalidProfile, "page template must contain {page}")
	}

	switch p.StopPolicy {
	case "", StopOnAny, StopOnAll:
	default:
		return eris.Wrapf(ErrInvalidProfile, "unknown stop policy %q", p.StopPolicy)
	}

	if p.MaxClicks < 0 {
		return eris.Wrap(ErrInvalidProfile, "max clicks cannot be negative")
	}

	return nil
}

// Matches reports whether rawURL's host belongs to the profile.
func (p Profile) Matches(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range p.Hosts {
		h = strings.ToLower(h)
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// PageURL renders the template for page.
func (p Profile) PageURL(page int) string {
	return strings.ReplaceAll(p.PageTemplate, "{page}", fmt.Sprint(page))
}

// Labels returns the profile's click labels or the given defaults.
func (p Profile) Labels(defaults []string) []string {
	if len(p.ClickLabels) > 0 {
		return p.ClickLabels
	}
	return defaults
}

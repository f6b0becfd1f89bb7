package discovery

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pevans/presswatch/fetch"
	"github.com/pevans/presswatch/release"
	"github.com/pevans/presswatch/scraper"
)

// Fallback is the source-level strategy used when direct fetching finds
// nothing on the first page.
type Fallback interface {
	Name() string
	Run(ctx context.Context, listingURL string, profile scraper.Profile, ctrl *CutoffController) ([]release.Candidate, error)
}

// RenderedStrategy loads the listing in a headless browser, expands it with
// load-more clicks and scans the rendered markup.
type RenderedStrategy struct {
	renderer  *fetch.Renderer
	maxClicks int
}

// NewRenderedStrategy creates the rendered fallback. maxClicks is the click
// budget for sources whose profile sets none.
func NewRenderedStrategy(renderer *fetch.Renderer, maxClicks int) *RenderedStrategy {
	return &RenderedStrategy{renderer: renderer, maxClicks: maxClicks}
}

func (r *RenderedStrategy) Name() string {
	return "rendered"
}

// Run renders listingURL once and returns the items found in the final
// markup. Expansion stops early when ctrl reports the rendered items have
// crossed the cutoff.
func (r *RenderedStrategy) Run(ctx context.Context, listingURL string, profile scraper.Profile, ctrl *CutoffController) ([]release.Candidate, error) {
	known, isKnown := scraper.LookupKnown(listingURL)

	scanner := NewHeuristicStrategy(r.Name(), renderedSets(profile, known, isKnown)...)

	budget := r.maxClicks
	labels := profile.Labels(nil)
	switch {
	case profile.MaxClicks > 0:
		budget = profile.MaxClicks
	case isKnown && known.MaxClicks > 0:
		budget = known.MaxClicks
	}
	if len(labels) == 0 && isKnown {
		labels = known.Labels(nil)
	}

	observe := func(html string) fetch.Observation {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return fetch.Observation{}
		}
		items := scanner.ExtractDocument(doc, listingURL)
		obs := fetch.Observation{Items: len(items)}
		if ctrl != nil {
			obs.CutoffReached = ctrl.PastCutoff(items)
		}
		return obs
	}

	res, err := r.renderer.Render(ctx, listingURL, fetch.ExpandOptions{
		Labels:    labels,
		MaxClicks: budget,
		Observe:   observe,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "rendered: %s", listingURL)
	}

	zap.L().Debug("rendered listing",
		zap.String("url", listingURL),
		zap.Int("clicks", res.Clicks),
		zap.String("stop", string(res.Reason)),
	)

	items, err := scanner.Extract(ctx, listingURL, res.HTML)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// renderedSets orders the selector sets applied to rendered markup: the
// source's own, the built-in site shortcuts, then the generic candidates.
// Generic containers also match some site cards, so shortcuts must run first.
func renderedSets(profile scraper.Profile, known scraper.Profile, isKnown bool) []scraper.SelectorSet {
	sets := make([]scraper.SelectorSet, 0, len(profile.Selectors)+1+len(known.Selectors))
	for _, s := range profile.Selectors {
		sets = append(sets, s.WithDefaults())
	}
	if isKnown {
		sets = append(sets, known.Selectors...)
	}
	return append(sets, scraper.DefaultSelectors())
}

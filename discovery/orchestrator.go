package discovery

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pevans/presswatch/fetch"
	"github.com/pevans/presswatch/release"
	"github.com/pevans/presswatch/scraper"
)

// Source is one newsroom to collect from.
type Source struct {
	Company  string
	URL      string
	Cutoff   time.Time
	MaxPages int
	Profile  scraper.Profile
}

// Options configures an Orchestrator. Zero cutoff and max pages on a Source
// fall back to the values here.
type Options struct {
	Cutoff    time.Time
	MaxPages  int
	PageDelay time.Duration
	// KeepUndated keeps records whose date could not be resolved.
	KeepUndated bool
	// EnrichLimit bounds article pages fetched to date undated records.
	// Enrichment runs only when a dater is set.
	EnrichLimit int
}

// RunResult is the outcome of collecting one source.
type RunResult struct {
	Company         string
	Records         []release.Candidate
	Pages           int
	Strategy        string
	Rendered        bool
	StoppedByCutoff bool
	// Undated counts records dropped for lack of a date.
	Undated int
}

// Orchestrator runs the per-source pipeline: fetch, cascade, cutoff filter,
// paginate or stop, rendered fallback, merge.
type Orchestrator struct {
	fetcher  fetch.Fetcher
	fallback Fallback
	dater    *ArticleDater
	opts     Options
}

// NewOrchestrator creates an orchestrator. fallback may be nil to disable
// rendering.
func NewOrchestrator(fetcher fetch.Fetcher, fallback Fallback, opts Options) *Orchestrator {
	if opts.MaxPages <= 0 {
		opts.MaxPages = 8
	}
	return &Orchestrator{fetcher: fetcher, fallback: fallback, opts: opts}
}

// WithArticleDater enables date enrichment of undated records.
func (o *Orchestrator) WithArticleDater(d *ArticleDater) *Orchestrator {
	o.dater = d
	return o
}

// Run collects press releases from src. A failure to fetch the first page is
// returned only when the rendered fallback does not recover any records.
func (o *Orchestrator) Run(ctx context.Context, src Source) (*RunResult, error) {
	cutoff := src.Cutoff
	if cutoff.IsZero() {
		cutoff = o.opts.Cutoff
	}
	maxPages := src.MaxPages
	if maxPages <= 0 {
		maxPages = o.opts.MaxPages
	}

	profile := src.Profile
	if known, ok := scraper.LookupKnown(src.URL); ok && known.URLYearSignal {
		profile.URLYearSignal = true
	}

	log := zap.L().With(zap.String("company", src.Company), zap.String("url", src.URL))
	ctrl := NewCutoffController(cutoff, profile.StopPolicy, profile.URLYearSignal)
	cascade := o.cascade(profile)
	pacer := fetch.NewPacer(o.opts.PageDelay)

	result := &RunResult{Company: src.Company}
	var accumulated []release.Candidate
	var firstErr error
	found := false

	for page := 1; page <= maxPages; page++ {
		pageURL, err := PageURL(src.URL, profile, page)
		if err != nil {
			firstErr = err
			break
		}

		if err := pacer.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "orchestrator: cancelled")
		}

		markup, err := o.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(ctx.Err(), "orchestrator: cancelled")
			}
			if page == 1 {
				firstErr = err
				log.Warn("first page fetch failed", zap.Error(err))
			} else {
				log.Info("pagination ended on fetch failure", zap.Int("page", page), zap.Error(err))
			}
			break
		}
		result.Pages = page

		items, strategy := cascade.Extract(ctx, pageURL, markup)
		if len(items) == 0 {
			log.Debug("no items on page", zap.Int("page", page))
			break
		}
		if !found {
			result.Strategy = strategy
			found = true
		}

		kept := ctrl.Filter(items)
		accumulated = append(accumulated, kept...)
		log.Info("page scanned",
			zap.Int("page", page),
			zap.String("strategy", strategy),
			zap.Int("items", len(items)),
			zap.Int("kept", len(kept)),
		)

		if ctrl.Observe(items) == Stopped {
			result.StoppedByCutoff = true
			break
		}
	}

	if !found && o.fallback != nil {
		result.Rendered = true
		result.Strategy = o.fallback.Name()

		items, err := o.fallback.Run(ctx, src.URL, profile, ctrl)
		if err != nil {
			log.Warn("rendered fallback failed", zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		} else {
			accumulated = ctrl.Filter(items)
			found = len(items) > 0
		}
	}

	records := release.Merge(accumulated)

	if o.dater != nil {
		records = ctrl.Filter(o.dater.Enrich(ctx, records, o.opts.EnrichLimit))
	}

	if !o.opts.KeepUndated {
		records, result.Undated = dropUndated(records)
		if result.Undated > 0 {
			log.Warn("dropped undated records", zap.Int("count", result.Undated))
		}
	}

	result.Records = records

	if !found && firstErr != nil {
		return result, eris.Wrapf(firstErr, "orchestrator: %s", src.Company)
	}
	return result, nil
}

// cascade builds the per-page strategies for a profile. Profile selectors are
// tried before the generic ones.
func (o *Orchestrator) cascade(profile scraper.Profile) *Cascade {
	sets := make([]scraper.SelectorSet, 0, len(profile.Selectors)+1)
	for _, s := range profile.Selectors {
		sets = append(sets, s.WithDefaults())
	}
	sets = append(sets, scraper.DefaultSelectors())

	return NewCascade(
		NewFeedStrategy(o.fetcher),
		NewEmbeddedStrategy(),
		NewHeuristicStrategy("heuristic", sets...),
	)
}

func dropUndated(records []release.Candidate) ([]release.Candidate, int) {
	kept := make([]release.Candidate, 0, len(records))
	dropped := 0
	for _, r := range records {
		if !r.Dated() {
			zap.L().Debug("undated record", zap.String("title", r.Title), zap.String("link", r.Link))
			dropped++
			continue
		}
		kept = append(kept, r)
	}
	return kept, dropped
}

// Package discovery finds press releases on newsroom listing pages. It runs
// an ordered cascade of extraction strategies over each page, walks
// pagination until the cutoff date is crossed, and falls back to a rendered
// browser when plain HTTP yields nothing.
package discovery

import (
	"context"

	"go.uber.org/zap"

	"github.com/pevans/presswatch/release"
)

// Strategy extracts candidate press releases from one listing page. An empty
// result means the strategy found nothing usable; it is not an error.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, listingURL, markup string) ([]release.Candidate, error)
}

// Cascade tries strategies in order and keeps the first non-empty result.
type Cascade struct {
	strategies []Strategy
}

// NewCascade creates a cascade over the given strategies, cheapest first.
func NewCascade(strategies ...Strategy) *Cascade {
	return &Cascade{strategies: strategies}
}

// Extract runs the cascade on one page and returns the winning strategy's
// records and name. A strategy error is logged and treated as a miss.
func (c *Cascade) Extract(ctx context.Context, listingURL, markup string) ([]release.Candidate, string) {
	for _, s := range c.strategies {
		if ctx.Err() != nil {
			return nil, ""
		}

		items, err := s.Extract(ctx, listingURL, markup)
		if err != nil {
			zap.L().Debug("strategy failed",
				zap.String("strategy", s.Name()),
				zap.String("url", listingURL),
				zap.Error(err),
			)
			continue
		}
		if len(items) > 0 {
			return items, s.Name()
		}

		zap.L().Debug("strategy found nothing",
			zap.String("strategy", s.Name()),
			zap.String("url", listingURL),
		)
	}
	return nil, ""
}

// Names lists the strategies in cascade order.
func (c *Cascade) Names() []string {
	names := make([]string, 0, len(c.strategies))
	for _, s := range c.strategies {
		names = append(names, s.Name())
	}
	return names
}

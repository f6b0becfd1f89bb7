package discovery

import (
	"regexp"
	"strconv"
	"time"

	"github.com/pevans/presswatch/dates"
	"github.com/pevans/presswatch/release"
	"github.com/pevans/presswatch/scraper"
)

// CutoffState is the controller's state. Stopped is terminal.
type CutoffState int

const (
	Running CutoffState = iota
	Stopped
)

func (s CutoffState) String() string {
	if s == Stopped {
		return "stopped"
	}
	return "running"
}

// urlYear finds a path segment that is a year, as in /2024/11/.
var urlYear = regexp.MustCompile(`/(20\d{2})/`)

// CutoffController filters items older than the cutoff and decides when a
// source has paged past it.
type CutoffController struct {
	cutoff     time.Time
	policy     string
	urlSignal  bool
	state      CutoffState
	oldestSeen *time.Time
}

// NewCutoffController creates a controller for cutoff (inclusive). Policy is
// scraper.StopOnAny (default) or scraper.StopOnAll.
func NewCutoffController(cutoff time.Time, policy string, urlSignal bool) *CutoffController {
	if policy == "" {
		policy = scraper.StopOnAny
	}
	return &CutoffController{
		cutoff:    dates.Day(cutoff),
		policy:    policy,
		urlSignal: urlSignal,
	}
}

// Cutoff returns the inclusive lower bound.
func (c *CutoffController) Cutoff() time.Time {
	return c.cutoff
}

// State returns the current state.
func (c *CutoffController) State() CutoffState {
	return c.state
}

// Stopped reports whether the controller has stopped.
func (c *CutoffController) Stopped() bool {
	return c.state == Stopped
}

// OldestSeen returns the oldest resolved date observed so far, or nil.
func (c *CutoffController) OldestSeen() *time.Time {
	return c.oldestSeen
}

// Filter keeps items dated on or after the cutoff and items with no date.
func (c *CutoffController) Filter(items []release.Candidate) []release.Candidate {
	kept := make([]release.Candidate, 0, len(items))
	for _, it := range items {
		if it.Date != nil {
			c.see(*it.Date)
			if dates.Before(*it.Date, c.cutoff) {
				continue
			}
		}
		kept = append(kept, it)
	}
	return kept
}

// Observe inspects one page or expansion step and moves the controller to
// Stopped when it shows content older than the cutoff. It returns the state
// after the step.
func (c *CutoffController) Observe(items []release.Candidate) CutoffState {
	if c.state == Stopped {
		return Stopped
	}

	if c.PastCutoff(items) {
		c.state = Stopped
	}
	return c.state
}

// PastCutoff reports whether items show content older than the cutoff,
// without changing state.
func (c *CutoffController) PastCutoff(items []release.Candidate) bool {
	dated, older := 0, 0
	for _, it := range items {
		if it.Date == nil {
			continue
		}
		dated++
		if dates.Before(*it.Date, c.cutoff) {
			older++
		}
	}

	switch c.policy {
	case scraper.StopOnAll:
		if dated > 0 && older == dated {
			return true
		}
	default:
		if older > 0 {
			return true
		}
	}

	return c.urlSignal && c.linksPredate(items)
}

// linksPredate reports whether any item link embeds a year before the
// cutoff's year.
func (c *CutoffController) linksPredate(items []release.Candidate) bool {
	for _, it := range items {
		m := urlYear.FindStringSubmatch(it.Link)
		if m == nil {
			continue
		}
		year, err := strconv.Atoi(m[1])
		if err == nil && year < c.cutoff.Year() {
			return true
		}
	}
	return false
}

func (c *CutoffController) see(d time.Time) {
	if c.oldestSeen == nil || d.Before(*c.oldestSeen) {
		day := dates.Day(d)
		c.oldestSeen = &day
	}
}

package fetch

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultClickLabels are the visible texts of "load more" style controls.
var DefaultClickLabels = []string{"Load more", "Show more news", "Voir plus", "See more"}

// ErrNoSession is returned when rendering is requested without a browser.
var ErrNoSession = errors.New("no browser launcher configured")

// Session is one isolated browser tab.
type Session interface {
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	Count(ctx context.Context, selector string) (int, error)
	// ClickLabeled clicks the first button or link whose visible text contains
	// one of labels. It reports false when no such control exists.
	ClickLabeled(ctx context.Context, labels []string) (bool, error)
	HTML(ctx context.Context) (string, error)
	Close() error
}

// Launcher opens browser sessions.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

// Observation is what an Observer reports about the rendered page between
// clicks.
type Observation struct {
	Items         int
	CutoffReached bool
}

// Observer inspects rendered markup between clicks.
type Observer func(html string) Observation

// ExpandOptions control the load-more loop.
type ExpandOptions struct {
	Labels    []string
	MaxClicks int
	Observe   Observer
}

// StopReason says why the load-more loop ended.
type StopReason string

const (
	StopNone      StopReason = ""
	StopBudget    StopReason = "budget"
	StopNoGrowth  StopReason = "no_growth"
	StopCutoff    StopReason = "cutoff"
	StopNoControl StopReason = "no_control"
)

// ExpandState is the loop state fed to ShouldStop.
type ExpandState struct {
	// Observed is false when no Observer counts items; growth is not
	// checked then.
	Observed      bool
	Clicks        int
	PrevItems     int
	Items         int
	CutoffReached bool
}

// ShouldStop decides whether the load-more loop is done before the next
// click.
func ShouldStop(st ExpandState, budget int) StopReason {
	switch {
	case st.CutoffReached:
		return StopCutoff
	case st.Clicks >= budget:
		return StopBudget
	case st.Observed && st.Clicks > 0 && st.Items <= st.PrevItems:
		return StopNoGrowth
	}
	return StopNone
}

// RenderOptions configures a Renderer.
type RenderOptions struct {
	// Wait bounds how long to wait for the body after navigating.
	Wait time.Duration
	// Settle is how long to let new content arrive after a click.
	Settle time.Duration
}

// Renderer fetches pages through a headless browser.
type Renderer struct {
	launcher Launcher
	opts     RenderOptions
}

// RenderResult is the rendered markup plus how expansion ended.
type RenderResult struct {
	HTML   string
	Clicks int
	Reason StopReason
}

// NewRenderer creates a renderer over launcher.
func NewRenderer(launcher Launcher, opts RenderOptions) *Renderer {
	if opts.Wait == 0 {
		opts.Wait = 15 * time.Second
	}
	if opts.Settle == 0 {
		opts.Settle = 1200 * time.Millisecond
	}
	return &Renderer{launcher: launcher, opts: opts}
}

// Render loads url in a fresh session, expands it by clicking load-more
// controls when expand.MaxClicks > 0, and returns the final markup. The
// session is closed before returning.
func (r *Renderer) Render(ctx context.Context, url string, expand ExpandOptions) (*RenderResult, error) {
	if r == nil || r.launcher == nil {
		return nil, ErrNoSession
	}

	sess, err := r.launcher.Launch(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "render: launch browser")
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			zap.L().Warn("render: close browser session", zap.Error(cerr))
		}
	}()

	if err := sess.Navigate(ctx, url); err != nil {
		return nil, eris.Wrapf(err, "render: navigate to %s", url)
	}
	if err := sess.WaitVisible(ctx, "body", r.opts.Wait); err != nil {
		// A slow body is not fatal, the markup may still be usable
		zap.L().Debug("render: body wait timed out", zap.String("url", url), zap.Error(err))
	}

	res := &RenderResult{}
	if expand.MaxClicks > 0 {
		clicks, reason, err := r.expand(ctx, sess, expand)
		if err != nil {
			return nil, err
		}
		res.Clicks, res.Reason = clicks, reason
	}

	html, err := sess.HTML(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "render: read markup")
	}
	res.HTML = html

	return res, nil
}

func (r *Renderer) expand(ctx context.Context, sess Session, opts ExpandOptions) (int, StopReason, error) {
	labels := opts.Labels
	if len(labels) == 0 {
		labels = DefaultClickLabels
	}

	st := ExpandState{Observed: opts.Observe != nil}
	for {
		html, err := sess.HTML(ctx)
		if err != nil {
			return st.Clicks, StopNone, eris.Wrap(err, "render: read markup")
		}

		if opts.Observe != nil {
			obs := opts.Observe(html)
			st.PrevItems, st.Items = st.Items, obs.Items
			st.CutoffReached = obs.CutoffReached
		}

		if reason := ShouldStop(st, opts.MaxClicks); reason != StopNone {
			return st.Clicks, reason, nil
		}

		clicked, err := sess.ClickLabeled(ctx, labels)
		if err != nil {
			// A failed click is treated like a missing control
			zap.L().Debug("render: click failed", zap.Error(err))
			return st.Clicks, StopNoControl, nil
		}
		if !clicked {
			return st.Clicks, StopNoControl, nil
		}
		st.Clicks++

		if err := sleep(ctx, r.opts.Settle); err != nil {
			return st.Clicks, StopNone, eris.Wrap(err, "render: cancelled")
		}
	}
}

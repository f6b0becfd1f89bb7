package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ChromeOptions configures headless Chrome sessions.
type ChromeOptions struct {
	UserAgent string
	Headless  bool
	// ExecPath overrides the Chrome binary lookup.
	ExecPath string
	// ActionTimeout bounds each browser round trip.
	ActionTimeout time.Duration
}

// ChromeLauncher starts one Chrome process per session through chromedp.
type ChromeLauncher struct {
	opts ChromeOptions
}

// NewChromeLauncher creates a launcher with the given options.
func NewChromeLauncher(opts ChromeOptions) *ChromeLauncher {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.ActionTimeout == 0 {
		opts.ActionTimeout = 30 * time.Second
	}
	return &ChromeLauncher{opts: opts}
}

// Launch starts a browser and opens a tab. Callers must Close the session.
func (l *ChromeLauncher) Launch(ctx context.Context) (Session, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.opts.Headless),
		chromedp.NoSandbox,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("lang", "en-US,en"),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(l.opts.UserAgent),
	)
	if l.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(l.opts.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	// The first Run starts the browser
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, eris.Wrap(err, "chrome: start browser")
	}

	return &chromeSession{
		ctx:         tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		timeout:     l.opts.ActionTimeout,
	}, nil
}

type chromeSession struct {
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	timeout     time.Duration
}

// run executes actions on the tab, bounded by timeout and by the caller's
// context.
func (s *chromeSession) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, s.timeout, chromedp.Navigate(url)); err != nil {
		return eris.Wrap(err, "chrome: navigate")
	}
	return nil
}

func (s *chromeSession) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if err := s.run(ctx, timeout, chromedp.WaitReady(selector, chromedp.ByQuery)); err != nil {
		return eris.Wrapf(err, "chrome: wait for %s", selector)
	}
	return nil
}

func (s *chromeSession) Count(ctx context.Context, selector string) (int, error) {
	quoted, err := json.Marshal(selector)
	if err != nil {
		return 0, eris.Wrap(err, "chrome: quote selector")
	}

	var n int
	expr := fmt.Sprintf("document.querySelectorAll(%s).length", quoted)
	if err := s.run(ctx, s.timeout, chromedp.Evaluate(expr, &n)); err != nil {
		return 0, eris.Wrapf(err, "chrome: count %s", selector)
	}
	return n, nil
}

func (s *chromeSession) ClickLabeled(ctx context.Context, labels []string) (bool, error) {
	var nodes []*cdp.Node
	query := chromedp.Nodes(labelXPath(labels), &nodes, chromedp.BySearch, chromedp.AtLeast(0))
	if err := s.run(ctx, s.timeout, query); err != nil {
		return false, eris.Wrap(err, "chrome: find load-more control")
	}
	if len(nodes) == 0 {
		return false, nil
	}

	node := nodes[0]
	ids := []cdp.NodeID{node.NodeID}
	err := s.run(ctx, 5*time.Second,
		chromedp.ScrollIntoView(ids, chromedp.ByNodeID),
		chromedp.Click(ids, chromedp.ByNodeID),
	)
	if err == nil {
		return true, nil
	}

	// Overlays and cookie banners intercept real clicks; click from script
	zap.L().Debug("chrome: direct click failed, forcing", zap.Error(err))
	return s.forceClick(ctx, node.FullXPath())
}

func (s *chromeSession) forceClick(ctx context.Context, xpath string) (bool, error) {
	quoted, err := json.Marshal(xpath)
	if err != nil {
		return false, eris.Wrap(err, "chrome: quote xpath")
	}

	expr := fmt.Sprintf(`(function() {
	var el = document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
	if (!el) { return false; }
	el.scrollIntoView({block: "center"});
	el.click();
	return true;
})()`, quoted)

	var clicked bool
	if err := s.run(ctx, s.timeout, chromedp.Evaluate(expr, &clicked)); err != nil {
		return false, eris.Wrap(err, "chrome: forced click")
	}
	return clicked, nil
}

func (s *chromeSession) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, s.timeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", eris.Wrap(err, "chrome: outer html")
	}
	return html, nil
}

func (s *chromeSession) Close() error {
	err := chromedp.Cancel(s.ctx)
	s.cancelTab()
	s.cancelAlloc()
	if err != nil {
		return eris.Wrap(err, "chrome: close")
	}
	return nil
}

const (
	upperAlpha = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerAlpha = "abcdefghijklmnopqrstuvwxyz"
)

// labelXPath matches buttons and links whose normalized text contains any of
// labels, ignoring ASCII case.
func labelXPath(labels []string) string {
	var conds []string
	for _, label := range labels {
		label = strings.ToLower(strings.TrimSpace(label))
		if label == "" {
			continue
		}
		conds = append(conds, fmt.Sprintf("contains(translate(normalize-space(.), '%s', '%s'), %s)",
			upperAlpha, lowerAlpha, xpathLiteral(label)))
	}
	if len(conds) == 0 {
		return "//button[false()]"
	}

	match := strings.Join(conds, " or ")
	return fmt.Sprintf("//button[%s] | //a[%s] | //*[@role='button'][%s]", match, match, match)
}

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}

	parts := strings.Split(s, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		quoted = append(quoted, "'"+p+"'")
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

// Package fetch retrieves listing pages, either directly over HTTP or through
// a headless browser session.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
)

// DefaultUserAgent identifies requests as a desktop Chrome browser. Several
// newsrooms refuse obvious bot agents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// maxBodyBytes caps how much of a response is read.
const maxBodyBytes = 16 << 20

// Fetcher returns the markup for a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// StatusError reports a non-200 response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	// Retries is the number of attempts after the first one.
	Retries int
	// RetryDelay is multiplied by the attempt number between attempts.
	RetryDelay time.Duration
	Client     *http.Client
}

// HTTPFetcher fetches pages with a fixed, linearly spaced retry loop.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout == 0 {
		opts.Timeout = 25 * time.Second
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = 1500 * time.Millisecond
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	return &HTTPFetcher{client: client, opts: opts}
}

// Fetch GETs url and returns its body decoded to UTF-8. Only a 200 response
// counts as success; anything else is retried and the last failure is
// returned.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	attempts := f.opts.Retries + 1

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		body, err := f.get(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err

		// Cancellation is not worth retrying
		if ctx.Err() != nil {
			return "", eris.Wrap(ctx.Err(), "fetch: cancelled")
		}
		if attempt == attempts {
			break
		}

		zap.L().Warn("fetch failed, retrying",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if err := sleep(ctx, time.Duration(attempt)*f.opts.RetryDelay); err != nil {
			return "", eris.Wrap(err, "fetch: cancelled")
		}
	}

	return "", eris.Wrapf(lastErr, "fetch: %s failed after %d attempts", url, attempts)
}

func (f *HTTPFetcher) get(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept-Language", "en,fr;q=0.9")
	req.Header.Set("Accept", "*/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "do request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	reader, err := charset.NewReader(io.LimitReader(resp.Body, maxBodyBytes), resp.Header.Get("Content-Type"))
	if err != nil {
		return "", eris.Wrap(err, "detect charset")
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return "", eris.Wrap(err, "read body")
	}

	return string(body), nil
}

// IsStatus reports whether err carries an HTTP status error with the given
// code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

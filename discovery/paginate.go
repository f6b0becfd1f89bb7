package discovery

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/pevans/presswatch/scraper"
)

// defaultOffsetStep is used when an offset parameter is present but zero.
const defaultOffsetStep = 16

// pageParams are the page-number spellings recognized, in precedence order.
var pageParams = []string{"page", "Page", "p"}

// NextPageURL derives the address of listing page number page from the first
// page's URL. An offset parameter ("start") is multiplied by its step, a
// known page-number parameter is replaced, otherwise "page" is added. Other
// parameters are preserved.
func NextPageURL(listingURL string, page int) (string, error) {
	u, err := url.Parse(listingURL)
	if err != nil {
		return "", eris.Wrapf(err, "paginate: parse %s", listingURL)
	}

	q := u.Query()
	switch {
	case q.Has("start"):
		step, err := strconv.Atoi(q.Get("start"))
		if err != nil || step <= 0 {
			step = defaultOffsetStep
		}
		u.RawQuery = setQueryParam(u.RawQuery, "start", strconv.Itoa(page*step))
	default:
		key := "page"
		for _, p := range pageParams {
			if q.Has(p) {
				key = p
				break
			}
		}
		u.RawQuery = setQueryParam(u.RawQuery, key, strconv.Itoa(page))
	}

	return u.String(), nil
}

// setQueryParam sets key in a raw query string, keeping the other pairs
// verbatim and in their original order. The first occurrence of key takes
// the new value and later ones are dropped; a missing key is appended.
func setQueryParam(rawQuery, key, value string) string {
	pair := url.QueryEscape(key) + "=" + url.QueryEscape(value)

	var out []string
	replaced := false
	for _, part := range strings.Split(rawQuery, "&") {
		if part == "" {
			continue
		}
		name, _, _ := strings.Cut(part, "=")
		if unescaped, err := url.QueryUnescape(name); err == nil && unescaped == key {
			if !replaced {
				out = append(out, pair)
				replaced = true
			}
			continue
		}
		out = append(out, part)
	}
	if !replaced {
		out = append(out, pair)
	}
	return strings.Join(out, "&")
}

// PageURL returns the URL of page for a source: the listing URL itself for
// page 1, the profile's template when it has one, otherwise NextPageURL.
func PageURL(listingURL string, profile scraper.Profile, page int) (string, error) {
	if page <= 1 {
		return listingURL, nil
	}
	if profile.PageTemplate != "" {
		return profile.PageURL(page), nil
	}
	return NextPageURL(listingURL, page)
}

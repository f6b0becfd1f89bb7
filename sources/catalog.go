package sources

import (
	_ "embed"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/pevans/presswatch/dates"
	"github.com/pevans/presswatch/discovery"
	"github.com/pevans/presswatch/scraper"
)

// Custom errors for catalog operations
var (
	ErrSourceNotFound = errors.New("source not found")
	ErrDuplicate      = errors.New("company listed more than once")
)

//go:embed default_sources.yaml
var defaultCatalog []byte

// Source is one newsroom in the catalog. Profile fields are inlined so a
// catalog entry reads as a flat block.
type Source struct {
	Company  string `yaml:"company" json:"company"`
	URL      string `yaml:"url" json:"url"`
	Enabled  *bool  `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Cutoff   string `yaml:"cutoff,omitempty" json:"cutoff,omitempty"`
	MaxPages int    `yaml:"max_pages,omitempty" json:"max_pages,omitempty"`

	scraper.Profile `yaml:",inline" json:"profile"`
}

// IsEnabled returns true unless the source is explicitly disabled.
func (s *Source) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Target converts the entry into a discovery source. A source without its
// own cutoff or page limit uses the given defaults.
func (s *Source) Target(defaultCutoff time.Time, defaultMaxPages int) (discovery.Source, error) {
	cutoff := defaultCutoff
	if s.Cutoff != "" {
		t, ok := dates.Normalize(s.Cutoff)
		if !ok {
			return discovery.Source{}, eris.Errorf("sources: %s: invalid cutoff %q", s.Company, s.Cutoff)
		}
		cutoff = t
	}

	maxPages := s.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}

	return discovery.Source{
		Company:  s.Company,
		URL:      s.URL,
		Cutoff:   cutoff,
		MaxPages: maxPages,
		Profile:  s.Profile,
	}, nil
}

// Catalog is the list of newsrooms to collect from.
type Catalog struct {
	Sources []Source `yaml:"sources" json:"sources"`
}

// LoadCatalog reads the catalog at path. A missing file yields the built-in
// catalog.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultCatalog()
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sources: read %s", path)
	}

	return ParseCatalog(data)
}

// DefaultCatalog returns the built-in catalog of Canadian telecom newsrooms.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, eris.Wrap(err, "sources: parse catalog")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks that every source has a company and an http(s) URL, that
// companies are unique, and that profiles are well formed.
func (c *Catalog) Validate() error {
	seen := map[string]bool{}
	for i, s := range c.Sources {
		if strings.TrimSpace(s.Company) == "" {
			return eris.Errorf("sources: entry %d: company is required", i)
		}
		if !strings.HasPrefix(s.URL, "http://") && !strings.HasPrefix(s.URL, "https://") {
			return eris.Errorf("sources: %s: url must be http or https", s.Company)
		}

		key := strings.ToLower(s.Company)
		if seen[key] {
			return eris.Wrapf(ErrDuplicate, "sources: %s", s.Company)
		}
		seen[key] = true

		if s.Cutoff != "" {
			if _, ok := dates.Normalize(s.Cutoff); !ok {
				return eris.Errorf("sources: %s: invalid cutoff %q", s.Company, s.Cutoff)
			}
		}
		if err := s.Profile.Validate(); err != nil {
			return eris.Wrapf(err, "sources: %s", s.Company)
		}
	}
	return nil
}

// Find returns the source for company, matched case-insensitively.
func (c *Catalog) Find(company string) (*Source, error) {
	for i := range c.Sources {
		if strings.EqualFold(c.Sources[i].Company, company) {
			return &c.Sources[i], nil
		}
	}
	return nil, eris.Wrapf(ErrSourceNotFound, "sources: %s", company)
}

// Select returns the named sources, or every enabled source when names is
// empty. Named sources are returned even when disabled.
func (c *Catalog) Select(names []string) ([]Source, error) {
	if len(names) == 0 {
		var out []Source
		for _, s := range c.Sources {
			if s.IsEnabled() {
				out = append(out, s)
			}
		}
		return out, nil
	}

	out := make([]Source, 0, len(names))
	for _, name := range names {
		s, err := c.Find(name)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, nil
}

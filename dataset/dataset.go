// Package dataset is the master dataset of collected press releases. Records
// are appended once and never changed; a key policy keeps re-runs from
// duplicating rows.
package dataset

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/pevans/presswatch/dates"
	"github.com/pevans/presswatch/release"
)

// Custom errors for dataset operations
var (
	ErrRecordNotFound = errors.New("record not found")
	ErrUnknownBackend = errors.New("dataset backend must be csv or sqlite")
	ErrUnknownKey     = errors.New("dataset key must be company_title or company_title_date")
)

// Backends
const (
	BackendCSV    = "csv"
	BackendSQLite = "sqlite"
)

// FetchedAtLayout is how capture timestamps are written.
const FetchedAtLayout = "2006-01-02 15:04:05"

// MasterRecord is one persisted press release. New records get a UUID id;
// ids read from an existing dataset are kept as written.
type MasterRecord struct {
	ID        string    `json:"id"`
	Company   string    `json:"company"`
	Title     string    `json:"title"`
	Link      string    `json:"link"`
	Date      string    `json:"date"`
	FetchedAt time.Time `json:"fetched_at"`
	// Extra holds passthrough columns such as summary_ai.
	Extra map[string]string `json:"extra,omitempty"`
}

// KeyPolicy decides which fields make a record unique.
type KeyPolicy string

const (
	KeyCompanyTitle     KeyPolicy = "company_title"
	KeyCompanyTitleDate KeyPolicy = "company_title_date"
)

// ParseKeyPolicy validates a configured key policy. Empty means
// KeyCompanyTitleDate.
func ParseKeyPolicy(s string) (KeyPolicy, error) {
	switch KeyPolicy(s) {
	case "":
		return KeyCompanyTitleDate, nil
	case KeyCompanyTitle, KeyCompanyTitleDate:
		return KeyPolicy(s), nil
	}
	return "", eris.Wrapf(ErrUnknownKey, "dataset: key %q", s)
}

// Key returns the uniqueness key of a record under the policy.
func (p KeyPolicy) Key(company, title, date string) string {
	parts := []string{strings.TrimSpace(company), strings.TrimSpace(title)}
	if p != KeyCompanyTitle {
		parts = append(parts, strings.TrimSpace(date))
	}
	return strings.Join(parts, "\x1f")
}

// Filter selects records for List.
type Filter struct {
	Company string
	Since   *time.Time
	Until   *time.Time
	// Sort is "date" (oldest first), "-date" (newest first, default) or
	// "company".
	Sort   string
	Limit  int
	Offset int
}

// CompanySummary is a per-company record count.
type CompanySummary struct {
	Company string `json:"company"`
	Count   int    `json:"count"`
	Latest  string `json:"latest,omitempty"`
}

// Store persists master records.
type Store interface {
	// Append adds the records not already present for company and returns
	// how many were added.
	Append(ctx context.Context, company string, records []release.Candidate) (int, error)
	List(ctx context.Context, filter Filter) ([]MasterRecord, error)
	Get(ctx context.Context, id string) (*MasterRecord, error)
	Companies(ctx context.Context) ([]CompanySummary, error)
	Close() error
}

// Open opens the store for backend at path.
func Open(backend, path string, policy KeyPolicy) (Store, error) {
	switch backend {
	case "", BackendCSV:
		return OpenCSV(path, policy)
	case BackendSQLite:
		return OpenSQLite(path, policy)
	}
	return nil, eris.Wrapf(ErrUnknownBackend, "dataset: backend %q", backend)
}

// prepare turns a source's candidates into new master records. Records
// without a title or link are skipped, and keys already in existing or
// earlier in the batch are dropped.
func prepare(company string, records []release.Candidate, policy KeyPolicy, existing map[string]bool, now time.Time) []MasterRecord {
	company = strings.TrimSpace(company)
	batch := make(map[string]bool)
	var out []MasterRecord

	for _, r := range release.Merge(records) {
		title := strings.TrimSpace(r.Title)
		link := strings.TrimSpace(r.Link)
		if title == "" || link == "" {
			continue
		}

		date := dates.Format(r.Date)
		key := policy.Key(company, title, date)
		if existing[key] || batch[key] {
			continue
		}
		batch[key] = true

		out = append(out, MasterRecord{
			ID:        uuid.New().String(),
			Company:   company,
			Title:     title,
			Link:      link,
			Date:      date,
			FetchedAt: now.Truncate(time.Second),
		})
	}

	return out
}

// applyFilter filters, sorts and pages records in memory.
func applyFilter(records []MasterRecord, f Filter) []MasterRecord {
	var out []MasterRecord
	for _, r := range records {
		if f.Company != "" && !strings.EqualFold(r.Company, f.Company) {
			continue
		}
		if f.Since != nil && (r.Date == "" || r.Date < f.Since.Format(dates.Layout)) {
			continue
		}
		if f.Until != nil && (r.Date == "" || r.Date > f.Until.Format(dates.Layout)) {
			continue
		}
		out = append(out, r)
	}

	sortRecords(out, f.Sort)

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func sortRecords(records []MasterRecord, order string) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		switch order {
		case "date":
			return a.Date < b.Date
		case "company":
			if a.Company != b.Company {
				return a.Company < b.Company
			}
			return a.Date > b.Date
		default:
			return a.Date > b.Date
		}
	})
}

// summarize counts records per company, ordered by company.
func summarize(records []MasterRecord) []CompanySummary {
	index := map[string]int{}
	var out []CompanySummary
	for _, r := range records {
		i, ok := index[r.Company]
		if !ok {
			i = len(out)
			index[r.Company] = i
			out = append(out, CompanySummary{Company: r.Company})
		}
		out[i].Count++
		if r.Date > out[i].Latest {
			out[i].Latest = r.Date
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Company < out[j].Company })
	return out
}

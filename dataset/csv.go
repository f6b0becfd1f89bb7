package dataset

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"

	"github.com/pevans/presswatch/release"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// baseColumns are always written, in this order.
var baseColumns = []string{"id", "company", "title", "link", "date", "fetched_at"}

// DefaultExtraColumns are added to a new file and left empty.
var DefaultExtraColumns = []string{"summary_ai", "impact_for_zhone"}

// CSVStore keeps the dataset in a single CSV file. The file is read once on
// open and rewritten on every successful append. Rows already in the file
// are written back cell for cell, including rows that cannot be listed.
type CSVStore struct {
	mu      sync.RWMutex
	path    string
	policy  KeyPolicy
	extra   []string
	rows    [][]string
	records []MasterRecord
	keys    map[string]bool
}

// OpenCSV loads path if it exists. Files written as UTF-8 (with or without a
// BOM) and Latin-1 are both accepted.
func OpenCSV(path string, policy KeyPolicy) (*CSVStore, error) {
	if policy == "" {
		policy = KeyCompanyTitleDate
	}
	s := &CSVStore{path: path, policy: policy, keys: map[string]bool{}}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		s.extra = append([]string(nil), DefaultExtraColumns...)
		return s, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: read %s", path)
	}

	if err := s.load(data); err != nil {
		return nil, eris.Wrapf(err, "dataset: parse %s", path)
	}
	return s, nil
}

func (s *CSVStore) load(data []byte) error {
	text, err := decodeText(data)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		s.extra = append([]string(nil), DefaultExtraColumns...)
		return nil
	}

	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	rows, err := r.ReadAll()
	if err != nil {
		return eris.Wrap(err, "read csv")
	}

	header := rows[0]
	index := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		index[name] = i
		if !isBaseColumn(name) && name != "" {
			s.extra = append(s.extra, name)
		}
	}
	for _, required := range []string{"company", "title"} {
		if _, ok := index[required]; !ok {
			return eris.Errorf("missing %s column", required)
		}
	}

	cell := func(row []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	columns := append(append([]string(nil), baseColumns...), s.extra...)
	for n, row := range rows[1:] {
		raw := make([]string, len(columns))
		for i, col := range columns {
			if j, ok := index[col]; ok && j < len(row) {
				raw[i] = row[j]
			}
		}
		s.rows = append(s.rows, raw)

		rec := MasterRecord{
			ID:      cell(row, "id"),
			Company: cell(row, "company"),
			Title:   cell(row, "title"),
			Link:    cell(row, "link"),
			Date:    cell(row, "date"),
		}
		if rec.Company == "" || rec.Title == "" {
			zap.L().Debug("dataset: row without company or title", zap.Int("row", n+2))
			continue
		}
		if rec.ID == "" {
			rec.ID = derivedID(rec)
		}
		rec.FetchedAt = parseFetchedAt(cell(row, "fetched_at"))

		for _, col := range s.extra {
			if v := cell(row, col); v != "" {
				if rec.Extra == nil {
					rec.Extra = map[string]string{}
				}
				rec.Extra[col] = v
			}
		}

		s.records = append(s.records, rec)
		s.keys[s.policy.Key(rec.Company, rec.Title, rec.Date)] = true
	}

	return nil
}

// derivedID names a row that has no id cell. The id is stable across loads
// and never written to the file.
func derivedID(r MasterRecord) string {
	name := strings.Join([]string{r.Company, r.Title, r.Link, r.Date}, "\x1f")
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

// decodeText strips a UTF-8 BOM, and decodes the bytes as Latin-1 when they
// are not valid UTF-8.
func decodeText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data), nil
	}

	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return "", eris.Wrap(err, "decode latin-1")
	}
	return string(decoded), nil
}

func isBaseColumn(name string) bool {
	for _, c := range baseColumns {
		if c == name {
			return true
		}
	}
	return false
}

func parseFetchedAt(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{FetchedAtLayout, time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Append adds new records and rewrites the file. Nothing is kept in memory
// when the write fails.
func (s *CSVStore) Append(_ context.Context, company string, records []release.Candidate) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := prepare(company, records, s.policy, s.keys, time.Now())
	if len(added) == 0 {
		return 0, nil
	}

	rows := append([][]string(nil), s.rows...)
	for _, r := range added {
		rows = append(rows, s.row(r))
	}
	if err := s.write(rows); err != nil {
		return 0, err
	}

	s.rows = rows
	s.records = append(s.records, added...)
	for _, r := range added {
		s.keys[s.policy.Key(r.Company, r.Title, r.Date)] = true
	}
	return len(added), nil
}

// row renders a record in the file's column order.
func (s *CSVStore) row(r MasterRecord) []string {
	row := []string{
		r.ID,
		r.Company,
		r.Title,
		r.Link,
		r.Date,
		formatFetchedAt(r.FetchedAt),
	}
	for _, col := range s.extra {
		row = append(row, r.Extra[col])
	}
	return row
}

// write replaces the file atomically with rows, UTF-8 with a BOM.
func (s *CSVStore) write(rows [][]string) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "dataset: create %s", dir)
	}

	tmp, err := os.CreateTemp(dir, ".presswatch-*.csv")
	if err != nil {
		return eris.Wrap(err, "dataset: create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(utf8BOM); err != nil {
		tmp.Close()
		return eris.Wrap(err, "dataset: write")
	}

	w := csv.NewWriter(tmp)
	header := append(append([]string(nil), baseColumns...), s.extra...)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return eris.Wrap(err, "dataset: write header")
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			tmp.Close()
			return eris.Wrap(err, "dataset: write row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return eris.Wrap(err, "dataset: flush")
	}

	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "dataset: close temp file")
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return eris.Wrapf(err, "dataset: replace %s", s.path)
	}
	return nil
}

func formatFetchedAt(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(FetchedAtLayout)
}

// List returns records matching filter.
func (s *CSVStore) List(_ context.Context, filter Filter) ([]MasterRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return applyFilter(append([]MasterRecord(nil), s.records...), filter), nil
}

// Get returns the record with id.
func (s *CSVStore) Get(_ context.Context, id string) (*MasterRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.records {
		if r.ID == id {
			rec := r
			return &rec, nil
		}
	}
	return nil, ErrRecordNotFound
}

// Companies summarizes records per company.
func (s *CSVStore) Companies(_ context.Context) ([]CompanySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return summarize(s.records), nil
}

// Close is a no-op; the file is written on every append.
func (s *CSVStore) Close() error {
	return nil
}

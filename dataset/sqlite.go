package dataset

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rotisserie/eris"

	"github.com/pevans/presswatch/dates"
	"github.com/pevans/presswatch/release"
)

// SQLiteStore keeps the dataset in a SQLite database. The uniqueness key is
// stored alongside each row and enforced by the schema.
type SQLiteStore struct {
	db     *sql.DB
	policy KeyPolicy
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string, policy KeyPolicy) (*SQLiteStore, error) {
	if policy == "" {
		policy = KeyCompanyTitleDate
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: open database")
	}
	// Single writer
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db, policy: policy}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "dataset: initialize schema")
	}

	return store, nil
}

// initSchema creates the releases table if it doesn't exist.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS releases (
		id TEXT PRIMARY KEY,
		company TEXT NOT NULL,
		title TEXT NOT NULL,
		link TEXT NOT NULL,
		date TEXT NOT NULL DEFAULT '',
		fetched_at TEXT NOT NULL,
		extra TEXT,
		dedup_key TEXT NOT NULL UNIQUE
	);
	CREATE INDEX IF NOT EXISTS releases_company_date ON releases (company, date);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Append inserts new records in one transaction. Rows whose key already
// exists are ignored by the database.
func (s *SQLiteStore) Append(ctx context.Context, company string, records []release.Candidate) (int, error) {
	candidates := prepare(company, records, s.policy, nil, time.Now())
	if len(candidates) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "dataset: begin transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO releases (id, company, title, link, date, fetched_at, extra, dedup_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, eris.Wrap(err, "dataset: prepare insert")
	}
	defer stmt.Close()

	added := 0
	for _, r := range candidates {
		result, err := stmt.ExecContext(ctx,
			r.ID,
			r.Company,
			r.Title,
			r.Link,
			r.Date,
			formatTime(r.FetchedAt),
			nil,
			s.policy.Key(r.Company, r.Title, r.Date),
		)
		if err != nil {
			return 0, eris.Wrap(err, "dataset: insert release")
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "dataset: rows affected")
		}
		added += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "dataset: commit")
	}
	return added, nil
}

// Import copies existing master records, keeping their ids, capture times
// and extra columns. Records whose key is already present are skipped.
func (s *SQLiteStore) Import(ctx context.Context, records []MasterRecord) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "dataset: begin transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO releases (id, company, title, link, date, fetched_at, extra, dedup_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, eris.Wrap(err, "dataset: prepare import")
	}
	defer stmt.Close()

	imported := 0
	for _, r := range records {
		var extra any
		if len(r.Extra) > 0 {
			data, err := json.Marshal(r.Extra)
			if err != nil {
				return 0, eris.Wrap(err, "dataset: encode extra columns")
			}
			extra = string(data)
		}

		result, err := stmt.ExecContext(ctx,
			r.ID,
			r.Company,
			r.Title,
			r.Link,
			r.Date,
			formatTime(r.FetchedAt),
			extra,
			s.policy.Key(r.Company, r.Title, r.Date),
		)
		if err != nil {
			return 0, eris.Wrap(err, "dataset: import release")
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "dataset: rows affected")
		}
		imported += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "dataset: commit")
	}
	return imported, nil
}

// List lists records with optional filtering.
func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]MasterRecord, error) {
	query := `SELECT id, company, title, link, date, fetched_at, extra FROM releases`

	var whereClauses []string
	var args []any

	if filter.Company != "" {
		whereClauses = append(whereClauses, "company = ? COLLATE NOCASE")
		args = append(args, filter.Company)
	}
	if filter.Since != nil {
		whereClauses = append(whereClauses, "date != '' AND date >= ?")
		args = append(args, filter.Since.Format(dates.Layout))
	}
	if filter.Until != nil {
		whereClauses = append(whereClauses, "date != '' AND date <= ?")
		args = append(args, filter.Until.Format(dates.Layout))
	}

	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}

	switch filter.Sort {
	case "date":
		query += " ORDER BY date ASC, rowid ASC"
	case "company":
		query += " ORDER BY company ASC, date DESC, rowid ASC"
	default:
		query += " ORDER BY date DESC, rowid ASC"
	}

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	} else if filter.Offset > 0 {
		query += " LIMIT -1"
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: query releases")
	}
	defer rows.Close()

	var records []MasterRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "dataset: iterate releases")
	}

	return records, nil
}

// Get retrieves a record by ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*MasterRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, company, title, link, date, fetched_at, extra FROM releases WHERE id = ?`,
		id,
	)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Companies counts records per company.
func (s *SQLiteStore) Companies(ctx context.Context) ([]CompanySummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT company, COUNT(*), MAX(date)
		FROM releases
		GROUP BY company
		ORDER BY company
	`)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: query companies")
	}
	defer rows.Close()

	var out []CompanySummary
	for rows.Next() {
		var c CompanySummary
		var latest sql.NullString
		if err := rows.Scan(&c.Company, &c.Count, &latest); err != nil {
			return nil, eris.Wrap(err, "dataset: scan company")
		}
		c.Latest = latest.String
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "dataset: iterate companies")
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanRecord is a shared helper for Get and List.
func scanRecord(row scanner) (*MasterRecord, error) {
	var fetchedAt string
	var extra sql.NullString
	rec := &MasterRecord{}

	err := row.Scan(&rec.ID, &rec.Company, &rec.Title, &rec.Link, &rec.Date, &fetchedAt, &extra)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "dataset: scan release")
	}

	rec.FetchedAt = parseTime(fetchedAt)

	if extra.Valid && extra.String != "" {
		if err := json.Unmarshal([]byte(extra.String), &rec.Extra); err != nil {
			return nil, eris.Wrap(err, "dataset: decode extra columns")
		}
	}

	return rec, nil
}

// Helper functions for time formatting
func formatTime(t time.Time) string {
	// Strip monotonic clock for consistent storage and comparisons
	return t.Truncate(0).Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	// Try RFC3339Nano first, fall back to the CSV layout for imported rows
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, _ = time.Parse(FetchedAtLayout, s)
	}
	return t.Truncate(0)
}

package sources

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rotisserie/eris"
)

// StatusStore keeps per-source run bookkeeping in SQLite.
type StatusStore struct {
	db  *sql.DB
	now func() time.Time
}

// Status is the outcome of a source's most recent run.
type Status struct {
	Company       string     `json:"company"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	LastItemCount int        `json:"last_item_count"`
	LastAdded     int        `json:"last_added"`
	LastError     *string    `json:"last_error,omitempty"`
	ErrorCount    int        `json:"error_count"`
}

// OK reports whether the last run succeeded.
func (s *Status) OK() bool {
	return s.LastError == nil
}

// NewStatusStore creates a new status store with the given database path.
func NewStatusStore(dbPath string) (*StatusStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, eris.Wrap(err, "sources: open status database")
	}

	store := &StatusStore{db: db, now: time.Now}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "sources: initialize status schema")
	}

	return store, nil
}

// initSchema creates the source_status table if it doesn't exist.
func (s *StatusStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS source_status (
		company TEXT PRIMARY KEY COLLATE NOCASE,
		last_run_at TEXT,
		last_item_count INTEGER DEFAULT 0,
		last_added INTEGER DEFAULT 0,
		last_error TEXT,
		error_count INTEGER DEFAULT 0
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *StatusStore) Close() error {
	return s.db.Close()
}

// RecordSuccess stores a successful run and resets the error count.
func (s *StatusStore) RecordSuccess(ctx context.Context, company string, found, added int) error {
	now := s.now()
	query := `
		INSERT INTO source_status (company, last_run_at, last_item_count, last_added, last_error, error_count)
		VALUES (?, ?, ?, ?, NULL, 0)
		ON CONFLICT(company) DO UPDATE SET
			last_run_at = excluded.last_run_at,
			last_item_count = excluded.last_item_count,
			last_added = excluded.last_added,
			last_error = NULL,
			error_count = 0
	`

	if _, err := s.db.ExecContext(ctx, query, company, formatTime(&now), found, added); err != nil {
		return eris.Wrapf(err, "sources: record success for %s", company)
	}
	return nil
}

// RecordFailure stores a failed run and increments the consecutive error
// count. The last item counts are left as they were.
func (s *StatusStore) RecordFailure(ctx context.Context, company string, runErr error) error {
	now := s.now()
	msg := "unknown error"
	if runErr != nil {
		msg = runErr.Error()
	}

	query := `
		INSERT INTO source_status (company, last_run_at, last_error, error_count)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(company) DO UPDATE SET
			last_run_at = excluded.last_run_at,
			last_error = excluded.last_error,
			error_count = source_status.error_count + 1
	`

	if _, err := s.db.ExecContext(ctx, query, company, formatTime(&now), msg); err != nil {
		return eris.Wrapf(err, "sources: record failure for %s", company)
	}
	return nil
}

// GetStatus retrieves the status of one company.
func (s *StatusStore) GetStatus(ctx context.Context, company string) (*Status, error) {
	query := `
		SELECT company, last_run_at, last_item_count, last_added, last_error, error_count
		FROM source_status
		WHERE company = ?
	`

	status, err := scanStatus(s.db.QueryRowContext(ctx, query, company))
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrSourceNotFound, "sources: status for %s", company)
	}
	if err != nil {
		return nil, err
	}
	return status, nil
}

// ListStatus returns every recorded status keyed by company.
func (s *StatusStore) ListStatus(ctx context.Context) (map[string]Status, error) {
	query := `
		SELECT company, last_run_at, last_item_count, last_added, last_error, error_count
		FROM source_status
		ORDER BY company
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "sources: query status")
	}
	defer rows.Close()

	out := map[string]Status{}
	for rows.Next() {
		status, err := scanStatus(rows)
		if err != nil {
			return nil, err
		}
		out[status.Company] = *status
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sources: iterate status")
	}

	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanStatus is a shared helper for GetStatus and ListStatus.
func scanStatus(row rowScanner) (*Status, error) {
	var status Status
	var lastRunAt, lastError sql.NullString

	err := row.Scan(
		&status.Company, &lastRunAt, &status.LastItemCount,
		&status.LastAdded, &lastError, &status.ErrorCount,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sources: scan status")
	}

	if lastRunAt.Valid {
		t := parseTime(lastRunAt.String)
		status.LastRunAt = &t
	}
	if lastError.Valid {
		status.LastError = &lastError.String
	}

	return &status, nil
}

// Helper functions for time formatting
func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	// Strip monotonic clock for consistent storage and comparisons
	return t.Truncate(0).Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	// Try RFC3339Nano first, fall back to RFC3339 for compatibility
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	// Strip monotonic clock for consistent comparisons
	return t.Truncate(0)
}

// Package archive keeps rendered validation reports in a SQLite database so
// that past verdicts can be listed and retrieved.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/georgepadayatti/adesval/sign/validation/report"
)

// ErrNotFound is returned when no report with the requested id exists.
var ErrNotFound = errors.New("report not found")

// Entry summarizes one archived report.
type Entry struct {
	ID              string
	DocumentName    string
	DocumentDigest  string
	ValidationTime  time.Time
	Policy          string
	Signatures      int
	ValidSignatures int
	Faults          int
	ArchivedAt      time.Time
}

// Archive is a SQLite backed report store. It is safe for concurrent use.
type Archive struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the archive at dsn, a SQLite file name or URI.
func Open(ctx context.Context, dsn string) (*Archive, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	// A single connection keeps in-memory databases shared.
	db.SetMaxOpenConns(1)

	a := &Archive{db: db, now: time.Now}
	if err := a.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

func (a *Archive) migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS reports (
		report_id TEXT PRIMARY KEY,
		document_name TEXT NOT NULL DEFAULT '',
		document_digest TEXT NOT NULL,
		validation_time TEXT NOT NULL,
		policy TEXT NOT NULL DEFAULT '',
		signatures INTEGER NOT NULL,
		valid_signatures INTEGER NOT NULL,
		faults INTEGER NOT NULL,
		archived_at TEXT NOT NULL,
		body BLOB NOT NULL
	);`
	if _, err := a.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to migrate archive: %w", err)
	}
	if _, err := a.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS reports_digest ON reports (document_digest)`); err != nil {
		return fmt.Errorf("failed to migrate archive: %w", err)
	}
	return nil
}

// Close closes the database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// Save stores the canonical form of r. Saving a report whose id is already
// archived replaces it: identical runs yield identical ids and bodies.
func (a *Archive) Save(ctx context.Context, r *report.Reports) error {
	body, err := r.Canonical()
	if err != nil {
		return err
	}
	query := `INSERT OR REPLACE INTO reports (
		report_id, document_name, document_digest, validation_time, policy,
		signatures, valid_signatures, faults, archived_at, body
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = a.db.ExecContext(ctx, query,
		r.ID, r.DocumentName, r.DocumentDigest, formatTime(r.ValidationTime), r.Policy,
		r.Simple.SignaturesCount(), r.Simple.ValidSignaturesCount(), len(r.Faults),
		formatTime(a.now()), body,
	)
	if err != nil {
		return fmt.Errorf("failed to insert report %s: %w", r.ID, err)
	}
	return nil
}

// Load returns the archived report with the given id.
func (a *Archive) Load(ctx context.Context, id string) (*report.Reports, error) {
	var body []byte
	err := a.db.QueryRowContext(ctx, `SELECT body FROM reports WHERE report_id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load report %s: %w", id, err)
	}

	var r report.Reports
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("failed to decode report %s: %w", id, err)
	}
	return &r, nil
}

// Raw returns the canonical bytes stored for a report.
func (a *Archive) Raw(ctx context.Context, id string) ([]byte, error) {
	var body []byte
	err := a.db.QueryRowContext(ctx, `SELECT body FROM reports WHERE report_id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load report %s: %w", id, err)
	}
	return body, nil
}

// List returns the archived reports, most recent validation first.
func (a *Archive) List(ctx context.Context) ([]Entry, error) {
	return a.query(ctx, `
	SELECT report_id, document_name, document_digest, validation_time, policy,
		signatures, valid_signatures, faults, archived_at
	FROM reports
	ORDER BY validation_time DESC, report_id`)
}

// ListByDigest returns the archived reports of one document.
func (a *Archive) ListByDigest(ctx context.Context, digest string) ([]Entry, error) {
	return a.query(ctx, `
	SELECT report_id, document_name, document_digest, validation_time, policy,
		signatures, valid_signatures, faults, archived_at
	FROM reports
	WHERE document_digest = ?
	ORDER BY validation_time DESC, report_id`, digest)
}

// Delete removes a report.
func (a *Archive) Delete(ctx context.Context, id string) error {
	res, err := a.db.ExecContext(ctx, `DELETE FROM reports WHERE report_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete report %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (a *Archive) query(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var (
			e                       Entry
			validationAt, archiveAt string
		)
		if err := rows.Scan(&e.ID, &e.DocumentName, &e.DocumentDigest, &validationAt, &e.Policy,
			&e.Signatures, &e.ValidSignatures, &e.Faults, &archiveAt); err != nil {
			return nil, err
		}
		e.ValidationTime = parseTime(validationAt)
		e.ArchivedAt = parseTime(archiveAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// timeLayout is fixed width so that stored times sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

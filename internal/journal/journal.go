// Package journal keeps a local history of dotkeep operations in a SQLite
// database: what ran, when, and how it ended. State-changing commands write
// to it; the history command and the doctor check read it.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"dotkeep/internal/dot"
	"dotkeep/internal/journal/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Run statuses.
const (
	StatusRunning = "running"
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusPartial = "partial"
)

// Run is one recorded operation.
type Run struct {
	ID         int64
	OpID       string
	Profile    string
	Operation  string
	StartedAt  time.Time
	FinishedAt sql.NullTime
	Status     string
	Detail     string
}

// Duration reports how long the run took, measured against now for a row
// that has not finished yet.
func (r Run) Duration(now time.Time) time.Duration {
	if r.FinishedAt.Valid {
		return r.FinishedAt.Time.Sub(r.StartedAt)
	}
	return now.Sub(r.StartedAt)
}

// Journal records operation runs.
type Journal struct {
	db    *sql.DB
	clock dot.Clock
}

// Open opens the journal database at path, creating it and its parent
// directory if needed, and brings the schema up to date.
func Open(path string, clock dot.Clock) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	// The daemon and an interactive command can write at the same time.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configuring journal: %w", err)
	}
	if err := migrations.Up(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db: db, clock: clock}, nil
}

// Begin inserts a running row for the operation and returns its row ID.
func (j *Journal) Begin(opID, profile, operation string) (int64, error) {
	res, err := j.db.Exec(
		`INSERT INTO runs (op_id, profile, operation, started_at, status) VALUES (?, ?, ?, ?, ?)`,
		opID, profile, operation, j.clock.Now().UTC(), StatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("recording operation start: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("recording operation start: %w", err)
	}
	return id, nil
}

// Finish closes the row with a final status and a one-line detail.
func (j *Journal) Finish(id int64, status, detail string) error {
	_, err := j.db.Exec(
		`UPDATE runs SET finished_at = ?, status = ?, detail = ? WHERE id = ?`,
		j.clock.Now().UTC(), status, detail, id,
	)
	if err != nil {
		return fmt.Errorf("recording operation result: %w", err)
	}
	return nil
}

// Recent returns the newest runs, most recent first.
func (j *Journal) Recent(limit int) ([]Run, error) {
	rows, err := j.db.Query(
		`SELECT id, op_id, profile, operation, started_at, finished_at, status, detail
		 FROM runs ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.OpID, &r.Profile, &r.Operation, &r.StartedAt, &r.FinishedAt, &r.Status, &r.Detail); err != nil {
			return nil, fmt.Errorf("reading history: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	return runs, nil
}

// CheckSchema verifies the journal schema matches this binary.
func (j *Journal) CheckSchema() error {
	return migrations.Check(j.db)
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Package runlog keeps a small SQLite ledger of conversion runs next to the
// generated models. The ledger is strictly advisory: callers report its
// failures as warnings and never fail a conversion over it.
package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Run is one recorded conversion.
type Run struct {
	ID        int64  `json:"id"`
	StartedAt string `json:"started_at"`
	Input     string `json:"input"`
	Baseline  string `json:"baseline"`
	Output    string `json:"output"`
	Actuators int    `json:"actuators"`
	Fragments int    `json:"fragments"`
	Warnings  int    `json:"warnings"`
	// Options is the effective options snapshot as JSON.
	Options string `json:"options"`
}

// Ledger is an open run database.
type Ledger struct {
	db     *sql.DB
	insert *sql.Stmt
}

const runsSchema = `
	CREATE TABLE IF NOT EXISTS runs (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at TEXT NOT NULL,
		input      TEXT NOT NULL,
		baseline   TEXT NOT NULL,
		output     TEXT NOT NULL,
		actuators  INTEGER NOT NULL,
		fragments  INTEGER NOT NULL,
		warnings   INTEGER NOT NULL,
		options    TEXT NOT NULL
	);`

// Open opens (creating if needed) the ledger at path.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	// One writer at a time; WAL keeps a concurrent history reader happy.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set ledger journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set ledger busy timeout: %w", err)
	}
	if _, err := db.Exec(runsSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create runs table: %w", err)
	}
	insert, err := db.Prepare(`
		INSERT INTO runs (started_at, input, baseline, output, actuators, fragments, warnings, options)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prepare runs insert: %w", err)
	}
	return &Ledger{db: db, insert: insert}, nil
}

// Record appends a run. A zero StartedAt is stamped with the current time.
func (l *Ledger) Record(ctx context.Context, run Run) error {
	started := run.StartedAt
	if started == "" {
		started = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := l.insert.ExecContext(ctx, started, run.Input, run.Baseline, run.Output,
		run.Actuators, run.Fragments, run.Warnings, run.Options)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// Recent returns up to limit runs, newest first. A non-positive limit means
// ten.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, started_at, input, baseline, output, actuators, fragments, warnings, options
		FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.Input, &r.Baseline, &r.Output,
			&r.Actuators, &r.Fragments, &r.Warnings, &r.Options); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Close releases the prepared statement and the database handle.
func (l *Ledger) Close() error {
	if err := l.insert.Close(); err != nil {
		_ = l.db.Close()
		return err
	}
	return l.db.Close()
}

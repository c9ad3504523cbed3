// Package store provides a SQLite-backed history of solve requests. Each
// completed request is summarized into one row so operators can review what
// was asked and how the pipeline fared, across server restarts. Solution
// text and images are not persisted — only the summary.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Record is one solve request's summary.
type Record struct {
	// RequestID is the pipeline's request id, for correlating with logs.
	RequestID string `json:"request_id"`
	// Question is the user's question text.
	Question string `json:"question"`
	// Success reports whether the pipeline produced a solution.
	Success bool `json:"success"`
	// DiagramOK reports whether the diagram compiled, meaningful only when
	// Success is true.
	DiagramOK bool `json:"diagram_ok"`
	// ElapsedSeconds is the end-to-end request latency.
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	// CreatedAt is when the record was persisted.
	CreatedAt time.Time `json:"created_at"`
}

// HistoryStore persists and retrieves solve summaries. Implementations must
// be safe for concurrent use.
type HistoryStore interface {
	// Append persists one solve summary.
	Append(ctx context.Context, rec Record) error
	// Recent returns the most recent n records, newest-first. If fewer than
	// n exist, all are returned.
	Recent(ctx context.Context, n int) ([]Record, error)
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a HistoryStore backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the history database.
// It resolves to ~/.eetutor/history.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".eetutor")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS solves (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    request_id      TEXT    NOT NULL,
    question        TEXT    NOT NULL,
    success         INTEGER NOT NULL,
    diagram_ok      INTEGER NOT NULL,
    elapsed_seconds REAL    NOT NULL,
    created_at      INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_solves_created
    ON solves (created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Append persists one solve summary.
func (s *SQLiteStore) Append(ctx context.Context, rec Record) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	const q = `INSERT INTO solves (request_id, question, success, diagram_ok, elapsed_seconds, created_at)
VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q,
		rec.RequestID, rec.Question, boolInt(rec.Success), boolInt(rec.DiagramOK),
		rec.ElapsedSeconds, createdAt.Unix()); err != nil {
		return fmt.Errorf("store: append: %w", err)
	}
	return nil
}

// Recent returns the most recent n records, newest-first.
func (s *SQLiteStore) Recent(ctx context.Context, n int) ([]Record, error) {
	const q = `
SELECT request_id, question, success, diagram_ok, elapsed_seconds, created_at
FROM   solves
ORDER  BY created_at DESC, id DESC
LIMIT  ?`

	rows, err := s.db.QueryContext(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var rec Record
		var success, diagramOK int
		var ts int64
		if err := rows.Scan(&rec.RequestID, &rec.Question, &success, &diagramOK, &rec.ElapsedSeconds, &ts); err != nil {
			return nil, fmt.Errorf("store: recent scan: %w", err)
		}
		rec.Success = success != 0
		rec.DiagramOK = diagramOK != 0
		rec.CreatedAt = time.Unix(ts, 0)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent rows: %w", err)
	}
	return recs, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Package archive keeps a SQLite record of every analysis batch: the raw
// runs, the rewritten report and the per-subject outcome.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get for an unknown batch id.
var ErrNotFound = errors.New("archive: batch not found")

const schema = `
CREATE TABLE IF NOT EXISTS batches (
	id         TEXT PRIMARY KEY,
	client     TEXT NOT NULL,
	source     TEXT NOT NULL,
	created_at TEXT NOT NULL,
	runs       TEXT NOT NULL,
	report     TEXT NOT NULL,
	succeeded  INTEGER NOT NULL,
	failed     INTEGER NOT NULL,
	results    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS batches_created ON batches(created_at);
`

// timeFormat is fixed width so created_at sorts as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Batch is one archived analysis batch.
type Batch struct {
	ID        string    `json:"id"`
	Client    string    `json:"client"`
	Source    string    `json:"source"` // "sheet" or "records"
	CreatedAt time.Time `json:"created_at"`
	Runs      []string  `json:"runs,omitempty"`
	Report    string    `json:"report,omitempty"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	// Results is the batch outcome as returned to the caller.
	Results json.RawMessage `json:"results,omitempty"`
}

// Store is a SQLite-backed batch archive.
type Store struct {
	db *sql.DB
}

// Open opens or creates the archive at path, creating its directory.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("archive: create dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("archive: open sqlite: %w", err)
	}
	// A single connection keeps writes serialized.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive: ping sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

// Save inserts b, replacing any batch with the same id. A zero CreatedAt
// is set to now.
func (s *Store) Save(ctx context.Context, b Batch) error {
	if b.ID == "" {
		return errors.New("archive: batch id is required")
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	runs, err := json.Marshal(b.Runs)
	if err != nil {
		return fmt.Errorf("archive: marshal runs: %w", err)
	}
	results := b.Results
	if len(results) == 0 {
		results = json.RawMessage("null")
	}
	_, err = s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO batches (id, client, source, created_at, runs, report, succeeded, failed, results)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Client, b.Source, b.CreatedAt.UTC().Format(timeFormat),
		string(runs), b.Report, b.Succeeded, b.Failed, string(results))
	if err != nil {
		return fmt.Errorf("archive: save %s: %w", b.ID, err)
	}
	return nil
}

// Get returns the full batch with the given id.
func (s *Store) Get(ctx context.Context, id string) (Batch, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, client, source, created_at, runs, report, succeeded, failed, results
FROM batches WHERE id = ?`, id)
	var (
		b                      Batch
		created, runs, results string
	)
	err := row.Scan(&b.ID, &b.Client, &b.Source, &created, &runs, &b.Report, &b.Succeeded, &b.Failed, &results)
	if errors.Is(err, sql.ErrNoRows) {
		return Batch{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Batch{}, fmt.Errorf("archive: get %s: %w", id, err)
	}
	if b.CreatedAt, err = time.Parse(timeFormat, created); err != nil {
		return Batch{}, fmt.Errorf("archive: get %s: created_at: %w", id, err)
	}
	if err := json.Unmarshal([]byte(runs), &b.Runs); err != nil {
		return Batch{}, fmt.Errorf("archive: get %s: runs: %w", id, err)
	}
	if results != "null" {
		b.Results = json.RawMessage(results)
	}
	return b, nil
}

// List returns batch summaries, newest first, without runs, report or
// results. limit <= 0 means 50.
func (s *Store) List(ctx context.Context, limit int) ([]Batch, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, client, source, created_at, succeeded, failed
FROM batches ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("archive: list: %w", err)
	}
	defer rows.Close()

	out := []Batch{}
	for rows.Next() {
		var (
			b       Batch
			created string
		)
		if err := rows.Scan(&b.ID, &b.Client, &b.Source, &created, &b.Succeeded, &b.Failed); err != nil {
			return nil, fmt.Errorf("archive: list: %w", err)
		}
		if b.CreatedAt, err = time.Parse(timeFormat, created); err != nil {
			return nil, fmt.Errorf("archive: list: created_at: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: list: %w", err)
	}
	return out, nil
}

// Package journal records which source lines reached the vector store, so an
// interrupted ingestion can resume without re-embedding committed lines.
package journal

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hubenschmidt/pgvreduce/journal/migrations"
)

// Entry is one committed source line.
type Entry struct {
	Source string
	Line   int
	Digest string
	ItemID int64
}

// Journal is a local SQLite file of committed lines.
type Journal struct {
	db   *sql.DB
	path string
}

// Open creates the journal file and its parent directory if needed.
func Open(path string) (*Journal, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Journal{db: db, path: path}, nil
}

func runMigrations(db *sql.DB) error {
	data, err := migrations.SQLite.ReadFile("sqlite/001_init.sql")
	if err != nil {
		return fmt.Errorf("read migration: %w", err)
	}
	if _, err := db.Exec(string(data)); err != nil {
		return fmt.Errorf("exec migration: %w", err)
	}
	return nil
}

// Path returns the journal file path.
func (j *Journal) Path() string {
	return j.path
}

// Committed returns line number -> digest for every journaled line of source.
func (j *Journal) Committed(ctx context.Context, source string) (map[int]string, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT line_no, digest FROM ingested_lines WHERE source = ?`, source)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	lines := make(map[int]string)
	for rows.Next() {
		var line int
		var digest string
		if err := rows.Scan(&line, &digest); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		lines[line] = digest
	}
	return lines, rows.Err()
}

// Record stores entries atomically. A line recorded again replaces the
// earlier entry.
func (j *Journal) Record(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin journal: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, e := range entries {
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO ingested_lines (source, line_no, digest, item_id, ingested_at)
			VALUES (?, ?, ?, ?, ?)`,
			e.Source, e.Line, e.Digest, e.ItemID, now)
		if err != nil {
			return fmt.Errorf("record line %d: %w", e.Line, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit journal: %w", err)
	}
	return nil
}

// Close closes the journal file.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Digest fingerprints line content.
func Digest(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

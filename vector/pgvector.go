package vector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pgvector/pgvector-go"

	"github.com/hubenschmidt/pgvreduce/core"
)

var _ Store = (*PgVectorStore)(nil)

const (
	insertItemSQL = `INSERT INTO items (content, embedding, norm_256, norm_512, norm_1024)
		SELECT $1, $2::vector,
			vector_norm_reduce($2::vector, 256),
			vector_norm_reduce($2::vector, 512),
			vector_norm_reduce($2::vector, 1024)
		RETURNING id`

	nearestSQL = `SELECT id, embedding <-> $1::vector, content
		FROM items ORDER BY embedding <-> $1::vector LIMIT $2`
)

// PgVectorStore is the PostgreSQL store backed by the vector extension.
// The pool is capped at one connection so a run holds a single session.
type PgVectorStore struct {
	db *sql.DB
}

// NewPgVectorStore opens and pings the database at dsn.
func NewPgVectorStore(ctx context.Context, dsn string) (*PgVectorStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", core.ErrStore, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping database: %v", core.ErrStore, err)
	}
	return &PgVectorStore{db: db}, nil
}

// EnsureSchema creates the vector extension and the items table. dimensions
// is the width of the full embedding column.
func (s *PgVectorStore) EnsureSchema(ctx context.Context, dimensions int) error {
	if dimensions < 1 {
		return fmt.Errorf("%w: dimensions must be positive, got %d", core.ErrInvalidConfig, dimensions)
	}
	migrations := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS items (
			id        BIGSERIAL PRIMARY KEY,
			content   TEXT,
			embedding vector(%d),
			norm_256  vector(256),
			norm_512  vector(512),
			norm_1024 vector(1024)
		)`, dimensions),
	}

	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("%w: execute migration: %v", core.ErrStore, err)
		}
	}
	return nil
}

// Begin starts an insert transaction.
func (s *PgVectorStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", core.ErrStore, err)
	}
	return &pgTx{tx: tx}, nil
}

// Nearest ranks rows by full-embedding distance to query.
func (s *PgVectorStore) Nearest(ctx context.Context, query []float32, limit int) ([]Neighbor, error) {
	return s.search(ctx, nearestSQL, query, limit)
}

// NearestReduced ranks rows by distance in the reduced space of width.
func (s *PgVectorStore) NearestReduced(ctx context.Context, query []float32, width Width, limit int) ([]Neighbor, error) {
	q, ok := widthQueries[width]
	if !ok {
		return nil, fmt.Errorf("%w: %d", core.ErrUnsupportedWidth, int(width))
	}
	return s.search(ctx, q.nearest, query, limit)
}

func (s *PgVectorStore) search(ctx context.Context, query string, embedding []float32, limit int) ([]Neighbor, error) {
	rows, err := s.db.QueryContext(ctx, query, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", core.ErrStore, err)
	}
	defer rows.Close()

	var results []Neighbor
	for rows.Next() {
		var n Neighbor
		var content sql.NullString
		if err := rows.Scan(&n.ID, &n.Distance, &content); err != nil {
			return nil, fmt.Errorf("%w: scan row: %v", core.ErrStore, err)
		}
		n.Content = content.String
		results = append(results, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read rows: %v", core.ErrStore, err)
	}
	return results, nil
}

// Verify recomputes every reduced vector from its stored embedding and
// counts the rows whose stored value lies farther than tolerance from it.
func (s *PgVectorStore) Verify(ctx context.Context, tolerance float64) ([]Derivation, error) {
	report := make([]Derivation, 0, len(Widths))
	for _, w := range Widths {
		d := Derivation{Width: w}
		err := s.db.QueryRowContext(ctx, widthQueries[w].verify, tolerance).Scan(&d.Total, &d.Mismatched)
		if err != nil {
			return nil, fmt.Errorf("%w: verify %s: %v", core.ErrStore, w.Column(), err)
		}
		report = append(report, d)
	}
	return report, nil
}

// Close closes the database connection.
func (s *PgVectorStore) Close() error {
	return s.db.Close()
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) Insert(ctx context.Context, content string, embedding []float32) (int64, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx, insertItemSQL, content, pgvector.NewVector(embedding)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%w: insert item: %v", core.ErrStore, err)
	}
	return id, nil
}

func (t *pgTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", core.ErrStore, err)
	}
	return nil
}

func (t *pgTx) Rollback() error {
	err := t.tx.Rollback()
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("%w: rollback: %v", core.ErrStore, err)
	}
	return nil
}

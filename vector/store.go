// Package vector provides access to the items table: inserts with
// server-side reduction and nearest-neighbor searches.
package vector

import "context"

// Neighbor is one row of a nearest-neighbor search.
type Neighbor struct {
	ID       int64   `json:"id"`
	Distance float64 `json:"distance"`
	Content  string  `json:"content"`
}

// Derivation reports how many rows of a width disagree with their embedding.
type Derivation struct {
	Width      Width `json:"width"`
	Total      int64 `json:"total"`
	Mismatched int64 `json:"mismatched"`
}

// Store is the vector store used by the ingest and compare procedures.
type Store interface {
	// Begin opens a transaction for inserts.
	Begin(ctx context.Context) (Tx, error)

	// Nearest ranks rows by distance between their full embedding and query.
	Nearest(ctx context.Context, query []float32, limit int) ([]Neighbor, error)

	// NearestReduced ranks rows by distance between their stored reduced
	// vector and the store-side reduction of query to the same width.
	NearestReduced(ctx context.Context, query []float32, width Width, limit int) ([]Neighbor, error)

	// Close releases the connection.
	Close() error
}

// Tx is an open insert transaction.
type Tx interface {
	// Insert stores content with its embedding; the reduced columns are
	// computed by the store from the same embedding. Returns the new id.
	Insert(ctx context.Context, content string, embedding []float32) (int64, error)

	Commit() error
	Rollback() error
}

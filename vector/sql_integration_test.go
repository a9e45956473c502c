package vector

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests need a PostgreSQL database with the vector extension and
// vector_norm_reduce installed, e.g.
// PGVREDUCE_TEST_DATABASE_URL=postgres://localhost/pgv_test go test ./vector/...
func openTestStore(t *testing.T) *PgVectorStore {
	t.Helper()
	dsn := os.Getenv("PGVREDUCE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("PGVREDUCE_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	store, err := NewPgVectorStore(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.EnsureSchema(ctx, testDims))
	_, err = store.db.ExecContext(ctx, "TRUNCATE items RESTART IDENTITY")
	require.NoError(t, err)
	return store
}

const testDims = 4096

func testEmbedding(seed float32) []float32 {
	v := make([]float32, testDims)
	for i := range v {
		v[i] = seed + float32(i%7)/10
	}
	return v
}

func TestPgVectorStore_InsertAndSearch(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	helloID, err := tx.Insert(ctx, "hello world", testEmbedding(1))
	require.NoError(t, err)
	_, err = tx.Insert(ctx, "goodbye world", testEmbedding(5))
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	baseline, err := store.Nearest(ctx, testEmbedding(1), 5)
	require.NoError(t, err)
	require.Len(t, baseline, 2)
	assert.Equal(t, helloID, baseline[0].ID)
	assert.Equal(t, "hello world", baseline[0].Content)
	assert.InDelta(t, 0, baseline[0].Distance, 1e-6)

	for _, w := range Widths {
		reduced, err := store.NearestReduced(ctx, testEmbedding(1), w, 5)
		require.NoError(t, err)
		assert.Len(t, reduced, 2, "width %d", w)
	}

	report, err := store.Verify(ctx, 1e-6)
	require.NoError(t, err)
	for _, d := range report {
		assert.Equal(t, int64(2), d.Total)
		assert.Zero(t, d.Mismatched, "width %d", d.Width)
	}
}

func TestPgVectorStore_RollbackDiscardsInserts(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Insert(ctx, "temporary", testEmbedding(2))
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())
	require.NoError(t, tx.Rollback(), "second rollback is a no-op")

	rows, err := store.Nearest(ctx, testEmbedding(2), 5)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

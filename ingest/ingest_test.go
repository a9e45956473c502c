package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubenschmidt/pgvreduce/core"
	"github.com/hubenschmidt/pgvreduce/journal"
	"github.com/hubenschmidt/pgvreduce/logging"
	"github.com/hubenschmidt/pgvreduce/monitor"
	"github.com/hubenschmidt/pgvreduce/vector"
)

// --- Mock implementations ---

// mockEmbedder returns a vector derived from the text length and records calls.
type mockEmbedder struct {
	calls  []string
	failOn string
	err    error
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.calls = append(m.calls, text)
	if m.err != nil && (m.failOn == "" || m.failOn == text) {
		return nil, m.err
	}
	return []float32{float32(len(text)), 1, 0}, nil
}

type storedRow struct {
	id        int64
	content   string
	embedding []float32
}

// mockStore keeps committed rows and counts transactions.
type mockStore struct {
	nextID    int64
	committed []storedRow
	begins    int
	commits   int
	rollbacks int
	insertErr error
	commitErr error
}

func (s *mockStore) Begin(_ context.Context) (vector.Tx, error) {
	s.begins++
	return &mockTx{store: s}, nil
}

func (s *mockStore) Nearest(context.Context, []float32, int) ([]vector.Neighbor, error) {
	return nil, errors.New("not used")
}

func (s *mockStore) NearestReduced(context.Context, []float32, vector.Width, int) ([]vector.Neighbor, error) {
	return nil, errors.New("not used")
}

func (s *mockStore) Close() error { return nil }

type mockTx struct {
	store *mockStore
	rows  []storedRow
	done  bool
}

func (t *mockTx) Insert(_ context.Context, content string, embedding []float32) (int64, error) {
	if t.store.insertErr != nil {
		return 0, t.store.insertErr
	}
	t.store.nextID++
	t.rows = append(t.rows, storedRow{id: t.store.nextID, content: content, embedding: embedding})
	return t.store.nextID, nil
}

func (t *mockTx) Commit() error {
	if t.store.commitErr != nil {
		return t.store.commitErr
	}
	t.done = true
	t.store.commits++
	t.store.committed = append(t.store.committed, t.rows...)
	return nil
}

func (t *mockTx) Rollback() error {
	if !t.done {
		t.done = true
		t.store.rollbacks++
	}
	return nil
}

// mockJournal is an in-memory Journal.
type mockJournal struct {
	entries   map[string]map[int]string
	recorded  []journal.Entry
	recordErr error
}

func newMockJournal() *mockJournal {
	return &mockJournal{entries: make(map[string]map[int]string)}
}

func (j *mockJournal) Committed(_ context.Context, source string) (map[int]string, error) {
	out := make(map[int]string)
	for k, v := range j.entries[source] {
		out[k] = v
	}
	return out, nil
}

func (j *mockJournal) Record(_ context.Context, entries []journal.Entry) error {
	if j.recordErr != nil {
		return j.recordErr
	}
	for _, e := range entries {
		if j.entries[e.Source] == nil {
			j.entries[e.Source] = make(map[int]string)
		}
		j.entries[e.Source][e.Line] = e.Digest
	}
	j.recorded = append(j.recorded, entries...)
	return nil
}

func newTestIngestor(emb *mockEmbedder, store *mockStore, out *bytes.Buffer, opts ...Option) *Ingestor {
	base := []Option{WithOutput(out), WithLogger(logging.Discard())}
	return New(emb, store, append(base, opts...)...)
}

func contents(rows []storedRow) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.content
	}
	return out
}

// --- Tests ---

func TestIngest_SkipsBlankLines(t *testing.T) {
	emb := &mockEmbedder{}
	store := &mockStore{}
	var out bytes.Buffer
	metrics := monitor.NewInMemoryCollector("run", "ingest")

	ing := newTestIngestor(emb, store, &out, WithMetrics(metrics))
	err := ing.Ingest(context.Background(), "mem", strings.NewReader("hello world\n\ngoodbye world\n"))

	require.NoError(t, err)
	assert.Equal(t, []string{"hello world", "goodbye world"}, emb.calls)
	assert.Equal(t, []string{"hello world", "goodbye world"}, contents(store.committed))
	assert.Equal(t, 1, store.commits, "single commit at the end")
	assert.Equal(t, "hello world\ngoodbye world\n", out.String())

	m := metrics.Flush()
	assert.Equal(t, 3, m.Count(monitor.LinesRead))
	assert.Equal(t, 1, m.Count(monitor.BlankSkipped))
	assert.Equal(t, 2, m.Count(monitor.Inserted))
	assert.Equal(t, 1, m.Count(monitor.Commits))
}

func TestIngest_WhitespaceOnlyLinesAreBlank(t *testing.T) {
	emb := &mockEmbedder{}
	store := &mockStore{}
	var out bytes.Buffer

	err := newTestIngestor(emb, store, &out).
		Ingest(context.Background(), "mem", strings.NewReader("   \n\t\n \r\n"))

	require.NoError(t, err)
	assert.Empty(t, emb.calls)
	assert.Zero(t, store.begins, "no transaction without rows")
	assert.Empty(t, store.committed)
	assert.Empty(t, out.String())
}

func TestIngest_TrimsAndKeepsLastLineWithoutNewline(t *testing.T) {
	emb := &mockEmbedder{}
	store := &mockStore{}
	var out bytes.Buffer

	err := newTestIngestor(emb, store, &out).
		Ingest(context.Background(), "mem", strings.NewReader("  padded  \r\nlast"))

	require.NoError(t, err)
	assert.Equal(t, []string{"padded", "last"}, emb.calls)
	assert.Equal(t, []string{"padded", "last"}, contents(store.committed))
}

func TestIngest_DuplicateLinesAreEmbeddedEachTime(t *testing.T) {
	emb := &mockEmbedder{}
	store := &mockStore{}
	var out bytes.Buffer

	err := newTestIngestor(emb, store, &out).
		Ingest(context.Background(), "mem", strings.NewReader("same\nsame\nsame\n"))

	require.NoError(t, err)
	assert.Len(t, emb.calls, 3)
	assert.Len(t, store.committed, 3)
}

func TestIngest_StoresTheEmbeddingOfTheSameLine(t *testing.T) {
	emb := &mockEmbedder{}
	store := &mockStore{}
	var out bytes.Buffer

	err := newTestIngestor(emb, store, &out).
		Ingest(context.Background(), "mem", strings.NewReader("ab\nabcd\n"))

	require.NoError(t, err)
	require.Len(t, store.committed, 2)
	for _, row := range store.committed {
		assert.Equal(t, float32(len(row.content)), row.embedding[0])
	}
}

func TestIngest_EmbeddingFailureBeforeAnyWrite(t *testing.T) {
	emb := &mockEmbedder{err: fmt.Errorf("%w: status 500", core.ErrEmbeddingStatus)}
	store := &mockStore{}
	var out bytes.Buffer

	err := newTestIngestor(emb, store, &out).
		Ingest(context.Background(), "mem", strings.NewReader("hello world\n\ngoodbye world\n"))

	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrEmbeddingStatus)
	var opErr *core.OpError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, 1, opErr.Line)

	assert.Zero(t, store.begins, "no store access after the embedding failed")
	assert.Empty(t, store.committed)
	assert.Empty(t, out.String())
}

func TestIngest_MidRunFailureLosesUncommittedRows(t *testing.T) {
	emb := &mockEmbedder{failOn: "third", err: core.ErrEmbeddingUnavailable}
	store := &mockStore{}
	var out bytes.Buffer

	err := newTestIngestor(emb, store, &out).
		Ingest(context.Background(), "mem", strings.NewReader("first\nsecond\nthird\nfourth\n"))

	assert.ErrorIs(t, err, core.ErrEmbeddingUnavailable)
	assert.Empty(t, store.committed)
	assert.Equal(t, 1, store.rollbacks)
	assert.Equal(t, []string{"first", "second", "third"}, emb.calls, "stops at the failing line")
}

func TestIngest_BatchCommits(t *testing.T) {
	emb := &mockEmbedder{failOn: "e", err: core.ErrEmbeddingUnavailable}
	store := &mockStore{}
	var out bytes.Buffer

	err := newTestIngestor(emb, store, &out, WithBatchSize(2)).
		Ingest(context.Background(), "mem", strings.NewReader("a\nb\n\nc\nd\ne\n"))

	assert.ErrorIs(t, err, core.ErrEmbeddingUnavailable)
	assert.Equal(t, 2, store.commits)
	assert.Equal(t, []string{"a", "b", "c", "d"}, contents(store.committed))
	assert.Zero(t, store.rollbacks, "failure happened between batches")
}

func TestIngest_BatchCommitsRemainderAtEnd(t *testing.T) {
	emb := &mockEmbedder{}
	store := &mockStore{}
	var out bytes.Buffer

	err := newTestIngestor(emb, store, &out, WithBatchSize(2)).
		Ingest(context.Background(), "mem", strings.NewReader("a\nb\nc\n"))

	require.NoError(t, err)
	assert.Equal(t, 2, store.commits)
	assert.Equal(t, 2, store.begins)
	assert.Len(t, store.committed, 3)
}

func TestIngest_InsertFailure(t *testing.T) {
	emb := &mockEmbedder{}
	store := &mockStore{insertErr: fmt.Errorf("%w: function vector_norm_reduce does not exist", core.ErrStore)}
	var out bytes.Buffer

	err := newTestIngestor(emb, store, &out).
		Ingest(context.Background(), "mem", strings.NewReader("hello\n"))

	assert.ErrorIs(t, err, core.ErrStore)
	assert.Contains(t, err.Error(), "insert item [line=1]")
	assert.Equal(t, 1, store.rollbacks)
	assert.Empty(t, out.String(), "line echoed only after insert")
}

func TestIngest_CommitFailure(t *testing.T) {
	emb := &mockEmbedder{}
	store := &mockStore{commitErr: core.ErrStore}
	j := newMockJournal()
	var out bytes.Buffer

	err := newTestIngestor(emb, store, &out, WithJournal(j)).
		Ingest(context.Background(), "mem", strings.NewReader("hello\n"))

	assert.ErrorIs(t, err, core.ErrStore)
	assert.Empty(t, j.recorded, "nothing journaled without a commit")
}

func TestIngest_JournalRecordsCommittedLines(t *testing.T) {
	emb := &mockEmbedder{}
	store := &mockStore{}
	j := newMockJournal()
	var out bytes.Buffer

	err := newTestIngestor(emb, store, &out, WithJournal(j)).
		Ingest(context.Background(), "/data/lines.txt", strings.NewReader("hello world\n\ngoodbye world\n"))

	require.NoError(t, err)
	require.Len(t, j.recorded, 2)
	assert.Equal(t, journal.Entry{Source: "/data/lines.txt", Line: 1, Digest: journal.Digest("hello world"), ItemID: 1}, j.recorded[0])
	assert.Equal(t, 3, j.recorded[1].Line)
	assert.Equal(t, int64(2), j.recorded[1].ItemID)
}

func TestIngest_ResumeSkipsJournaledLines(t *testing.T) {
	j := newMockJournal()
	var out bytes.Buffer

	// first run fails on line 3 after committing batch 1
	first := &mockEmbedder{failOn: "c", err: core.ErrEmbeddingUnavailable}
	store := &mockStore{}
	err := newTestIngestor(first, store, &out, WithJournal(j), WithBatchSize(2)).
		Ingest(context.Background(), "src", strings.NewReader("a\nb\nc\nd\n"))
	require.Error(t, err)

	second := &mockEmbedder{}
	metrics := monitor.NewInMemoryCollector("run", "ingest")
	err = newTestIngestor(second, store, &out, WithJournal(j), WithBatchSize(2), WithResume(true), WithMetrics(metrics)).
		Ingest(context.Background(), "src", strings.NewReader("a\nb\nc\nd\n"))

	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, second.calls)
	assert.Equal(t, []string{"a", "b", "c", "d"}, contents(store.committed))
	assert.Equal(t, 2, metrics.Flush().Count(monitor.ResumeSkipped))
}

func TestIngest_ResumeReembedsChangedLines(t *testing.T) {
	j := newMockJournal()
	require.NoError(t, j.Record(context.Background(), []journal.Entry{
		{Source: "src", Line: 1, Digest: journal.Digest("old text"), ItemID: 1},
		{Source: "src", Line: 2, Digest: journal.Digest("kept"), ItemID: 2},
	}))
	emb := &mockEmbedder{}
	var out bytes.Buffer

	err := newTestIngestor(emb, &mockStore{}, &out, WithJournal(j), WithResume(true)).
		Ingest(context.Background(), "src", strings.NewReader("new text\nkept\n"))

	require.NoError(t, err)
	assert.Equal(t, []string{"new text"}, emb.calls)
}

func TestIngest_ResumeWithoutJournal(t *testing.T) {
	emb := &mockEmbedder{}
	var out bytes.Buffer

	err := newTestIngestor(emb, &mockStore{}, &out, WithResume(true)).
		Ingest(context.Background(), "src", strings.NewReader("a\n"))

	assert.ErrorIs(t, err, core.ErrInvalidConfig)
	assert.Empty(t, emb.calls)
}

func TestIngestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lines.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world\n\ngoodbye world\n"), 0600))

	emb := &mockEmbedder{}
	store := &mockStore{}
	j := newMockJournal()
	var out bytes.Buffer

	err := newTestIngestor(emb, store, &out, WithJournal(j)).IngestFile(context.Background(), path)

	require.NoError(t, err)
	assert.Len(t, store.committed, 2)
	require.NotEmpty(t, j.recorded)
	assert.True(t, filepath.IsAbs(j.recorded[0].Source))
}

func TestIngestFile_NotFound(t *testing.T) {
	emb := &mockEmbedder{}
	var out bytes.Buffer

	err := newTestIngestor(emb, &mockStore{}, &out).
		IngestFile(context.Background(), filepath.Join(t.TempDir(), "missing.txt"))

	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Empty(t, emb.calls)
}

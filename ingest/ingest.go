// Package ingest loads a newline-delimited text file into the items table,
// one row per non-blank line, with the full embedding and its reduced
// copies computed by the store.
package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hubenschmidt/pgvreduce/core"
	"github.com/hubenschmidt/pgvreduce/journal"
	"github.com/hubenschmidt/pgvreduce/llm"
	"github.com/hubenschmidt/pgvreduce/monitor"
	"github.com/hubenschmidt/pgvreduce/vector"
)

// Journal is the subset of *journal.Journal used for resuming.
type Journal interface {
	Committed(ctx context.Context, source string) (map[int]string, error)
	Record(ctx context.Context, entries []journal.Entry) error
}

type Ingestor struct {
	embedder  llm.Embedder
	store     vector.Store
	journal   Journal
	metrics   monitor.MetricsCollector
	log       *slog.Logger
	out       io.Writer
	batchSize int
	resume    bool
}

type Option func(*Ingestor)

// WithBatchSize commits after every n inserted rows. Zero keeps a single
// commit at the end of the run.
func WithBatchSize(n int) Option {
	return func(i *Ingestor) { i.batchSize = n }
}

// WithJournal records committed lines in j.
func WithJournal(j Journal) Option {
	return func(i *Ingestor) { i.journal = j }
}

// WithResume skips lines the journal already holds with identical content.
func WithResume(resume bool) Option {
	return func(i *Ingestor) { i.resume = resume }
}

func WithMetrics(m monitor.MetricsCollector) Option {
	return func(i *Ingestor) { i.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(i *Ingestor) { i.log = l }
}

// WithOutput sets where each processed line is echoed. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(i *Ingestor) { i.out = w }
}

func New(embedder llm.Embedder, store vector.Store, opts ...Option) *Ingestor {
	i := &Ingestor{
		embedder: embedder,
		store:    store,
		metrics:  monitor.NewNoOpCollector(),
		log:      slog.Default(),
		out:      os.Stdout,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// IngestFile ingests the file at path. The journal identifies the file by
// its absolute path.
func (i *Ingestor) IngestFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return core.NewOpError("open source", err)
	}
	defer f.Close()

	source, err := filepath.Abs(path)
	if err != nil {
		source = path
	}
	return i.Ingest(ctx, source, f)
}

// run holds the state of one Ingest call.
type run struct {
	tx       vector.Tx
	pending  []journal.Entry
	inserted int
}

// Ingest reads r line by line. Blank lines are skipped without any request.
// On failure the open transaction is rolled back; batches committed earlier
// stay committed.
func (i *Ingestor) Ingest(ctx context.Context, source string, r io.Reader) (err error) {
	if i.resume && i.journal == nil {
		return core.NewOpError("resume", fmt.Errorf("%w: resume needs a journal", core.ErrInvalidConfig))
	}

	var committed map[int]string
	if i.resume {
		committed, err = i.journal.Committed(ctx, source)
		if err != nil {
			return core.NewOpError("read journal", err)
		}
		i.log.Info("resuming ingestion", "source", source, "journaled_lines", len(committed))
	}

	st := &run{}
	defer func() {
		if st.tx != nil {
			if rbErr := st.tx.Rollback(); rbErr != nil {
				i.log.Warn("rollback failed", "error", rbErr)
			}
		}
	}()

	reader := bufio.NewReader(r)
	lineNo := 0
	for {
		raw, readErr := reader.ReadString('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return core.NewLineError("read source", lineNo+1, readErr)
		}
		if raw == "" && readErr != nil {
			break
		}
		lineNo++
		i.metrics.Add(monitor.LinesRead, 1)

		if err := i.ingestLine(ctx, st, source, lineNo, raw, committed); err != nil {
			return err
		}
		if readErr != nil {
			break
		}
	}

	if st.tx != nil {
		if err := i.commit(ctx, st); err != nil {
			return err
		}
	}
	i.log.Info("ingestion finished", "source", source, "lines", lineNo, "inserted", st.inserted)
	return nil
}

func (i *Ingestor) ingestLine(ctx context.Context, st *run, source string, lineNo int, raw string, committed map[int]string) error {
	line := strings.TrimSpace(raw)
	if line == "" {
		i.metrics.Add(monitor.BlankSkipped, 1)
		return nil
	}

	digest := journal.Digest(line)
	if prev, ok := committed[lineNo]; ok && prev == digest {
		i.metrics.Add(monitor.ResumeSkipped, 1)
		i.log.Debug("line already ingested", "line", lineNo)
		return nil
	}

	start := time.Now()
	embedding, err := i.embedder.Embed(ctx, line)
	i.metrics.Observe(monitor.StageEmbed, time.Since(start))
	if err != nil {
		return core.NewLineError("embed line", lineNo, err)
	}
	i.metrics.Add(monitor.Embedded, 1)

	start = time.Now()
	if st.tx == nil {
		st.tx, err = i.store.Begin(ctx)
		if err != nil {
			return core.NewLineError("begin transaction", lineNo, err)
		}
	}
	id, err := st.tx.Insert(ctx, line, embedding)
	i.metrics.Observe(monitor.StageStore, time.Since(start))
	if err != nil {
		return core.NewLineError("insert item", lineNo, err)
	}
	i.metrics.Add(monitor.Inserted, 1)
	st.inserted++
	i.log.Debug("inserted item", "line", lineNo, "id", id, "dims", len(embedding))

	fmt.Fprintln(i.out, line)

	st.pending = append(st.pending, journal.Entry{Source: source, Line: lineNo, Digest: digest, ItemID: id})
	if i.batchSize > 0 && len(st.pending) >= i.batchSize {
		return i.commit(ctx, st)
	}
	return nil
}

// commit makes the pending rows durable, then journals them.
func (i *Ingestor) commit(ctx context.Context, st *run) error {
	start := time.Now()
	err := st.tx.Commit()
	i.metrics.Observe(monitor.StageStore, time.Since(start))
	st.tx = nil
	if err != nil {
		return core.NewOpError("commit", err)
	}
	i.metrics.Add(monitor.Commits, 1)
	i.log.Debug("committed batch", "rows", len(st.pending))

	pending := st.pending
	st.pending = nil
	if i.journal == nil {
		return nil
	}
	if err := i.journal.Record(ctx, pending); err != nil {
		return core.NewOpError("record journal", err)
	}
	return nil
}

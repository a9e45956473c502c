// Package compare ranks the stored items against one query under the full
// embedding and under each reduced width, aligned rank by rank so the loss
// caused by reduction can be read off directly.
package compare

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hubenschmidt/pgvreduce/core"
	"github.com/hubenschmidt/pgvreduce/llm"
	"github.com/hubenschmidt/pgvreduce/monitor"
	"github.com/hubenschmidt/pgvreduce/vector"
)

const DefaultTopK = 5

// Comparison is the complete result for one query.
type Comparison struct {
	Query    string            `json:"query"`
	Baseline []vector.Neighbor `json:"baseline"`
	Reduced  []ReducedRanking  `json:"reduced"`
}

// ReducedRanking is the search at one width, aligned against the baseline.
type ReducedRanking struct {
	Width vector.Width `json:"width"`
	Rows  []AlignedRow `json:"rows"`
	// Overlap counts reduced rows whose id appears anywhere in the baseline.
	Overlap int `json:"overlap"`
}

// AlignedRow pairs the reduced result at Rank with the baseline id at the
// same rank. BaselineID is nil when the baseline has no row at that rank.
type AlignedRow struct {
	Rank       int     `json:"rank"`
	BaselineID *int64  `json:"baseline_id"`
	ID         int64   `json:"id"`
	Distance   float64 `json:"distance"`
	Content    string  `json:"content"`
	Agrees     bool    `json:"agrees"`
}

type Comparer struct {
	embedder llm.Embedder
	store    vector.Store
	topK     int
	metrics  monitor.MetricsCollector
	log      *slog.Logger
}

type Option func(*Comparer)

func WithTopK(k int) Option {
	return func(c *Comparer) { c.topK = k }
}

func WithMetrics(m monitor.MetricsCollector) Option {
	return func(c *Comparer) { c.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Comparer) { c.log = l }
}

func New(embedder llm.Embedder, store vector.Store, opts ...Option) *Comparer {
	c := &Comparer{
		embedder: embedder,
		store:    store,
		topK:     DefaultTopK,
		metrics:  monitor.NewNoOpCollector(),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compare embeds query once and runs the baseline search followed by one
// search per reduced width. No store call is made if embedding fails.
func (c *Comparer) Compare(ctx context.Context, query string) (*Comparison, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, core.NewOpError("read query", fmt.Errorf("%w: query is empty", core.ErrInvalidInput))
	}
	if c.topK < 1 {
		return nil, core.NewOpError("read query", fmt.Errorf("%w: top k must be at least 1", core.ErrInvalidConfig))
	}

	start := time.Now()
	embedding, err := c.embedder.Embed(ctx, query)
	c.metrics.Observe(monitor.StageEmbed, time.Since(start))
	if err != nil {
		return nil, core.NewOpError("embed query", err)
	}
	c.metrics.Add(monitor.Embedded, 1)

	start = time.Now()
	baseline, err := c.store.Nearest(ctx, embedding, c.topK)
	c.metrics.Observe(monitor.StageStore, time.Since(start))
	if err != nil {
		return nil, core.NewOpError("baseline search", err)
	}
	c.metrics.Add(monitor.Searches, 1)
	c.log.Debug("baseline search", "rows", len(baseline))

	result := &Comparison{Query: query, Baseline: baseline}
	for _, w := range vector.Widths {
		start = time.Now()
		reduced, err := c.store.NearestReduced(ctx, embedding, w, c.topK)
		c.metrics.Observe(monitor.StageStore, time.Since(start))
		if err != nil {
			return nil, core.NewOpError(fmt.Sprintf("reduced search %d", int(w)), err)
		}
		c.metrics.Add(monitor.Searches, 1)

		ranking := ReducedRanking{
			Width:   w,
			Rows:    Align(baseline, reduced),
			Overlap: overlap(baseline, reduced),
		}
		c.log.Debug("reduced search", "width", int(w), "rows", len(reduced), "overlap", ranking.Overlap)
		result.Reduced = append(result.Reduced, ranking)
	}
	return result, nil
}

// Align pairs reduced[i] with baseline[i]. The baseline order is never
// changed.
func Align(baseline, reduced []vector.Neighbor) []AlignedRow {
	rows := make([]AlignedRow, len(reduced))
	for i, r := range reduced {
		row := AlignedRow{Rank: i, ID: r.ID, Distance: r.Distance, Content: r.Content}
		if i < len(baseline) {
			id := baseline[i].ID
			row.BaselineID = &id
			row.Agrees = id == r.ID
		}
		rows[i] = row
	}
	return rows
}

func overlap(baseline, reduced []vector.Neighbor) int {
	ids := make(map[int64]struct{}, len(baseline))
	for _, b := range baseline {
		ids[b.ID] = struct{}{}
	}
	n := 0
	for _, r := range reduced {
		if _, ok := ids[r.ID]; ok {
			n++
		}
	}
	return n
}

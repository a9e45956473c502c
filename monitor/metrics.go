package monitor

import (
	"log/slog"
	"time"
)

// Counter names an event counted during a run.
type Counter int

const (
	LinesRead Counter = iota
	BlankSkipped
	ResumeSkipped
	Embedded
	Inserted
	Commits
	Searches
)

var counterNames = map[Counter]string{
	LinesRead:     "lines_read",
	BlankSkipped:  "blank_skipped",
	ResumeSkipped: "resume_skipped",
	Embedded:      "embedded",
	Inserted:      "inserted",
	Commits:       "commits",
	Searches:      "searches",
}

func (c Counter) String() string {
	if name, ok := counterNames[c]; ok {
		return name
	}
	return "unknown"
}

// Stage names a timed step.
type Stage int

const (
	StageEmbed Stage = iota
	StageStore
)

type RunMetrics struct {
	RunID         string          `json:"run_id"`
	Command       string          `json:"command"`
	Counts        map[Counter]int `json:"-"`
	EmbedDuration time.Duration   `json:"embed_duration"`
	StoreDuration time.Duration   `json:"store_duration"`
	StartTime     time.Time       `json:"start_time"`
	EndTime       time.Time       `json:"end_time"`
}

// Count returns the value of c, zero when never recorded.
func (m RunMetrics) Count(c Counter) int {
	return m.Counts[c]
}

// LogAttrs renders the metrics as slog attributes, skipping zero counters.
func (m RunMetrics) LogAttrs() []any {
	attrs := []any{
		slog.String("command", m.Command),
		slog.Duration("elapsed", m.EndTime.Sub(m.StartTime)),
		slog.Duration("embed", m.EmbedDuration),
		slog.Duration("store", m.StoreDuration),
	}
	for c := LinesRead; c <= Searches; c++ {
		if n := m.Counts[c]; n > 0 {
			attrs = append(attrs, slog.Int(c.String(), n))
		}
	}
	return attrs
}

// Package monitor collects per-run counters and timings.
package monitor

import (
	"sync"
	"time"
)

type MetricsCollector interface {
	Add(c Counter, n int)
	Observe(s Stage, d time.Duration)
	Flush() RunMetrics
}

type InMemoryCollector struct {
	mu        sync.RWMutex
	runID     string
	command   string
	counts    map[Counter]int
	durations map[Stage]time.Duration
	startTime time.Time
}

func NewInMemoryCollector(runID, command string) *InMemoryCollector {
	return &InMemoryCollector{
		runID:     runID,
		command:   command,
		counts:    make(map[Counter]int),
		durations: make(map[Stage]time.Duration),
		startTime: time.Now(),
	}
}

func (c *InMemoryCollector) Add(counter Counter, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[counter] += n
}

func (c *InMemoryCollector) Observe(stage Stage, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.durations[stage] += d
}

func (c *InMemoryCollector) Flush() RunMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	counts := make(map[Counter]int, len(c.counts))
	for k, v := range c.counts {
		counts[k] = v
	}

	return RunMetrics{
		RunID:         c.runID,
		Command:       c.command,
		Counts:        counts,
		EmbedDuration: c.durations[StageEmbed],
		StoreDuration: c.durations[StageStore],
		StartTime:     c.startTime,
		EndTime:       time.Now(),
	}
}

func (c *InMemoryCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts = make(map[Counter]int)
	c.durations = make(map[Stage]time.Duration)
	c.startTime = time.Now()
}

type NoOpCollector struct{}

func NewNoOpCollector() *NoOpCollector {
	return &NoOpCollector{}
}

func (c *NoOpCollector) Add(counter Counter, n int) {}

func (c *NoOpCollector) Observe(stage Stage, d time.Duration) {}

func (c *NoOpCollector) Flush() RunMetrics {
	return RunMetrics{}
}

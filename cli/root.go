// Package cli is the pgvreduce command tree.
package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hubenschmidt/pgvreduce/config"
	"github.com/hubenschmidt/pgvreduce/llm"
	"github.com/hubenschmidt/pgvreduce/logging"
	"github.com/hubenschmidt/pgvreduce/monitor"
	"github.com/hubenschmidt/pgvreduce/vector"
)

var version = "dev"

var (
	configPath       string
	flagDatabaseURL  string
	flagEmbeddingURL string
	flagModel        string
	flagDimensions   int
	flagLogLevel     string
	flagLogFormat    string
)

var rootCmd = &cobra.Command{
	Use:   "pgvreduce",
	Short: "Compare nearest-neighbor rankings of full and reduced embeddings",
	Long: `pgvreduce stores text lines with their embedding and three reduced copies
(256, 512 and 1024 dimensions) computed by the database, then shows how
nearest-neighbor rankings change at each reduced width.`,
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "path to a TOML config file")
	flags.StringVar(&flagDatabaseURL, "database-url", config.DefaultDatabaseURL, "PostgreSQL connection string")
	flags.StringVar(&flagEmbeddingURL, "embedding-url", config.DefaultEmbeddingURL, "embedding service base URL")
	flags.StringVar(&flagModel, "model", config.DefaultModel, "embedding model")
	flags.IntVar(&flagDimensions, "dimensions", config.DefaultDimensions, "expected embedding width (0 disables the check)")
	flags.StringVar(&flagLogLevel, "log-level", config.DefaultLogLevel, "log level: debug, info, warn, error")
	flags.StringVar(&flagLogFormat, "log-format", config.DefaultLogFormat, "log format: text or json")
}

// Execute runs the command tree with ctx.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// vectorStore is the store surface the commands need.
type vectorStore interface {
	vector.Store
	EnsureSchema(ctx context.Context, dimensions int) error
	Verify(ctx context.Context, tolerance float64) ([]vector.Derivation, error)
}

// openStore and newEmbedder are swapped out in tests.
var openStore = func(ctx context.Context, dsn string) (vectorStore, error) {
	s, err := vector.NewPgVectorStore(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return s, nil
}

var newEmbedder = func(cfg config.Config) llm.Embedder {
	return llm.NewOllamaEmbedClient(llm.ClientConfig{
		BaseURL:           cfg.EmbeddingURL,
		Model:             cfg.Model,
		Dimensions:        cfg.Dimensions,
		Timeout:           time.Duration(cfg.EmbeddingTimeout),
		RequestsPerSecond: cfg.RequestsPerSecond,
	})
}

// runEnv carries what every command run shares.
type runEnv struct {
	cfg     config.Config
	log     *slog.Logger
	metrics *monitor.InMemoryCollector
}

func newRun(cmd *cobra.Command, name string) (*runEnv, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	log := logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr()).
		With("run_id", runID, "command", name)

	return &runEnv{
		cfg:     cfg,
		log:     log,
		metrics: monitor.NewInMemoryCollector(runID, name),
	}, nil
}

func (r *runEnv) finish() {
	r.log.Info("run finished", r.metrics.Flush().LogAttrs()...)
}

// loadConfig layers explicitly set flags over the file and environment.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}

	if changed(cmd, "database-url") {
		cfg.DatabaseURL = flagDatabaseURL
	}
	if changed(cmd, "embedding-url") {
		cfg.EmbeddingURL = flagEmbeddingURL
	}
	if changed(cmd, "model") {
		cfg.Model = flagModel
	}
	if changed(cmd, "dimensions") {
		cfg.Dimensions = flagDimensions
	}
	if changed(cmd, "log-level") {
		cfg.LogLevel = flagLogLevel
	}
	if changed(cmd, "log-format") {
		cfg.LogFormat = flagLogFormat
	}
	if changed(cmd, "batch-size") {
		cfg.BatchSize = ingestBatchSize
	}
	if changed(cmd, "journal") {
		cfg.JournalPath = ingestJournal
	}
	if changed(cmd, "top-k") {
		cfg.TopK = askTopK
	}
	if changed(cmd, "tolerance") {
		cfg.Tolerance = verifyTolerance
	}

	return cfg, cfg.Validate()
}

func changed(cmd *cobra.Command, name string) bool {
	f := cmd.Flags().Lookup(name)
	return f != nil && f.Changed
}

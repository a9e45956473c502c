package cli

import (
	"github.com/spf13/cobra"

	"github.com/hubenschmidt/pgvreduce/ingest"
	"github.com/hubenschmidt/pgvreduce/journal"
)

var (
	ingestBatchSize int
	ingestJournal   string
	ingestResume    bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Store every non-blank line of a file with its embeddings",
	Long: `Reads a newline-delimited text file, embeds each non-blank line and inserts
it into the items table together with its 256, 512 and 1024 dimension
reductions computed by the database. By default all rows are committed once
at the end; --batch-size commits as it goes and --journal/--resume allow an
interrupted run to continue where it stopped.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().IntVar(&ingestBatchSize, "batch-size", 0, "commit after this many rows (0 commits once at the end)")
	ingestCmd.Flags().StringVar(&ingestJournal, "journal", "", "SQLite file recording committed lines")
	ingestCmd.Flags().BoolVar(&ingestResume, "resume", false, "skip lines already recorded in the journal")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	run, err := newRun(cmd, "ingest")
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	store, err := openStore(ctx, run.cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := []ingest.Option{
		ingest.WithBatchSize(run.cfg.BatchSize),
		ingest.WithResume(ingestResume),
		ingest.WithMetrics(run.metrics),
		ingest.WithLogger(run.log),
		ingest.WithOutput(cmd.OutOrStdout()),
	}
	if run.cfg.JournalPath != "" {
		j, err := journal.Open(run.cfg.JournalPath)
		if err != nil {
			return err
		}
		defer j.Close()
		opts = append(opts, ingest.WithJournal(j))
	}

	ingestor := ingest.New(newEmbedder(run.cfg), store, opts...)
	if err := ingestor.IngestFile(ctx, args[0]); err != nil {
		return err
	}
	run.finish()
	return nil
}

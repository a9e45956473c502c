package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hubenschmidt/pgvreduce/config"
	"github.com/hubenschmidt/pgvreduce/core"
)

var verifyTolerance float64

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that every reduced vector matches its stored embedding",
	Long: `Recomputes vector_norm_reduce(embedding, W) for every row and width and
compares it with the stored norm_W column. Prints "width total mismatched"
per width and fails if any row disagrees.`,
	Args: cobra.NoArgs,
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().Float64Var(&verifyTolerance, "tolerance", config.DefaultTolerance, "maximum distance between stored and recomputed vectors")
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, _ []string) error {
	run, err := newRun(cmd, "verify")
	if err != nil {
		return err
	}

	store, err := openStore(cmd.Context(), run.cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()

	report, err := store.Verify(cmd.Context(), run.cfg.Tolerance)
	if err != nil {
		return err
	}

	var bad int64
	for _, d := range report {
		fmt.Fprintf(cmd.OutOrStdout(), "%d %d %d\n", int(d.Width), d.Total, d.Mismatched)
		bad += d.Mismatched
	}
	if bad > 0 {
		return fmt.Errorf("%w: %d mismatched vectors", core.ErrDerivationMismatch, bad)
	}
	return nil
}

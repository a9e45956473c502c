package cli

import (
	"github.com/spf13/cobra"

	"github.com/hubenschmidt/pgvreduce/compare"
)

var (
	askTopK int
	askJSON bool
)

var askCmd = &cobra.Command{
	Use:   "ask <query>",
	Short: "Compare full and reduced nearest-neighbor rankings for a query",
	Long: `Embeds the query, ranks the stored items by distance to the full embedding,
then ranks them again in each reduced space (256, 512, 1024). Every reduced
result is printed next to the baseline id at the same rank.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", compare.DefaultTopK, "number of neighbors per search")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the comparison as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	run, err := newRun(cmd, "ask")
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	store, err := openStore(ctx, run.cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()

	comparer := compare.New(newEmbedder(run.cfg), store,
		compare.WithTopK(run.cfg.TopK),
		compare.WithMetrics(run.metrics),
		compare.WithLogger(run.log),
	)

	result, err := comparer.Compare(ctx, args[0])
	if err != nil {
		return err
	}

	if askJSON {
		err = compare.WriteJSON(cmd.OutOrStdout(), result)
	} else {
		err = compare.WriteText(cmd.OutOrStdout(), result)
	}
	if err != nil {
		return err
	}
	run.finish()
	return nil
}

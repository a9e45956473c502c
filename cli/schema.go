package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Create the vector extension and the items table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		run, err := newRun(cmd, "schema")
		if err != nil {
			return err
		}

		store, err := openStore(cmd.Context(), run.cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.EnsureSchema(cmd.Context(), run.cfg.Dimensions); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "items table ready (embedding width %d)\n", run.cfg.Dimensions)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}

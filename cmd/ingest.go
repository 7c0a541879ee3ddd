package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/recall-ingest/internal/server"
)

func newIngestCmd(root *rootOptions) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run one ingestion pass and print the report",
		Long: `Run every source once, store new recalls and print the JSON report.
With --dry-run the recalls are kept in memory and nothing is written.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			app, err := buildApp(cmd.Context(), cfg, server.Options{DryRun: dryRun})
			if err != nil {
				return err
			}
			defer app.Close()

			report, err := app.Service().Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("ingestion run: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "use an in-memory store instead of the database")
	return cmd
}

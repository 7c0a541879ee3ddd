package cmd

import (
	"github.com/spf13/cobra"

	"github.com/JakeFAU/recall-ingest/internal/server"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP trigger and read API",
		Long: `Start an HTTP server. Any request to / or /v1/ingest runs one ingestion
pass and answers with the run report. Search, latest-recall and alert signup
routes live under /v1.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			app, err := buildApp(cmd.Context(), cfg, server.Options{})
			if err != nil {
				return err
			}
			return app.Run(cmd.Context())
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "port to listen on (overrides server.port)")
	return cmd
}

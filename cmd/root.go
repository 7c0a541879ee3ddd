// Package cmd defines the recall-ingest command line.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/recall-ingest/internal/config"
	"github.com/JakeFAU/recall-ingest/internal/server"
)

// buildApp is the application factory.
var buildApp = server.Build

type rootOptions struct {
	configPath string
}

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "recall-ingest",
		Short: "Collects product recalls from FDA, CPSC and NHTSA into one store.",
		Long: `recall-ingest pulls recent recalls from the FDA enforcement API, the CPSC
news feed and the NHTSA recall endpoints, normalizes them into one record
shape and stores each (title, source) pair once.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (YAML); environment overrides it")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newIngestCmd(opts))
	return cmd
}

func (o *rootOptions) load() (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// Execute is the main entry point.
func Execute() {
	// A .env file is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

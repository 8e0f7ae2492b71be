package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/artpar/relayledger/bootstrap"
	"github.com/artpar/relayledger/config"
)

var (
	hotReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the scheduled sweep",
	Long: `Start the relayledger server.

The server will:
  - Load configuration from relayledger.yaml (or --config)
  - Or load configuration from RELAYLEDGER_* environment variables
  - Connect to the database and apply migrations
  - Serve the /v1 API, Stripe webhooks, /health and /metrics
  - Run the suspension sweep on sweep.schedule when sweep.enabled is set

Billing thresholds and the log level reload on file change or SIGHUP.

Examples:
  relayledger serve
  relayledger serve --config /etc/relayledger/relayledger.yaml
  RELAYLEDGER_DATABASE_DRIVER=postgres RELAYLEDGER_DATABASE_DSN=postgres://... relayledger serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "reload thresholds and log level when the config file changes")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	opts := bootstrap.Options{Version: version}

	var cfg *config.Config
	if _, err := os.Stat(cfgFile); err == nil && hotReload {
		holder, err := config.NewHolder(cfgFile, zerolog.New(os.Stderr).With().Timestamp().Logger())
		if err != nil {
			return err
		}
		opts.Holder = holder
		cfg = holder.Get()
	} else {
		if cfg, err = loadConfig(); err != nil {
			return err
		}
	}

	a, err := bootstrap.New(ctx, cfg, opts)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	return a.Run(ctx)
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artpar/relayledger/bootstrap"
	"github.com/artpar/relayledger/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Long: `Apply the schema for the configured database driver.

Migrations are idempotent; running them against an up-to-date database
changes nothing.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := bootstrap.NewLogger(cfg.Logging, cmd.ErrOrStderr())

	// OpenStores migrates as part of opening.
	stores, err := bootstrap.OpenStores(cmd.Context(), cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer stores.Close()

	fmt.Fprintf(cmd.OutOrStdout(), "Schema is up to date (%s)\n", describeDatabase(cfg.Database))
	return nil
}

func describeDatabase(db config.DatabaseConfig) string {
	if db.Driver == "postgres" {
		return "postgres"
	}
	if db.Driver == "memory" {
		return "memory"
	}
	return db.Driver + ": " + db.DSN
}

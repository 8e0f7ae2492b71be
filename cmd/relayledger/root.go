package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/artpar/relayledger/bootstrap"
	"github.com/artpar/relayledger/config"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "relayledger",
	Short: "Usage ledger and payment status engine for RPC relay endpoints",
	Long: `relayledger records daily relay usage per endpoint and keeps each
organization's payment status in step with its overdue invoices, suspending
and reinstating endpoints as invoices age or get paid.

Quick start:
  relayledger migrate   # Create or update the schema
  relayledger serve     # Start the HTTP API and scheduled sweep

Operations:
  relayledger sweep     # Re-evaluate every organization once
  relayledger status    # Show an organization's payment status
  relayledger invoice   # Mark invoices paid or failed
  relayledger usage     # Record or inspect endpoint usage`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "relayledger.yaml", "config file path")
}

// loadConfig reads --config, falling back to RELAYLEDGER_* variables when
// the file does not exist.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// openApp wires the application for a one-shot command. Logs go to stderr so
// command output stays clean.
func openApp(ctx context.Context) (*bootstrap.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Database.Driver == "memory" {
		fmt.Fprintln(os.Stderr, "warning: database.driver is memory; nothing will persist after this command")
	}
	// keep one-shot commands quiet unless asked
	if cfg.Logging.Level == "info" {
		cfg.Logging.Level = "warn"
	}
	return bootstrap.New(ctx, cfg, bootstrap.Options{
		LogOutput: os.Stderr,
		Version:   version,
	})
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artpar/relayledger/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a configuration file without starting anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s is valid\n", cfgFile)
		fmt.Fprintf(out, "  database:   %s\n", describeDatabase(cfg.Database))
		fmt.Fprintf(out, "  thresholds: grace=%d past_due=%d final_warning=%d delinquent=%d\n",
			cfg.Billing.Thresholds.Grace, cfg.Billing.Thresholds.PastDue,
			cfg.Billing.Thresholds.FinalWarning, cfg.Billing.Thresholds.Delinquent)
		if cfg.Sweep.Enabled {
			fmt.Fprintf(out, "  sweep:      %s\n", cfg.Sweep.Schedule)
		} else {
			fmt.Fprintln(out, "  sweep:      disabled")
		}
		fmt.Fprintf(out, "  notify:     %s\n", cfg.Notify.Provider)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

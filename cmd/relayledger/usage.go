package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/artpar/relayledger/domain/usage"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Record or inspect endpoint usage",
	Long: `Record relay usage for an endpoint or show its daily aggregates.

Examples:
  relayledger usage record --endpoint=ep_123 --relays=1000 --latency=120
  relayledger usage show ep_123 --from=2026-01-01 --to=2026-01-31`,
}

var usageRecordCmd = &cobra.Command{
	Use:   "record",
	Short: "Merge one usage event into its day's aggregate",
	RunE:  runUsageRecord,
}

var usageShowCmd = &cobra.Command{
	Use:   "show <endpoint-id>",
	Short: "Show daily usage for an endpoint",
	Args:  cobra.ExactArgs(1),
	RunE:  runUsageShow,
}

var (
	usageEndpoint  string
	usageRelays    int64
	usageLatency   int64
	usageErrorRate float64
	usageAt        string
	usageFrom      string
	usageTo        string
)

func init() {
	rootCmd.AddCommand(usageCmd)
	usageCmd.AddCommand(usageRecordCmd)
	usageCmd.AddCommand(usageShowCmd)

	usageRecordCmd.Flags().StringVar(&usageEndpoint, "endpoint", "", "endpoint ID (required)")
	usageRecordCmd.Flags().Int64Var(&usageRelays, "relays", 0, "relays served")
	usageRecordCmd.Flags().Int64Var(&usageLatency, "latency", 0, "average latency in milliseconds")
	usageRecordCmd.Flags().Float64Var(&usageErrorRate, "error-rate", 0, "error fraction between 0 and 1")
	usageRecordCmd.Flags().StringVar(&usageAt, "at", "", "event time, RFC3339 (default now)")
	usageRecordCmd.MarkFlagRequired("endpoint")

	usageShowCmd.Flags().StringVar(&usageFrom, "from", "", "first day YYYY-MM-DD (default 30 days ago)")
	usageShowCmd.Flags().StringVar(&usageTo, "to", "", "last day YYYY-MM-DD (default today)")
}

func runUsageRecord(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	at := time.Now().UTC()
	if usageAt != "" {
		if at, err = time.Parse(time.RFC3339, usageAt); err != nil {
			return fmt.Errorf("invalid --at %q: want RFC3339", usageAt)
		}
	}

	e := usage.Event{
		EndpointID: usageEndpoint,
		Relays:     usageRelays,
		LatencyMs:  usageLatency,
		ErrorRate:  usageErrorRate,
		Timestamp:  at,
	}
	if err := a.Usage.Record(ctx, e); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Recorded %d relays for %s on %s\n", e.Relays, e.EndpointID, e.Day())
	return nil
}

func runUsageShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	now := time.Now().UTC()
	from, to := usageFrom, usageTo
	if to == "" {
		to = usage.DayOf(now)
	}
	if from == "" {
		from = usage.DayOf(now.AddDate(0, 0, -29))
	}

	endpointID := args[0]
	rows, err := a.Usage.Daily(ctx, endpointID, from, to)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(rows) == 0 {
		fmt.Fprintf(out, "No usage for %s between %s and %s.\n", endpointID, from, to)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DAY\tRELAYS\tAVG LATENCY\tERROR RATE")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%d\t%dms\t%.2f%%\n", r.Day, r.Relays, r.AvgLatencyMs, r.ErrorRate*100)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	sum, err := a.Usage.Summary(ctx, endpointID, from, to)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d relays over %d days, %dms average latency\n", sum.Relays, sum.Days, sum.AvgLatencyMs)
	return nil
}

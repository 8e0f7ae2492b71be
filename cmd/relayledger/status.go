package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artpar/relayledger/domain/billing"
)

var statusCmd = &cobra.Command{
	Use:   "status <org-id>",
	Short: "Show an organization's payment status",
	Long: `Show the stored payment status of an organization together with its
live days overdue and balance.

With --refresh the status is recomputed first, which may suspend or
reinstate the organization's endpoints.

Examples:
  relayledger status org_123
  relayledger status org_123 --refresh`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

var statusRefresh bool

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVar(&statusRefresh, "refresh", false, "recompute the status before showing it")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	orgID := args[0]
	out := cmd.OutOrStdout()

	if statusRefresh {
		t, err := a.Payments.UpdatePaymentStatus(ctx, orgID)
		if err != nil {
			return fmt.Errorf("refresh status: %w", err)
		}
		printTransition(cmd, t)
	}

	view, err := a.Payments.GetPaymentStatus(ctx, orgID)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
	}

	fmt.Fprintf(out, "Organization:    %s\n", view.OrgID)
	fmt.Fprintf(out, "Status:          %s\n", view.Status)
	fmt.Fprintf(out, "Days overdue:    %d\n", view.DaysOverdue)
	fmt.Fprintf(out, "Balance due:     %s\n", billing.FormatAmount(view.BalanceDue))
	fmt.Fprintf(out, "Can use service: %t\n", view.CanUseService)
	if view.SuspendedAt != nil {
		fmt.Fprintf(out, "Suspended at:    %s\n", view.SuspendedAt.UTC().Format("2006-01-02 15:04:05"))
	}
	if view.WarningMessage != "" {
		fmt.Fprintf(out, "\n%s\n", view.WarningMessage)
	}
	return nil
}

func printTransition(cmd *cobra.Command, t billing.Transition) {
	out := cmd.OutOrStdout()
	if !t.Changed() {
		fmt.Fprintf(out, "%s: %s (unchanged, %d days overdue)\n", t.OrgID, t.To, t.DaysOverdue)
		return
	}
	fmt.Fprintf(out, "%s: %s -> %s (%d days overdue", t.OrgID, t.From, t.To, t.DaysOverdue)
	if t.Cascade != billing.CascadeNone {
		fmt.Fprintf(out, ", endpoints %s", cascadeVerb(t.Cascade))
	}
	fmt.Fprintln(out, ")")
}

func cascadeVerb(c billing.Cascade) string {
	switch c {
	case billing.CascadeSuspend:
		return "suspended"
	case billing.CascadeReinstate:
		return "reinstated"
	}
	return string(c)
}

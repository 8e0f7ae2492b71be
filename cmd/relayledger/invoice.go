package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/artpar/relayledger/app"
	"github.com/artpar/relayledger/domain/billing"
)

var invoiceCmd = &cobra.Command{
	Use:   "invoice",
	Short: "Manage invoices",
	Long: `Create invoices and record their payment outcome.

Marking an invoice re-evaluates its organization immediately.

Examples:
  relayledger invoice create --org=org_123 --amount=499.00 --due=2026-01-31
  relayledger invoice list --org=org_123
  relayledger invoice paid inv_123
  relayledger invoice failed inv_123`,
}

var invoicePaidCmd = &cobra.Command{
	Use:   "paid <invoice-id>",
	Short: "Mark an invoice paid",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInvoiceMark(cmd, args[0], true)
	},
}

var invoiceFailedCmd = &cobra.Command{
	Use:   "failed <invoice-id>",
	Short: "Mark an invoice uncollectible",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInvoiceMark(cmd, args[0], false)
	},
}

var invoiceCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an open invoice",
	RunE:  runInvoiceCreate,
}

var invoiceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List an organization's invoices",
	RunE:  runInvoiceList,
}

var (
	invoiceOrgID      string
	invoiceAmount     float64
	invoiceCurrency   string
	invoiceDue        string
	invoiceProviderID string
)

func init() {
	rootCmd.AddCommand(invoiceCmd)

	invoiceCmd.AddCommand(invoicePaidCmd)
	invoiceCmd.AddCommand(invoiceFailedCmd)
	invoiceCmd.AddCommand(invoiceCreateCmd)
	invoiceCmd.AddCommand(invoiceListCmd)

	invoiceCreateCmd.Flags().StringVar(&invoiceOrgID, "org", "", "organization ID (required)")
	invoiceCreateCmd.Flags().Float64Var(&invoiceAmount, "amount", 0, "amount in currency units")
	invoiceCreateCmd.Flags().StringVar(&invoiceCurrency, "currency", "", "currency code (default billing.currency)")
	invoiceCreateCmd.Flags().StringVar(&invoiceDue, "due", "", "due date YYYY-MM-DD (required)")
	invoiceCreateCmd.Flags().StringVar(&invoiceProviderID, "provider-id", "", "payment provider invoice ID, e.g. in_...")
	invoiceCreateCmd.MarkFlagRequired("org")
	invoiceCreateCmd.MarkFlagRequired("due")

	invoiceListCmd.Flags().StringVar(&invoiceOrgID, "org", "", "organization ID (required)")
	invoiceListCmd.MarkFlagRequired("org")
}

func runInvoiceMark(cmd *cobra.Command, invoiceID string, paid bool) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var t billing.Transition
	if paid {
		t, err = a.Payments.MarkInvoicePaid(ctx, invoiceID)
	} else {
		t, err = a.Payments.MarkInvoiceFailed(ctx, invoiceID)
	}
	if err != nil {
		return fmt.Errorf("mark invoice %s: %w", invoiceID, err)
	}
	printTransition(cmd, t)
	return nil
}

func runInvoiceCreate(cmd *cobra.Command, args []string) error {
	due, err := time.Parse("2006-01-02", invoiceDue)
	if err != nil {
		return fmt.Errorf("invalid --due %q: want YYYY-MM-DD", invoiceDue)
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	currency := invoiceCurrency
	if currency == "" {
		currency = a.Config.Billing.Currency
	}
	inv, err := a.Accounts.CreateInvoice(ctx, app.NewInvoice{
		OrgID:      invoiceOrgID,
		ProviderID: invoiceProviderID,
		Amount:     invoiceAmount,
		Currency:   currency,
		DueDate:    due,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created invoice %s (%s due %s)\n",
		inv.ID, billing.FormatAmount(inv.Amount), inv.DueDate.Format("2006-01-02"))
	return nil
}

func runInvoiceList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	invoices, err := a.Accounts.ListInvoices(ctx, invoiceOrgID)
	if err != nil {
		return err
	}
	if len(invoices) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No invoices.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tAMOUNT\tDUE\tPROVIDER ID")
	for _, inv := range invoices {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			inv.ID, inv.Status, billing.FormatAmount(inv.Amount), inv.DueDate.Format("2006-01-02"), inv.ProviderID)
	}
	return w.Flush()
}

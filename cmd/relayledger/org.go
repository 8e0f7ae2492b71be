package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var orgCmd = &cobra.Command{
	Use:   "org",
	Short: "Manage organizations and their endpoints",
	Long: `Create organizations, suspend or reinstate them by hand, and manage
their endpoints.

Examples:
  relayledger org create --name="Acme" --email=billing@acme.test
  relayledger org suspend org_123 --reason="chargeback"
  relayledger org reinstate org_123
  relayledger org endpoints org_123
  relayledger org add-endpoint org_123 --name=mainnet`,
}

var orgCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an organization",
	RunE:  runOrgCreate,
}

var orgSuspendCmd = &cobra.Command{
	Use:   "suspend <org-id>",
	Short: "Suspend an organization and its endpoints",
	Args:  cobra.ExactArgs(1),
	RunE:  runOrgSuspend,
}

var orgReinstateCmd = &cobra.Command{
	Use:   "reinstate <org-id>",
	Short: "Reinstate a suspended organization",
	Args:  cobra.ExactArgs(1),
	RunE:  runOrgReinstate,
}

var orgEndpointsCmd = &cobra.Command{
	Use:   "endpoints <org-id>",
	Short: "List an organization's endpoints",
	Args:  cobra.ExactArgs(1),
	RunE:  runOrgEndpoints,
}

var orgAddEndpointCmd = &cobra.Command{
	Use:   "add-endpoint <org-id>",
	Short: "Create an endpoint for an organization",
	Args:  cobra.ExactArgs(1),
	RunE:  runOrgAddEndpoint,
}

var (
	orgName         string
	orgEmail        string
	orgReason       string
	orgEndpointName string
)

func init() {
	rootCmd.AddCommand(orgCmd)
	orgCmd.AddCommand(orgCreateCmd)
	orgCmd.AddCommand(orgSuspendCmd)
	orgCmd.AddCommand(orgReinstateCmd)
	orgCmd.AddCommand(orgEndpointsCmd)
	orgCmd.AddCommand(orgAddEndpointCmd)

	orgCreateCmd.Flags().StringVar(&orgName, "name", "", "organization name (required)")
	orgCreateCmd.Flags().StringVar(&orgEmail, "email", "", "billing email for notices")
	orgCreateCmd.MarkFlagRequired("name")

	orgSuspendCmd.Flags().StringVar(&orgReason, "reason", "", "suspension reason")

	orgAddEndpointCmd.Flags().StringVar(&orgEndpointName, "name", "", "endpoint name (required)")
	orgAddEndpointCmd.MarkFlagRequired("name")
}

func runOrgCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	org, err := a.Accounts.CreateOrganization(ctx, orgName, orgEmail)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created organization %s (%s)\n", org.ID, org.Name)
	return nil
}

func runOrgSuspend(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	t, err := a.Payments.Suspend(ctx, args[0], orgReason)
	if err != nil {
		return fmt.Errorf("suspend %s: %w", args[0], err)
	}
	printTransition(cmd, t)
	return nil
}

func runOrgReinstate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	t, err := a.Payments.Reinstate(ctx, args[0])
	if err != nil {
		return fmt.Errorf("reinstate %s: %w", args[0], err)
	}
	printTransition(cmd, t)
	return nil
}

func runOrgEndpoints(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	eps, err := a.Accounts.ListEndpoints(ctx, args[0])
	if err != nil {
		return err
	}
	if len(eps) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No endpoints.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tACTIVE\tCREATED")
	for _, ep := range eps {
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", ep.ID, ep.Name, ep.IsActive, ep.CreatedAt.Format("2006-01-02"))
	}
	return w.Flush()
}

func runOrgAddEndpoint(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	ep, err := a.Accounts.CreateEndpoint(ctx, args[0], orgEndpointName)
	if err != nil {
		return err
	}
	state := "active"
	if !ep.IsActive {
		state = "inactive, organization is suspended"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created endpoint %s (%s)\n", ep.ID, state)
	return nil
}

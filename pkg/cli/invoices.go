package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInvoicesCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invoices",
		Short: "Inspect the tenant's invoices",
	}
	cmd.AddCommand(newInvoicesListCommand(opts))
	cmd.AddCommand(newInvoicesShowCommand(opts))
	return cmd
}

func newInvoicesListCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List invoices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, client, err := tenantSubscriptions(opts)
			if err != nil {
				return err
			}
			invoices, err := client.GetInvoices(cmd.Context(), tenantID)
			if err != nil {
				return fmt.Errorf("failed to list invoices: %w", err)
			}

			if opts.json {
				return printJSON(cmd.OutOrStdout(), invoices)
			}
			tw := newTable(cmd.OutOrStdout(), "ID", "NUMBER", "AMOUNT", "STATUS", "CREATED", "PAID")
			for _, inv := range invoices {
				row(tw, inv.ID, inv.Number, money(inv.Amount, inv.Currency), inv.Status, date(inv.CreatedAt), optionalDate(inv.PaidAt))
			}
			return tw.Flush()
		},
	}
}

func newInvoicesShowCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show <invoiceId>",
		Short: "Show one invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, client, err := tenantSubscriptions(opts)
			if err != nil {
				return err
			}
			inv, err := client.GetInvoice(cmd.Context(), tenantID, args[0])
			if err != nil {
				return fmt.Errorf("failed to get invoice: %w", err)
			}

			out := cmd.OutOrStdout()
			if opts.json {
				return printJSON(out, inv)
			}
			fmt.Fprintf(out, "Invoice %s (%s)\n", inv.Number, inv.ID)
			fmt.Fprintf(out, "Amount:  %s\n", money(inv.Amount, inv.Currency))
			fmt.Fprintf(out, "Status:  %s\n", inv.Status)
			fmt.Fprintf(out, "Created: %s\n", date(inv.CreatedAt))
			fmt.Fprintf(out, "Due:     %s\n", optionalDate(inv.DueDate))
			fmt.Fprintf(out, "Paid:    %s\n", optionalDate(inv.PaidAt))
			if inv.PDFURL != "" {
				fmt.Fprintf(out, "PDF:     %s\n", inv.PDFURL)
			}
			return nil
		},
	}
}

package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/edpsych-connect/connect/pkg/subscriptions"
)

func newSubscriptionCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "subscription",
		Aliases: []string{"sub"},
		Short:   "Manage the tenant's subscription",
	}
	cmd.AddCommand(newSubscriptionShowCommand(opts))
	cmd.AddCommand(newSubscriptionQuantityCommand(opts))
	cmd.AddCommand(newSubscriptionCancelCommand(opts))
	cmd.AddCommand(newSubscriptionReactivateCommand(opts))
	cmd.AddCommand(newSubscriptionCheckoutCommand(opts))
	cmd.AddCommand(newSubscriptionPortalCommand(opts))
	return cmd
}

// tenantSubscriptions resolves the --tenant flag and a subscription client
func tenantSubscriptions(opts *options) (string, *subscriptions.Client, error) {
	tenantID, err := opts.requireTenant()
	if err != nil {
		return "", nil, err
	}
	client, err := opts.subscriptions()
	if err != nil {
		return "", nil, err
	}
	return tenantID, client, nil
}

func newSubscriptionShowCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current subscription",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, client, err := tenantSubscriptions(opts)
			if err != nil {
				return err
			}
			sub, err := client.GetCurrentSubscription(cmd.Context(), tenantID)
			if err != nil {
				return fmt.Errorf("failed to get subscription: %w", err)
			}

			out := cmd.OutOrStdout()
			if opts.json {
				return printJSON(out, sub)
			}
			if sub == nil {
				color.New(color.FgYellow).Fprintf(out, "Tenant %s has no subscription\n", tenantID)
				return nil
			}
			printSubscription(out, sub)
			return nil
		},
	}
}

func newSubscriptionQuantityCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "quantity <seats>",
		Short: "Change the number of seats",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			quantity, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid seat count %q", args[0])
			}
			tenantID, client, err := tenantSubscriptions(opts)
			if err != nil {
				return err
			}
			sub, err := client.UpdateSubscriptionQuantity(cmd.Context(), tenantID, quantity)
			if err != nil {
				return fmt.Errorf("failed to update quantity: %w", err)
			}
			return reportSubscription(cmd, opts, sub, "Seats set to %d", sub.Quantity)
		},
	}
}

func newSubscriptionCancelCommand(opts *options) *cobra.Command {
	var now bool

	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel at the end of the billing period",
		Long: `Cancel the subscription at the end of the current billing period. With
--now the subscription is canceled immediately.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, client, err := tenantSubscriptions(opts)
			if err != nil {
				return err
			}
			sub, err := client.CancelSubscription(cmd.Context(), tenantID, !now)
			if err != nil {
				return fmt.Errorf("failed to cancel subscription: %w", err)
			}
			if sub.CancelAtPeriodEnd {
				return reportSubscription(cmd, opts, sub, "Subscription ends on %s", date(sub.CurrentPeriodEnd))
			}
			return reportSubscription(cmd, opts, sub, "Subscription canceled")
		},
	}

	cmd.Flags().BoolVar(&now, "now", false, "Cancel immediately instead of at period end")
	return cmd
}

func newSubscriptionReactivateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reactivate",
		Short: "Undo a pending cancellation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, client, err := tenantSubscriptions(opts)
			if err != nil {
				return err
			}
			sub, err := client.ReactivateSubscription(cmd.Context(), tenantID)
			if err != nil {
				return fmt.Errorf("failed to reactivate subscription: %w", err)
			}
			return reportSubscription(cmd, opts, sub, "Subscription reactivated")
		},
	}
}

func newSubscriptionCheckoutCommand(opts *options) *cobra.Command {
	var data subscriptions.CreateCheckoutSessionData
	var interval string

	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Start a checkout for a new subscription",
		Example: `  connect subscription checkout --tenant school-1 --plan standard --quantity 12 \
    --success-url https://app.example.com/billing/done --cancel-url https://app.example.com/billing`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, client, err := tenantSubscriptions(opts)
			if err != nil {
				return err
			}
			data.BillingInterval = subscriptions.BillingInterval(interval)
			session, err := client.CreateCheckoutSession(cmd.Context(), tenantID, data)
			if err != nil {
				return fmt.Errorf("failed to create checkout session: %w", err)
			}

			out := cmd.OutOrStdout()
			if opts.json {
				return printJSON(out, session)
			}
			success(out, "Checkout session %s created", session.SessionID)
			fmt.Fprintln(out, session.CheckoutURL)
			return nil
		},
	}

	cmd.Flags().StringVar(&data.PlanID, "plan", "", "Plan id")
	cmd.Flags().StringVar(&interval, "interval", string(subscriptions.IntervalMonthly), "Billing interval: monthly, quarterly or annual")
	cmd.Flags().IntVar(&data.Quantity, "quantity", 1, "Number of seats")
	cmd.Flags().StringVar(&data.SuccessURL, "success-url", "", "Where the provider sends the user after paying")
	cmd.Flags().StringVar(&data.CancelURL, "cancel-url", "", "Where the provider sends the user on abandoning checkout")
	_ = cmd.MarkFlagRequired("plan")

	return cmd
}

func newSubscriptionPortalCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "portal",
		Short: "Open a billing portal session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, client, err := tenantSubscriptions(opts)
			if err != nil {
				return err
			}
			session, err := client.CreateBillingPortalSession(cmd.Context(), tenantID)
			if err != nil {
				return fmt.Errorf("failed to create portal session: %w", err)
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), session)
			}
			fmt.Fprintln(cmd.OutOrStdout(), session.PortalURL)
			return nil
		},
	}
}

func reportSubscription(cmd *cobra.Command, opts *options, sub *subscriptions.SubscriptionDetails, format string, args ...interface{}) error {
	out := cmd.OutOrStdout()
	if opts.json {
		return printJSON(out, sub)
	}
	success(out, format, args...)
	printSubscription(out, sub)
	return nil
}

func printSubscription(w io.Writer, sub *subscriptions.SubscriptionDetails) {
	status := string(sub.Status)
	switch {
	case sub.Status == subscriptions.StatusPastDue, sub.Status == subscriptions.StatusCanceled:
		status = color.RedString(status)
	case sub.CancelAtPeriodEnd:
		status = color.YellowString(status + " (cancels at period end)")
	default:
		status = color.GreenString(status)
	}

	fmt.Fprintf(w, "Plan:     %s (%s)\n", sub.PlanID, sub.Tier)
	fmt.Fprintf(w, "Status:   %s\n", status)
	fmt.Fprintf(w, "Seats:    %d\n", sub.Quantity)
	if sub.BillingInterval != "" {
		fmt.Fprintf(w, "Billing:  %s\n", sub.BillingInterval)
	}
	fmt.Fprintf(w, "Period:   %s to %s\n", date(sub.CurrentPeriodStart), date(sub.CurrentPeriodEnd))
	if sub.TrialEnd != nil {
		fmt.Fprintf(w, "Trial:    ends %s\n", date(*sub.TrialEnd))
	}
}

package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/edpsych-connect/connect/pkg/subscriptions"
)

var intervals = []subscriptions.BillingInterval{
	subscriptions.IntervalMonthly,
	subscriptions.IntervalQuarterly,
	subscriptions.IntervalAnnual,
}

func newPlansCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plans",
		Short: "Browse the plan catalog",
	}
	cmd.AddCommand(newPlansListCommand(opts))
	cmd.AddCommand(newPlansGetCommand(opts))
	return cmd
}

func newPlansListCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all plans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.subscriptions()
			if err != nil {
				return err
			}
			plans, err := client.GetAvailablePlans(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list plans: %w", err)
			}

			if opts.json {
				return printJSON(cmd.OutOrStdout(), plans)
			}
			tw := newTable(cmd.OutOrStdout(), "ID", "NAME", "TIER", "SEATS", "MONTHLY", "ANNUAL")
			for _, p := range plans {
				name := p.Name
				if p.Popular {
					name += " *"
				}
				row(tw, p.ID, name, p.Tier, seats(p.MaxSeats), price(p, subscriptions.IntervalMonthly), price(p, subscriptions.IntervalAnnual))
			}
			return tw.Flush()
		},
	}
}

func newPlansGetCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get <planId>",
		Short: "Show one plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.subscriptions()
			if err != nil {
				return err
			}
			plan, err := client.GetPlan(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get plan: %w", err)
			}

			out := cmd.OutOrStdout()
			if opts.json {
				return printJSON(out, plan)
			}
			fmt.Fprintf(out, "%s (%s)\n%s\n\n", plan.Name, plan.ID, plan.Description)
			fmt.Fprintf(out, "Tier:  %s\nSeats: %s\n", plan.Tier, seats(plan.MaxSeats))
			tw := newTable(out, "INTERVAL", "PRICE", "PRICE ID")
			for _, interval := range intervals {
				if p, ok := plan.Pricing[interval]; ok {
					row(tw, interval, money(p.Amount, p.Currency), p.PriceID)
				}
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if len(plan.Features) > 0 {
				fmt.Fprintf(out, "\nFeatures:\n  - %s\n", strings.Join(plan.Features, "\n  - "))
			}
			return nil
		},
	}
}

func seats(limit *int) string {
	if limit == nil {
		return "unlimited"
	}
	return strconv.Itoa(*limit)
}

func price(p subscriptions.SubscriptionPlan, interval subscriptions.BillingInterval) string {
	pp, ok := p.Pricing[interval]
	if !ok {
		return "-"
	}
	return money(pp.Amount, pp.Currency)
}

package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/edpsych-connect/connect/pkg/tenantusers"
)

func newInvitationsCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "invitations",
		Aliases: []string{"invites"},
		Short:   "Invite people to the tenant",
	}
	cmd.AddCommand(newInvitationsListCommand(opts))
	cmd.AddCommand(newInvitationsInviteCommand(opts))
	cmd.AddCommand(newInvitationsResendCommand(opts))
	cmd.AddCommand(newInvitationsCancelCommand(opts))
	return cmd
}

func newInvitationsListCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List invitations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, client, err := tenantUsers(opts)
			if err != nil {
				return err
			}
			invitations, err := client.ListInvitations(cmd.Context(), tenantID)
			if err != nil {
				return fmt.Errorf("failed to list invitations: %w", err)
			}

			if opts.json {
				return printJSON(cmd.OutOrStdout(), invitations)
			}
			tw := newTable(cmd.OutOrStdout(), "ID", "EMAIL", "NAME", "ROLE", "STATUS", "EXPIRES")
			for _, inv := range invitations {
				row(tw, inv.ID, inv.Email, inv.Name, inv.Role, invitationStatus(inv.Status), date(inv.ExpiresAt))
			}
			return tw.Flush()
		},
	}
}

func newInvitationsInviteCommand(opts *options) *cobra.Command {
	var data tenantusers.InviteUserData
	var role string
	var expiresIn float64

	cmd := &cobra.Command{
		Use:     "invite",
		Short:   "Invite someone to join the tenant",
		Example: `  connect invitations invite --tenant school-1 --email a@b.com --name "A B" --role TEACHER --expires-in-hours 48`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, client, err := tenantUsers(opts)
			if err != nil {
				return err
			}
			data.Role = tenantusers.TenantRole(strings.ToUpper(role))
			if cmd.Flags().Changed("expires-in-hours") {
				data.ExpiresInHours = &expiresIn
			}

			inv, err := client.InviteUser(cmd.Context(), tenantID, data)
			if err != nil {
				return fmt.Errorf("failed to invite user: %w", err)
			}
			return reportInvitation(cmd, opts, inv, "Invited %s")
		},
	}

	cmd.Flags().StringVar(&data.Email, "email", "", "Invitee email address")
	cmd.Flags().StringVar(&data.Name, "name", "", "Invitee name")
	cmd.Flags().StringVar(&role, "role", string(tenantusers.RoleViewer), "Role granted on acceptance")
	cmd.Flags().StringVar(&data.Message, "message", "", "Personal note included with the invitation")
	cmd.Flags().Float64Var(&expiresIn, "expires-in-hours", 0, "Hours until the invitation lapses (default 7 days)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newInvitationsResendCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "resend <invitationId>",
		Short: "Deliver a pending invitation again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, client, err := tenantUsers(opts)
			if err != nil {
				return err
			}
			inv, err := client.ResendInvitation(cmd.Context(), tenantID, args[0])
			if err != nil {
				return fmt.Errorf("failed to resend invitation: %w", err)
			}
			return reportInvitation(cmd, opts, inv, "Resent invitation to %s")
		},
	}
}

func newInvitationsCancelCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <invitationId>",
		Short: "Withdraw an invitation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, client, err := tenantUsers(opts)
			if err != nil {
				return err
			}
			if err := client.CancelInvitation(cmd.Context(), tenantID, args[0]); err != nil {
				return fmt.Errorf("failed to cancel invitation: %w", err)
			}
			if !opts.json {
				success(cmd.OutOrStdout(), "Cancelled invitation %s", args[0])
			}
			return nil
		},
	}
}

func reportInvitation(cmd *cobra.Command, opts *options, inv *tenantusers.UserInvitationResult, format string) error {
	out := cmd.OutOrStdout()
	if opts.json {
		return printJSON(out, inv)
	}
	success(out, format, inv.Email)
	fmt.Fprintf(out, "ID:      %s\n", inv.ID)
	fmt.Fprintf(out, "Role:    %s\n", inv.Role)
	fmt.Fprintf(out, "Status:  %s\n", invitationStatus(inv.Status))
	fmt.Fprintf(out, "Expires: %s\n", date(inv.ExpiresAt))
	return nil
}

func invitationStatus(status tenantusers.InvitationStatus) string {
	switch status {
	case tenantusers.InvitationPending:
		return color.YellowString(string(status))
	case tenantusers.InvitationAccepted:
		return color.GreenString(string(status))
	default:
		return color.RedString(string(status))
	}
}

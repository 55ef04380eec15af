package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/edpsych-connect/connect/pkg/tenantusers"
)

func newUsersCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Administer tenant users",
	}
	cmd.AddCommand(newUsersListCommand(opts))
	cmd.AddCommand(newUsersGetCommand(opts))
	cmd.AddCommand(newUsersCreateCommand(opts))
	cmd.AddCommand(newUsersDeleteCommand(opts))
	cmd.AddCommand(newUsersRoleCommand(opts))
	cmd.AddCommand(newUsersPermissionsCommand(opts))
	return cmd
}

func tenantUsers(opts *options) (string, *tenantusers.Client, error) {
	tenantID, err := opts.requireTenant()
	if err != nil {
		return "", nil, err
	}
	client, err := opts.users()
	if err != nil {
		return "", nil, err
	}
	return tenantID, client, nil
}

func newUsersListCommand(opts *options) *cobra.Command {
	var params tenantusers.ListUsersParams
	var role, sortOrder string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users, one page at a time",
		Example: `  connect users list --tenant school-1 --role TEACHER --sort-by name
  connect users list --tenant school-1 --search smith --page 2 --limit 50`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, client, err := tenantUsers(opts)
			if err != nil {
				return err
			}
			params.Role = tenantusers.TenantRole(strings.ToUpper(role))
			params.SortOrder = tenantusers.SortOrder(strings.ToLower(sortOrder))

			list, err := client.ListUsers(cmd.Context(), tenantID, params)
			if err != nil {
				return fmt.Errorf("failed to list users: %w", err)
			}

			out := cmd.OutOrStdout()
			if opts.json {
				return printJSON(out, list)
			}
			tw := newTable(out, "ID", "NAME", "EMAIL", "ROLE", "CREATED")
			for _, u := range list.Users {
				row(tw, u.ID, u.Name, u.Email, u.Role, date(u.CreatedAt))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			p := list.Pagination
			fmt.Fprintf(out, "\nPage %d of %d (%d users)\n", p.Page, p.TotalPages, p.Total)
			return nil
		},
	}

	cmd.Flags().IntVar(&params.Page, "page", 0, "Page number, from 1")
	cmd.Flags().IntVar(&params.Limit, "limit", 0, "Users per page")
	cmd.Flags().StringVar(&params.Search, "search", "", "Match name or email")
	cmd.Flags().StringVar(&role, "role", "", "Only users with this role")
	cmd.Flags().StringVar(&params.SortBy, "sort-by", "", "name, email, role, createdAt or updatedAt")
	cmd.Flags().StringVar(&sortOrder, "sort-order", "", "asc or desc")

	return cmd
}

func newUsersGetCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get <userId>",
		Short: "Show one user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, client, err := tenantUsers(opts)
			if err != nil {
				return err
			}
			user, err := client.GetUser(cmd.Context(), tenantID, args[0])
			if err != nil {
				return fmt.Errorf("failed to get user: %w", err)
			}
			return reportUser(cmd, opts, user, "")
		},
	}
}

func newUsersCreateCommand(opts *options) *cobra.Command {
	var data tenantusers.CreateTenantUserData
	var role string

	cmd := &cobra.Command{
		Use:     "create",
		Short:   "Add a user to the tenant",
		Example: `  connect users create --tenant school-1 --email senco@school.org --name "Sam Senco" --role SENCO`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, client, err := tenantUsers(opts)
			if err != nil {
				return err
			}
			data.Role = tenantusers.TenantRole(strings.ToUpper(role))
			user, err := client.CreateUser(cmd.Context(), tenantID, data)
			if err != nil {
				return fmt.Errorf("failed to create user: %w", err)
			}
			return reportUser(cmd, opts, user, "Created user %s")
		},
	}

	cmd.Flags().StringVar(&data.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&data.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&role, "role", string(tenantusers.RoleViewer), "Tenant role")
	cmd.Flags().StringSliceVar(&data.Permissions, "permission", nil, "Extra permission (repeatable)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newUsersDeleteCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <userId>",
		Short: "Remove a user from the tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, client, err := tenantUsers(opts)
			if err != nil {
				return err
			}
			if err := client.DeleteUser(cmd.Context(), tenantID, args[0]); err != nil {
				return fmt.Errorf("failed to delete user: %w", err)
			}
			if !opts.json {
				success(cmd.OutOrStdout(), "Deleted user %s", args[0])
			}
			return nil
		},
	}
}

func newUsersRoleCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "role <userId> <role>",
		Short: "Change a user's role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, client, err := tenantUsers(opts)
			if err != nil {
				return err
			}
			user, err := client.UpdateUserRole(cmd.Context(), tenantID, args[0], tenantusers.TenantRole(strings.ToUpper(args[1])))
			if err != nil {
				return fmt.Errorf("failed to update role: %w", err)
			}
			return reportUser(cmd, opts, user, "Updated role of %s")
		},
	}
}

func newUsersPermissionsCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "permissions <userId> [permission...]",
		Short: "Replace a user's permissions; none clears them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, client, err := tenantUsers(opts)
			if err != nil {
				return err
			}
			permissions := append([]string{}, args[1:]...)
			user, err := client.UpdateUserPermissions(cmd.Context(), tenantID, args[0], permissions)
			if err != nil {
				return fmt.Errorf("failed to update permissions: %w", err)
			}
			return reportUser(cmd, opts, user, "Updated permissions of %s")
		},
	}
}

// reportUser prints user, preceded by a success line naming them when
// format is set
func reportUser(cmd *cobra.Command, opts *options, user *tenantusers.TenantUser, format string) error {
	out := cmd.OutOrStdout()
	if opts.json {
		return printJSON(out, user)
	}
	if format != "" {
		success(out, format, user.Email)
	}
	fmt.Fprintf(out, "ID:          %s\n", user.ID)
	fmt.Fprintf(out, "Name:        %s\n", user.Name)
	fmt.Fprintf(out, "Email:       %s\n", user.Email)
	fmt.Fprintf(out, "Role:        %s\n", user.Role)
	if len(user.Permissions) > 0 {
		fmt.Fprintf(out, "Permissions: %s\n", strings.Join(user.Permissions, ", "))
	}
	return nil
}

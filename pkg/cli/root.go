package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/edpsych-connect/connect/pkg/apiclient"
	"github.com/edpsych-connect/connect/pkg/sessions"
	"github.com/edpsych-connect/connect/pkg/subscriptions"
	"github.com/edpsych-connect/connect/pkg/tenantusers"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
)

const defaultAPIURL = "http://localhost:8080"

// options are the global flags shared by every command
type options struct {
	apiURL  string
	tenant  string
	session string
	json    bool
}

func (o *options) client() (*apiclient.Client, error) {
	var opts []apiclient.Option
	if o.session != "" {
		opts = append(opts, apiclient.WithSessionCookie(sessions.CookieName, o.session))
	}
	return apiclient.New(o.apiURL, opts...)
}

func (o *options) subscriptions() (*subscriptions.Client, error) {
	api, err := o.client()
	if err != nil {
		return nil, err
	}
	return subscriptions.NewClient(api), nil
}

func (o *options) users() (*tenantusers.Client, error) {
	api, err := o.client()
	if err != nil {
		return nil, err
	}
	return tenantusers.NewClient(api), nil
}

func (o *options) requireTenant() (string, error) {
	if o.tenant == "" {
		return "", fmt.Errorf("--tenant is required (or set CONNECT_TENANT)")
	}
	return o.tenant, nil
}

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "connect",
		Short: "Manage EdPsych Connect subscriptions and tenant users",
		Long: color.CyanString(`connect - EdPsych Connect administration

Inspect plans, manage a tenant's subscription and invoices, and administer
tenant users and invitations from the command line.`),
		Example: `  # Sign in against a development server
  connect login --user admin-1

  # Show the tenant's subscription
  connect subscription show --tenant school-1 --session <id>

  # Invite a teacher
  connect invitations invite --tenant school-1 --email a@b.com --name "A B" --role TEACHER`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.apiURL, "api", envOr("CONNECT_API_URL", defaultAPIURL), "API base URL")
	flags.StringVar(&opts.tenant, "tenant", os.Getenv("CONNECT_TENANT"), "Tenant id")
	flags.StringVar(&opts.session, "session", os.Getenv("CONNECT_SESSION"), "Session id (the connect_session cookie)")
	flags.BoolVar(&opts.json, "json", false, "Output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newVersionCommand())
	rootCmd.AddCommand(newLoginCommand(opts))
	rootCmd.AddCommand(newPlansCommand(opts))
	rootCmd.AddCommand(newSubscriptionCommand(opts))
	rootCmd.AddCommand(newInvoicesCommand(opts))
	rootCmd.AddCommand(newUsersCommand(opts))
	rootCmd.AddCommand(newInvitationsCommand(opts))

	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			titleColor := color.New(color.FgCyan, color.Bold)
			titleColor.Fprint(cmd.OutOrStdout(), "connect version: ")
			fmt.Fprintln(cmd.OutOrStdout(), Version)
			titleColor.Fprint(cmd.OutOrStdout(), "Git commit: ")
			fmt.Fprintln(cmd.OutOrStdout(), GitCommit)
		},
	}
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		errorColor := color.New(color.FgRed, color.Bold)
		errorColor.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		return err
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func success(w io.Writer, format string, args ...interface{}) {
	color.New(color.FgGreen, color.Bold).Fprintf(w, "✓ "+format+"\n", args...)
}

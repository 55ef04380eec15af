package cli

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

type loginResponse struct {
	SessionID string    `json:"sessionId"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func newLoginCommand(opts *options) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Open a session on a server running in dev login mode",
		Long: `Open a session for a user id without credentials. Only servers started
with CONNECT_DEV_LOGIN=true accept this. Pass the printed session id to other
commands with --session or CONNECT_SESSION.`,
		Example: `  connect login --user admin-1
  export CONNECT_SESSION=$(connect login --user admin-1 --json | jq -r .sessionId)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := opts.client()
			if err != nil {
				return err
			}

			var session loginResponse
			body := map[string]string{"userId": userID}
			if err := api.Do(cmd.Context(), http.MethodPost, "/api/auth/session", body, &session); err != nil {
				return fmt.Errorf("login failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if opts.json {
				return printJSON(out, session)
			}
			success(out, "Signed in as %s until %s", session.UserID, session.ExpiresAt.Format(time.RFC3339))
			fmt.Fprintln(out, session.SessionID)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User id to sign in as")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

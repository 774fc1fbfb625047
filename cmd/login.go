package cmd

import (
	"fmt"

	"github.com/bnema/planqk-cli/internal/application"
	"github.com/spf13/cobra"
)

func newLoginCmd(app *app) *cobra.Command {
	var command application.LoginCommand

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and save the session",
		Long:  "Sign in through the browser (default), with --email and --password, or by importing a token file exported from another machine.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if command.Method() == application.LoginInteractive {
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Waiting for sign-in in your browser...")
			}

			conn, err := app.service.Login(cmd.Context(), command)
			if err != nil {
				return err
			}
			defer application.Shutdown(conn)

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Signed in to %s\nSession saved to %s\n", conn.BaseURL(), app.service.TokenFile())
			return nil
		},
	}

	cmd.Flags().StringVar(&command.Email, "email", "", "Account email")
	cmd.Flags().StringVar(&command.Password, "password", "", "Account password")
	cmd.Flags().StringVar(&command.TokenFile, "token-file", "", "Import a saved token file instead of signing in")
	cmd.MarkFlagsRequiredTogether("email", "password")
	cmd.MarkFlagsMutuallyExclusive("token-file", "email")

	return cmd
}

func newLogoutCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.service.Logout(cmd.Context()); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", app.service.TokenFile())
			return nil
		},
	}
}

func newLimitsCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "limits",
		Short: "Show the account usage limits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limits, err := app.service.Limits(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd, map[string]any{
					"executionCount":       limits.ExecutionCount,
					"executionTimeSeconds": int64(limits.ExecutionTime.Seconds()),
					"maxTimeoutSeconds":    int64(limits.MaxTimeout.Seconds()),
				})
			}

			rendered, err := app.limitsRenderer(limits)
			if err != nil {
				return fmt.Errorf("render limits: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	return cmd
}

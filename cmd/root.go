package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

type globalFlags struct {
	configPath string
	verbose    bool
	gateway    bool
}

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	app := &app{}

	rootCmd := &cobra.Command{
		Use:           "pqk",
		Short:         "PlanQK CLI (pqk): sign in and manage remote jobs",
		Long:          "pqk signs in to the PlanQK platform, keeps the session fresh, and submits, watches, stops and downloads remote jobs from the terminal.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.wire(cmd, flags)
		},
	}

	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Config file (default ~/.planqk/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Log debug output")
	rootCmd.PersistentFlags().BoolVar(&flags.gateway, "gateway", false, "Use the API gateway (PLANQK_API, PLANQK_CONSUMER_KEY, PLANQK_CONSUMER_SECRET) instead of the saved session")

	rootCmd.AddCommand(
		newVersionCmd(),
		newLoginCmd(app),
		newLogoutCmd(app),
		newLimitsCmd(app),
		newJobCmd(app),
		newConfigCmd(app),
	)

	return rootCmd
}

package cmd

import (
	"fmt"

	tomlconfig "github.com/bnema/planqk-cli/internal/adapters/config/toml"
	"github.com/spf13/cobra"
)

func newConfigCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change CLI settings",
	}

	cmd.AddCommand(newConfigShowCmd(app), newConfigSetCmd(app))

	return cmd
}

func newConfigShowCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			config := app.config
			out := cmd.OutOrStdout()

			_, _ = fmt.Fprintf(out, "# %s\n", app.configStore.Path())
			_, _ = fmt.Fprintf(out, "%s = %s\n", tomlconfig.KeyAPIURL, config.APIURL)
			_, _ = fmt.Fprintf(out, "%s = %s\n", tomlconfig.KeyTokenFile, config.TokenFile)
			_, _ = fmt.Fprintf(out, "%s = %s\n", tomlconfig.KeyLoginListen, config.LoginListen)
			_, _ = fmt.Fprintf(out, "%s = %s\n", tomlconfig.KeyLoginAssetsDir, config.LoginAssetsDir)
			_, err := fmt.Fprintf(out, "%s = %s\n", tomlconfig.KeyRefreshInterval, config.RefreshInterval)
			return err
		},
	}
}

func newConfigSetCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:       "set <key> <value>",
		Short:     "Persist one setting to the config file",
		Args:      cobra.ExactArgs(2),
		ValidArgs: tomlconfig.Keys(),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.configStore.Set(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}

			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Set %s in %s\n", args[0], app.configStore.Path())
			return err
		},
	}
}

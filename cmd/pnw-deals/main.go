// Command pnw-deals runs the PNW Deals newsletter service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bissquit/pnw-deals/internal/config"
	"github.com/bissquit/pnw-deals/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "pnw-deals",
		Short:         "PNW Deals weekly newsletter service",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("PNWDEALS_CONFIG"), "path to YAML config file")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(dispatchCmd(&configPath))
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.Get()
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s (commit %s, built %s)\n", info.Version, info.Commit, info.BuildDate)
			return err
		},
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/dataops/config"
)

var (
	version = "dev"
	commit  = "none"
)

// globalOptions are the flags shared by every command.
type globalOptions struct {
	configPath string
	envFile    string
}

func execute() int {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:           "datasetd",
		Short:         "Warehouse dataset cache",
		Long:          "Loads warehouse datasets once, caches them with a bounded lifetime and serves them over HTTP.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return config.LoadDotEnv(opts.envFile)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file applied before the environment")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newLoadCmd(opts),
		newShowCmd(opts),
		newExtendCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "datasetd version %s (commit: %s)\n", version, commit)
			return err
		},
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/imagedex/internal/config"
	"github.com/kailas-cloud/imagedex/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var env string

	rootCmd := &cobra.Command{
		Use:           "imagedex",
		Short:         "Reverse image search over a local image collection",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&env, "env", config.GetEnv(),
		"Environment name; selects config/<env>.yaml")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP server",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd.Context(), env)
			},
		},
		&cobra.Command{
			Use:   "index",
			Short: "Index every image in the data directory and exit",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runIndex(cmd.Context(), env, cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "search <image>",
			Short: "Print the images most similar to an image from the data directory",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runSearch(cmd.Context(), env, args[0], cmd.OutOrStdout())
			},
		},
	)
	return rootCmd
}

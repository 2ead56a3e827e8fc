package main

import (
	"errors"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// newRootCmd builds the command tree. A .env file in the working directory,
// if present, is loaded before any subcommand runs.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "scribe",
		Short:         "Audio transcription task scheduler",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				slog.Warn("failed to load .env file", "error", err)
			}
		},
	}
	rootCmd.PersistentFlags().String("config", "", "path to a YAML config file")

	rootCmd.AddCommand(newServeCmd(), newMigrateCmd())
	return rootCmd
}

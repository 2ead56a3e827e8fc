package main

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/phrazzld/scribe/internal/config"
	"github.com/phrazzld/scribe/internal/platform/logger"
	"github.com/phrazzld/scribe/internal/platform/postgres"
	"github.com/spf13/cobra"
)

// databaseURLEnv is consulted when --db is not given, so migrations can run
// without the transcription settings serve requires.
var databaseURLEnv = config.EnvPrefix + "_DATABASE_URL"

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "migrate [" + strings.Join(postgres.MigrationCommands, "|") + "]",
		Short:     "Run transcript database migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: postgres.MigrationCommands,
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "up"
			if len(args) == 1 {
				command = args[0]
			}

			dbURL, err := cmd.Flags().GetString("db")
			if err != nil {
				return err
			}
			if dbURL == "" {
				dbURL = os.Getenv(databaseURLEnv)
			}
			if dbURL == "" {
				return errors.New("--db flag or " + databaseURLEnv + " is required")
			}
			level, err := cmd.Flags().GetString("log-level")
			if err != nil {
				return err
			}
			return runMigration(cmd, dbURL, command, level)
		},
	}
	cmd.Flags().String("db", "", "database connection string (defaults to "+databaseURLEnv+")")
	cmd.Flags().String("log-level", "info", "log level: debug, info, warn or error")
	return cmd
}

func runMigration(cmd *cobra.Command, dbURL, command, level string) error {
	if !slices.Contains(postgres.MigrationCommands, command) {
		return fmt.Errorf("unknown migration command %q", command)
	}

	l := logger.New(cmd.ErrOrStderr(), level)
	ctx := contextOrBackground(cmd.Context())

	l.Info("Executing migrations",
		"command", command,
		"database", postgres.MaskDatabaseURL(dbURL))

	db, err := postgres.Open(ctx, dbURL, l)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			l.Error("Error closing database connection", "error", closeErr)
		}
	}()

	if err := postgres.Migrate(ctx, db.DB, command, l); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Migration %q completed\n", command)
	return nil
}

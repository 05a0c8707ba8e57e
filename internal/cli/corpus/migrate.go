package corpus

import (
	"errors"
	"fmt"

	"github.com/cloo-solutions/newsvec/internal/config"
	"github.com/cloo-solutions/newsvec/internal/database"
	"github.com/cloo-solutions/newsvec/internal/logging"
	"github.com/spf13/cobra"
)

// MigrateCmd creates the migrate command for the pgvector schema.
func MigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or roll back the pgvector schema",
		Long:      "Applies all pending migrations (up, the default) or rolls back the most recent one (down). Requires NEWSVEC_DATABASE_URL.",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			direction := "up"
			if len(args) == 1 {
				direction = args[0]
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cfg.DatabaseURL == "" {
				return errors.New("NEWSVEC_DATABASE_URL is required")
			}
			logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			run := database.RunMigrations
			if direction == "down" {
				run = database.RollbackMigrations
			}
			version, err := run(cfg.DatabaseURL, logger)
			if err != nil {
				return err
			}

			if wantJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), map[string]any{"direction": direction, "version": version})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema at version %d\n", version)
			return nil
		},
	}
}

// Commands returns every corpus command.
func Commands() []*cobra.Command {
	return []*cobra.Command{
		IngestCmd(),
		SearchCmd(),
		SimilarCmd(),
		DeleteCmd(),
		StatsCmd(),
		MarketCmd(),
		SentimentCmd(),
		WatchCmd(),
		SnapshotCmd(),
		MigrateCmd(),
	}
}

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/helixir/citation-alert-service/internal/database"
)

func newMigrateCommand() *cobra.Command {
	var (
		down           bool
		steps          int
		version        bool
		force          int
		migrationsPath string
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long: `Manage database migrations. Without flags all pending migrations are
applied. Use --down to roll everything back, --steps for partial moves,
--version to inspect state, and --force to recover from a failed migration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			actionCount := 0
			if down {
				actionCount++
			}
			if steps != 0 {
				actionCount++
			}
			if version {
				actionCount++
			}
			if cmd.Flags().Changed("force") {
				actionCount++
			}
			if actionCount > 1 {
				return fmt.Errorf("specify only one migration action at a time")
			}

			cfg, logger, err := loadConfigAndLogger("migrate")
			if err != nil {
				return err
			}

			migrationDir := cfg.Database.MigrationPath
			if migrationsPath != "" {
				migrationDir = migrationsPath
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			db, err := database.New(ctx, &cfg.Database, logger)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer db.Close()

			migrator, err := database.NewMigrator(db, migrationDir, logger)
			if err != nil {
				return fmt.Errorf("create migrator: %w", err)
			}
			defer func() {
				if closeErr := migrator.Close(); closeErr != nil {
					logger.Error().Err(closeErr).Msg("failed to close migrator")
				}
			}()

			switch {
			case down:
				logger.Warn().Msg("rolling back all migrations")
				if err := migrator.Down(); err != nil {
					return fmt.Errorf("migrate down: %w", err)
				}
			case steps != 0:
				logger.Info().Int("steps", steps).Msg("running migration steps")
				if err := migrator.Steps(steps); err != nil {
					return fmt.Errorf("migrate steps: %w", err)
				}
			case version:
			case cmd.Flags().Changed("force"):
				logger.Warn().Int("version", force).Msg("forcing migration version")
				if err := migrator.Force(force); err != nil {
					return fmt.Errorf("force version: %w", err)
				}
			default:
				logger.Info().Msg("running all pending migrations")
				if err := migrator.Up(); err != nil {
					return fmt.Errorf("migrate up: %w", err)
				}
			}

			printVersion(migrator, logger)
			return nil
		},
	}

	cmd.Flags().BoolVar(&down, "down", false, "roll back all migrations")
	cmd.Flags().IntVar(&steps, "steps", 0, "run N migration steps (positive=up, negative=down)")
	cmd.Flags().BoolVar(&version, "version", false, "print the current migration version")
	cmd.Flags().IntVar(&force, "force", 0, "force set migration version (recovers from failed migrations)")
	cmd.Flags().StringVar(&migrationsPath, "path", "", "override the migrations directory path")

	return cmd
}

// migrateUp applies all pending migrations, used by run and serve when
// migration_auto_run is enabled.
func migrateUp(db *database.DB, migrationsPath string, logger zerolog.Logger) error {
	migrator, err := database.NewMigrator(db, migrationsPath, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close migrator")
		}
	}()

	if err := migrator.Up(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// printVersion logs the current migration version.
func printVersion(migrator *database.Migrator, logger zerolog.Logger) {
	v, dirty, err := migrator.Version()
	if err != nil {
		logger.Warn().Err(err).Msg("could not determine migration version")
		return
	}
	logger.Info().
		Uint("version", v).
		Bool("dirty", dirty).
		Msg("current migration version")
}

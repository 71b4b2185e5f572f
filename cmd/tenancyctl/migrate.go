package main

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/teresa-solution/tenancy-allocation-service/internal/config"
)

func migrateCmd(cfg *config.Config) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or revert database migrations",
	}
	cmd.PersistentFlags().StringVar(&path, "path", cfg.Database.MigrationsPath, "Directory holding the migration files")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(cfg, path, func(m *migrate.Migrate) error {
					log.Info().Msg("Applying migrations...")
					if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
						return fmt.Errorf("apply migrations: %w", err)
					}
					log.Info().Msg("Migrations applied successfully")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Revert all migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(cfg, path, func(m *migrate.Migrate) error {
					log.Info().Msg("Reverting migrations...")
					if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
						return fmt.Errorf("revert migrations: %w", err)
					}
					log.Info().Msg("Migrations reverted successfully")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "force VERSION",
			Short: "Set the migration version without running migrations",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				version, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version %q", args[0])
				}
				return withMigrator(cfg, path, func(m *migrate.Migrate) error {
					if err := m.Force(version); err != nil {
						return fmt.Errorf("force version: %w", err)
					}
					log.Info().Int("version", version).Msg("Migration version forced successfully")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current migration version",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(cfg, path, func(m *migrate.Migrate) error {
					version, dirty, err := m.Version()
					if errors.Is(err, migrate.ErrNilVersion) {
						fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
						return nil
					}
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
					return nil
				})
			},
		},
	)
	return cmd
}

func withMigrator(cfg *config.Config, path string, fn func(m *migrate.Migrate) error) error {
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+path, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	return fn(m)
}

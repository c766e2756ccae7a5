package main

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/labtrace/labtrace/pkg/config"
	"github.com/labtrace/labtrace/pkg/database"
)

func migratorFor(cfg *config.Config) (*migrate.Migrate, func(), error) {
	return database.Migrator(cfg.DatabaseDSN)
}

func buildMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema migrations",
		Long: `Inspect and control the embedded database migrations.

labtrace serve applies every pending migration automatically at boot; these
subcommands are for manual operations (checking the current version,
rolling back a bad migration) outside of that normal startup path.`,
	}
	cmd.AddCommand(buildMigrateStatusCmd(), buildMigrateUpCmd(), buildMigrateDownCmd())
	return cmd
}

func buildMigrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the currently applied migration version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(m *migrate.Migrate) error {
				version, dirty, err := m.Version()
				if errors.Is(err, migrate.ErrNilVersion) {
					fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied yet")
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty=%v)\n", version, dirty)
				return nil
			})
		},
	}
}

func buildMigrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(m *migrate.Migrate) error {
				if err := m.Up(); err != nil {
					if errors.Is(err, migrate.ErrNoChange) {
						fmt.Fprintln(cmd.OutOrStdout(), "no pending migrations")
						return nil
					}
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	}
}

func buildMigrateDownCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back the last N migrations (default 1)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps <= 0 {
				steps = 1
			}
			return withMigrator(func(m *migrate.Migrate) error {
				if err := m.Steps(-steps); err != nil {
					if errors.Is(err, migrate.ErrNoChange) {
						fmt.Fprintln(cmd.OutOrStdout(), "nothing to roll back")
						return nil
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", steps)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "number of migrations to roll back")
	return cmd
}

func withMigrator(fn func(*migrate.Migrate) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	m, closer, err := migratorFor(cfg)
	if err != nil {
		return err
	}
	defer closer()

	return fn(m)
}

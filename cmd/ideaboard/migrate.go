// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ideaboard Contributors

package main

import (
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/ideaboard/ideaboard/internal/store"
)

// migrator is the part of *store.Migrator the migrate commands use.
type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	AppliedMigrations() ([]uint, error)
	Close() error
}

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the account database schema",
		Long:  `Apply, roll back and inspect the embedded PostgreSQL migrations.`,
	}
	cmd.AddCommand(
		newMigrateUpCmd(a),
		newMigrateDownCmd(a),
		newMigrateStatusCmd(a),
		newMigrateForceCmd(a),
	)
	return cmd
}

// withMigrator opens a migrator for the configured database, runs fn and
// closes it.
func (a *app) withMigrator(cmd *cobra.Command, fn func(m migrator) error) (err error) {
	cfg, err := a.loadDatabaseConfig(cmd)
	if err != nil {
		return err
	}
	m, err := a.deps.openMigrator(cfg.Database.URL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(m)
}

func newMigrateUpCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withMigrator(cmd, func(m migrator) error {
				pending, err := m.PendingMigrations()
				if err != nil {
					return err
				}
				if len(pending) == 0 {
					cmd.Println("Schema is up to date")
					return nil
				}
				if err := m.Up(); err != nil {
					return err
				}
				cmd.Printf("Applied %d migration(s)\n", len(pending))
				return nil
			})
		},
	}
}

func newMigrateDownCmd(a *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withMigrator(cmd, func(m migrator) error {
				if all {
					if err := m.Down(); err != nil {
						return err
					}
					cmd.Println("Rolled back all migrations")
					return nil
				}
				version, _, err := m.Version()
				if err != nil {
					return err
				}
				if version == 0 {
					cmd.Println("Nothing to roll back")
					return nil
				}
				if err := m.Steps(-1); err != nil {
					return err
				}
				cmd.Printf("Rolled back migration %d\n", version)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "roll back every migration")
	return cmd
}

func newMigrateStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withMigrator(cmd, func(m migrator) error {
				version, dirty, err := m.Version()
				if err != nil {
					return err
				}
				cmd.Printf("Current version: %d", version)
				if dirty {
					cmd.Print(" (dirty: run 'ideaboard migrate force VERSION' after fixing the schema)")
				}
				cmd.Println()

				applied, err := m.AppliedMigrations()
				if err != nil {
					return err
				}
				pending, err := m.PendingMigrations()
				if err != nil {
					return err
				}
				printMigrations(cmd, "Applied", applied)
				printMigrations(cmd, "Pending", pending)
				return nil
			})
		},
	}
}

func printMigrations(cmd *cobra.Command, label string, versions []uint) {
	cmd.Printf("%s: %d\n", label, len(versions))
	for _, v := range versions {
		name, err := store.MigrationName(v)
		if err != nil || name == "" {
			name = strconv.FormatUint(uint64(v), 10)
		}
		cmd.Printf("  %s\n", name)
	}
}

func newMigrateForceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied without running it",
		Long: `Record VERSION as the current schema version and clear the dirty flag.
Use this only after repairing a migration that failed halfway.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return oops.Code("INVALID_VERSION").With("version", args[0]).Wrap(err)
			}
			return a.withMigrator(cmd, func(m migrator) error {
				if err := m.Force(version); err != nil {
					return err
				}
				cmd.Printf("Forced schema version to %d\n", version)
				return nil
			})
		},
	}
}

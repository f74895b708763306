// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"os"
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/plugman/internal/journal"
)

// Migrator wraps the methods used from journal.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	Pending() ([]uint, error)
	Close() error
}

// MigrateDeps contains injectable dependencies for the migrate command.
type MigrateDeps struct {
	// MigratorFactory opens a migrator for a database URL.
	// Default: journal.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd(deps *MigrateDeps) *cobra.Command {
	if deps == nil {
		deps = &MigrateDeps{}
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = func(databaseURL string) (Migrator, error) {
			return journal.NewMigrator(databaseURL)
		}
	}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL journal schema",
		Long: `Apply or roll back the PostgreSQL journal migrations. The database URL
is journal.dsn when journal.driver is postgres, otherwise DATABASE_URL.`,
	}

	run := func(fn func(cmd *cobra.Command, m Migrator, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			url, err := databaseURL(cmd)
			if err != nil {
				return err
			}
			m, err := deps.MigratorFactory(url)
			if err != nil {
				return oops.Code("DB_CONNECT_FAILED").With("operation", "open migrator").Wrap(err)
			}
			defer func() {
				if closeErr := m.Close(); closeErr != nil {
					cmd.PrintErrf("warning: %v\n", closeErr)
				}
			}()
			return fn(cmd, m, args)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: run(func(cmd *cobra.Command, m Migrator, _ []string) error {
			cmd.Println("Running migrations...")
			if err := m.Up(); err != nil {
				return err //nolint:wrapcheck // carries its own code
			}
			return printVersion(cmd, m)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down [N]",
		Short: "Roll back N migrations (default: all)",
		Args:  cobra.MaximumNArgs(1),
		RunE: run(func(cmd *cobra.Command, m Migrator, args []string) error {
			if len(args) == 0 {
				if err := m.Down(); err != nil {
					return err //nolint:wrapcheck // carries its own code
				}
				return printVersion(cmd, m)
			}
			n, err := strconv.Atoi(args[0])
			if err != nil || n <= 0 {
				return oops.Code("INVALID_ARGS").With("steps", args[0]).Errorf("N must be a positive integer")
			}
			if err := m.Steps(-n); err != nil {
				return err //nolint:wrapcheck // carries its own code
			}
			return printVersion(cmd, m)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the schema version and pending migrations",
		Args:  cobra.NoArgs,
		RunE: run(func(cmd *cobra.Command, m Migrator, _ []string) error {
			if err := printVersion(cmd, m); err != nil {
				return err
			}
			pending, err := m.Pending()
			if err != nil {
				return err //nolint:wrapcheck // carries its own code
			}
			if len(pending) == 0 {
				cmd.Println("No pending migrations.")
				return nil
			}
			for _, v := range pending {
				name, err := journal.MigrationName(v)
				if err != nil {
					return err //nolint:wrapcheck // carries its own code
				}
				cmd.Printf("pending: %s\n", name)
			}
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(cmd *cobra.Command, m Migrator, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return oops.Code("INVALID_ARGS").With("version", args[0]).Errorf("VERSION must be an integer")
			}
			if err := m.Force(v); err != nil {
				return err //nolint:wrapcheck // carries its own code
			}
			return printVersion(cmd, m)
		}),
	})

	return cmd
}

func databaseURL(cmd *cobra.Command) (string, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return "", err
	}
	if cfg.Journal.Driver == journal.DriverPostgres {
		return cfg.Journal.DSN, nil
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url, nil
	}
	return "", oops.Code("CONFIG_INVALID").
		Hint("set journal.driver to postgres with journal.dsn, or export DATABASE_URL").
		Errorf("no PostgreSQL database configured")
}

func printVersion(cmd *cobra.Command, m Migrator) error {
	v, dirty, err := m.Version()
	if err != nil {
		return err //nolint:wrapcheck // carries its own code
	}
	if v == 0 {
		cmd.Println("Schema version: none")
		return nil
	}
	suffix := ""
	if dirty {
		suffix = " (dirty)"
	}
	cmd.Printf("Schema version: %d%s\n", v, suffix)
	return nil
}

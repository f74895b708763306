// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/holomush/plugman/internal/config"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the plugman CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil, nil)
}

// newRootCmd creates the root command with injectable dependencies.
func newRootCmd(serveDeps *ServeDeps, migrateDeps *MigrateDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugman",
		Short: "plugman - runtime plugin lifecycle manager",
		Long: `plugman loads Lua and binary plugin archives from a directory and
lets an operator enable, disable, load, unload and reload them at runtime.`,
		SilenceUsage: true,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/plugman/config.yaml)")
	config.BindFlags(cmd.PersistentFlags())

	// Add subcommands
	cmd.AddCommand(NewServeCmd(serveDeps))
	cmd.AddCommand(NewInspectCmd())
	cmd.AddCommand(NewValidateCmd())
	cmd.AddCommand(NewSchemaCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewMigrateCmd(migrateDeps))

	return cmd
}

// loadConfig resolves the configuration for cmd, honouring flags set on the
// command line.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(configFile, cmd.Flags()) //nolint:wrapcheck // config errors carry codes
}

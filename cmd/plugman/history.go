// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/plugman/internal/journal"
)

// NewHistoryCmd creates the history subcommand.
func NewHistoryCmd() *cobra.Command {
	var (
		module string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded lifecycle transitions, newest first",
		Long: `Read the transition journal configured by journal.driver and journal.dsn.
The memory journal does not outlive the serve process, so history needs
the sqlite or postgres driver.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Journal.Driver == journal.DriverMemory {
				return oops.Code("CONFIG_INVALID").
					Hint("set journal.driver to sqlite or postgres").
					Errorf("the memory journal keeps no history between runs")
			}

			j, err := journal.Open(cmd.Context(), cfg.Journal.Driver, cfg.Journal.DSN)
			if err != nil {
				return err //nolint:wrapcheck // carries its own code
			}
			defer j.Close() //nolint:errcheck // read-only

			entries, err := j.History(cmd.Context(), journal.Query{Module: module, Limit: limit})
			if err != nil {
				return err //nolint:wrapcheck // carries its own code
			}
			if len(entries) == 0 {
				cmd.Println("No transitions recorded.")
				return nil
			}
			return writeHistory(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().StringVar(&module, "plugin", "", "only show transitions of this plugin")
	cmd.Flags().IntVarP(&limit, "limit", "n", journal.DefaultHistoryLimit, "maximum number of entries")
	return cmd
}

func writeHistory(w io.Writer, entries []journal.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tOP\tPLUGIN\tOUTCOME\tREASON")
	for _, e := range entries {
		name := e.Module
		if e.Version != "" {
			name += " v" + e.Version
		}
		reason := e.Reason
		if len(e.Warnings) > 0 {
			reason += " (" + strings.Join(e.Warnings, "; ") + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.Time.UTC().Format(time.RFC3339), e.Op, name, e.Outcome, reason)
	}
	return oops.Wrap(tw.Flush())
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/holomush/plugman/internal/plugin"
)

// NewInspectCmd creates the inspect subcommand.
func NewInspectCmd() *cobra.Command {
	var asYAML bool

	cmd := &cobra.Command{
		Use:   "inspect <archive>",
		Short: "Show the descriptor of a plugin archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			desc, err := plugin.ReadDescriptor(args[0])
			if err != nil {
				return oops.With("archive", args[0]).Wrap(err)
			}
			if asYAML {
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(desc); err != nil {
					return oops.Wrapf(err, "encode descriptor")
				}
				return oops.Wrap(enc.Close())
			}
			writeDescriptor(cmd.OutOrStdout(), desc)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "print the descriptor as YAML")
	return cmd
}

func writeDescriptor(w io.Writer, d *plugin.Descriptor) {
	fmt.Fprintln(w, d.FullName())
	if d.Description != "" {
		fmt.Fprintf(w, "  description:  %s\n", d.Description)
	}
	if len(d.Authors) > 0 {
		fmt.Fprintf(w, "  authors:      %s\n", strings.Join(d.Authors, ", "))
	}
	fmt.Fprintf(w, "  type:         %s\n", d.Type)
	for _, name := range d.CommandNames() {
		spec := d.Commands[name]
		line := "/" + name
		if len(spec.Aliases) > 0 {
			line += " (" + strings.Join(spec.Aliases, ", ") + ")"
		}
		if spec.Permission != "" {
			line += " [" + spec.Permission + "]"
		}
		fmt.Fprintf(w, "  command:      %s\n", line)
	}
	for _, l := range d.Listeners {
		fmt.Fprintf(w, "  listener:     %s (%s)\n", l.Event, l.Priority)
	}
	for _, c := range d.Capabilities {
		fmt.Fprintf(w, "  capability:   %s\n", c)
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/plugman/internal/plugin"
)

// NewValidateCmd creates the validate subcommand.
func NewValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <archive|plugin.yaml>...",
		Short: "Check plugin descriptors against the schema and semantic rules",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				desc, err := validatePath(path)
				if err != nil {
					failed++
					cmd.PrintErrf("%s: %s\n", path, plugin.FormatSchemaError(err))
					continue
				}
				cmd.Printf("%s: %s ok\n", path, desc.FullName())
			}
			if failed > 0 {
				return oops.Code(plugin.CodeInvalidDescriptor).
					With("failed", failed).
					Errorf("%d of %d descriptors are invalid", failed, len(args))
			}
			return nil
		},
	}
}

// validatePath validates a bare descriptor file or the descriptor inside an
// archive.
func validatePath(path string) (*plugin.Descriptor, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return nil, oops.With("path", path).Wrap(err)
		}
		return validateDescriptor(data)
	}

	archive, err := plugin.OpenArchive(path)
	if err != nil {
		return nil, err //nolint:wrapcheck // archive errors carry the path
	}
	defer archive.Close() //nolint:errcheck // read-only

	data, err := fs.ReadFile(archive.FS(), plugin.DescriptorFile)
	if err != nil {
		return nil, oops.With("path", path).Wrap(err)
	}
	return validateDescriptor(data)
}

func validateDescriptor(data []byte) (*plugin.Descriptor, error) {
	if err := plugin.ValidateSchema(data); err != nil {
		return nil, err //nolint:wrapcheck // carries its own code
	}
	return plugin.ParseDescriptor(data) //nolint:wrapcheck // carries its own code
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/oops"
)

// DefaultArchiveExt is the file extension of module archives.
const DefaultArchiveExt = ".plugin"

// Candidate is an archive found in the plugin directory.
type Candidate struct {
	Path       string
	Descriptor *Descriptor
}

// Directory locates module archives in a plugin directory.
type Directory struct {
	path   string
	ext    string
	read   func(string) (*Descriptor, error)
	logger *slog.Logger
}

// DirectoryOption configures a Directory.
type DirectoryOption func(*Directory)

// WithDirectoryLogger sets the logger skipped archives are reported on.
func WithDirectoryLogger(l *slog.Logger) DirectoryOption {
	return func(d *Directory) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDirectory creates a locator for archives with extension ext under path.
// An empty ext means DefaultArchiveExt.
func NewDirectory(path, ext string, opts ...DirectoryOption) *Directory {
	if ext == "" {
		ext = DefaultArchiveExt
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	d := &Directory{path: path, ext: ext, read: ReadDescriptor, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Path returns the directory path.
func (d *Directory) Path() string { return d.path }

// Ext returns the archive extension, with leading dot.
func (d *Directory) Ext() string { return d.ext }

// Find resolves a module name to an archive path. The archive <name><ext> is
// tried first; otherwise every archive is scanned in directory order and the
// first whose descriptor name matches case-insensitively wins. Names that
// are not a single path element never resolve.
func (d *Directory) Find(ctx context.Context, name string) (string, error) {
	if !plainName(name) {
		return "", ErrPluginNotFound(name, d.path)
	}
	direct := filepath.Join(d.path, name+d.ext)
	if info, err := os.Stat(direct); err == nil && info.Mode().IsRegular() {
		return direct, nil
	}

	candidates, err := d.Discover(ctx)
	if err != nil {
		return "", err
	}
	for _, c := range candidates {
		if strings.EqualFold(c.Descriptor.Name, name) {
			return c.Path, nil
		}
	}
	return "", ErrPluginNotFound(name, d.path)
}

// Discover returns every readable archive in directory order. Entries whose
// descriptor cannot be read are logged and skipped.
func (d *Directory) Discover(ctx context.Context) ([]Candidate, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, oops.In("directory").With("dir", d.path).Wrapf(err, "read plugin directory")
	}

	var found []Candidate
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), d.ext) {
			continue
		}
		path := filepath.Join(d.path, entry.Name())
		desc, err := d.read(path)
		if err != nil {
			d.logger.WarnContext(ctx, "skipping unreadable archive",
				"path", path,
				"error", err)
			continue
		}
		found = append(found, Candidate{Path: path, Descriptor: desc})
	}
	return found, nil
}

// plainName reports whether name stays inside the plugin directory when
// joined to it.
func plainName(name string) bool {
	return name != "" && name != "." && name != ".." &&
		!strings.ContainsAny(name, `/\`) && filepath.Base(name) == name
}

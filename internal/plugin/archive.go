// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"archive/zip"
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/samber/oops"
)

// maxDescriptorSize bounds how much of plugin.yaml is read.
const maxDescriptorSize = 1 << 20

// Archive is an opened module archive. Close releases the underlying file.
type Archive struct {
	Path       string
	Descriptor *Descriptor

	fsys   fs.FS
	closer io.Closer
}

// FS returns the archive contents.
func (a *Archive) FS() fs.FS { return a.fsys }

// Close releases the archive file handle.
func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close() //nolint:wrapcheck // callers wrap with module context
}

// OpenArchive opens the archive at path and parses its descriptor.
// A directory containing plugin.yaml is accepted as an unpacked archive.
func OpenArchive(path string) (*Archive, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, oops.In("archive").With("path", path).Wrap(err)
	}

	a := &Archive{Path: path}
	if info.IsDir() {
		a.fsys = os.DirFS(path)
	} else {
		zr, err := zip.OpenReader(path)
		if err != nil {
			return nil, oops.In("archive").With("path", path).Wrapf(err, "open zip")
		}
		a.fsys = zr
		a.closer = zr
	}

	desc, err := readDescriptorFS(a.fsys)
	if err != nil {
		_ = a.Close() //nolint:errcheck // the descriptor error is the one worth reporting
		return nil, oops.In("archive").With("path", path).Wrap(err)
	}
	a.Descriptor = desc
	return a, nil
}

// ReadDescriptor reads only the descriptor of the archive at path.
func ReadDescriptor(path string) (*Descriptor, error) {
	a, err := OpenArchive(path)
	if err != nil {
		return nil, err
	}
	desc := a.Descriptor
	if err := a.Close(); err != nil {
		return nil, oops.In("archive").With("path", path).Wrapf(err, "close archive")
	}
	return desc, nil
}

func readDescriptorFS(fsys fs.FS) (*Descriptor, error) {
	f, err := fsys.Open(DescriptorFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, oops.Code(CodeInvalidDescriptor).Wrap(ErrNoDescriptor)
		}
		return nil, oops.Code(CodeInvalidDescriptor).Wrapf(err, "open %s", DescriptorFile)
	}
	defer f.Close() //nolint:errcheck // read-only

	data, err := io.ReadAll(io.LimitReader(f, maxDescriptorSize))
	if err != nil {
		return nil, oops.Code(CodeInvalidDescriptor).Wrapf(err, "read %s", DescriptorFile)
	}
	return ParseDescriptor(data)
}

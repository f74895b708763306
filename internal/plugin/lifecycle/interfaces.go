// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lifecycle

import (
	"context"

	"github.com/holomush/plugman/internal/plugin"
)

// ModuleIndex is the registry surface every host must provide.
type ModuleIndex interface {
	Modules() []*plugin.Module
	Lookup(name string) (*plugin.Module, bool)
	Contains(m *plugin.Module) bool
	AddModule(m *plugin.Module) error
	RemoveModule(m *plugin.Module) bool
}

// ListenerIndex is implemented by registries that track listener
// registrations. Without it the unload listener cascade is skipped.
type ListenerIndex interface {
	RemoveListeners(m *plugin.Module) int
}

// CommandIndex is implemented by registries that track command ownership.
// Without it the unload command cascade is skipped.
type CommandIndex interface {
	RemoveCommands(m *plugin.Module) int
}

// Host runs module code. Hook failures come back as errors; the host
// recovers panics in foreign code.
type Host interface {
	// ReadDescriptor reads an archive's descriptor without loading it.
	ReadDescriptor(path string) (*plugin.Descriptor, error)

	// LoadArchive opens an archive and instantiates its runtime. The
	// returned module is in StateLoaded and not yet registered.
	LoadArchive(ctx context.Context, path string) (*plugin.Module, error)

	// LoadModule runs the load hook of a registered module and binds its commands.
	LoadModule(ctx context.Context, m *plugin.Module) error

	// EnableModule runs the enable hook and, on success, activates listeners.
	EnableModule(ctx context.Context, m *plugin.Module) error

	// DisableModule deactivates listeners and runs the disable hook.
	DisableModule(ctx context.Context, m *plugin.Module) error
}

// Reclaimer releases an unloaded module's resources.
type Reclaimer interface {
	Sever(ctx context.Context, m *plugin.Module) []error
	Reclaim()
}

// Locator finds archives in the plugin directory.
type Locator interface {
	Find(ctx context.Context, name string) (string, error)
	Discover(ctx context.Context) ([]plugin.Candidate, error)
}

// Recorder persists completed operations.
type Recorder interface {
	Record(ctx context.Context, res Result) error
}

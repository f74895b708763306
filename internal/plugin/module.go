// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// State represents the lifecycle state of a module.
type State int

// Module states.
const (
	// StateUnloaded - module is not registered with the host.
	StateUnloaded State = iota

	// StateLoaded - module code is loaded but has never been enabled.
	StateLoaded

	// StateEnabled - module is active; its listeners and commands are live.
	StateEnabled

	// StateDisabled - module is registered but inactive.
	StateDisabled
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoaded:
		return "loaded"
	case StateEnabled:
		return "enabled"
	case StateDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// Registered returns true for every state in which the registry owns the module.
func (s State) Registered() bool {
	return s == StateLoaded || s == StateEnabled || s == StateDisabled
}

// Module is one loaded instance of an extension archive.
//
// A reload produces a new Module with a new ID under the same name; the old
// instance ends in StateUnloaded and is never reused.
type Module struct {
	id       ulid.ULID
	desc     *Descriptor
	path     string
	loadedAt time.Time
	loader   *Loader

	mu    sync.RWMutex
	state State
}

// NewModule creates a module in StateLoaded backed by the given loader.
// The loader is bound to the module so its back-references can be severed on unload.
func NewModule(desc *Descriptor, path string, loader *Loader) *Module {
	m := &Module{
		id:       ulid.Make(),
		desc:     desc,
		path:     path,
		loadedAt: time.Now(),
		loader:   loader,
		state:    StateLoaded,
	}
	if loader != nil {
		loader.bind(m, desc)
	}
	return m
}

// ID returns the instance identifier.
func (m *Module) ID() ulid.ULID { return m.id }

// Name returns the declared module name.
func (m *Module) Name() string { return m.desc.Name }

// Version returns the declared module version.
func (m *Module) Version() string { return m.desc.Version }

// Descriptor returns the module descriptor.
func (m *Module) Descriptor() *Descriptor { return m.desc }

// Path returns the archive the module was loaded from.
func (m *Module) Path() string { return m.path }

// LoadedAt returns when the instance was created.
func (m *Module) LoadedAt() time.Time { return m.loadedAt }

// Loader returns the handle holder for this instance.
func (m *Module) Loader() *Loader { return m.loader }

// State returns the current lifecycle state.
func (m *Module) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsEnabled is shorthand for State() == StateEnabled.
func (m *Module) IsEnabled() bool {
	return m.State() == StateEnabled
}

// SetState records a transition. Only the host and lifecycle manager call this.
func (m *Module) SetState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// Instance returns the runtime instance, or nil once the loader has been severed.
func (m *Module) Instance() Instance {
	if m.loader == nil {
		return nil
	}
	return m.loader.Instance()
}

// String returns the module name, matching how operators refer to it.
func (m *Module) String() string {
	return m.desc.Name
}

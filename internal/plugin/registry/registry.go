// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package registry holds the host's module bookkeeping: the ordered module
// list with its name index, listener registrations, and command ownership.
package registry

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/plugman/internal/command"
	"github.com/holomush/plugman/internal/plugin"
)

type listener struct {
	module   *plugin.Module
	priority plugin.Priority
}

// Registry is safe for concurrent use. Readers never observe a module in
// the list without its name index entry, or the reverse.
type Registry struct {
	mu        sync.RWMutex
	modules   []*plugin.Module
	names     map[string]*plugin.Module
	listeners map[string][]listener
	owned     map[ulid.ULID][]*command.Entry
	table     *command.Table
}

// New creates a registry that binds module commands into table.
func New(table *command.Table) *Registry {
	if table == nil {
		table = command.NewTable()
	}
	return &Registry{
		names:     make(map[string]*plugin.Module),
		listeners: make(map[string][]listener),
		owned:     make(map[ulid.ULID][]*command.Entry),
		table:     table,
	}
}

func key(name string) string {
	return strings.ToLower(name)
}

// Table returns the command table module commands are bound into.
func (r *Registry) Table() *command.Table { return r.table }

// Modules returns a snapshot of registered modules in load order.
func (r *Registry) Modules() []*plugin.Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.modules)
}

// Lookup finds a registered module by name, case-insensitively.
func (r *Registry) Lookup(name string) (*plugin.Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.names[key(name)]
	return m, ok
}

// Contains reports whether m itself (not just its name) is registered.
func (r *Registry) Contains(m *plugin.Module) bool {
	if m == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.names[key(m.Name())] == m
}

// AddModule appends m to the module list and name index together.
func (r *Registry) AddModule(m *plugin.Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key(m.Name())
	if existing, ok := r.names[k]; ok {
		return oops.In("registry").
			With("plugin", m.Name()).
			With("existing", existing.Path()).
			Wrap(plugin.ErrAlreadyLoaded)
	}
	r.modules = append(r.modules, m)
	r.names[k] = m
	return nil
}

// RemoveModule drops m from the module list and name index together.
// Returns false when m was not registered.
func (r *Registry) RemoveModule(m *plugin.Module) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key(m.Name())
	if r.names[k] != m {
		return false
	}
	delete(r.names, k)
	r.modules = slices.DeleteFunc(r.modules, func(x *plugin.Module) bool { return x == m })
	return true
}

// AddListeners registers every listener m's descriptor declares.
// Registrations for one kind stay sorted by priority, ties in arrival order.
func (r *Registry) AddListeners(m *plugin.Module) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	added := 0
	for _, spec := range m.Descriptor().Listeners {
		kind := spec.Event
		regs := r.listeners[kind]
		if slices.ContainsFunc(regs, func(l listener) bool { return l.module == m && l.priority == spec.Priority }) {
			continue
		}
		regs = append(regs, listener{module: m, priority: spec.Priority})
		sort.SliceStable(regs, func(i, j int) bool { return regs[i].priority < regs[j].priority })
		r.listeners[kind] = regs
		added++
	}
	return added
}

// RemoveListeners drops every registration of m across all event kinds.
func (r *Registry) RemoveListeners(m *plugin.Module) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for kind, regs := range r.listeners {
		before := len(regs)
		regs = slices.DeleteFunc(regs, func(l listener) bool { return l.module == m })
		removed += before - len(regs)
		if len(regs) == 0 {
			delete(r.listeners, kind)
		} else {
			r.listeners[kind] = regs
		}
	}
	return removed
}

// Listeners returns the modules listening for kind in delivery order.
// A module listening at several priorities appears once per registration.
func (r *Registry) Listeners(kind string) []*plugin.Module {
	r.mu.RLock()
	defer r.mu.RUnlock()

	regs := r.listeners[kind]
	out := make([]*plugin.Module, len(regs))
	for i, l := range regs {
		out[i] = l.module
	}
	return out
}

// ListenerCount returns the number of registrations held for m.
func (r *Registry) ListenerCount(m *plugin.Module) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, regs := range r.listeners {
		for _, l := range regs {
			if l.module == m {
				n++
			}
		}
	}
	return n
}

// AddCommands binds entries into the command table on behalf of m.
// Returns the labels actually bound.
func (r *Registry) AddCommands(m *plugin.Module, entries []*command.Entry) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var bound []string
	for _, e := range entries {
		bound = append(bound, r.table.Register(e)...)
		r.owned[m.ID()] = append(r.owned[m.ID()], e)
	}
	return bound
}

// RemoveCommands unregisters every label owned by m from the command table.
func (r *Registry) RemoveCommands(m *plugin.Module) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.owned, m.ID())
	return r.table.UnregisterOwner(m.ID())
}

// Commands returns the command entries owned by m.
func (r *Registry) Commands(m *plugin.Module) []*command.Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.owned[m.ID()])
}

// Check verifies the module list and name index agree. Used by tests.
func (r *Registry) Check() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.modules) != len(r.names) {
		return fmt.Errorf("modules has %d entries, names index has %d", len(r.modules), len(r.names))
	}
	for _, m := range r.modules {
		if r.names[key(m.Name())] != m {
			return fmt.Errorf("module %s missing from names index", m.Name())
		}
		if !m.State().Registered() {
			return fmt.Errorf("module %s is registered in state %s", m.Name(), m.State())
		}
	}
	return nil
}

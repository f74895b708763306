// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"io"
	"slices"
	"sync"
)

// Loader holds every resource a module instance pins: the open archive,
// runtime state, extracted files, capability grants.
//
// The loader keeps back-references to its module and descriptor so the host
// can answer "who owns this handle". Detach clears them and hands the
// resources to the caller, which is the only supported way to release them.
type Loader struct {
	mu         sync.Mutex
	module     *Module
	descriptor *Descriptor
	instance   Instance
	handles    []NamedCloser
	detached   bool
}

// NewLoader creates an empty loader.
func NewLoader() *Loader {
	return &Loader{}
}

func (l *Loader) bind(m *Module, d *Descriptor) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.module = m
	l.descriptor = d
}

// Hold registers a resource to be closed when the loader is detached.
// Calling Hold on a detached loader closes the resource immediately.
func (l *Loader) Hold(name string, c io.Closer) {
	if c == nil {
		return
	}
	l.mu.Lock()
	if l.detached {
		l.mu.Unlock()
		_ = c.Close() //nolint:errcheck // late handle on a severed loader; nothing to report to
		return
	}
	l.handles = append(l.handles, NamedCloser{Name: name, Closer: c})
	l.mu.Unlock()
}

// SetInstance records the runtime instance and holds it for closing.
func (l *Loader) SetInstance(inst Instance) {
	l.mu.Lock()
	l.instance = inst
	l.mu.Unlock()
	l.Hold("instance", inst)
}

// Instance returns the runtime instance, nil after Detach.
func (l *Loader) Instance() Instance {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.instance
}

// Module returns the owning module, nil after Detach.
func (l *Loader) Module() *Module {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.module
}

// Descriptor returns the descriptor the instance was initialised from, nil after Detach.
func (l *Loader) Descriptor() *Descriptor {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.descriptor
}

// Detach clears the loader's back-references and returns its handles in
// release order (last acquired first). A second call returns nil.
func (l *Loader) Detach() []NamedCloser {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.detached {
		return nil
	}
	l.detached = true
	l.module = nil
	l.descriptor = nil
	l.instance = nil

	handles := l.handles
	l.handles = nil
	slices.Reverse(handles)
	return handles
}

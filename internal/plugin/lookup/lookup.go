// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package lookup resolves operator input to registered modules.
package lookup

import (
	"strings"

	"github.com/holomush/plugman/internal/plugin"
)

// NoCommands is the usage text of a module that declares no commands.
const NoCommands = "No commands registered."

// Modules is the read side of the module registry.
type Modules interface {
	Modules() []*plugin.Module
	Lookup(name string) (*plugin.Module, bool)
}

// Service answers name and command queries over the registry.
type Service struct {
	modules Modules
}

// New creates a lookup service.
func New(modules Modules) *Service {
	return &Service{modules: modules}
}

// FindByName returns the registered module whose name equals name, ignoring case.
func (s *Service) FindByName(name string) (*plugin.Module, bool) {
	return s.modules.Lookup(strings.TrimSpace(name))
}

// FindByCommand returns every registered module that declares cmd as a
// command name or alias, in registry order.
func (s *Service) FindByCommand(cmd string) []*plugin.Module {
	cmd = strings.TrimPrefix(strings.TrimSpace(cmd), "/")
	var found []*plugin.Module
	for _, m := range s.modules.Modules() {
		if m.Descriptor().Declares(cmd) {
			found = append(found, m)
		}
	}
	return found
}

// Names lists registered module names in registry order. With full set,
// each name carries its version ("Foo v1.2.0").
func (s *Service) Names(full bool) []string {
	mods := s.modules.Modules()
	names := make([]string, len(mods))
	for i, m := range mods {
		if full {
			names[i] = m.Descriptor().FullName()
		} else {
			names[i] = m.Name()
		}
	}
	return names
}

// Version returns the declared version of the named module.
func (s *Service) Version(name string) (string, bool) {
	m, ok := s.FindByName(name)
	if !ok {
		return "", false
	}
	return m.Version(), true
}

// Usages returns m's declared command names joined by ", ", or NoCommands.
func Usages(m *plugin.Module) string {
	names := m.Descriptor().CommandNames()
	if len(names) == 0 {
		return NoCommands
	}
	return strings.Join(names, ", ")
}

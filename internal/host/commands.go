// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package host

import (
	"context"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/plugman/internal/command"
	"github.com/holomush/plugman/internal/logging"
	"github.com/holomush/plugman/internal/plugin"
)

// commandEntries builds one table entry per declared command of m, in
// lexical order so label collisions resolve the same way on every load.
func (h *Host) commandEntries(m *plugin.Module) []*command.Entry {
	desc := m.Descriptor()
	owner := command.Owner{ID: m.ID(), Name: m.Name()}

	entries := make([]*command.Entry, 0, len(desc.Commands))
	for _, name := range desc.CommandNames() {
		spec := desc.Commands[name]
		entries = append(entries, &command.Entry{
			Name:        name,
			Aliases:     spec.Aliases,
			Description: spec.Description,
			Usage:       spec.Usage,
			Permission:  spec.Permission,
			Owner:       owner,
			Handler:     h.routeCommand(m, name),
		})
	}
	return entries
}

// routeCommand returns the handler forwarding a command to m's instance.
// Commands of a module that is not enabled answer without reaching it.
func (h *Host) routeCommand(m *plugin.Module, name string) command.Handler {
	return func(ctx context.Context, call *command.Call) (string, error) {
		if !m.IsEnabled() {
			return m.Name() + " is disabled.", nil
		}
		inst := m.Instance()
		if inst == nil {
			return "", oops.Code(command.CodeHandlerFailed).
				With("plugin", m.Name()).
				With("command", name).
				Wrap(ErrNoInstance)
		}

		var reply string
		ctx = logging.WithModule(ctx, m.Name(), m.ID().String())
		start := time.Now()
		outcome, err := guard(ctx, h.hookTimeout, func(ctx context.Context) error {
			var cerr error
			reply, cerr = inst.HandleCommand(ctx, plugin.Invocation{
				Command: name,
				Label:   call.Label,
				Args:    call.Args,
				Sender:  call.Sender.Name(),
			})
			return cerr
		})
		RecordHook(HookCommand, outcome, time.Since(start))
		if err != nil {
			return "", oops.Code(command.CodeHandlerFailed).
				With("plugin", m.Name()).
				With("command", name).
				With("outcome", outcome).
				Wrapf(err, "%s of %s", name, m.Name())
		}
		return reply, nil
	}
}

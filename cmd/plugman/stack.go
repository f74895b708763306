// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"

	"github.com/holomush/plugman/internal/command"
	"github.com/holomush/plugman/internal/config"
	"github.com/holomush/plugman/internal/console"
	"github.com/holomush/plugman/internal/host"
	"github.com/holomush/plugman/internal/journal"
	"github.com/holomush/plugman/internal/logging"
	"github.com/holomush/plugman/internal/observability"
	"github.com/holomush/plugman/internal/plugin"
	"github.com/holomush/plugman/internal/plugin/capability"
	"github.com/holomush/plugman/internal/plugin/goplugin"
	"github.com/holomush/plugman/internal/plugin/hostfunc"
	"github.com/holomush/plugman/internal/plugin/lifecycle"
	"github.com/holomush/plugman/internal/plugin/lookup"
	"github.com/holomush/plugman/internal/plugin/lua"
	"github.com/holomush/plugman/internal/plugin/reclaim"
	"github.com/holomush/plugman/internal/plugin/registry"
	"github.com/holomush/plugman/internal/xdg"
)

// JournalOpener opens the transition journal.
type JournalOpener func(ctx context.Context, driver, dsn string) (journal.Journal, error)

// stack is the wired plugin manager.
type stack struct {
	cfg        *config.Config
	logger     *slog.Logger
	registry   *registry.Registry
	bus        *host.Bus
	host       *host.Host
	reclaimer  *reclaim.Reclaimer
	manager    *lifecycle.Manager
	journal    journal.Journal
	dispatcher *command.Dispatcher
	operators  *capability.Enforcer
	ready      atomic.Bool
}

// newStack builds every component from cfg. Nothing runs until start.
func newStack(ctx context.Context, cfg *config.Config, logger *slog.Logger, openJournal JournalOpener) (*stack, error) {
	if openJournal == nil {
		openJournal = journal.Open
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err //nolint:wrapcheck // carries its own code
	}

	operators := capability.NewEnforcer()
	if err := cfg.Grant(operators); err != nil {
		return nil, err //nolint:wrapcheck // carries its own code
	}

	jrnl, err := openJournal(ctx, cfg.Journal.Driver, cfg.Journal.DSN)
	if err != nil {
		return nil, oops.With("driver", cfg.Journal.Driver).Wrap(err)
	}

	reg := registry.New(command.NewTable(command.WithTableLogger(logger)))
	modules := capability.NewEnforcer()
	bus := host.NewBus(reg, cfg.EventQueue,
		host.WithDeliveryTimeout(cfg.HookTimeout),
		host.WithBusLogger(logger))

	goOpts := []goplugin.Option{
		goplugin.WithClientFactory(&goplugin.DefaultClientFactory{
			Logger: logging.HCLog(cfg.LogFormat, level, nil),
		}),
	}
	if dir, dirErr := xdg.RuntimeDir(); dirErr == nil && xdg.EnsureDir(dir) == nil {
		goOpts = append(goOpts, goplugin.WithTempDir(dir))
	}

	h := host.New(reg, modules, bus,
		host.WithRuntime(lua.NewRuntime(hostfunc.New(bus, modules, hostfunc.WithLogger(logger)))),
		host.WithRuntime(goplugin.NewRuntime(modules, bus, goOpts...)),
		host.WithHookTimeout(cfg.HookTimeout),
		host.WithLogger(logger))

	reclaimer := reclaim.New()
	mgr := lifecycle.New(reg, h, reclaimer, plugin.NewDirectory(cfg.PluginsDir, cfg.ArchiveExt, plugin.WithDirectoryLogger(logger)),
		lifecycle.WithRecorder(jrnl),
		lifecycle.WithLogger(logger))

	pm := console.NewPlugman(mgr, lookup.New(reg))
	reg.Table().Register(pm.Entry())
	dispatcher, err := command.NewDispatcher(reg.Table())
	if err != nil {
		_ = jrnl.Close() //nolint:errcheck // the dispatcher error is the one worth reporting
		return nil, oops.Wrap(err)
	}

	return &stack{
		cfg:        cfg,
		logger:     logger,
		registry:   reg,
		bus:        bus,
		host:       h,
		reclaimer:  reclaimer,
		manager:    mgr,
		journal:    jrnl,
		dispatcher: dispatcher,
		operators:  operators,
	}, nil
}

// registerMetrics adds every component's collectors to reg.
func registerMetrics(reg prometheus.Registerer) {
	lifecycle.RegisterMetrics(reg)
	command.RegisterMetrics(reg)
	host.RegisterMetrics(reg)
}

// start begins event delivery and loads the plugin directory. The stack is
// ready once every archive has been attempted.
func (s *stack) start(ctx context.Context) []lifecycle.Result {
	s.bus.Start(ctx)
	results := s.manager.LoadAll(ctx)
	loaded := 0
	for _, r := range results {
		if r.OK() {
			loaded++
		}
	}
	s.logger.InfoContext(ctx, "plugin directory loaded",
		"dir", s.cfg.PluginsDir,
		"loaded", loaded,
		"failed", len(results)-loaded)
	s.ready.Store(true)
	return results
}

// Ready reports whether start has finished.
func (s *stack) Ready() bool { return s.ready.Load() }

// moduleStatuses snapshots the registry for the /plugins listing.
func (s *stack) moduleStatuses() []observability.ModuleStatus {
	modules := s.registry.Modules()
	out := make([]observability.ModuleStatus, 0, len(modules))
	for _, m := range modules {
		var commands []string
		for _, e := range s.registry.Commands(m) {
			commands = append(commands, e.Name)
		}
		out = append(out, observability.ModuleStatus{
			Name:      m.Name(),
			Version:   m.Version(),
			Type:      string(m.Descriptor().Type),
			State:     m.State().String(),
			ID:        m.ID().String(),
			LoadedAt:  m.LoadedAt(),
			Commands:  commands,
			Listeners: s.registry.ListenerCount(m),
		})
	}
	return out
}

// operator returns the console sender configured for this stack.
func (s *stack) operator() console.Operator {
	return console.NewOperator(s.cfg.Operator, s.operators)
}

// shutdown unloads every module, drains the bus and closes the journal.
func (s *stack) shutdown(ctx context.Context) {
	s.ready.Store(false)
	for _, r := range s.manager.UnloadAll(ctx) {
		if !r.OK() {
			s.logger.WarnContext(ctx, "unload during shutdown failed", "plugin", r.Name, "reason", r.Reason)
		}
	}
	s.bus.Stop()
	s.reclaimer.Wait()
	if err := s.journal.Close(); err != nil {
		s.logger.WarnContext(ctx, "failed to close journal", "error", err)
	}
}

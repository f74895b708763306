// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package host is the concrete plugin host: it opens archives, runs module
// code through its runtimes, binds module commands, and delivers events.
//
// The lifecycle manager decides when transitions happen; Host performs them.
// Every call into module code is bounded by the hook timeout and recovered
// from panics.
package host

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/plugman/internal/logging"
	"github.com/holomush/plugman/internal/plugin"
	"github.com/holomush/plugman/internal/plugin/capability"
	"github.com/holomush/plugman/internal/plugin/lifecycle"
	"github.com/holomush/plugman/internal/plugin/registry"
	"github.com/holomush/plugman/pkg/errutil"
)

// DefaultHookTimeout bounds every hook unless configured otherwise.
const DefaultHookTimeout = 10 * time.Second

// Hook names, as reported in HOOK_FAILED errors and metrics.
const (
	HookLoad    = "load"
	HookEnable  = "enable"
	HookDisable = "disable"
	HookEvent   = "event"
	HookCommand = "command"
)

// ErrNoInstance is returned when a module's runtime instance has been released.
var ErrNoInstance = errors.New("module has no runtime instance")

var _ lifecycle.Host = (*Host)(nil)

// Host implements lifecycle.Host.
type Host struct {
	registry    *registry.Registry
	enforcer    *capability.Enforcer
	bus         *Bus
	runtimes    map[plugin.Type]plugin.Runtime
	hookTimeout time.Duration
	logger      *slog.Logger
}

// Option configures a Host.
type Option func(*Host)

// WithRuntime adds a runtime, replacing any other runtime of the same type.
func WithRuntime(rt plugin.Runtime) Option {
	return func(h *Host) {
		h.runtimes[rt.Type()] = rt
	}
}

// WithHookTimeout bounds every hook call. Zero disables the bound.
func WithHookTimeout(d time.Duration) Option {
	return func(h *Host) {
		h.hookTimeout = d
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *Host) {
		if l != nil {
			h.logger = l
		}
	}
}

// New creates a host over the registry. bus may be nil, in which case no
// module.enabled or module.disabled events are published.
func New(reg *registry.Registry, enforcer *capability.Enforcer, bus *Bus, opts ...Option) *Host {
	h := &Host{
		registry:    reg,
		enforcer:    enforcer,
		bus:         bus,
		runtimes:    make(map[plugin.Type]plugin.Runtime),
		hookTimeout: DefaultHookTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HookTimeout returns the configured hook bound.
func (h *Host) HookTimeout() time.Duration { return h.hookTimeout }

// ReadDescriptor implements lifecycle.Host.
func (h *Host) ReadDescriptor(path string) (*plugin.Descriptor, error) {
	return plugin.ReadDescriptor(path)
}

// LoadArchive opens the archive, grants its capabilities, and instantiates it
// with the runtime for its type. Everything acquired is held by the module's
// loader; on failure it is released before returning.
func (h *Host) LoadArchive(ctx context.Context, path string) (m *plugin.Module, err error) {
	archive, err := plugin.OpenArchive(path)
	if err != nil {
		return nil, err
	}
	desc := archive.Descriptor
	fail := oops.In("host").With("plugin", desc.Name).With("path", path)

	loader := plugin.NewLoader()
	loader.Hold("archive", archive)
	defer func() {
		if err != nil {
			h.release(ctx, desc.Name, loader)
		}
	}()

	rt, ok := h.runtimes[desc.Type]
	if !ok {
		return nil, fail.With("type", string(desc.Type)).Wrap(plugin.ErrUnsupportedType)
	}

	if h.enforcer != nil {
		if err := h.enforcer.SetGrants(desc.Name, desc.Capabilities); err != nil {
			return nil, fail.Hint("invalid capability pattern").Wrap(err)
		}
		loader.Hold("capability grants", plugin.CloserFunc(func() error {
			h.enforcer.RemoveGrants(desc.Name)
			return nil
		}))
	}

	// An instance that arrives after the deadline lands on a detached loader,
	// which closes it immediately.
	start := time.Now()
	outcome, err := guard(ctx, h.hookTimeout, func(ctx context.Context) error {
		inst, ierr := rt.Instantiate(ctx, archive.FS(), desc, loader)
		if ierr != nil {
			return ierr //nolint:wrapcheck // wrapped below
		}
		loader.SetInstance(inst)
		return nil
	})
	RecordHook("instantiate", outcome, time.Since(start))
	if err != nil {
		return nil, fail.Hint("runtime refused the module").Wrap(err)
	}

	return plugin.NewModule(desc, path, loader), nil
}

// release closes everything a failed load acquired.
func (h *Host) release(ctx context.Context, name string, loader *plugin.Loader) {
	for _, handle := range loader.Detach() {
		if err := handle.Closer.Close(); err != nil {
			errutil.LogWarn(ctx, h.logger, "failed to release handle after failed load",
				plugin.ReclaimFailure(name, handle.Name, err))
		}
	}
}

// LoadModule runs the load hook, then binds the module's declared commands.
func (h *Host) LoadModule(ctx context.Context, m *plugin.Module) error {
	if err := h.hook(ctx, m, HookLoad, plugin.Instance.OnLoad); err != nil {
		return err
	}
	labels := h.registry.AddCommands(m, h.commandEntries(m))
	h.logger.DebugContext(ctx, "module commands bound",
		"plugin", m.Name(),
		"module_id", m.ID().String(),
		"labels", labels)
	return nil
}

// EnableModule runs the enable hook and activates listeners only on success.
func (h *Host) EnableModule(ctx context.Context, m *plugin.Module) error {
	if err := h.hook(ctx, m, HookEnable, plugin.Instance.OnEnable); err != nil {
		return err
	}
	h.registry.AddListeners(m)
	h.announce(ctx, plugin.EventModuleEnabled, m)
	return nil
}

// DisableModule deactivates listeners, then runs the disable hook.
func (h *Host) DisableModule(ctx context.Context, m *plugin.Module) error {
	h.registry.RemoveListeners(m)
	err := h.hook(ctx, m, HookDisable, plugin.Instance.OnDisable)
	h.announce(ctx, plugin.EventModuleDisabled, m)
	return err
}

// hook runs one lifecycle hook of m under the guard.
func (h *Host) hook(ctx context.Context, m *plugin.Module, name string, fn func(plugin.Instance, context.Context) error) error {
	inst := m.Instance()
	if inst == nil {
		return plugin.HookError(m.Name(), name, ErrNoInstance)
	}

	ctx = logging.WithModule(ctx, m.Name(), m.ID().String())
	start := time.Now()
	outcome, err := guard(ctx, h.hookTimeout, func(ctx context.Context) error {
		return fn(inst, ctx)
	})
	RecordHook(name, outcome, time.Since(start))
	if err != nil {
		return plugin.HookError(m.Name(), name, err)
	}
	return nil
}

type moduleEvent struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	ID      string `json:"id"`
}

// announce publishes a host event about m.
func (h *Host) announce(ctx context.Context, kind string, m *plugin.Module) {
	if h.bus == nil {
		return
	}
	payload, err := json.Marshal(moduleEvent{Name: m.Name(), Version: m.Version(), ID: m.ID().String()})
	if err != nil {
		errutil.LogWarn(ctx, h.logger, "failed to encode module event", err, "plugin", m.Name())
		return
	}
	h.bus.Publish(plugin.NewEvent(kind, plugin.SourceHost, string(payload)))
}

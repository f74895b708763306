// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package lifecycle drives modules through load, enable, disable, unload,
// and reload while the host keeps running.
//
// Every operation, batch forms included, runs under one mutex so the
// registry's indexes are never mutated by two transitions at once. Hooks are
// foreign code: their failures are isolated per module and reported in the
// Result, never raised past the Manager.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/plugman/internal/plugin"
	"github.com/holomush/plugman/pkg/errutil"
)

var tracer = otel.Tracer("plugman/lifecycle")

// Unload steps, as reported in PARTIAL_UNLOAD warnings.
const (
	StepDisable   = "disable"
	StepRegistry  = "registry"
	StepListeners = "listeners"
	StepCommands  = "commands"
	StepReclaim   = "reclaim"
)

// Manager is the module lifecycle state machine.
type Manager struct {
	mu sync.Mutex

	modules   ModuleIndex
	host      Host
	reclaimer Reclaimer
	locator   Locator
	recorder  Recorder
	logger    *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithRecorder persists every completed operation.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) {
		m.recorder = r
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// New creates a Manager over its collaborators.
func New(modules ModuleIndex, host Host, reclaimer Reclaimer, locator Locator, opts ...Option) *Manager {
	mgr := &Manager{
		modules:   modules,
		host:      host,
		reclaimer: reclaimer,
		locator:   locator,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(mgr)
	}
	return mgr
}

// Enable transitions a Loaded or Disabled module to Enabled.
// A nil, unregistered, or already enabled module is a noop.
func (mgr *Manager) Enable(ctx context.Context, m *plugin.Module) Result {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	return mgr.enable(ctx, m)
}

// Disable transitions an Enabled module to Disabled. Anything else is a noop.
func (mgr *Manager) Disable(ctx context.Context, m *plugin.Module) Result {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	return mgr.disable(ctx, m)
}

// EnableAll enables every registered module in registry order.
func (mgr *Manager) EnableAll(ctx context.Context) []Result {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	return mgr.each(ctx, mgr.modules.Modules(), mgr.enable)
}

// DisableAll disables every registered module in registry order.
func (mgr *Manager) DisableAll(ctx context.Context) []Result {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	return mgr.each(ctx, mgr.modules.Modules(), mgr.disable)
}

// Load finds the archive for name, loads it, runs its load hook, and
// enables it.
func (mgr *Manager) Load(ctx context.Context, name string) Result {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	return mgr.load(ctx, name)
}

// LoadAll loads every archive in the plugin directory whose module is not
// registered yet. Failures are isolated per archive.
func (mgr *Manager) LoadAll(ctx context.Context) []Result {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	candidates, err := mgr.locator.Discover(ctx)
	if err != nil {
		return []Result{mgr.observe(ctx, OpLoad, "*", func(context.Context) Result {
			return failed(OpLoad, "*", nil, plugin.CodeLoadError, fmt.Sprintf("Could not read the plugin directory: %v", err), err)
		})}
	}

	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := mgr.modules.Lookup(c.Descriptor.Name); ok {
			continue
		}
		results = append(results, mgr.observe(ctx, OpLoad, c.Descriptor.Name, func(ctx context.Context) Result {
			return mgr.loadPath(ctx, c.Descriptor.Name, c.Path)
		}))
	}
	return results
}

// Unload disables m, removes it and everything it registered, and releases
// its resources. Steps that cannot complete are reported as warnings; the
// module always ends Unloaded.
func (mgr *Manager) Unload(ctx context.Context, m *plugin.Module) Result {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	return mgr.unload(ctx, m)
}

// UnloadAll unloads every module, most recently loaded first.
func (mgr *Manager) UnloadAll(ctx context.Context) []Result {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	mods := mgr.modules.Modules()
	slices.Reverse(mods)
	return mgr.each(ctx, mods, mgr.unload)
}

// Reload unloads m and loads it again by name.
//
// Reload is not atomic. If the load fails the module stays Unloaded and the
// Result says so; nothing restores the previous instance.
func (mgr *Manager) Reload(ctx context.Context, m *plugin.Module) Result {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	return mgr.reload(ctx, m)
}

// ReloadAll reloads every module registered at call time, in registry order.
func (mgr *Manager) ReloadAll(ctx context.Context) []Result {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	return mgr.each(ctx, mgr.modules.Modules(), mgr.reload)
}

func (mgr *Manager) each(ctx context.Context, snapshot []*plugin.Module, op func(context.Context, *plugin.Module) Result) []Result {
	results := make([]Result, 0, len(snapshot))
	for _, m := range snapshot {
		results = append(results, op(ctx, m))
	}
	return results
}

// registered reports whether m itself is the registered instance of its name.
func (mgr *Manager) registered(m *plugin.Module) bool {
	return m != nil && m.State().Registered() && mgr.modules.Contains(m)
}

func nameOf(m *plugin.Module) string {
	if m == nil {
		return ""
	}
	return m.Name()
}

func absent(op Op, m *plugin.Module) Result {
	name := nameOf(m)
	return noop(op, name, m, plugin.CodeModuleNotFound,
		fmt.Sprintf("%q is not a loaded plugin.", name), plugin.ErrModuleNotFound(name))
}

// hookCode classifies a host hook error, defaulting to HOOK_FAILED.
func hookCode(err error) string {
	if code := errutil.Code(err); code == plugin.CodeHookTimeout {
		return code
	}
	return plugin.CodeHookFailed
}

func (mgr *Manager) enable(ctx context.Context, m *plugin.Module) Result {
	return mgr.observe(ctx, OpEnable, nameOf(m), func(ctx context.Context) Result {
		if !mgr.registered(m) {
			return absent(OpEnable, m)
		}
		if m.State() == plugin.StateEnabled {
			return noop(OpEnable, m.Name(), m, plugin.CodeAlreadyInState,
				m.Name()+" is already enabled.", plugin.ErrAlreadyInState(m.Name(), plugin.StateEnabled))
		}

		if err := mgr.host.EnableModule(ctx, m); err != nil {
			m.SetState(plugin.StateDisabled)
			return failed(OpEnable, m.Name(), m, hookCode(err),
				fmt.Sprintf("%s failed to enable and stays disabled: %v", m.Name(), err), err)
		}
		m.SetState(plugin.StateEnabled)
		return done(OpEnable, m, m.Name()+" has been enabled.")
	})
}

func (mgr *Manager) disable(ctx context.Context, m *plugin.Module) Result {
	return mgr.observe(ctx, OpDisable, nameOf(m), func(ctx context.Context) Result {
		if !mgr.registered(m) {
			return absent(OpDisable, m)
		}
		if m.State() != plugin.StateEnabled {
			return noop(OpDisable, m.Name(), m, plugin.CodeAlreadyInState,
				m.Name()+" is already disabled.", plugin.ErrAlreadyInState(m.Name(), plugin.StateDisabled))
		}

		err := mgr.host.DisableModule(ctx, m)
		// Disabled either way: a module whose hook failed must still stop
		// receiving events.
		m.SetState(plugin.StateDisabled)
		if err != nil {
			return failed(OpDisable, m.Name(), m, hookCode(err),
				fmt.Sprintf("%s was disabled but its disable hook failed: %v", m.Name(), err), err)
		}
		return done(OpDisable, m, m.Name()+" has been disabled.")
	})
}

func (mgr *Manager) load(ctx context.Context, name string) Result {
	name = strings.TrimSpace(name)
	return mgr.observe(ctx, OpLoad, name, func(ctx context.Context) Result {
		if name == "" {
			err := plugin.ErrPluginNotFound(name, "")
			return failed(OpLoad, name, nil, plugin.CodePluginNotFound, "No plugin name given.", err)
		}

		path, err := mgr.locator.Find(ctx, name)
		if err != nil {
			code := errutil.Code(err)
			if code != plugin.CodePluginNotFound {
				code = plugin.CodeLoadError
			}
			return failed(OpLoad, name, nil, code, fmt.Sprintf("Could not find a plugin named %q.", name), err)
		}
		return mgr.loadPath(ctx, name, path)
	})
}

// loadPath loads the archive at path. It runs inside an observed load.
func (mgr *Manager) loadPath(ctx context.Context, name, path string) Result {
	fail := func(m *plugin.Module, err error) Result {
		err = plugin.LoadError(name, path, err)
		return failed(OpLoad, name, m, plugin.CodeLoadError, fmt.Sprintf("Could not load %s: %v", name, err), err)
	}

	desc, err := mgr.host.ReadDescriptor(path)
	if err != nil {
		return fail(nil, err)
	}
	name = desc.Name
	if _, ok := mgr.modules.Lookup(desc.Name); ok {
		return fail(nil, oops.With("plugin", desc.Name).Wrap(plugin.ErrAlreadyLoaded))
	}

	m, err := mgr.host.LoadArchive(ctx, path)
	if err != nil {
		return fail(nil, err)
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("module.id", m.ID().String()))

	if err := mgr.modules.AddModule(m); err != nil {
		mgr.reclaimer.Sever(ctx, m)
		m.SetState(plugin.StateUnloaded)
		return fail(m, err)
	}

	if err := mgr.host.LoadModule(ctx, m); err != nil {
		res := fail(m, err)
		rollback := mgr.unload(ctx, m)
		res.Warnings = append(res.Warnings, rollback.Warnings...)
		return res
	}

	enabled := mgr.enable(ctx, m)
	if !enabled.OK() {
		return Result{
			Op:      OpLoad,
			Name:    m.Name(),
			Module:  m,
			Outcome: OutcomeFailed,
			Code:    enabled.Code,
			Reason:  fmt.Sprintf("%s was loaded but failed to enable; it stays loaded and disabled: %v", m.Name(), enabled.Err),
			Err:     enabled.Err,
		}
	}
	return done(OpLoad, m, fmt.Sprintf("%s has been loaded and enabled.", m.Descriptor().FullName()))
}

func (mgr *Manager) unload(ctx context.Context, m *plugin.Module) Result {
	return mgr.observe(ctx, OpUnload, nameOf(m), func(ctx context.Context) Result {
		if !mgr.registered(m) {
			return absent(OpUnload, m)
		}
		name := m.Name()
		var warnings []error
		warn := func(step string, cause error) {
			w := plugin.PartialUnload(name, step, cause)
			errutil.LogWarn(ctx, mgr.logger, "unload step incomplete", w, "plugin", name, "step", step)
			warnings = append(warnings, w)
		}

		// 1. Disable once. A failing disable hook still leaves the module disabled.
		if m.State() == plugin.StateEnabled {
			if res := mgr.disable(ctx, m); !res.OK() {
				warn(StepDisable, res.Err)
			}
		}

		// 2. The module list and name index change together.
		if !mgr.modules.RemoveModule(m) {
			warn(StepRegistry, plugin.ErrModuleNotFound(name))
		}
		m.SetState(plugin.StateUnloaded)

		// 3. Listener cascade.
		if li, ok := mgr.modules.(ListenerIndex); ok {
			li.RemoveListeners(m)
		} else {
			warn(StepListeners, nil)
		}

		// 4. Command cascade, including the live dispatch table.
		if ci, ok := mgr.modules.(CommandIndex); ok {
			ci.RemoveCommands(m)
		} else {
			warn(StepCommands, nil)
		}

		// 5. Release handles and request a reclamation pass without waiting.
		warnings = append(warnings, mgr.reclaimer.Sever(ctx, m)...)
		mgr.reclaimer.Reclaim()

		res := done(OpUnload, m, name+" has been unloaded.")
		res.Warnings = warnings
		return res
	})
}

func (mgr *Manager) reload(ctx context.Context, m *plugin.Module) Result {
	return mgr.observe(ctx, OpReload, nameOf(m), func(ctx context.Context) Result {
		if !mgr.registered(m) {
			return absent(OpReload, m)
		}
		name := m.Name()

		unloaded := mgr.unload(ctx, m)
		loaded := mgr.load(ctx, name)
		warnings := slices.Concat(unloaded.Warnings, loaded.Warnings)

		if loaded.Module == nil || !loaded.Module.State().Registered() {
			res := failed(OpReload, name, loaded.Module, loaded.Code,
				fmt.Sprintf("%s was unloaded but could not be loaded again and stays unloaded: %s", name, loaded.Reason), loaded.Err)
			res.Warnings = warnings
			return res
		}
		if !loaded.OK() {
			res := failed(OpReload, name, loaded.Module, loaded.Code,
				fmt.Sprintf("%s was reloaded but did not enable: %s", name, loaded.Reason), loaded.Err)
			res.Warnings = warnings
			return res
		}
		res := done(OpReload, loaded.Module, name+" has been reloaded.")
		res.Warnings = warnings
		return res
	})
}

// observe wraps one operation with a span, panic recovery, logging,
// metrics, and the journal.
func (mgr *Manager) observe(ctx context.Context, op Op, name string, fn func(context.Context) Result) (res Result) {
	ctx, span := tracer.Start(ctx, "module."+string(op),
		trace.WithAttributes(
			attribute.String("module.name", name),
			attribute.String("module.op", string(op)),
		),
	)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err := oops.Code(plugin.CodeHookFailed).
				With("plugin", name).
				With("operation", string(op)).
				Errorf("panic during %s: %v", op, r)
			res = failed(op, name, res.Module, plugin.CodeHookFailed, fmt.Sprintf("Internal error during %s of %s.", op, name), err)
		}

		span.SetAttributes(attribute.String("module.outcome", string(res.Outcome)))
		if res.Outcome == OutcomeFailed && res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Reason)
		}
		span.End()

		RecordTransition(op, res.Outcome, time.Since(start))
		RecordModuleStates(mgr.modules.Modules())
		mgr.log(ctx, res)

		if mgr.recorder != nil {
			if err := mgr.recorder.Record(ctx, res); err != nil {
				errutil.LogWarn(ctx, mgr.logger, "failed to record module transition", err,
					"plugin", res.Name, "operation", string(op))
			}
		}
	}()

	return fn(ctx)
}

func (mgr *Manager) log(ctx context.Context, res Result) {
	attrs := []any{
		"plugin", res.Name,
		"operation", string(res.Op),
		"outcome", string(res.Outcome),
	}
	if res.Module != nil {
		attrs = append(attrs, "module_id", res.Module.ID().String())
	}
	if len(res.Warnings) > 0 {
		attrs = append(attrs, "warnings", len(res.Warnings))
	}

	switch res.Outcome {
	case OutcomeDone:
		mgr.logger.InfoContext(ctx, "module transition", attrs...)
	case OutcomeNoop:
		mgr.logger.DebugContext(ctx, "module transition skipped", append(attrs, "code", res.Code)...)
	default:
		errutil.LogWarn(ctx, mgr.logger, "module transition failed", res.Err, attrs...)
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package goplugin runs binary modules as child processes using HashiCorp's
// go-plugin system over net/rpc.
package goplugin

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/samber/oops"

	"github.com/holomush/plugman/internal/plugin"
	"github.com/holomush/plugman/internal/plugin/capability"
	"github.com/holomush/plugman/internal/plugin/hostfunc"
	"github.com/holomush/plugman/pkg/pluginsdk"
)

// Sentinel errors for programmatic error checking.
var (
	// ErrNotAModule is returned when the dispensed value does not implement Module.
	ErrNotAModule = errors.New("dispensed plugin does not implement Module")
	// ErrInstanceClosed is returned when calling into a closed instance.
	ErrInstanceClosed = errors.New("instance is closed")
)

// Compile-time interface checks.
var (
	_ plugin.Runtime  = (*Runtime)(nil)
	_ plugin.Instance = (*instance)(nil)
)

// Runtime starts binary modules. The executable is extracted from the
// archive into a private temporary directory held by the module's loader.
type Runtime struct {
	enforcer      *capability.Enforcer
	emitter       hostfunc.Emitter
	clientFactory ClientFactory
	tempDir       string
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithClientFactory replaces the go-plugin client factory (for testing).
func WithClientFactory(f ClientFactory) Option {
	return func(r *Runtime) {
		if f != nil {
			r.clientFactory = f
		}
	}
}

// WithTempDir sets where executables are extracted. Defaults to os.TempDir().
func WithTempDir(dir string) Option {
	return func(r *Runtime) {
		r.tempDir = dir
	}
}

// NewRuntime creates a binary module runtime. Events a module returns are
// published through emitter when the module holds events.emit.<kind>.
// Panics if enforcer is nil.
func NewRuntime(enforcer *capability.Enforcer, emitter hostfunc.Emitter, opts ...Option) *Runtime {
	if enforcer == nil {
		panic("goplugin: enforcer cannot be nil")
	}
	r := &Runtime{
		enforcer:      enforcer,
		emitter:       emitter,
		clientFactory: &DefaultClientFactory{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Type implements plugin.Runtime.
func (r *Runtime) Type() plugin.Type { return plugin.TypeBinary }

// Instantiate extracts the executable, starts the process and dispenses the
// module. The extracted files and the process are held by loader, so a failed
// Instantiate is cleaned up when the caller detaches the loader.
func (r *Runtime) Instantiate(_ context.Context, archive fs.FS, desc *plugin.Descriptor, loader *plugin.Loader) (plugin.Instance, error) {
	fail := oops.In("goplugin").With("plugin", desc.Name).With("operation", "instantiate")
	if desc.BinaryPlugin == nil {
		return nil, fail.Errorf("descriptor has no binary-plugin section")
	}

	dir, err := os.MkdirTemp(r.tempDir, "plugman-"+desc.Name+"-")
	if err != nil {
		return nil, fail.Hint("failed to create extraction directory").Wrap(err)
	}
	loader.Hold("extracted files", plugin.CloserFunc(func() error { return os.RemoveAll(dir) }))

	execPath, err := extract(archive, desc.BinaryPlugin.Executable, dir)
	if err != nil {
		return nil, fail.With("executable", desc.BinaryPlugin.Executable).Hint("failed to extract executable").Wrap(err)
	}

	client := r.clientFactory.NewClient(desc.Name, execPath)
	loader.Hold("process", plugin.CloserFunc(func() error {
		client.Kill()
		return nil
	}))

	proto, err := client.Client()
	if err != nil {
		return nil, fail.Hint("failed to connect to module process").Wrap(err)
	}

	raw, err := proto.Dispense(pluginsdk.PluginName)
	if err != nil {
		_ = proto.Close() //nolint:errcheck // the dispense error is the one worth reporting
		return nil, fail.Hint("failed to dispense module").Wrap(err)
	}
	mod, ok := raw.(Module)
	if !ok {
		_ = proto.Close() //nolint:errcheck // process is killed through the loader
		return nil, fail.Wrap(ErrNotAModule)
	}

	return &instance{
		name:     desc.Name,
		module:   mod,
		protocol: proto,
		enforcer: r.enforcer,
		emitter:  r.emitter,
	}, nil
}

// extract copies the executable out of the archive into dir.
func extract(archive fs.FS, executable, dir string) (string, error) {
	name := path.Clean(executable)
	src, err := archive.Open(name)
	if err != nil {
		return "", err //nolint:wrapcheck // wrapped by caller
	}
	defer src.Close() //nolint:errcheck // read-only

	dst := filepath.Join(dir, filepath.Base(filepath.FromSlash(name)))
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o700) //nolint:gosec // executable must be runnable
	if err != nil {
		return "", err //nolint:wrapcheck // wrapped by caller
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close() //nolint:errcheck // copy error wins
		return "", err  //nolint:wrapcheck // wrapped by caller
	}
	if err := out.Close(); err != nil {
		return "", err //nolint:wrapcheck // wrapped by caller
	}
	return dst, nil
}

// instance is one running binary module.
type instance struct {
	name     string
	module   Module
	protocol io.Closer
	enforcer *capability.Enforcer
	emitter  hostfunc.Emitter

	mu     sync.RWMutex
	closed bool
}

func (i *instance) OnLoad(ctx context.Context) error {
	return i.hook(ctx, pluginsdk.HookLoad)
}

func (i *instance) OnEnable(ctx context.Context) error {
	return i.hook(ctx, pluginsdk.HookEnable)
}

func (i *instance) OnDisable(ctx context.Context) error {
	return i.hook(ctx, pluginsdk.HookDisable)
}

func (i *instance) hook(ctx context.Context, name string) error {
	if err := i.live(); err != nil {
		return err
	}
	return i.wrap(ctx, "hook_"+name, i.module.Hook(ctx, name))
}

// HandleEvent delivers the event and publishes whatever the module emits.
func (i *instance) HandleEvent(ctx context.Context, event plugin.Event) error {
	if err := i.live(); err != nil {
		return err
	}
	emits, err := i.module.HandleEvent(ctx, pluginsdk.Event{
		ID:        event.ID,
		Kind:      event.Kind,
		Source:    event.Source,
		Timestamp: event.Timestamp,
		Payload:   event.Payload,
	})
	if err != nil {
		return i.wrap(ctx, "handle_event", err)
	}
	i.publish(ctx, emits)
	return nil
}

func (i *instance) HandleCommand(ctx context.Context, inv plugin.Invocation) (string, error) {
	if err := i.live(); err != nil {
		return "", err
	}
	reply, err := i.module.HandleCommand(ctx, pluginsdk.Command{
		Name:   inv.Command,
		Label:  inv.Label,
		Args:   inv.Args,
		Sender: inv.Sender,
	})
	if err != nil {
		return "", i.wrap(ctx, "handle_command", err)
	}
	return reply, nil
}

// publish forwards emitted events the module is allowed to send. Invalid or
// denied events are skipped with a warning so one bad emit does not fail
// delivery.
func (i *instance) publish(ctx context.Context, emits []pluginsdk.EmitEvent) {
	for idx, e := range emits {
		switch {
		case e.Kind == "":
			slog.WarnContext(ctx, "module emitted event without kind", "plugin", i.name, "index", idx)
		case !i.enforcer.Check(i.name, hostfunc.EmitCapabilityPrefix+e.Kind):
			slog.WarnContext(ctx, "module emit denied", "plugin", i.name, "event_kind", e.Kind)
		case i.emitter == nil:
			slog.WarnContext(ctx, "module emitted event but no event bus is configured", "plugin", i.name)
		case !i.emitter.Publish(plugin.NewEvent(e.Kind, i.name, e.Payload)):
			slog.WarnContext(ctx, "event dropped", "plugin", i.name, "event_kind", e.Kind)
		}
	}
}

func (i *instance) live() error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return oops.In("goplugin").With("plugin", i.name).Wrap(ErrInstanceClosed)
	}
	return nil
}

// wrap marks abandoned calls as hook timeouts.
func (i *instance) wrap(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = errors.Join(plugin.ErrHookTimeout, err)
	}
	return oops.In("goplugin").With("plugin", i.name).With("operation", op).Wrap(err)
}

// Close closes the RPC connection. The process itself is killed by the
// loader handle registered in Instantiate.
func (i *instance) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return nil
	}
	i.closed = true
	return i.protocol.Close() //nolint:wrapcheck // reclaimer wraps with module context
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lua

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/holomush/plugman/internal/plugin"
	"github.com/holomush/plugman/internal/plugin/hostfunc"
)

// Hook function names a Lua module may define. Missing hooks are no-ops.
const (
	HookLoad    = "on_load"
	HookEnable  = "on_enable"
	HookDisable = "on_disable"
	HookEvent   = "on_event"
	HookCommand = "on_command"
)

// maxEntrySize bounds the entry script read from an archive.
const maxEntrySize = 4 << 20

// Compile-time interface checks.
var (
	_ plugin.Runtime  = (*Runtime)(nil)
	_ plugin.Instance = (*instance)(nil)
)

// Runtime instantiates Lua modules. Each instance owns one persistent state
// for its whole loaded life, so module globals survive between hooks.
type Runtime struct {
	sandbox   *Sandbox
	hostFuncs *hostfunc.Functions
}

// NewRuntime creates a Lua runtime. hf may be nil, in which case modules get
// no plugman table.
func NewRuntime(hf *hostfunc.Functions) *Runtime {
	return &Runtime{
		sandbox:   NewSandbox(),
		hostFuncs: hf,
	}
}

// Type implements plugin.Runtime.
func (r *Runtime) Type() plugin.Type { return plugin.TypeLua }

// Instantiate reads the entry script from the archive and runs its top-level
// chunk. Hooks are not called.
func (r *Runtime) Instantiate(ctx context.Context, archive fs.FS, desc *plugin.Descriptor, _ *plugin.Loader) (plugin.Instance, error) {
	fail := oops.In("lua").With("plugin", desc.Name).With("operation", "instantiate")
	if desc.LuaPlugin == nil {
		return nil, fail.Errorf("descriptor has no lua-plugin section")
	}
	entry := path.Clean(desc.LuaPlugin.Entry)

	code, err := readEntry(archive, entry)
	if err != nil {
		return nil, fail.With("entry", entry).Hint("failed to read entry file").Wrap(err)
	}

	L, err := r.sandbox.NewState(ctx)
	if err != nil {
		return nil, fail.Hint("failed to create state").Wrap(err)
	}
	if r.hostFuncs != nil {
		r.hostFuncs.Register(L, desc.Name)
	}

	fn, err := L.Load(strings.NewReader(code), entry)
	if err != nil {
		L.Close()
		return nil, fail.With("entry", entry).Hint("syntax error").Wrap(err)
	}
	L.Push(fn)
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		L.Close()
		return nil, fail.With("entry", entry).Hint("top-level chunk failed").Wrap(err)
	}
	L.RemoveContext()

	return &instance{name: desc.Name, L: L}, nil
}

func readEntry(archive fs.FS, entry string) (string, error) {
	f, err := archive.Open(entry)
	if err != nil {
		return "", err //nolint:wrapcheck // wrapped by caller
	}
	defer f.Close() //nolint:errcheck // read-only

	data, err := io.ReadAll(io.LimitReader(f, maxEntrySize))
	if err != nil {
		return "", err //nolint:wrapcheck // wrapped by caller
	}
	return string(data), nil
}

// instance is one loaded Lua module. gopher-lua states are not goroutine
// safe, so every call into L holds mu.
type instance struct {
	name string

	mu     sync.Mutex
	L      *lua.LState
	closed bool
}

func (i *instance) OnLoad(ctx context.Context) error {
	_, err := i.call(ctx, HookLoad)
	return err
}

func (i *instance) OnEnable(ctx context.Context) error {
	_, err := i.call(ctx, HookEnable)
	return err
}

func (i *instance) OnDisable(ctx context.Context) error {
	_, err := i.call(ctx, HookDisable)
	return err
}

// HandleEvent calls on_event(event).
func (i *instance) HandleEvent(ctx context.Context, event plugin.Event) error {
	_, err := i.call(ctx, HookEvent, func(L *lua.LState) lua.LValue {
		t := L.NewTable()
		L.SetField(t, "id", lua.LString(event.ID))
		L.SetField(t, "kind", lua.LString(event.Kind))
		L.SetField(t, "source", lua.LString(event.Source))
		L.SetField(t, "timestamp", lua.LNumber(event.Timestamp))
		L.SetField(t, "payload", lua.LString(event.Payload))
		return t
	})
	return err
}

// HandleCommand calls on_command(ctx) and returns its result as the reply.
// A nil result is an empty reply.
func (i *instance) HandleCommand(ctx context.Context, inv plugin.Invocation) (string, error) {
	ret, err := i.call(ctx, HookCommand, func(L *lua.LState) lua.LValue {
		args := L.NewTable()
		for _, a := range inv.Args {
			args.Append(lua.LString(a))
		}
		t := L.NewTable()
		L.SetField(t, "command", lua.LString(inv.Command))
		L.SetField(t, "label", lua.LString(inv.Label))
		L.SetField(t, "args", args)
		L.SetField(t, "sender", lua.LString(inv.Sender))
		return t
	})
	if err != nil || ret == lua.LNil {
		return "", err
	}
	return lua.LVAsString(ret), nil
}

// Close releases the Lua state. Safe to call more than once.
func (i *instance) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return nil
	}
	i.closed = true
	i.L.Close()
	return nil
}

// call invokes a global hook with arguments built inside the lock.
func (i *instance) call(ctx context.Context, hook string, build ...func(*lua.LState) lua.LValue) (lua.LValue, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	fail := oops.In("lua").With("plugin", i.name).With("operation", hook)
	if i.closed {
		return lua.LNil, fail.Errorf("instance is closed")
	}

	fn := i.L.GetGlobal(hook)
	if fn.Type() == lua.LTNil {
		slog.DebugContext(ctx, "module has no handler defined", "plugin", i.name, "hook", hook)
		return lua.LNil, nil
	}

	args := make([]lua.LValue, 0, len(build))
	for _, b := range build {
		args = append(args, b(i.L))
	}

	i.L.SetContext(ctx)
	defer i.L.RemoveContext()

	if err := i.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return lua.LNil, fail.Wrap(errors.Join(plugin.ErrHookTimeout, err))
		}
		return lua.LNil, fail.Wrap(err)
	}
	ret := i.L.Get(-1)
	i.L.Pop(1)
	return ret, nil
}

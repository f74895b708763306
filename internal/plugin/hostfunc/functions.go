// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package hostfunc provides host functions to Lua modules.
//
// Host functions are installed as the global "plugman" table. Functions that
// reach outside the module's own state require a capability grant.
//
//nolint:gocritic // captLocal: L is the idiomatic name for lua.LState
package hostfunc

import (
	"log/slog"

	"github.com/oklog/ulid/v2"
	lua "github.com/yuin/gopher-lua"

	"github.com/holomush/plugman/internal/plugin"
	"github.com/holomush/plugman/internal/plugin/capability"
)

// GlobalName is the Lua global the host functions are installed under.
const GlobalName = "plugman"

// EmitCapabilityPrefix prefixes the capability required to emit an event kind.
const EmitCapabilityPrefix = "events.emit."

// Emitter queues events published by modules. Publish must not deliver inline.
type Emitter interface {
	Publish(event plugin.Event) bool
}

// Functions provides host functions to Lua modules.
type Functions struct {
	emitter  Emitter
	enforcer *capability.Enforcer
	logger   *slog.Logger
}

// Option configures Functions.
type Option func(*Functions)

// WithLogger sets the logger module log lines are written to.
func WithLogger(l *slog.Logger) Option {
	return func(f *Functions) {
		if l != nil {
			f.logger = l
		}
	}
}

// New creates host functions. emitter may be nil, in which case emit reports
// that no event bus is available. Panics if enforcer is nil.
func New(emitter Emitter, enforcer *capability.Enforcer, opts ...Option) *Functions {
	if enforcer == nil {
		panic("hostfunc.New: enforcer cannot be nil")
	}
	f := &Functions{
		emitter:  emitter,
		enforcer: enforcer,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Register installs the plugman table into a Lua state for one module.
func (f *Functions) Register(L *lua.LState, moduleName string) {
	mod := L.NewTable()

	L.SetField(mod, "log", L.NewFunction(f.logFn(moduleName)))
	L.SetField(mod, "new_request_id", L.NewFunction(newRequestID))
	L.SetField(mod, "has_capability", L.NewFunction(f.hasCapabilityFn(moduleName)))
	L.SetField(mod, "emit", L.NewFunction(f.emitFn(moduleName)))

	L.SetGlobal(GlobalName, mod)
}

func (f *Functions) logFn(moduleName string) lua.LGFunction {
	return func(L *lua.LState) int {
		level := L.CheckString(1)
		message := L.CheckString(2)

		logger := f.logger.With("plugin", moduleName)
		ctx := L.Context()
		switch level {
		case "debug":
			logger.Log(ctx, slog.LevelDebug, message)
		case "info":
			logger.Log(ctx, slog.LevelInfo, message)
		case "warn":
			logger.Log(ctx, slog.LevelWarn, message)
		case "error":
			logger.Log(ctx, slog.LevelError, message)
		default:
			L.ArgError(1, "level must be one of debug, info, warn, error")
		}
		return 0
	}
}

func newRequestID(L *lua.LState) int {
	L.Push(lua.LString(ulid.Make().String()))
	return 1
}

func (f *Functions) hasCapabilityFn(moduleName string) lua.LGFunction {
	return func(L *lua.LState) int {
		L.Push(lua.LBool(f.enforcer.Check(moduleName, L.CheckString(1))))
		return 1
	}
}

// emitFn implements plugman.emit(kind, payload). payload is a JSON string or
// a table encoded as JSON. Returns true, or nil and an error message.
func (f *Functions) emitFn(moduleName string) lua.LGFunction {
	return func(L *lua.LState) int {
		kind := L.CheckString(1)
		if kind == "" {
			L.ArgError(1, "event kind must not be empty")
			return 0
		}
		if !f.enforcer.Check(moduleName, EmitCapabilityPrefix+kind) {
			L.RaiseError("capability denied: %s requires %s%s", moduleName, EmitCapabilityPrefix, kind)
			return 0
		}

		payload, err := encodePayload(L.Get(2))
		if err != nil {
			return pushError(L, err.Error())
		}
		if f.emitter == nil {
			return pushError(L, "event bus not available")
		}
		if !f.emitter.Publish(plugin.NewEvent(kind, moduleName, payload)) {
			f.logger.WarnContext(L.Context(), "event dropped",
				"plugin", moduleName,
				"event_kind", kind)
			return pushError(L, "event queue full")
		}
		return pushSuccess(L, lua.LTrue)
	}
}

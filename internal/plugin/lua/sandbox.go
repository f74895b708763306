// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package lua runs Lua modules in sandboxed gopher-lua states.
package lua

import (
	"context"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"
)

// CodeSandboxFailed marks a state that could not be prepared.
const CodeSandboxFailed = "LUA_SANDBOX_FAILED"

// Default state limits.
const (
	DefaultCallStackSize = 256
	DefaultRegistrySize  = 16 * 1024
)

// library is one Lua standard library a sandbox opens.
type library struct {
	name string
	open lua.LGFunction
}

// baseLibraries are opened in full. io, debug, package and coroutine are
// never opened; os is reduced to osClockFunctions.
var baseLibraries = []library{
	{lua.BaseLibName, lua.OpenBase},
	{lua.TabLibName, lua.OpenTable},
	{lua.StringLibName, lua.OpenString},
	{lua.MathLibName, lua.OpenMath},
}

// removedGlobals reach the filesystem or load unchecked code.
var removedGlobals = []string{"dofile", "loadfile", "loadstring", "load", "require", "collectgarbage"}

// osClockFunctions survive from the os library.
var osClockFunctions = []string{"time", "clock", "date", "difftime"}

// Sandbox creates restricted Lua states for modules.
type Sandbox struct {
	libraries     []library
	callStackSize int
	registrySize  int
}

// SandboxOption configures a Sandbox.
type SandboxOption func(*Sandbox)

// WithCallStackSize bounds Lua call depth.
func WithCallStackSize(n int) SandboxOption {
	return func(s *Sandbox) { s.callStackSize = n }
}

// WithRegistrySize bounds the Lua value registry.
func WithRegistrySize(n int) SandboxOption {
	return func(s *Sandbox) { s.registrySize = n }
}

// NewSandbox creates a sandbox with the default libraries and limits.
func NewSandbox(opts ...SandboxOption) *Sandbox {
	s := &Sandbox{
		libraries:     baseLibraries,
		callStackSize: DefaultCallStackSize,
		registrySize:  DefaultRegistrySize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewState returns a state bound to ctx: cancelling ctx aborts running code.
func (s *Sandbox) NewState(ctx context.Context) (*lua.LState, error) {
	L := lua.NewState(lua.Options{
		SkipOpenLibs:  true,
		CallStackSize: s.callStackSize,
		RegistrySize:  s.registrySize,
	})
	if ctx != nil {
		L.SetContext(ctx)
	}

	for _, lib := range s.libraries {
		if err := openLibrary(L, lib); err != nil {
			L.Close()
			return nil, err
		}
	}
	for _, name := range removedGlobals {
		L.SetGlobal(name, lua.LNil)
	}
	if err := openClock(L); err != nil {
		L.Close()
		return nil, err
	}
	return L, nil
}

func openLibrary(L *lua.LState, lib library) error {
	err := L.CallByParam(lua.P{Fn: L.NewFunction(lib.open), Protect: true}, lua.LString(lib.name))
	if err != nil {
		return oops.Code(CodeSandboxFailed).With("library", lib.name).Wrapf(err, "open library %s", lib.name)
	}
	return nil
}

// openClock opens os, keeps osClockFunctions and drops the rest.
func openClock(L *lua.LState) error {
	if err := openLibrary(L, library{lua.OsLibName, lua.OpenOs}); err != nil {
		return err
	}
	full, ok := L.GetGlobal(lua.OsLibName).(*lua.LTable)
	if !ok {
		return oops.Code(CodeSandboxFailed).Errorf("os library did not register a table")
	}
	clock := L.NewTable()
	for _, name := range osClockFunctions {
		clock.RawSetString(name, full.RawGetString(name))
	}
	L.SetGlobal(lua.OsLibName, clock)
	return nil
}

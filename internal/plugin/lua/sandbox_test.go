// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lua_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"

	pluginlua "github.com/holomush/plugman/internal/plugin/lua"
)

func newState(t *testing.T, opts ...pluginlua.SandboxOption) *lua.LState {
	t.Helper()
	L, err := pluginlua.NewSandbox(opts...).NewState(context.Background())
	require.NoError(t, err)
	t.Cleanup(L.Close)
	return L
}

func TestSandbox_Globals(t *testing.T) {
	L := newState(t)

	for _, lib := range []string{"table", "string", "math", "os"} {
		assert.Equal(t, lua.LTTable, L.GetGlobal(lib).Type(), "library %q should be loaded", lib)
	}
	for _, name := range []string{"io", "debug", "package", "coroutine", "dofile", "loadfile", "loadstring", "load", "require", "collectgarbage"} {
		assert.Equal(t, lua.LTNil, L.GetGlobal(name).Type(), "%q should not be reachable", name)
	}
}

func TestSandbox_OSKeepsOnlyClock(t *testing.T) {
	L := newState(t)

	require.NoError(t, L.DoString(`now = os.time(); tick = os.clock(); day = os.date("%Y")`))
	assert.Equal(t, lua.LTNumber, L.GetGlobal("now").Type())
	assert.Equal(t, lua.LTNumber, L.GetGlobal("tick").Type())
	assert.Len(t, L.GetGlobal("day").String(), 4)

	for _, fn := range []string{"execute", "exit", "getenv", "remove", "rename", "tmpname", "setenv"} {
		err := L.DoString(`os.` + fn + `("x")`)
		assert.Error(t, err, "os.%s should be unavailable", fn)
	}
}

func TestSandbox_RunsSafeCode(t *testing.T) {
	tests := []struct {
		script string
		want   string
	}{
		{`result = 1 + 1`, "2"},
		{`result = string.upper("hello")`, "HELLO"},
		{`t = {3, 1, 2}; table.sort(t); result = t[1]`, "1"},
		{`result = math.abs(-42)`, "42"},
		{`result = select("#", 1, 2, 3)`, "3"},
	}

	for _, tt := range tests {
		t.Run(tt.script, func(t *testing.T) {
			L := newState(t)
			require.NoError(t, L.DoString(tt.script))
			assert.Equal(t, tt.want, L.GetGlobal("result").String())
		})
	}
}

func TestSandbox_StatesAreIsolated(t *testing.T) {
	L1 := newState(t)
	L2 := newState(t)

	require.NoError(t, L1.DoString(`greeting = "hi"`))
	assert.Equal(t, lua.LTNil, L2.GetGlobal("greeting").Type())
}

func TestSandbox_CallDepthIsBounded(t *testing.T) {
	L := newState(t, pluginlua.WithCallStackSize(32))
	err := L.DoString(`local function f(n) return 1 + f(n + 1) end; f(1)`)
	assert.Error(t, err)
}

func TestSandbox_CancelledContextStopsCode(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	L, err := pluginlua.NewSandbox().NewState(ctx)
	require.NoError(t, err)
	defer L.Close()

	cancel()
	assert.Error(t, L.DoString(`while true do end`))
}

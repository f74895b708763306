// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lua

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	luavm "github.com/yuin/gopher-lua"

	"github.com/holomush/plugman/pkg/errutil"
)

func TestSandbox_LibraryOpenFailure(t *testing.T) {
	s := NewSandbox()
	s.libraries = []library{{"broken", func(L *luavm.LState) int {
		L.RaiseError("cannot open")
		return 0
	}}}

	_, err := s.NewState(context.Background())
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, CodeSandboxFailed)
	errutil.AssertErrorContext(t, err, "library", "broken")
}

func TestNewSandbox_Options(t *testing.T) {
	s := NewSandbox()
	assert.Equal(t, DefaultCallStackSize, s.callStackSize)
	assert.Equal(t, DefaultRegistrySize, s.registrySize)

	s = NewSandbox(WithCallStackSize(64), WithRegistrySize(2048))
	assert.Equal(t, 64, s.callStackSize)
	assert.Equal(t, 2048, s.registrySize)
}

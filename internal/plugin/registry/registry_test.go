// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package registry_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/plugman/internal/command"
	"github.com/holomush/plugman/internal/plugin"
	"github.com/holomush/plugman/internal/plugin/registry"
)

func newModule(name string, listeners ...plugin.ListenerSpec) *plugin.Module {
	return plugin.NewModule(&plugin.Descriptor{Name: name, Version: "1.0.0", Listeners: listeners}, name+".plugin", plugin.NewLoader())
}

func TestRegistry_AddRemoveKeepsIndexesInStep(t *testing.T) {
	r := registry.New(nil)
	a, b, c := newModule("Alpha"), newModule("beta"), newModule("Gamma")

	for _, m := range []*plugin.Module{a, b, c} {
		require.NoError(t, r.AddModule(m))
		require.NoError(t, r.Check())
	}
	assert.Equal(t, []*plugin.Module{a, b, c}, r.Modules())

	got, ok := r.Lookup("ALPHA")
	require.True(t, ok)
	assert.Same(t, a, got)

	assert.True(t, r.RemoveModule(b))
	require.NoError(t, r.Check())
	assert.Equal(t, []*plugin.Module{a, c}, r.Modules())
	assert.False(t, r.RemoveModule(b), "second removal is a no-op")
	_, ok = r.Lookup("beta")
	assert.False(t, ok)
}

func TestRegistry_AddDuplicateNameCaseInsensitive(t *testing.T) {
	r := registry.New(nil)
	require.NoError(t, r.AddModule(newModule("Foo")))

	err := r.AddModule(newModule("foo"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, plugin.ErrAlreadyLoaded))
	assert.Len(t, r.Modules(), 1)
	require.NoError(t, r.Check())
}

func TestRegistry_RemoveDifferentInstanceSameName(t *testing.T) {
	r := registry.New(nil)
	current := newModule("Foo")
	stale := newModule("Foo")
	require.NoError(t, r.AddModule(current))

	assert.False(t, r.RemoveModule(stale))
	assert.True(t, r.Contains(current))
	assert.False(t, r.Contains(stale))
	assert.False(t, r.Contains(nil))
}

func TestRegistry_ModulesReturnsSnapshot(t *testing.T) {
	r := registry.New(nil)
	require.NoError(t, r.AddModule(newModule("a")))
	snap := r.Modules()
	require.NoError(t, r.AddModule(newModule("b")))
	assert.Len(t, snap, 1)
}

func TestRegistry_ListenersInPriorityOrder(t *testing.T) {
	r := registry.New(nil)
	monitor := newModule("monitor", plugin.ListenerSpec{Event: "chat", Priority: plugin.PriorityMonitor})
	low := newModule("low", plugin.ListenerSpec{Event: "chat", Priority: plugin.PriorityLow})
	normalA := newModule("normalA", plugin.ListenerSpec{Event: "chat", Priority: plugin.PriorityNormal})
	normalB := newModule("normalB", plugin.ListenerSpec{Event: "chat", Priority: plugin.PriorityNormal}, plugin.ListenerSpec{Event: "join"})

	for _, m := range []*plugin.Module{monitor, normalA, low, normalB} {
		r.AddListeners(m)
	}

	assert.Equal(t, []*plugin.Module{low, normalA, normalB, monitor}, r.Listeners("chat"))
	assert.Equal(t, []*plugin.Module{normalB}, r.Listeners("join"))
	assert.Equal(t, 2, r.ListenerCount(normalB))

	assert.Zero(t, r.AddListeners(low), "re-adding is idempotent")
	assert.Equal(t, 2, r.RemoveListeners(normalB))
	assert.Empty(t, r.Listeners("join"))
	assert.Equal(t, []*plugin.Module{low, normalA, monitor}, r.Listeners("chat"))
}

func TestRegistry_CommandsCascade(t *testing.T) {
	table := command.NewTable()
	r := registry.New(table)
	m := newModule("Foo")
	handler := func(context.Context, *command.Call) (string, error) { return "", nil }

	bound := r.AddCommands(m, []*command.Entry{
		{Name: "greet", Aliases: []string{"hi"}, Owner: command.Owner{ID: m.ID(), Name: m.Name()}, Handler: handler},
	})
	assert.ElementsMatch(t, []string{"greet", "hi", "foo:greet"}, bound)
	assert.Len(t, r.Commands(m), 1)

	assert.Equal(t, 3, r.RemoveCommands(m))
	assert.Zero(t, table.Len())
	assert.Empty(t, r.Commands(m))
	assert.Zero(t, r.RemoveCommands(m))
}

func TestRegistry_ConcurrentReadersSeeConsistentState(t *testing.T) {
	r := registry.New(nil)
	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				assert.NoError(t, r.Check())
				_ = r.Modules()
			}
		}
	}()

	for i := 0; i < 200; i++ {
		m := newModule("churn")
		require.NoError(t, r.AddModule(m))
		require.True(t, r.RemoveModule(m))
	}
	close(stop)
	wg.Wait()
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/plugman/internal/plugin"
	"github.com/holomush/plugman/internal/plugin/lifecycle"
)

func TestSQLite_RecordAndHistory(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "journal.db")

	j, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	fixed := time.Date(2026, 5, 4, 10, 30, 0, 123, time.UTC)
	j.now = func() time.Time { return fixed }

	a := testModule("alpha")
	require.NoError(t, j.Record(ctx, enabled(a)))
	require.NoError(t, j.Record(ctx, lifecycle.Result{
		Op:       lifecycle.OpUnload,
		Name:     "alpha",
		Module:   a,
		Outcome:  lifecycle.OutcomeDone,
		Code:     plugin.CodePartialUnload,
		Warnings: []error{errors.New("commands not removed")},
	}))
	require.NoError(t, j.Record(ctx, lifecycle.Result{
		Op:      lifecycle.OpLoad,
		Name:    "beta",
		Outcome: lifecycle.OutcomeFailed,
		Code:    plugin.CodePluginNotFound,
		Err:     errors.New("no archive named beta"),
	}))

	all, err := j.History(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "beta", all[0].Module)
	assert.Equal(t, "no archive named beta", all[0].Error)
	assert.Nil(t, all[0].Warnings)
	assert.Equal(t, []string{"commands not removed"}, all[1].Warnings)
	assert.Equal(t, fixed, all[2].Time)
	assert.Equal(t, a.ID().String(), all[2].ModuleID)

	alpha, err := j.History(ctx, Query{Module: "Alpha", Limit: 1})
	require.NoError(t, err)
	require.Len(t, alpha, 1)
	assert.Equal(t, "unload", alpha[0].Op)
	require.NoError(t, j.Close())

	// Entries survive reopening.
	j, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer j.Close()
	all, err = j.History(ctx, Query{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSQLite_ClosedDatabase(t *testing.T) {
	ctx := context.Background()
	j, err := OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	require.NoError(t, j.Close())

	err = j.Record(ctx, enabled(testModule("demo")))
	require.Error(t, err)
	_, err = j.History(ctx, Query{})
	require.Error(t, err)
}

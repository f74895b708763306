// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package command

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/plugman/pkg/errutil"
)

type testSender struct {
	name  string
	perms map[string]bool
}

func (s testSender) Name() string                 { return s.name }
func (s testSender) HasPermission(p string) bool { return s.perms[p] }

func TestNewDispatcher_NilTable(t *testing.T) {
	_, err := NewDispatcher(nil)
	assert.ErrorIs(t, err, ErrNilTable)
}

func TestDispatcher_RunsHandlerWithArgs(t *testing.T) {
	table := NewTable()
	var got *Call
	table.Register(&Entry{
		Name:    "echo",
		Aliases: []string{"e"},
		Owner:   moduleOwner("Echo"),
		Handler: func(_ context.Context, call *Call) (string, error) {
			got = call
			return strings.Join(call.Args, "+"), nil
		},
	})
	d, err := NewDispatcher(table)
	require.NoError(t, err)

	before := testutil.ToFloat64(CommandExecutions.WithLabelValues("echo", "Echo", StatusSuccess))
	reply, err := d.Dispatch(context.Background(), testSender{name: "console"}, "/E one  two")
	require.NoError(t, err)

	assert.Equal(t, "one+two", reply)
	require.NotNil(t, got)
	assert.Equal(t, "E", got.Label)
	assert.Equal(t, "one  two", got.Raw)
	assert.Equal(t, "console", got.Sender.Name())
	assert.Equal(t, before+1, testutil.ToFloat64(CommandExecutions.WithLabelValues("echo", "Echo", StatusSuccess)))
}

func TestDispatcher_UnknownCommand(t *testing.T) {
	d, err := NewDispatcher(NewTable())
	require.NoError(t, err)

	_, err = d.Dispatch(context.Background(), testSender{name: "console"}, "nothing here")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, CodeUnknownCommand)
	assert.Contains(t, SenderMessage(err), "Unknown command")
}

func TestDispatcher_PermissionDenied(t *testing.T) {
	table := NewTable()
	called := false
	table.Register(&Entry{
		Name:       "secret",
		Permission: "secret.use",
		Owner:      moduleOwner("S"),
		Handler: func(context.Context, *Call) (string, error) {
			called = true
			return "", nil
		},
	})
	d, _ := NewDispatcher(table)

	_, err := d.Dispatch(context.Background(), testSender{name: "guest"}, "secret")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, CodePermissionDenied)
	assert.False(t, called)

	_, err = d.Dispatch(context.Background(), testSender{name: "admin", perms: map[string]bool{"secret.use": true}}, "secret")
	require.NoError(t, err)
	assert.True(t, called)
}

func TestDispatcher_HandlerError(t *testing.T) {
	table := NewTable()
	table.Register(&Entry{
		Name:  "broken",
		Owner: moduleOwner("B"),
		Handler: func(context.Context, *Call) (string, error) {
			return "", errors.New("boom")
		},
	})
	table.Register(&Entry{
		Name:  "picky",
		Usage: "<command> <arg>",
		Owner: moduleOwner("B"),
		Handler: func(_ context.Context, call *Call) (string, error) {
			return "", ErrInvalidArgs(call.Label, call.Entry.UsageFor(call.Label))
		},
	})
	d, _ := NewDispatcher(table)

	_, err := d.Dispatch(context.Background(), testSender{name: "console"}, "broken")
	require.Error(t, err)
	assert.Equal(t, "An internal error occurred while running that command.", SenderMessage(err))

	_, err = d.Dispatch(context.Background(), testSender{name: "console"}, "picky")
	require.Error(t, err)
	assert.Equal(t, "Usage: picky <arg>", SenderMessage(err))
}

func TestDispatcher_EmptyInput(t *testing.T) {
	d, _ := NewDispatcher(NewTable())
	_, err := d.Dispatch(context.Background(), testSender{name: "console"}, "   ")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, CodeEmptyInput)
	assert.Empty(t, SenderMessage(err))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, StatusSuccess},
		{ErrUnknownCommand("x"), StatusNotFound},
		{ErrPermissionDenied("x", "p"), StatusPermissionDenied},
		{ErrInvalidArgs("x", "x <y>"), StatusInvalidArgs},
		{errors.New("boom"), StatusError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), "%v", tt.err)
	}
}

func TestDispatcher_UnboundLabelsShareASeries(t *testing.T) {
	d, err := NewDispatcher(NewTable())
	require.NoError(t, err)
	series := CommandExecutions.WithLabelValues(unboundLabel, "", StatusNotFound)
	before := testutil.ToFloat64(series)

	for _, input := range []string{"foo", "bar baz", "/qux"} {
		_, err := d.Dispatch(context.Background(), testSender{name: "console"}, input)
		require.Error(t, err)
	}
	assert.Equal(t, before+3, testutil.ToFloat64(series))
}

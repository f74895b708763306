// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package pluginsdk_test

import (
	"context"
	"errors"
	"net"
	"net/rpc"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/plugman/pkg/pluginsdk"
)

type echoHandler struct{}

func (echoHandler) HandleEvent(_ context.Context, e pluginsdk.Event) ([]pluginsdk.EmitEvent, error) {
	if e.Kind == "fail" {
		return nil, errors.New("refused")
	}
	return []pluginsdk.EmitEvent{{Kind: "echo", Payload: e.Payload}}, nil
}

type fullHandler struct {
	echoHandler
	hooks []string
	block chan struct{}
}

func (h *fullHandler) OnLoad(context.Context) error {
	h.hooks = append(h.hooks, pluginsdk.HookLoad)
	return nil
}

func (h *fullHandler) OnEnable(context.Context) error {
	h.hooks = append(h.hooks, pluginsdk.HookEnable)
	return errors.New("not today")
}

func (h *fullHandler) OnDisable(context.Context) error {
	h.hooks = append(h.hooks, pluginsdk.HookDisable)
	if h.block != nil {
		<-h.block
	}
	return nil
}

func (h *fullHandler) HandleCommand(_ context.Context, cmd pluginsdk.Command) (string, error) {
	return cmd.Sender + ":" + cmd.Label, nil
}

// connect serves impl on one end of a pipe and returns a client on the other,
// the same wiring go-plugin performs across the process boundary.
func connect(t *testing.T, impl pluginsdk.Handler) *pluginsdk.RPCClient {
	t.Helper()

	p := &pluginsdk.RPCPlugin{Impl: impl}
	recv, err := p.Server(nil)
	require.NoError(t, err)

	srv := rpc.NewServer()
	require.NoError(t, srv.RegisterName("Plugin", recv))

	serverConn, clientConn := net.Pipe()
	go srv.ServeConn(serverConn)

	c := rpc.NewClient(clientConn)
	t.Cleanup(func() { _ = c.Close() })

	raw, err := p.Client(nil, c)
	require.NoError(t, err)
	client, ok := raw.(*pluginsdk.RPCClient)
	require.True(t, ok)
	return client
}

func TestServe_RequiresConfig(t *testing.T) {
	assert.Panics(t, func() { pluginsdk.Serve(nil) })
	assert.Panics(t, func() { pluginsdk.Serve(&pluginsdk.ServeConfig{}) })
}

func TestHandshakeConfig(t *testing.T) {
	assert.Equal(t, uint(1), pluginsdk.HandshakeConfig.ProtocolVersion)
	assert.Equal(t, "PLUGMAN_MODULE", pluginsdk.HandshakeConfig.MagicCookieKey)
	assert.Equal(t, "plugman-v1", pluginsdk.HandshakeConfig.MagicCookieValue)
}

func TestRPCPlugin_Server_NilHandler(t *testing.T) {
	_, err := (&pluginsdk.RPCPlugin{}).Server(nil)
	assert.ErrorIs(t, err, pluginsdk.ErrNoHandler)
}

func TestRPC_HandleEvent(t *testing.T) {
	client := connect(t, echoHandler{})
	ctx := context.Background()

	emits, err := client.HandleEvent(ctx, pluginsdk.Event{Kind: "player.join", Payload: `{"who":"alice"}`})
	require.NoError(t, err)
	assert.Equal(t, []pluginsdk.EmitEvent{{Kind: "echo", Payload: `{"who":"alice"}`}}, emits)

	_, err = client.HandleEvent(ctx, pluginsdk.Event{Kind: "fail"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refused")
}

func TestRPC_HooksOptional(t *testing.T) {
	client := connect(t, echoHandler{})
	assert.NoError(t, client.Hook(context.Background(), pluginsdk.HookEnable))

	_, err := client.HandleCommand(context.Background(), pluginsdk.Command{Name: "greet"})
	assert.ErrorContains(t, err, "does not handle commands")
}

func TestRPC_HooksAndCommands(t *testing.T) {
	h := &fullHandler{}
	client := connect(t, h)
	ctx := context.Background()

	require.NoError(t, client.Hook(ctx, pluginsdk.HookLoad))
	assert.ErrorContains(t, client.Hook(ctx, pluginsdk.HookEnable), "not today")
	assert.ErrorContains(t, client.Hook(ctx, "explode"), "unknown hook")
	assert.Equal(t, []string{pluginsdk.HookLoad, pluginsdk.HookEnable}, h.hooks)

	reply, err := client.HandleCommand(ctx, pluginsdk.Command{Name: "greet", Label: "hi", Sender: "console"})
	require.NoError(t, err)
	assert.Equal(t, "console:hi", reply)
}

func TestRPC_AbandonsOnContext(t *testing.T) {
	h := &fullHandler{block: make(chan struct{})}
	defer close(h.block)
	client := connect(t, h)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := client.Hook(ctx, pluginsdk.HookDisable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package pluginsdk

import (
	"context"
	"errors"
	"fmt"
	"net/rpc"

	hashiplug "github.com/hashicorp/go-plugin"
)

// ErrNoHandler is returned by RPCPlugin.Server when Impl is nil.
var ErrNoHandler = errors.New("pluginsdk: handler is nil")

// RPCPlugin implements go-plugin's Plugin interface over net/rpc.
type RPCPlugin struct {
	// Impl is used on the module side only.
	Impl Handler
}

var _ hashiplug.Plugin = (*RPCPlugin)(nil)

// Server returns the RPC receiver (called in the module process).
func (p *RPCPlugin) Server(*hashiplug.MuxBroker) (any, error) {
	if p.Impl == nil {
		return nil, ErrNoHandler
	}
	return &RPCServer{Impl: p.Impl}, nil
}

// Client returns the host-side stub (called in the host process).
func (*RPCPlugin) Client(_ *hashiplug.MuxBroker, c *rpc.Client) (any, error) {
	return &RPCClient{client: c}, nil
}

// HookArgs names the lifecycle hook to run.
type HookArgs struct {
	Hook string
}

// EventArgs carries an event to HandleEvent.
type EventArgs struct {
	Event Event
}

// EventReply carries the events a module asked to emit.
type EventReply struct {
	Emits []EmitEvent
}

// CommandArgs carries a command to HandleCommand.
type CommandArgs struct {
	Command Command
}

// CommandReply carries a command's reply text.
type CommandReply struct {
	Reply string
}

// RPCServer adapts a Handler to net/rpc. net/rpc carries no context, so the
// module sees context.Background(); the host abandons calls on its side.
type RPCServer struct {
	Impl Handler
}

// Hook runs a lifecycle hook. Modules without Hooks accept every hook.
func (s *RPCServer) Hook(args HookArgs, _ *struct{}) error {
	hooks, ok := s.Impl.(Hooks)
	if !ok {
		return nil
	}
	ctx := context.Background()
	switch args.Hook {
	case HookLoad:
		return hooks.OnLoad(ctx) //nolint:wrapcheck // error text crosses the process boundary
	case HookEnable:
		return hooks.OnEnable(ctx) //nolint:wrapcheck // error text crosses the process boundary
	case HookDisable:
		return hooks.OnDisable(ctx) //nolint:wrapcheck // error text crosses the process boundary
	default:
		return fmt.Errorf("unknown hook %q", args.Hook)
	}
}

// HandleEvent runs the module's event handler.
func (s *RPCServer) HandleEvent(args EventArgs, reply *EventReply) error {
	emits, err := s.Impl.HandleEvent(context.Background(), args.Event)
	if err != nil {
		return fmt.Errorf("handler error: %w", err)
	}
	reply.Emits = emits
	return nil
}

// HandleCommand runs the module's command handler.
func (s *RPCServer) HandleCommand(args CommandArgs, reply *CommandReply) error {
	h, ok := s.Impl.(CommandHandler)
	if !ok {
		return fmt.Errorf("module does not handle commands (got %q)", args.Command.Name)
	}
	out, err := h.HandleCommand(context.Background(), args.Command)
	if err != nil {
		return fmt.Errorf("command %s: %w", args.Command.Name, err)
	}
	reply.Reply = out
	return nil
}

// RPCClient is the host-side view of a module process.
type RPCClient struct {
	client *rpc.Client
}

// NewRPCClient wraps an rpc.Client connected to an RPCServer.
func NewRPCClient(c *rpc.Client) *RPCClient {
	return &RPCClient{client: c}
}

// Hook runs a lifecycle hook in the module.
func (c *RPCClient) Hook(ctx context.Context, hook string) error {
	return c.call(ctx, "Plugin.Hook", HookArgs{Hook: hook}, &struct{}{})
}

// HandleEvent delivers an event to the module.
func (c *RPCClient) HandleEvent(ctx context.Context, event Event) ([]EmitEvent, error) {
	var reply EventReply
	if err := c.call(ctx, "Plugin.HandleEvent", EventArgs{Event: event}, &reply); err != nil {
		return nil, err
	}
	return reply.Emits, nil
}

// HandleCommand runs a command in the module.
func (c *RPCClient) HandleCommand(ctx context.Context, cmd Command) (string, error) {
	var reply CommandReply
	if err := c.call(ctx, "Plugin.HandleCommand", CommandArgs{Command: cmd}, &reply); err != nil {
		return "", err
	}
	return reply.Reply, nil
}

// call issues an RPC and gives up when ctx is done. An abandoned call keeps
// running in the module until the process is killed.
func (c *RPCClient) call(ctx context.Context, method string, args, reply any) error {
	call := c.client.Go(method, args, reply, make(chan *rpc.Call, 1))
	select {
	case <-call.Done:
		return call.Error //nolint:wrapcheck // rpc.ServerError carries the module's message
	case <-ctx.Done():
		return fmt.Errorf("%s abandoned: %w", method, ctx.Err())
	}
}

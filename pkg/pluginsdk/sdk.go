// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package pluginsdk provides the SDK for building plugman binary modules.
//
// Binary modules run as child processes and talk to the host over net/rpc
// using the HashiCorp go-plugin framework. A module implements Handler and
// optionally Hooks and CommandHandler.
//
// Example usage:
//
//	package main
//
//	import (
//		"context"
//		"github.com/holomush/plugman/pkg/pluginsdk"
//	)
//
//	type Echo struct{}
//
//	func (Echo) HandleEvent(_ context.Context, e pluginsdk.Event) ([]pluginsdk.EmitEvent, error) {
//		return []pluginsdk.EmitEvent{{Kind: "echo", Payload: e.Payload}}, nil
//	}
//
//	func main() {
//		pluginsdk.Serve(&pluginsdk.ServeConfig{Handler: Echo{}})
//	}
package pluginsdk

import (
	"context"

	"github.com/hashicorp/go-hclog"
	hashiplug "github.com/hashicorp/go-plugin"
)

// PluginName is the name modules are dispensed under.
const PluginName = "module"

// Hook names carried by HookArgs.
const (
	HookLoad    = "load"
	HookEnable  = "enable"
	HookDisable = "disable"
)

// Event is an event delivered to a module.
type Event struct {
	// ID is the unique event identifier (ULID string).
	ID string
	// Kind is the event kind (e.g., "player.join", "module.enabled").
	Kind string
	// Source is the emitting module name, or "host".
	Source string
	// Timestamp in Unix milliseconds.
	Timestamp int64
	// Payload is the JSON-encoded event data.
	Payload string
}

// EmitEvent is an event a module asks the host to publish. The module must
// hold the events.emit.<kind> capability.
type EmitEvent struct {
	Kind    string
	Payload string
}

// Command is a command invocation routed to the module.
type Command struct {
	Name   string
	Label  string
	Args   []string
	Sender string
}

// Handler is the interface every binary module implements.
type Handler interface {
	// HandleEvent processes an event and returns any events to emit.
	HandleEvent(ctx context.Context, event Event) ([]EmitEvent, error)
}

// Hooks is implemented by modules that react to lifecycle transitions.
type Hooks interface {
	OnLoad(ctx context.Context) error
	OnEnable(ctx context.Context) error
	OnDisable(ctx context.Context) error
}

// CommandHandler is implemented by modules that declare commands.
type CommandHandler interface {
	HandleCommand(ctx context.Context, cmd Command) (string, error)
}

// HandshakeConfig is the go-plugin handshake configuration.
// Both host and modules must use the same values.
var HandshakeConfig = hashiplug.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "PLUGMAN_MODULE",
	MagicCookieValue: "plugman-v1",
}

// ServeConfig configures the module server.
type ServeConfig struct {
	// Handler is the module implementation.
	// Required; Serve will panic if nil.
	Handler Handler

	// Logger receives go-plugin's own diagnostics. Defaults to an hclog
	// logger on stderr, which the host forwards into its log.
	Logger hclog.Logger
}

// Serve starts the module server. This should be called from main().
// It blocks until the host kills the process.
func Serve(config *ServeConfig) {
	if config == nil {
		panic("pluginsdk: config cannot be nil")
	}
	if config.Handler == nil {
		panic("pluginsdk: config.Handler cannot be nil")
	}
	logger := config.Logger
	if logger == nil {
		logger = hclog.New(&hclog.LoggerOptions{Name: PluginName, JSONFormat: true})
	}
	hashiplug.Serve(&hashiplug.ServeConfig{
		HandshakeConfig: HandshakeConfig,
		Plugins: hashiplug.PluginSet{
			PluginName: &RPCPlugin{Impl: config.Handler},
		},
		Logger: logger,
	})
}

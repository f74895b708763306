// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package goplugin

import (
	"context"
	"os/exec"

	"github.com/hashicorp/go-hclog"
	hashiplug "github.com/hashicorp/go-plugin"

	"github.com/holomush/plugman/pkg/pluginsdk"
)

// HandshakeConfig is imported from pluginsdk to ensure host and modules
// use identical configuration. Do not define locally to prevent drift.
var HandshakeConfig = pluginsdk.HandshakeConfig

// PluginMap is the map of plugins we can dispense.
var PluginMap = hashiplug.PluginSet{
	pluginsdk.PluginName: &pluginsdk.RPCPlugin{},
}

// Module is the host-side view of a running module process.
// *pluginsdk.RPCClient implements it.
type Module interface {
	Hook(ctx context.Context, hook string) error
	HandleEvent(ctx context.Context, event pluginsdk.Event) ([]pluginsdk.EmitEvent, error)
	HandleCommand(ctx context.Context, cmd pluginsdk.Command) (string, error)
}

var _ Module = (*pluginsdk.RPCClient)(nil)

// PluginClient wraps the go-plugin client for testability.
type PluginClient interface {
	// Client starts the process if needed and returns the RPC protocol.
	Client() (hashiplug.ClientProtocol, error)
	// Kill terminates the module process.
	Kill()
}

// ClientFactory creates plugin clients.
type ClientFactory interface {
	// NewClient creates a client for a module executable.
	NewClient(name, execPath string) PluginClient
}

// DefaultClientFactory creates real go-plugin clients.
type DefaultClientFactory struct {
	// Logger receives the module's stderr and go-plugin diagnostics.
	// Defaults to an hclog logger named after the module.
	Logger hclog.Logger
}

// NewClient creates a real go-plugin client over net/rpc.
func (f *DefaultClientFactory) NewClient(name, execPath string) PluginClient {
	logger := f.Logger
	if logger == nil {
		logger = hclog.New(&hclog.LoggerOptions{Name: "module", Level: hclog.Info})
	}
	return hashiplug.NewClient(&hashiplug.ClientConfig{
		HandshakeConfig:  HandshakeConfig,
		Plugins:          PluginMap,
		Cmd:              exec.Command(execPath), // #nosec G204 -- execPath is the descriptor's executable extracted by the host
		AllowedProtocols: []hashiplug.Protocol{hashiplug.ProtocolNetRPC},
		Logger:           logger.Named(name),
	})
}

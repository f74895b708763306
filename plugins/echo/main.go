// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package main implements an echo module for plugman.
//
// Every player.chat event is echoed back as an echo event, and the
// /echo command replies with its arguments.
//
// Build and package:
//
//	go build -o echo ./plugins/echo
//	zip echo.plugin plugin.yaml echo
package main

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/holomush/plugman/pkg/pluginsdk"
)

type chatPayload struct {
	Message string `json:"message"`
}

type echo struct{}

func (echo) HandleEvent(_ context.Context, e pluginsdk.Event) ([]pluginsdk.EmitEvent, error) {
	if e.Kind != "player.chat" || e.Source == "echo" {
		return nil, nil
	}
	var in chatPayload
	if err := json.Unmarshal([]byte(e.Payload), &in); err != nil {
		return nil, nil //nolint:nilerr // malformed chat is ignored, not fatal
	}
	out, err := json.Marshal(chatPayload{Message: "Echo: " + in.Message})
	if err != nil {
		return nil, err //nolint:wrapcheck // crosses the process boundary as text
	}
	return []pluginsdk.EmitEvent{{Kind: "echo", Payload: string(out)}}, nil
}

func (echo) HandleCommand(_ context.Context, cmd pluginsdk.Command) (string, error) {
	if len(cmd.Args) == 0 {
		return "Usage: /" + cmd.Label + " <text>", nil
	}
	return strings.Join(cmd.Args, " "), nil
}

func main() {
	pluginsdk.Serve(&pluginsdk.ServeConfig{Handler: echo{}})
}

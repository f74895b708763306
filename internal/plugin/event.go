// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Event kinds published by the host itself.
const (
	EventModuleEnabled  = "module.enabled"
	EventModuleDisabled = "module.disabled"
)

// SourceHost is the Event.Source used for host-originated events.
const SourceHost = "host"

// Event is delivered to every module listening for its kind.
type Event struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Source    string `json:"source"`    // module name or SourceHost
	Timestamp int64  `json:"timestamp"` // Unix milliseconds
	Payload   string `json:"payload"`   // JSON string
}

// NewEvent creates an event stamped with a fresh ULID and the current time.
func NewEvent(kind, source, payload string) Event {
	return Event{
		ID:        ulid.Make().String(),
		Kind:      kind,
		Source:    source,
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	}
}

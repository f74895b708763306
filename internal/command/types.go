// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package command provides the live command table, parser, and dispatcher.
package command

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
)

// Handler runs a command and returns the reply shown to the sender.
type Handler func(ctx context.Context, call *Call) (string, error)

// Sender is whoever issued a command line.
type Sender interface {
	Name() string
	HasPermission(permission string) bool
}

// Owner identifies the module instance a command belongs to.
// Host built-ins use a zero ID.
type Owner struct {
	ID   ulid.ULID
	Name string
}

// IsHost reports whether the owner is the host itself.
func (o Owner) IsHost() bool {
	return o.ID.IsZero()
}

// Entry is a command registered in the Table.
type Entry struct {
	Name        string   // canonical name
	Aliases     []string // alternative labels
	Description string   // one line
	Usage       string   // usage pattern; "<command>" is replaced by the label
	Permission  string   // required permission, empty for none
	Owner       Owner
	Handler     Handler
}

// FallbackLabel returns "<owner>:<name>", which stays reachable when the
// plain name is taken by another owner.
func (e *Entry) FallbackLabel() string {
	return strings.ToLower(e.Owner.Name + ":" + e.Name)
}

// UsageFor renders the usage pattern for the label the sender typed.
func (e *Entry) UsageFor(label string) string {
	if e.Usage == "" {
		return label
	}
	return strings.ReplaceAll(e.Usage, "<command>", label)
}

// Call carries one invocation to a Handler.
type Call struct {
	Entry  *Entry
	Label  string   // label the sender typed
	Args   []string // tokenized arguments, quotes removed
	Raw    string   // unparsed argument string
	Sender Sender
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package plugin provides module descriptors, archives, and the per-module
// handle model shared by the lifecycle manager and the module runtimes.
package plugin

import (
	"context"
	"io"
	"io/fs"
)

// Instance is the code of one loaded module, provided by a runtime.
// Hooks are foreign code and may block or fail; callers bound them with ctx.
type Instance interface {
	// OnLoad runs once after the archive is loaded.
	OnLoad(ctx context.Context) error

	// OnEnable runs on every transition into StateEnabled.
	OnEnable(ctx context.Context) error

	// OnDisable runs on every transition out of StateEnabled.
	OnDisable(ctx context.Context) error

	// HandleEvent delivers an event the module listens for.
	HandleEvent(ctx context.Context, event Event) error

	// HandleCommand runs one of the module's declared commands and returns its reply.
	HandleCommand(ctx context.Context, inv Invocation) (string, error)

	// Close releases runtime resources (interpreter state, processes).
	Close() error
}

// Runtime instantiates module code for one descriptor type.
type Runtime interface {
	// Type returns the descriptor type this runtime serves.
	Type() Type

	// Instantiate creates an instance from an opened archive.
	// Resources the runtime needs released on unload are handed to the loader
	// via Loader.Hold rather than kept privately.
	Instantiate(ctx context.Context, archive fs.FS, desc *Descriptor, loader *Loader) (Instance, error)
}

// Invocation is a command call routed to the module that owns it.
type Invocation struct {
	Command string   // declared command name
	Label   string   // label the sender typed (name, alias, or fallback)
	Args    []string // whitespace-separated arguments
	Sender  string   // sender name
}

// NamedCloser pairs a handle with a name for reclaim reporting.
type NamedCloser struct {
	Name   string
	Closer io.Closer
}

// CloserFunc adapts a function to io.Closer.
type CloserFunc func() error

// Close calls f.
func (f CloserFunc) Close() error { return f() }

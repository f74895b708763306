// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"errors"

	"github.com/samber/oops"
)

// Error codes for module management failures.
const (
	CodeModuleNotFound    = "MODULE_NOT_FOUND"
	CodeAlreadyInState    = "ALREADY_IN_STATE"
	CodePermissionDenied  = "PERMISSION_DENIED"
	CodePluginNotFound    = "PLUGIN_NOT_FOUND"
	CodeLoadError         = "LOAD_ERROR"
	CodeHookFailed        = "HOOK_FAILED"
	CodeHookTimeout       = "HOOK_TIMEOUT"
	CodePartialUnload     = "PARTIAL_UNLOAD"
	CodeReclaimFailure    = "RECLAIM_FAILURE"
	CodeInvalidDescriptor = "INVALID_DESCRIPTOR"
)

// Sentinel errors for programmatic error checking.
var (
	// ErrAlreadyLoaded is returned when a module with the same name is registered.
	ErrAlreadyLoaded = errors.New("module already loaded")
	// ErrNoDescriptor is returned when an archive has no plugin.yaml.
	ErrNoDescriptor = errors.New("archive has no plugin.yaml")
	// ErrUnsupportedType is returned when no runtime serves a descriptor's type.
	ErrUnsupportedType = errors.New("unsupported module type")
)

// ErrModuleNotFound creates an error for a failed name or command lookup.
func ErrModuleNotFound(name string) error {
	return oops.Code(CodeModuleNotFound).
		With("plugin", name).
		Errorf("%s is not a loaded plugin", name)
}

// ErrAlreadyInState creates the informational error attached to noop transitions.
func ErrAlreadyInState(name string, state State) error {
	return oops.Code(CodeAlreadyInState).
		With("plugin", name).
		With("state", state.String()).
		Errorf("%s is already %s", name, state)
}

// ErrPluginNotFound creates an error for a load request no archive matched.
func ErrPluginNotFound(name, dir string) error {
	return oops.Code(CodePluginNotFound).
		With("plugin", name).
		With("dir", dir).
		Errorf("no archive for plugin %s in %s", name, dir)
}

// LoadError wraps a failure to bring a module into the host.
func LoadError(name, path string, cause error) error {
	return oops.Code(CodeLoadError).
		With("plugin", name).
		With("path", path).
		Wrapf(cause, "load %s", name)
}

// HookError wraps a failing or timed out module hook.
func HookError(name, hook string, cause error) error {
	code := CodeHookFailed
	if errors.Is(cause, ErrHookTimeout) {
		code = CodeHookTimeout
	}
	return oops.Code(code).
		With("plugin", name).
		With("hook", hook).
		Wrapf(cause, "%s hook of %s", hook, name)
}

// ErrHookTimeout marks a hook abandoned after its deadline.
var ErrHookTimeout = errors.New("hook timed out")

// PartialUnload creates the warning for an unload step that could not complete.
func PartialUnload(name, step string, cause error) error {
	b := oops.Code(CodePartialUnload).
		With("plugin", name).
		With("step", step)
	if cause == nil {
		return b.Errorf("unload %s: %s skipped", name, step)
	}
	return b.Wrapf(cause, "unload %s: %s", name, step)
}

// ReclaimFailure wraps a handle that could not be closed.
func ReclaimFailure(name, handle string, cause error) error {
	return oops.Code(CodeReclaimFailure).
		With("plugin", name).
		With("handle", handle).
		Wrapf(cause, "close %s of %s", handle, name)
}

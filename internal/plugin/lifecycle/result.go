// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lifecycle

import (
	"github.com/holomush/plugman/internal/plugin"
)

// Op names a lifecycle operation.
type Op string

// Lifecycle operations.
const (
	OpLoad    Op = "load"
	OpEnable  Op = "enable"
	OpDisable Op = "disable"
	OpUnload  Op = "unload"
	OpReload  Op = "reload"
)

// Outcome classifies how an operation ended.
type Outcome string

// Operation outcomes.
const (
	// OutcomeDone - the transition happened.
	OutcomeDone Outcome = "done"
	// OutcomeNoop - nothing to do; the module was absent or already in the target state.
	OutcomeNoop Outcome = "noop"
	// OutcomeFailed - the transition failed; Err says why.
	OutcomeFailed Outcome = "failed"
)

// Result reports one operation on one module.
type Result struct {
	Op      Op
	Name    string         // target name as resolved
	Module  *plugin.Module // nil when nothing was resolved
	Outcome Outcome
	Code    string // error code classifying a noop or failure
	Reason  string // human-readable summary for the operator
	Err     error
	// Warnings are best-effort steps that could not complete. They never
	// turn a result into a failure.
	Warnings []error
}

// OK reports whether the operation did not fail.
func (r Result) OK() bool {
	return r.Outcome != OutcomeFailed
}

func done(op Op, m *plugin.Module, reason string) Result {
	return Result{Op: op, Name: m.Name(), Module: m, Outcome: OutcomeDone, Reason: reason}
}

func noop(op Op, name string, m *plugin.Module, code, reason string, err error) Result {
	return Result{Op: op, Name: name, Module: m, Outcome: OutcomeNoop, Code: code, Reason: reason, Err: err}
}

func failed(op Op, name string, m *plugin.Module, code, reason string, err error) Result {
	return Result{Op: op, Name: name, Module: m, Outcome: OutcomeFailed, Code: code, Reason: reason, Err: err}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package command

import (
	"errors"

	"github.com/samber/oops"
)

// Dispatch error codes.
const (
	CodeEmptyInput       = "EMPTY_INPUT"
	CodeUnknownCommand   = "UNKNOWN_COMMAND"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeInvalidArgs      = "INVALID_ARGS"
	CodeHandlerFailed    = "HANDLER_FAILED"
)

// ErrNilTable is returned by NewDispatcher without a table.
var ErrNilTable = errors.New("command table is nil")

const internalFailure = "An internal error occurred while running that command."

// senderMessages holds the fixed replies per code. Codes missing here get
// internalFailure.
var senderMessages = map[string]string{
	CodeEmptyInput:       "",
	CodeUnknownCommand:   `Unknown command. Type "help" for help.`,
	CodePermissionDenied: "You don't have permission to do that.",
	CodeInvalidArgs:      "Invalid arguments.",
}

// ErrUnknownCommand reports that no entry owns label.
func ErrUnknownCommand(label string) error {
	return oops.Code(CodeUnknownCommand).With("command", label).Errorf("unknown command: %s", label)
}

// ErrPermissionDenied reports a sender lacking permission for label.
func ErrPermissionDenied(label, permission string) error {
	return oops.Code(CodePermissionDenied).
		With("command", label, "permission", permission).
		Errorf("%s requires %s", label, permission)
}

// ErrInvalidArgs rejects a call; usage, when set, is shown to the sender.
func ErrInvalidArgs(label, usage string) error {
	return oops.Code(CodeInvalidArgs).With("command", label, "usage", usage).Errorf("invalid arguments")
}

// SenderMessage turns a dispatch error into the line shown to the sender.
// Errors without a known code never leak their text.
func SenderMessage(err error) string {
	if err == nil {
		return ""
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return internalFailure
	}
	code, _ := oopsErr.Code().(string)
	if code == CodeInvalidArgs {
		if usage, _ := oopsErr.Context()["usage"].(string); usage != "" {
			return "Usage: " + usage
		}
	}
	if msg, known := senderMessages[code]; known {
		return msg
	}
	return internalFailure
}

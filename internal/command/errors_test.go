// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package command

import (
	"errors"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
)

func TestSenderMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "empty input", err: oops.Code(CodeEmptyInput).Errorf("empty"), want: ""},
		{name: "unknown command", err: ErrUnknownCommand("nope"), want: `Unknown command. Type "help" for help.`},
		{name: "permission denied", err: ErrPermissionDenied("plugman", "plugman.main"), want: "You don't have permission to do that."},
		{name: "usage", err: ErrInvalidArgs("plugman", "plugman load <plugin>"), want: "Usage: plugman load <plugin>"},
		{name: "invalid without usage", err: ErrInvalidArgs("plugman", ""), want: "Invalid arguments."},
		{name: "wrapped code", err: oops.Wrapf(ErrUnknownCommand("x"), "dispatch"), want: `Unknown command. Type "help" for help.`},
		{name: "unmapped code", err: oops.Code(CodeHandlerFailed).Errorf("boom"), want: internalFailure},
		{name: "no code", err: oops.Errorf("boom"), want: internalFailure},
		{name: "plain error", err: errors.New("secret detail"), want: internalFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SenderMessage(tt.err))
		})
	}
}

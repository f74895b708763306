// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/holomush/plugman/internal/command"
	"github.com/holomush/plugman/internal/plugin/capability"
	"github.com/holomush/plugman/pkg/errutil"
)

// Operator is a console sender whose permissions are the enforcer's
// grants for its name.
type Operator struct {
	name     string
	enforcer *capability.Enforcer
}

// NewOperator creates an operator backed by enforcer. A nil enforcer
// grants nothing.
func NewOperator(name string, enforcer *capability.Enforcer) Operator {
	return Operator{name: name, enforcer: enforcer}
}

// Name implements command.Sender.
func (o Operator) Name() string { return o.name }

// HasPermission implements command.Sender.
func (o Operator) HasPermission(permission string) bool {
	return o.enforcer != nil && o.enforcer.Check(o.name, permission)
}

// Session reads command lines from in and writes replies to out until
// the input ends, the operator types quit, or ctx is done.
type Session struct {
	dispatcher *command.Dispatcher
	sender     command.Sender
	in         io.Reader
	out        io.Writer
	prompt     string
	logger     *slog.Logger
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithPrompt sets the prompt written before each line. Default "> ".
func WithPrompt(p string) SessionOption {
	return func(s *Session) {
		s.prompt = p
	}
}

// WithSessionLogger sets the logger. Defaults to slog.Default().
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSession creates a console session.
func NewSession(d *command.Dispatcher, sender command.Sender, in io.Reader, out io.Writer, opts ...SessionOption) *Session {
	s := &Session{
		dispatcher: d,
		sender:     sender,
		in:         in,
		out:        out,
		prompt:     "> ",
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run processes lines until the session ends. It returns nil on EOF or quit.
func (s *Session) Run(ctx context.Context) error {
	lineCh := make(chan string)
	errCh := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		scanner := bufio.NewScanner(s.in)
		for scanner.Scan() {
			select {
			case lineCh <- strings.TrimSpace(scanner.Text()):
			case <-done:
				return
			}
		}
		errCh <- scanner.Err()
	}()

	s.send("PlugMan console. Type \"plugman help\" for commands, \"quit\" to leave.")
	s.writePrompt()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err != nil && !errors.Is(err, io.EOF) {
				return err //nolint:wrapcheck // read errors pass through
			}
			return nil
		case line := <-lineCh:
			if line == "quit" || line == "exit" {
				s.send("Bye.")
				return nil
			}
			s.processLine(ctx, line)
			s.writePrompt()
		}
	}
}

func (s *Session) processLine(ctx context.Context, line string) {
	if line == "" {
		return
	}
	reply, err := s.dispatcher.Dispatch(ctx, s.sender, line)
	if err != nil {
		switch errutil.Code(err) {
		case command.CodeUnknownCommand, command.CodePermissionDenied, command.CodeInvalidArgs, command.CodeEmptyInput:
		default:
			errutil.LogWarn(ctx, s.logger, "console command failed", err, "sender", s.sender.Name())
		}
		reply = command.SenderMessage(err)
	}
	if reply != "" {
		s.send(reply)
	}
}

func (s *Session) send(msg string) {
	if _, err := fmt.Fprintln(s.out, msg); err != nil {
		s.logger.Debug("console write failed", "error", err)
	}
}

func (s *Session) writePrompt() {
	if s.prompt == "" {
		return
	}
	if _, err := io.WriteString(s.out, s.prompt); err != nil {
		s.logger.Debug("console write failed", "error", err)
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package command

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("plugman/command")

// Dispatcher parses input lines, checks permissions, and runs handlers.
type Dispatcher struct {
	table *Table
}

// NewDispatcher creates a dispatcher over table.
func NewDispatcher(table *Table) (*Dispatcher, error) {
	if table == nil {
		return nil, ErrNilTable
	}
	return &Dispatcher{table: table}, nil
}

// Table returns the table the dispatcher reads.
func (d *Dispatcher) Table() *Table { return d.table }

// Dispatch parses and executes one command line.
func (d *Dispatcher) Dispatch(ctx context.Context, sender Sender, input string) (reply string, err error) {
	line, err := Parse(input)
	if err != nil {
		return "", err
	}

	metrics := startDispatch()
	ctx, span := tracer.Start(ctx, "command.execute",
		trace.WithAttributes(
			attribute.String("command.label", line.Label),
			attribute.String("sender", sender.Name()),
		),
	)
	defer func() {
		metrics.finish(err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	entry, ok := d.table.Get(line.Label)
	if !ok {
		err = ErrUnknownCommand(line.Label)
		return "", err
	}
	metrics.bind(entry)
	span.SetAttributes(
		attribute.String("command.name", entry.Name),
		attribute.String("command.owner", entry.Owner.Name),
	)

	if entry.Permission != "" && !sender.HasPermission(entry.Permission) {
		err = ErrPermissionDenied(line.Label, entry.Permission)
		return "", err
	}

	reply, err = entry.Handler(ctx, &Call{
		Entry:  entry,
		Label:  line.Label,
		Args:   line.Args,
		Raw:    line.Rest,
		Sender: sender,
	})
	if err != nil && statusFor(err) == StatusError {
		slog.WarnContext(ctx, "command execution failed",
			"command", entry.Name,
			"owner", entry.Owner.Name,
			"sender", sender.Name(),
			"error", err,
		)
	}
	return reply, err
}

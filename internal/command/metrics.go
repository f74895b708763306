// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package command

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/holomush/plugman/pkg/errutil"
)

// Dispatch statuses recorded in plugman_command_executions_total.
const (
	StatusSuccess          = "success"
	StatusError            = "error"
	StatusNotFound         = "not_found"
	StatusPermissionDenied = "permission_denied"
	StatusInvalidArgs      = "invalid_args"
)

// unboundLabel stands in for labels no entry is bound to, so arbitrary
// input cannot create label series.
const unboundLabel = "unknown"

// CommandExecutions counts dispatches by entry name, owning module and status.
var CommandExecutions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "plugman_command_executions_total",
		Help: "Total number of command dispatches",
	},
	[]string{"command", "owner", "status"},
)

// CommandDuration observes handler time for bound entries.
var CommandDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "plugman_command_duration_seconds",
		Help:    "Command handler duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"command", "owner"},
)

// RegisterMetrics registers the command collectors with reg.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(CommandExecutions, CommandDuration)
}

// statusFor maps a dispatch error to its metric status.
func statusFor(err error) string {
	if err == nil {
		return StatusSuccess
	}
	switch errutil.Code(err) {
	case CodeUnknownCommand:
		return StatusNotFound
	case CodePermissionDenied:
		return StatusPermissionDenied
	case CodeInvalidArgs:
		return StatusInvalidArgs
	default:
		return StatusError
	}
}

// dispatchMetrics accumulates the labels of one dispatch.
type dispatchMetrics struct {
	start time.Time
	entry *Entry
}

func startDispatch() *dispatchMetrics {
	return &dispatchMetrics{start: time.Now()}
}

func (m *dispatchMetrics) bind(e *Entry) { m.entry = e }

// finish records the dispatch under the status derived from err.
func (m *dispatchMetrics) finish(err error) {
	if m.entry == nil {
		CommandExecutions.WithLabelValues(unboundLabel, "", statusFor(err)).Inc()
		return
	}
	owner := m.entry.Owner.Name
	CommandExecutions.WithLabelValues(m.entry.Name, owner, statusFor(err)).Inc()
	CommandDuration.WithLabelValues(m.entry.Name, owner).Observe(time.Since(m.start).Seconds())
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package host

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for hook and delivery metrics.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
	OutcomePanic   = "panic"
)

// HookDuration observes how long module hooks take.
// Use RegisterMetrics to register this with a Prometheus registry.
var HookDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "plugman_hook_duration_seconds",
		Help:    "Module hook duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"hook", "outcome"},
)

// EventsDelivered counts event deliveries to individual listeners.
var EventsDelivered = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "plugman_events_delivered_total",
		Help: "Total number of event deliveries to module listeners",
	},
	[]string{"kind", "outcome"},
)

// EventsDropped counts events rejected because the queue was full or stopped.
var EventsDropped = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "plugman_events_dropped_total",
		Help: "Total number of events dropped before delivery",
	},
)

// RegisterMetrics registers host metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(HookDuration)
	reg.MustRegister(EventsDelivered)
	reg.MustRegister(EventsDropped)
}

// RecordHook observes one hook call.
func RecordHook(hook, outcome string, d time.Duration) {
	HookDuration.WithLabelValues(hook, outcome).Observe(d.Seconds())
}

// RecordDelivery counts one listener delivery.
func RecordDelivery(kind, outcome string) {
	EventsDelivered.WithLabelValues(kind, outcome).Inc()
}
